package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Event{}, &SessionRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) LoadSession(ctx context.Context, id string) (engine.State, error) {
	var rec SessionRecord
	err := p.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return rec.State, nil
}

func (p *Postgres) SaveSession(ctx context.Context, id string, st engine.State) error {
	rec := SessionRecord{ID: id, State: st}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", id).Error
}

func (p *Postgres) CreateEvent(ctx context.Context, ev *Event) error {
	return p.db.WithContext(ctx).Create(ev).Error
}

func (p *Postgres) FindEvent(ctx context.Context, id string) (*Event, error) {
	var ev Event
	err := p.db.WithContext(ctx).First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (p *Postgres) DeleteEvent(ctx context.Context, id string) error {
	res := p.db.WithContext(ctx).Delete(&Event{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
