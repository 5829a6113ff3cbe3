// Package storage persists session snapshots and event branding.
//
// Two implementations share the same interfaces: Memory for tests and
// single-process runs, Postgres (gorm) for production.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
)

var ErrNotFound = errors.New("not found")

// Event is the branding record an operator creates before a live draw.
// Its ID doubles as the session id.
type Event struct {
	ID            string    `gorm:"primaryKey;size:32" json:"id"`
	Title         string    `gorm:"not null" json:"title"`
	BackgroundURL string    `json:"background_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SessionRecord struct {
	ID        string       `gorm:"primaryKey;size:64"`
	State     engine.State `gorm:"serializer:json;type:jsonb;not null"`
	UpdatedAt time.Time
}

type SessionStore interface {
	LoadSession(ctx context.Context, id string) (engine.State, error)
	SaveSession(ctx context.Context, id string, st engine.State) error
	DeleteSession(ctx context.Context, id string) error
}

type EventRepository interface {
	CreateEvent(ctx context.Context, ev *Event) error
	FindEvent(ctx context.Context, id string) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

type Store interface {
	SessionStore
	EventRepository
	Close() error
}
