package storage

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
)

type Memory struct {
	mu       sync.RWMutex
	sessions map[string]engine.State
	events   map[string]Event
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]engine.State),
		events:   make(map[string]Event),
		now:      time.Now,
	}
}

func (m *Memory) LoadSession(_ context.Context, id string) (engine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return engine.State{}, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *Memory) SaveSession(_ context.Context, id string, st engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = st.Clone()
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) CreateEvent(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	ev.CreatedAt, ev.UpdatedAt = now, now
	m.events[ev.ID] = *ev
	return nil
}

func (m *Memory) FindEvent(_ context.Context, id string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) Close() error { return nil }
