// Package registry owns the set of live sessions. Sessions are created
// lazily on first reference, hydrated from the store when one exists.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("registry closed")
	ErrInvalidID = errors.New("invalid session id")
)

const storeTimeout = 5 * time.Second

// Store is the part of storage a registry needs: session snapshots plus
// branding lookups.
type Store interface {
	storage.SessionStore
	FindEvent(ctx context.Context, id string) (*storage.Event, error)
}

type Msg interface{ isRegistryMsg() }

type EnsureSession struct {
	ID    string
	Reply chan ensured
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

type RemoveSession struct {
	ID    string
	Reply chan error
}

type Shutdown struct{}

type ensured struct {
	sess *session.Session
	err  error
}

func (EnsureSession) isRegistryMsg() {}
func (GetSession) isRegistryMsg()    {}
func (RemoveSession) isRegistryMsg() {}
func (Shutdown) isRegistryMsg()      {}

type Registry struct {
	inbox    chan Msg
	sessions map[string]*session.Session
	store    Store
	opts     session.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
}

// New starts the registry loop. opts is handed to every session it
// creates; a nil opts.Store is replaced by store.
func New(parent context.Context, store Store, opts session.Options) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if store == nil {
		store = storage.NewMemory()
	}
	if opts.Store == nil {
		opts.Store = store
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*session.Session),
		store:    store,
		opts:     opts,
		log:      log.Named("registry"),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Ensure returns the session for id, creating it on first reference.
func (r *Registry) Ensure(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	reply := make(chan ensured, 1)
	if err := r.send(ctx, EnsureSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.sess, res.err
	case <-r.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the live session for id, or nil if none is loaded.
func (r *Registry) Get(ctx context.Context, id string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := r.send(ctx, GetSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Remove discards a session: it is closed and its persisted state deleted.
// Removing an unknown id only deletes whatever the store holds.
func (r *Registry) Remove(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, RemoveSession{ID: id, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes every session and stops the loop. It returns once no
// session can touch the store any more.
func (r *Registry) Shutdown() {
	select {
	case r.inbox <- Shutdown{}:
	case <-r.ctx.Done():
	}
	<-r.stopped
}

// Done is closed once the registry loop and all its sessions have exited.
func (r *Registry) Done() <-chan struct{} { return r.stopped }

func (r *Registry) send(ctx context.Context, m Msg) error {
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) loop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.ctx.Done():
			r.closeAll()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if s := r.live(msg.ID); s != nil {
					msg.Reply <- ensured{sess: s}
					break
				}
				s, err := r.hydrate(msg.ID)
				if err != nil {
					msg.Reply <- ensured{err: err}
					break
				}
				r.sessions[msg.ID] = s
				msg.Reply <- ensured{sess: s}

			case GetSession:
				msg.Reply <- r.live(msg.ID) // may be nil

			case RemoveSession:
				// Close waits for the session loop, so no save can land
				// after the delete below.
				if s := r.sessions[msg.ID]; s != nil {
					s.Close()
					delete(r.sessions, msg.ID)
				}
				ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
				err := r.store.DeleteSession(ctx, msg.ID)
				cancel()
				if errors.Is(err, storage.ErrNotFound) {
					err = nil
				}
				if err != nil {
					err = fmt.Errorf("delete session %s: %w", msg.ID, err)
				}
				r.log.Info("session removed", zap.String("session", msg.ID))
				msg.Reply <- err

			case Shutdown:
				r.closeAll()
				r.cancel()
				return
			}
		}
	}
}

// live drops sessions that were closed behind the registry's back.
func (r *Registry) live(id string) *session.Session {
	s := r.sessions[id]
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		delete(r.sessions, id)
		return nil
	default:
		return s
	}
}

func (r *Registry) hydrate(id string) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
	defer cancel()

	st, err := r.store.LoadSession(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		st = engine.NewEmptyState()
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var branding *session.Branding
	ev, err := r.store.FindEvent(ctx, id)
	switch {
	case err == nil:
		branding = &session.Branding{Title: ev.Title, BackgroundURL: ev.BackgroundURL}
	case !errors.Is(err, storage.ErrNotFound):
		r.log.Warn("load branding", zap.String("session", id), zap.Error(err))
	}

	r.log.Info("session loaded",
		zap.String("session", id),
		zap.String("status", string(st.Status)),
		zap.Int("participants", len(st.Participants)))
	return session.New(r.ctx, id, st, branding, r.opts), nil
}

func (r *Registry) closeAll() {
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
