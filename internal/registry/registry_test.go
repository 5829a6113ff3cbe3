package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/storage"
	"github.com/stretchr/testify/require"
)

// gatedStore holds every SaveSession until release is closed.
type gatedStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Memory:  storage.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) SaveSession(ctx context.Context, id string, st engine.State) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Memory.SaveSession(ctx, id, st)
}

func joinAlice(t *testing.T, s *session.Session) {
	t.Helper()
	require.NoError(t, s.Send(context.Background(), session.FromClient{
		Origin: session.Subscriber{TransportID: "t1", Outbox: make(chan session.Outbound, 4)},
		Cmd:    engine.Command{Type: engine.CmdJoin, Participant: engine.Participant{ExternalID: "u1", DisplayName: "Alice"}},
	}))
}

func waitEntered(t *testing.T, store *gatedStore) {
	t.Helper()
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("save never started")
	}
}

func newRegistry(t *testing.T, store *storage.Memory) *Registry {
	t.Helper()
	r := New(context.Background(), store, session.Options{RevealDelay: time.Hour})
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistry_Ensure_Get_SamePointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRegistry(t, storage.NewMemory())

	s1, err := r.Ensure(ctx, "default")
	req.NoError(err)
	s2, err := r.Ensure(ctx, "default")
	req.NoError(err)
	s3, err := r.Get(ctx, "default")
	req.NoError(err)

	req.NotNil(s1)
	req.Same(s1, s2)
	req.Same(s1, s3)

	missing, err := r.Get(ctx, "nope")
	req.NoError(err)
	req.Nil(missing)
}

func TestRegistry_Ensure_RejectsEmptyID(t *testing.T) {
	r := newRegistry(t, storage.NewMemory())
	_, err := r.Ensure(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestRegistry_HydratesFromStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemory()

	st := engine.NewEmptyState()
	st.Participants = append(st.Participants, engine.Participant{ExternalID: "u1", DisplayName: "Alice"})
	req.NoError(store.SaveSession(ctx, "gala", st))
	req.NoError(store.CreateEvent(ctx, &storage.Event{ID: "gala", Title: "Gala", BackgroundURL: "bg.png"}))

	r := newRegistry(t, store)
	s, err := r.Ensure(ctx, "gala")
	req.NoError(err)

	v, err := s.View(ctx)
	req.NoError(err)
	req.Len(v.State.Participants, 1)
	req.Equal("Alice", v.State.Participants[0].DisplayName)
	req.NotNil(v.Branding)
	req.Equal("Gala", v.Branding.Title)
}

func TestRegistry_NewSessionPersistsThroughStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemory()
	r := newRegistry(t, store)

	s, err := r.Ensure(ctx, "fresh")
	req.NoError(err)

	out := make(chan session.Outbound, 4)
	req.NoError(s.Send(ctx, session.FromClient{
		Origin: session.Subscriber{TransportID: "t1", Outbox: out},
		Cmd:    engine.Command{Type: engine.CmdJoin, Participant: engine.Participant{ExternalID: "u1", DisplayName: "Alice"}},
	}))

	select {
	case msg := <-out:
		req.Equal(session.KindSnapshot, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}

	saved, err := store.LoadSession(ctx, "fresh")
	req.NoError(err)
	req.Len(saved.Participants, 1)
}

func TestRegistry_Remove(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := storage.NewMemory()
	req.NoError(store.SaveSession(ctx, "gone", engine.NewEmptyState()))

	r := newRegistry(t, store)
	s, err := r.Ensure(ctx, "gone")
	req.NoError(err)

	req.NoError(r.Remove(ctx, "gone"))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not closed")
	}
	got, err := r.Get(ctx, "gone")
	req.NoError(err)
	req.Nil(got)

	_, err = store.LoadSession(ctx, "gone")
	req.ErrorIs(err, storage.ErrNotFound)

	// A later reference starts over.
	s2, err := r.Ensure(ctx, "gone")
	req.NoError(err)
	req.NotSame(s, s2)
}

func TestRegistry_ShutdownClosesSessions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := New(ctx, storage.NewMemory(), session.Options{})

	s, err := r.Ensure(ctx, "default")
	req.NoError(err)

	r.Shutdown()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not closed")
	}
	_, err = r.Ensure(ctx, "default")
	req.ErrorIs(err, ErrClosed)
}

func TestRegistry_RemoveWaitsForInFlightSave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newGatedStore()
	r := New(ctx, store, session.Options{RevealDelay: time.Hour})
	t.Cleanup(func() {
		select {
		case <-store.release:
		default:
			close(store.release)
		}
		r.Shutdown()
	})

	s, err := r.Ensure(ctx, "e1")
	req.NoError(err)
	joinAlice(t, s)
	waitEntered(t, store)

	removed := make(chan error, 1)
	go func() { removed <- r.Remove(ctx, "e1") }()

	select {
	case err := <-removed:
		t.Fatalf("remove returned while a save was still running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case err := <-removed:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("remove did not finish")
	}

	_, err = store.LoadSession(ctx, "e1")
	req.ErrorIs(err, storage.ErrNotFound)

	again, err := r.Ensure(ctx, "e1")
	req.NoError(err)
	v, err := again.View(ctx)
	req.NoError(err)
	req.Empty(v.State.Participants, "a removed session must not come back with its roster")
}

func TestRegistry_ShutdownWaitsForInFlightSave(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	r := New(ctx, store, session.Options{RevealDelay: time.Hour})

	s, err := r.Ensure(ctx, "e1")
	require.NoError(t, err)
	joinAlice(t, s)
	waitEntered(t, store)

	stopped := make(chan struct{})
	go func() {
		r.Shutdown()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("shutdown returned while a save was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not finish")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("session loop still running after shutdown")
	}
}
