package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")

// DefaultRevealDelay matches the length of the client-side draw animation.
const DefaultRevealDelay = 8500 * time.Millisecond

const maxTestAccounts = 50

type Msg interface{ isSessionMsg() }

// RequestState subscribes a transport to the room and sends it the current snapshot.
type RequestState struct {
	Sub Subscriber
}

func (RequestState) isSessionMsg() {}

type FromClient struct {
	Origin     Subscriber
	Cmd        engine.Command
	Capability string
}

func (FromClient) isSessionMsg() {}

type Leave struct{ TransportID string }

func (Leave) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type revealDue struct{ generation uint64 }

func (revealDue) isSessionMsg() {}

type View struct {
	Version        int
	NumSubscribers int
	State          engine.State
	Branding       *Branding
}

// Branding is read-only event metadata shown alongside the game.
type Branding struct {
	Title         string `json:"title"`
	BackgroundURL string `json:"backgroundUrl"`
}

// Authorizer checks the capability token carried by privileged commands.
type Authorizer interface {
	Verify(token, transportID string) error
}

// Saver persists the state after every successful mutation.
type Saver interface {
	SaveSession(ctx context.Context, id string, st engine.State) error
}

type Options struct {
	RevealDelay         time.Duration
	Gate                Authorizer
	Store               Saver
	Logger              *zap.Logger
	TestAccountPrefixes []string
	Now                 func() time.Time
}

type Session struct {
	id       string
	inbox    chan Msg
	state    engine.State
	version  int
	branding *Branding
	room     *room

	gate        Authorizer
	store       Saver
	log         *zap.Logger
	revealDelay time.Duration
	botFilter   engine.AccountFilter
	botPrefix   string
	now         func() time.Time
	timer       *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, id string, initial engine.State, branding *Branding, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session", id))

	delay := opts.RevealDelay
	if delay <= 0 {
		delay = DefaultRevealDelay
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	prefix := "bot_"
	if len(opts.TestAccountPrefixes) > 0 && opts.TestAccountPrefixes[0] != "" {
		prefix = opts.TestAccountPrefixes[0]
	}
	prefixes := opts.TestAccountPrefixes
	if len(prefixes) == 0 {
		prefixes = []string{prefix}
	}

	s := &Session{
		id:          id,
		inbox:       make(chan Msg, 64),
		state:       initial,
		branding:    branding,
		room:        newRoom(log),
		gate:        opts.Gate,
		store:       opts.Store,
		log:         log,
		revealDelay: delay,
		botFilter:   engine.PrefixFilter(prefixes...),
		botPrefix:   prefix,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	// A session persisted mid-draw would otherwise stay ROLLING forever.
	if initial.Status == engine.StatusRolling {
		s.armReveal(initial.Generation, 0)
	}

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Send queues a message for the session loop. It fails once the session is shut down.
func (s *Session) Send(ctx context.Context, m Msg) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns a consistent copy of the session state.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the session without processing queued messages and waits
// for the loop to exit. Nothing is persisted once Close returns.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case RequestState:
				s.room.subscribe(msg.Sub)
				s.room.unicast(msg.Sub, s.snapshot())

			case Leave:
				s.room.unsubscribe(msg.TransportID)

			case FromClient:
				s.handle(msg)

			case revealDue:
				s.apply(Subscriber{}, engine.Command{Type: engine.CmdReveal, Generation: msg.generation})

			case GetState:
				msg.Reply <- View{
					Version:        s.version,
					NumSubscribers: s.room.size(),
					State:          s.state.Clone(),
					Branding:       s.branding,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handle(msg FromClient) {
	cmd := msg.Cmd

	if cmd.Type == engine.CmdReveal {
		// Reveals only come from the session's own timer.
		s.notify(msg.Origin, KindRejected, engine.ErrUnsupportedCommand.Error())
		return
	}

	if cmd.Type.Privileged() {
		if err := s.authorize(msg.Capability, msg.Origin.TransportID); err != nil {
			s.log.Warn("privileged command denied",
				zap.String("command", string(cmd.Type)),
				zap.String("transport", msg.Origin.TransportID),
				zap.Error(err))
			s.notify(msg.Origin, KindDenied, err.Error())
			return
		}
	}

	switch cmd.Type {
	case engine.CmdJoin:
		cmd.Participant.TransportID = msg.Origin.TransportID
	case engine.CmdNewRound:
		cmd.At = s.now()
	case engine.CmdRemoveTestAccounts:
		cmd.Filter = s.botFilter
	case engine.CmdAddTestAccounts:
		bots, err := s.makeBots(cmd.Count)
		if err != nil {
			s.notify(msg.Origin, KindRejected, err.Error())
			return
		}
		cmd.Participants = bots
	}

	if s.apply(msg.Origin, cmd) && cmd.Type == engine.CmdJoin {
		// Subscribed after the publish, so the joiner gets exactly one copy.
		s.room.subscribe(msg.Origin)
	}
}

func (s *Session) authorize(token, transportID string) error {
	if s.gate == nil {
		return errors.New("admin gate not configured")
	}
	return s.gate.Verify(token, transportID)
}

func (s *Session) apply(origin Subscriber, cmd engine.Command) bool {
	events, next, err := engine.Apply(s.state, cmd)
	if err != nil {
		s.reject(origin, cmd, err)
		return false
	}

	s.state = next
	s.version++
	s.react(events)
	s.persist()
	s.room.publish(s.snapshot(), origin)
	return true
}

func (s *Session) react(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtDrawStarted:
			s.log.Info("draw started",
				zap.String("winner", e.Participant.ExternalID),
				zap.Uint64("generation", e.Generation))
			s.armReveal(e.Generation, s.revealDelay)
		case engine.EvtWinnerRevealed:
			s.log.Info("winner revealed", zap.String("winner", e.Participant.ExternalID))
		case engine.EvtRoundArchived:
			s.log.Info("round archived", zap.Int("round", e.RoundNumber), zap.Int("winners", e.Count))
		case engine.EvtTestAccountsRemoved:
			s.log.Info("test accounts removed", zap.Int("count", e.Count))
		case engine.EvtDrawCancelled, engine.EvtSessionReset, engine.EvtHistoryCleared:
			s.log.Info(string(e.Type), zap.Uint64("generation", e.Generation))
		default:
			s.log.Debug(string(e.Type), zap.String("participant", e.Participant.ExternalID))
		}
	}

	if s.state.Status != engine.StatusRolling {
		s.disarmReveal()
	}
}

func (s *Session) reject(origin Subscriber, cmd engine.Command, err error) {
	switch {
	case errors.Is(err, engine.ErrStaleReveal):
		s.log.Debug("stale reveal dropped", zap.Uint64("generation", cmd.Generation))
	case errors.Is(err, engine.ErrNoEligibleParticipants):
		s.log.Info("draw requested with no eligible participants")
		s.notify(origin, KindNoEligible, err.Error())
	case errors.Is(err, engine.ErrDrawInProgress):
		s.notify(origin, KindDrawInProgress, err.Error())
	case errors.Is(err, engine.ErrMissingExternalID):
		s.log.Info("join rejected", zap.String("transport", origin.TransportID), zap.Error(err))
		s.notify(origin, KindJoinRejected, err.Error())
	default:
		s.log.Warn("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		s.notify(origin, KindRejected, err.Error())
	}
}

func (s *Session) makeBots(count int) ([]engine.Participant, error) {
	if count < 1 || count > maxTestAccounts {
		return nil, fmt.Errorf("%w: %d", engine.ErrInvalidCount, count)
	}
	bots := make([]engine.Participant, 0, count)
	for i := range count {
		suffix, err := gonanoid.New(8)
		if err != nil {
			return nil, fmt.Errorf("generate bot id: %w", err)
		}
		bots = append(bots, engine.Participant{
			ExternalID:  s.botPrefix + suffix,
			DisplayName: fmt.Sprintf("Bot %d", len(s.state.Participants)+i+1),
			AvatarRef:   "🤖",
		})
	}
	return bots, nil
}

func (s *Session) armReveal(generation uint64, after time.Duration) {
	s.disarmReveal()
	s.timer = time.AfterFunc(after, func() {
		select {
		case s.inbox <- revealDue{generation: generation}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) disarmReveal() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) persist() {
	// A closed session may already have been deleted from the store.
	if s.store == nil || s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
	defer cancel()
	if err := s.store.SaveSession(ctx, s.id, s.state.Clone()); err != nil {
		s.log.Error("persist session", zap.Int("version", s.version), zap.Error(err))
	}
}

func (s *Session) snapshot() Outbound {
	st := s.state.Clone()
	return Outbound{
		Kind:      KindSnapshot,
		SessionID: s.id,
		Version:   s.version,
		State:     &st,
		Branding:  s.branding,
	}
}

func (s *Session) notify(origin Subscriber, kind Kind, reason string) {
	if origin.Outbox == nil {
		return
	}
	s.room.unicast(origin, Outbound{Kind: kind, SessionID: s.id, Version: s.version, Reason: reason})
}

func (s *Session) shutdown() {
	s.disarmReveal()
	s.room.closeAll(Outbound{Kind: KindClosed, SessionID: s.id, Version: s.version})
	s.cancel()
}
