package ws

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 3 * time.Second
	pingInterval  = 20 * time.Second
	leaveTimeout  = 2 * time.Second
	readLimit     = 64 << 10
	defaultOutbox = 16
)

type Registry interface {
	Ensure(ctx context.Context, id string) (*session.Session, error)
}

type Authenticator interface {
	Authenticate(transportID, secret string) (string, error)
}

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string
	OutboxSize     int
	Logger         *zap.Logger
}

func Handler(reg Registry, gate Authenticator, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")
	size := opts.OutboxSize
	if size <= 0 {
		size = defaultOutbox
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		conn.SetReadLimit(readLimit)

		id, err := gonanoid.New()
		if err != nil {
			conn.Close(websocket.StatusInternalError, "transport id")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		c := &client{
			id:       id,
			conn:     conn,
			reg:      reg,
			gate:     gate,
			out:      make(chan session.Outbound, size),
			direct:   make(chan types.ServerMessage, size),
			sessions: make(map[string]*session.Session),
			log:      log.With(zap.String("transport", id)),
			ctx:      ctx,
			cancel:   cancel,
		}
		c.log.Debug("connected", zap.String("remote", r.RemoteAddr))

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writeLoop()
		}()

		c.readLoop()
		c.close()
		<-writerDone
	}
}

// client is one websocket connection. The session map is owned by the
// read loop.
type client struct {
	id       string
	conn     *websocket.Conn
	reg      Registry
	gate     Authenticator
	out      chan session.Outbound
	direct   chan types.ServerMessage
	sessions map[string]*session.Session
	kicked   atomic.Bool
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *client) subscriber() session.Subscriber {
	return session.Subscriber{
		TransportID: c.id,
		Outbox:      c.out,
		Kick: func() {
			c.kicked.Store(true)
			c.cancel()
		},
	}
}

func (c *client) readLoop() {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if c.ctx.Err() == nil {
					c.log.Debug("read", zap.Error(err))
				}
			}
			return
		}
		if typ != websocket.MessageText {
			c.reply(types.Errorf("", "text frames only"))
			continue
		}
		c.dispatch(data)
	}
}

func (c *client) dispatch(data []byte) {
	msg, err := types.Decode(data)
	if err != nil {
		c.reply(types.Errorf(msg.Session, "%v", err))
		return
	}

	switch msg.Type {
	case types.TypeAuthenticate:
		c.authenticate(msg)
		return
	case types.TypeRequestState:
		s, ok := c.ensure(msg.Session)
		if !ok {
			return
		}
		c.send(s, session.RequestState{Sub: c.subscriber()})
		return
	}

	cmd, err := msg.Command()
	if err != nil {
		var invalid *types.InvalidPayload
		if errors.As(err, &invalid) && invalid.Type == types.TypeJoin {
			c.reply(types.ServerMessage{
				V:       types.Version,
				Type:    string(session.KindJoinRejected),
				Session: msg.Session,
				Error:   err.Error(),
			})
			return
		}
		c.reply(types.Errorf(msg.Session, "%v", err))
		return
	}

	s, ok := c.ensure(msg.Session)
	if !ok {
		return
	}
	c.send(s, session.FromClient{Origin: c.subscriber(), Cmd: cmd, Capability: msg.Capability})
}

func (c *client) authenticate(msg types.ClientMessage) {
	var d types.AuthenticateData
	if err := msg.Payload(&d); err != nil {
		c.reply(types.ServerMessage{V: types.Version, Type: types.TypeAuthFailed, Error: err.Error()})
		return
	}
	token, err := c.gate.Authenticate(c.id, d.Secret)
	if err != nil {
		c.log.Warn("admin authentication failed", zap.Error(err))
		c.reply(types.ServerMessage{V: types.Version, Type: types.TypeAuthFailed, Error: err.Error()})
		return
	}
	c.log.Info("admin authenticated")
	c.reply(types.ServerMessage{V: types.Version, Type: types.TypeAuthenticated, Capability: token})
}

func (c *client) ensure(id string) (*session.Session, bool) {
	s, err := c.reg.Ensure(c.ctx, id)
	if err != nil {
		c.log.Warn("ensure session", zap.String("session", id), zap.Error(err))
		c.reply(types.Errorf(id, "session unavailable"))
		return nil, false
	}
	c.sessions[id] = s
	return s, true
}

func (c *client) send(s *session.Session, m session.Msg) {
	if err := s.Send(c.ctx, m); err != nil {
		c.reply(types.Errorf(s.ID(), "%v", err))
	}
}

// reply queues a message that bypasses the sessions, such as auth results
// and protocol errors.
func (c *client) reply(m types.ServerMessage) {
	select {
	case c.direct <- m:
	default:
		c.log.Warn("direct queue full, closing")
		c.kicked.Store(true)
		c.cancel()
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var msg types.ServerMessage
		select {
		case <-c.ctx.Done():
			return
		case o := <-c.out:
			msg = types.FromOutbound(o)
		case msg = <-c.direct:
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("ping", zap.Error(err))
				c.cancel()
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
		err := wsjson.Write(ctx, c.conn, msg)
		cancel()
		if err != nil {
			c.log.Debug("write", zap.Error(err))
			c.cancel()
			return
		}
	}
}

func (c *client) close() {
	c.cancel()

	for id, s := range c.sessions {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		_ = s.Send(ctx, session.Leave{TransportID: c.id})
		cancel()
		delete(c.sessions, id)
	}

	if c.kicked.Load() {
		c.conn.Close(websocket.StatusTryAgainLater, "too slow, reconnect")
	} else {
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
	c.log.Debug("disconnected")
}
