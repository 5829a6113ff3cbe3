// Package types is the websocket wire schema, version 1.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	Version        = 1
	DefaultSession = "default"
)

var (
	ErrBadJSON            = errors.New("bad json")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrUnknownType        = errors.New("unknown message type")
)

// Client message types.
const (
	TypeAuthenticate       = "authenticate"
	TypeJoin               = "join"
	TypeRequestState       = "requestState"
	TypeStartDraw          = "startDraw"
	TypeFullReset          = "fullReset"
	TypeClearHistory       = "clearHistory"
	TypeNewRound           = "newRound"
	TypeRemoveTestAccounts = "removeTestAccounts"
	TypeAddTestAccounts    = "addTestAccounts"
	TypeSetRoundArchived   = "setRoundArchived"
)

// Server message types that have no session.Kind counterpart.
const (
	TypeAuthenticated = "authenticated"
	TypeAuthFailed    = "authFailed"
	TypeError         = "error"
)

var validate = validator.New()

type ClientMessage struct {
	V          int             `json:"v"`
	Type       string          `json:"type"`
	Session    string          `json:"session,omitempty"`
	Capability string          `json:"capability,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type AuthenticateData struct {
	Secret string `json:"secret" validate:"required"`
}

type JoinData struct {
	ExternalID  string `json:"externalId" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=80"`
	AvatarRef   string `json:"avatarRef" validate:"max=2048"`
}

type AddTestAccountsData struct {
	Count int `json:"count" validate:"min=1,max=50"`
}

type SetRoundArchivedData struct {
	RoundID  string `json:"roundId" validate:"required"`
	Archived bool   `json:"archived"`
}

// InvalidPayload is returned when a known message carries data that
// fails validation. Type tells the transport which command it was.
type InvalidPayload struct {
	Type string
	Err  error
}

func (e *InvalidPayload) Error() string { return fmt.Sprintf("invalid %s payload: %v", e.Type, e.Err) }
func (e *InvalidPayload) Unwrap() error { return e.Err }

// Decode parses an envelope and fills in defaults. It does not look at Data.
func Decode(raw []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if m.V != Version {
		return m, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.V)
	}
	m.Session = strings.TrimSpace(m.Session)
	if m.Session == "" {
		m.Session = DefaultSession
	}
	return m, nil
}

// Payload decodes Data into v and validates it. Missing data decodes as {}.
func (m ClientMessage) Payload(v any) error {
	data := bytes.TrimSpace(m.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, v); err != nil {
			return &InvalidPayload{Type: m.Type, Err: err}
		}
	}
	if err := validate.Struct(v); err != nil {
		return &InvalidPayload{Type: m.Type, Err: err}
	}
	return nil
}

// Command maps a session command message onto an engine command.
// authenticate and requestState are transport-level and not handled here.
func (m ClientMessage) Command() (engine.Command, error) {
	switch m.Type {
	case TypeJoin:
		var d JoinData
		if err := m.Payload(&d); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdJoin, Participant: engine.Participant{
			ExternalID:  strings.TrimSpace(d.ExternalID),
			DisplayName: strings.TrimSpace(d.DisplayName),
			AvatarRef:   d.AvatarRef,
		}}, nil
	case TypeStartDraw:
		return engine.Command{Type: engine.CmdStartDraw}, nil
	case TypeFullReset:
		return engine.Command{Type: engine.CmdFullReset}, nil
	case TypeClearHistory:
		return engine.Command{Type: engine.CmdClearHistory}, nil
	case TypeNewRound:
		return engine.Command{Type: engine.CmdNewRound}, nil
	case TypeRemoveTestAccounts:
		return engine.Command{Type: engine.CmdRemoveTestAccounts}, nil
	case TypeAddTestAccounts:
		var d AddTestAccountsData
		if err := m.Payload(&d); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdAddTestAccounts, Count: d.Count}, nil
	case TypeSetRoundArchived:
		var d SetRoundArchivedData
		if err := m.Payload(&d); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdSetRoundArchived, RoundID: d.RoundID, Archived: d.Archived}, nil
	default:
		return engine.Command{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// Participant is the public view of a participant. Transport ids stay
// on the server.
type Participant struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

type Round struct {
	ID          string        `json:"id"`
	RoundNumber int           `json:"roundNumber"`
	CreatedAt   time.Time     `json:"createdAt"`
	Archived    bool          `json:"archived"`
	Winners     []Participant `json:"winners"`
}

// Snapshot is the state every viewer receives. Generation and round
// counters are bookkeeping and are left out.
type Snapshot struct {
	Status              engine.Status `json:"status"`
	CurrentWinner       *Participant  `json:"currentWinner"`
	Participants        []Participant `json:"participants"`
	CurrentRoundWinners []Participant `json:"currentRoundWinners"`
	PastRounds          []Round       `json:"pastRounds"`
}

func NewSnapshot(st engine.State) *Snapshot {
	snap := &Snapshot{
		Status:              st.Status,
		Participants:        publicParticipants(st.Participants),
		CurrentRoundWinners: publicParticipants(st.CurrentRoundWinners),
		PastRounds: lo.Map(st.PastRounds, func(r engine.RoundRecord, _ int) Round {
			return Round{
				ID:          r.ID,
				RoundNumber: r.RoundNumber,
				CreatedAt:   r.CreatedAt,
				Archived:    r.Archived,
				Winners:     publicParticipants(r.Winners),
			}
		}),
	}
	if st.CurrentWinner != nil {
		w := publicParticipant(*st.CurrentWinner)
		snap.CurrentWinner = &w
	}
	return snap
}

func publicParticipant(p engine.Participant) Participant {
	return Participant{ExternalID: p.ExternalID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
}

func publicParticipants(ps []engine.Participant) []Participant {
	return lo.Map(ps, func(p engine.Participant, _ int) Participant { return publicParticipant(p) })
}

type ServerMessage struct {
	V          int               `json:"v"`
	Type       string            `json:"type"`
	Session    string            `json:"session,omitempty"`
	Version    int               `json:"version,omitempty"`
	State      *Snapshot         `json:"state,omitempty"`
	Event      *session.Branding `json:"event,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// FromOutbound renders a session message for the wire.
func FromOutbound(o session.Outbound) ServerMessage {
	msg := ServerMessage{
		V:       Version,
		Type:    string(o.Kind),
		Session: o.SessionID,
		Version: o.Version,
		Event:   o.Branding,
		Error:   o.Reason,
	}
	if o.State != nil {
		msg.State = NewSnapshot(*o.State)
	}
	if o.Kind == session.KindRejected {
		msg.Type = TypeError
	}
	return msg
}

func Errorf(sessionID, format string, args ...any) ServerMessage {
	return ServerMessage{V: Version, Type: TypeError, Session: sessionID, Error: fmt.Sprintf(format, args...)}
}
