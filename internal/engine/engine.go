package engine

import (
	"errors"
	"time"
)

var ErrMissingExternalID = errors.New("missing external id")
var ErrDrawInProgress = errors.New("draw already in progress")
var ErrNoEligibleParticipants = errors.New("no eligible participants")
var ErrStaleReveal = errors.New("stale reveal")
var ErrRoundNotFound = errors.New("round not found")
var ErrInvalidCount = errors.New("invalid test account count")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusRolling  Status = "ROLLING"
	StatusRevealed Status = "REVEALED"
)

type Participant struct {
	ExternalID  string `json:"externalId"`
	TransportID string `json:"transportId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

type RoundRecord struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"createdAt"`
	Winners     []Participant `json:"winners"`
	Archived    bool          `json:"archived"`
	RoundNumber int           `json:"roundNumber"`
}

// State is the full game state of one Session. It is also the snapshot
// published to every subscriber, so everything in it is wire-visible.
type State struct {
	Status              Status        `json:"status"`
	CurrentWinner       *Participant  `json:"currentWinner"`
	Participants        []Participant `json:"participants"`
	CurrentRoundWinners []Participant `json:"currentRoundWinners"`
	PastRounds          []RoundRecord `json:"pastRounds"`
	Generation          uint64        `json:"generation"`
	LastRoundNumber     int           `json:"lastRoundNumber"`
}

type CommandType string

const (
	CmdJoin               CommandType = "Join"
	CmdStartDraw          CommandType = "StartDraw"
	CmdReveal             CommandType = "Reveal"
	CmdNewRound           CommandType = "NewRound"
	CmdClearHistory       CommandType = "ClearHistory"
	CmdFullReset          CommandType = "FullReset"
	CmdRemoveTestAccounts CommandType = "RemoveTestAccounts"
	CmdAddTestAccounts    CommandType = "AddTestAccounts"
	CmdSetRoundArchived   CommandType = "SetRoundArchived"
)

// Privileged reports whether the command needs an admin capability.
func (t CommandType) Privileged() bool {
	switch t {
	case CmdNewRound, CmdClearHistory, CmdFullReset, CmdRemoveTestAccounts, CmdAddTestAccounts, CmdSetRoundArchived:
		return true
	}
	return false
}

/*
	CmdJoin               -> EvtParticipantJoined | EvtParticipantUpdated
	CmdStartDraw          -> EvtDrawStarted (winner fixed here, generation advanced)
	CmdReveal             -> EvtWinnerRevealed (only for the generation that started the draw)
	CmdNewRound           -> EvtRoundArchived (if anyone won) -> EvtRoundStarted
	CmdClearHistory       -> EvtHistoryCleared
	CmdFullReset          -> EvtSessionReset
	CmdRemoveTestAccounts -> EvtTestAccountsRemoved (+ EvtDrawCancelled if the rolling winner was a bot)
	CmdAddTestAccounts    -> EvtParticipantJoined per bot
	CmdSetRoundArchived   -> EvtRoundArchiveToggled
*/

type Command struct {
	Type        CommandType
	Participant Participant
	// Participants carries pre-built bot accounts for CmdAddTestAccounts.
	Participants []Participant
	// Count is the requested number of bots; the session expands it into Participants.
	Count      int
	Generation uint64
	RoundID    string
	Archived   bool
	Filter     AccountFilter
	At         time.Time
}

type EventType string

const (
	EvtParticipantJoined   EventType = "ParticipantJoined"
	EvtParticipantUpdated  EventType = "ParticipantUpdated"
	EvtDrawStarted         EventType = "DrawStarted"
	EvtWinnerRevealed      EventType = "WinnerRevealed"
	EvtDrawCancelled       EventType = "DrawCancelled"
	EvtRoundArchived       EventType = "RoundArchived"
	EvtRoundStarted        EventType = "RoundStarted"
	EvtHistoryCleared      EventType = "HistoryCleared"
	EvtSessionReset        EventType = "SessionReset"
	EvtTestAccountsRemoved EventType = "TestAccountsRemoved"
	EvtRoundArchiveToggled EventType = "RoundArchiveToggled"
)

type Event struct {
	Type        EventType
	Participant Participant
	Generation  uint64
	RoundNumber int
	Count       int
}

// Apply runs one command against s and returns the resulting events and
// state. s itself is never modified; on error the returned state is s.
func Apply(s State, cmd Command) ([]Event, State, error) {
	next := s.Clone()

	var (
		events []Event
		err    error
	)
	switch cmd.Type {
	case CmdJoin:
		events, err = join(&next, cmd.Participant)
	case CmdStartDraw:
		events, err = startDraw(&next)
	case CmdReveal:
		events, err = reveal(&next, cmd.Generation)
	case CmdNewRound:
		events = newRound(&next, cmd.At)
	case CmdClearHistory:
		events = clearHistory(&next)
	case CmdFullReset:
		events = fullReset(&next)
	case CmdRemoveTestAccounts:
		events = removeTestAccounts(&next, cmd.Filter)
	case CmdAddTestAccounts:
		events, err = addTestAccounts(&next, cmd.Participants)
	case CmdSetRoundArchived:
		events, err = setRoundArchived(&next, cmd.RoundID, cmd.Archived)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}
