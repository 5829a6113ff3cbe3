package engine

import (
	"time"

	"github.com/google/uuid"
)

// newRound archives the active round's winners and goes back to IDLE.
// Participants stay registered for the next round.
func newRound(s *State, at time.Time) []Event {
	var events []Event

	if len(s.CurrentRoundWinners) > 0 {
		s.LastRoundNumber++
		s.PastRounds = append(s.PastRounds, RoundRecord{
			ID:          uuid.NewString(),
			CreatedAt:   at,
			Winners:     cloneParticipants(s.CurrentRoundWinners),
			RoundNumber: s.LastRoundNumber,
		})
		events = append(events, Event{
			Type:        EvtRoundArchived,
			RoundNumber: s.LastRoundNumber,
			Count:       len(s.CurrentRoundWinners),
		})
	}

	s.CurrentRoundWinners = []Participant{}
	s.Status = StatusIdle
	s.CurrentWinner = nil
	s.Generation++

	return append(events, Event{Type: EvtRoundStarted, Generation: s.Generation})
}

// clearHistory forgets every winner, so all current participants become
// eligible again. The round counter keeps counting.
func clearHistory(s *State) []Event {
	s.CurrentRoundWinners = []Participant{}
	s.PastRounds = []RoundRecord{}
	s.Status = StatusIdle
	s.CurrentWinner = nil
	s.Generation++

	return []Event{{Type: EvtHistoryCleared, Generation: s.Generation}}
}

// fullReset empties the roster but keeps winner history, so people who
// already won stay ineligible when they rejoin. Pair with clearHistory
// for a clean slate.
func fullReset(s *State) []Event {
	s.Status = StatusIdle
	s.CurrentWinner = nil
	clearRoster(s)
	s.Generation++

	return []Event{{Type: EvtSessionReset, Generation: s.Generation}}
}

func setRoundArchived(s *State, roundID string, archived bool) ([]Event, error) {
	for i := range s.PastRounds {
		if s.PastRounds[i].ID == roundID {
			s.PastRounds[i].Archived = archived
			return []Event{{Type: EvtRoundArchiveToggled, RoundNumber: s.PastRounds[i].RoundNumber}}, nil
		}
	}
	return nil, ErrRoundNotFound
}
