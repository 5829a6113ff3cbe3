package engine

import (
	"strings"

	"github.com/samber/lo"
)

// AccountFilter matches external ids that belong to test/bot accounts.
type AccountFilter func(externalID string) bool

// PrefixFilter matches ids starting with any of the given prefixes.
// Empty prefixes are ignored so a blank config entry can't match everyone.
func PrefixFilter(prefixes ...string) AccountFilter {
	ps := lo.Filter(prefixes, func(p string, _ int) bool { return strings.TrimSpace(p) != "" })
	return func(externalID string) bool {
		for _, p := range ps {
			if strings.HasPrefix(externalID, strings.TrimSpace(p)) {
				return true
			}
		}
		return false
	}
}

func (s State) FindParticipant(externalID string) (Participant, bool) {
	return lo.Find(s.Participants, func(p Participant) bool { return p.ExternalID == externalID })
}

// join upserts by external id. Reconnects land here with a fresh transport id.
func join(s *State, p Participant) ([]Event, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return nil, ErrMissingExternalID
	}

	_, idx, found := lo.FindIndexOf(s.Participants, func(e Participant) bool { return e.ExternalID == p.ExternalID })
	if found {
		s.Participants[idx] = p
		return []Event{{Type: EvtParticipantUpdated, Participant: p}}, nil
	}

	s.Participants = append(s.Participants, p)
	return []Event{{Type: EvtParticipantJoined, Participant: p}}, nil
}

func addTestAccounts(s *State, bots []Participant) ([]Event, error) {
	if len(bots) == 0 {
		return nil, ErrInvalidCount
	}
	var events []Event
	for _, b := range bots {
		evts, err := join(s, b)
		if err != nil {
			return nil, err
		}
		events = append(events, evts...)
	}
	return events, nil
}

func removeTestAccounts(s *State, match AccountFilter) []Event {
	if match == nil {
		return []Event{{Type: EvtTestAccountsRemoved}}
	}

	before := len(s.Participants)
	s.Participants = lo.Reject(s.Participants, func(p Participant, _ int) bool { return match(p.ExternalID) })
	events := []Event{{Type: EvtTestAccountsRemoved, Count: before - len(s.Participants)}}

	// A bot that is mid-reveal would otherwise be appended after it is gone.
	if s.Status == StatusRolling && s.CurrentWinner != nil && match(s.CurrentWinner.ExternalID) {
		cancelled := *s.CurrentWinner
		s.Status = StatusIdle
		s.CurrentWinner = nil
		s.Generation++
		events = append(events, Event{Type: EvtDrawCancelled, Participant: cancelled, Generation: s.Generation})
	}
	return events
}

func clearRoster(s *State) {
	s.Participants = []Participant{}
}
