package engine

import (
	"fmt"

	"github.com/samber/lo"
)

// wonIDs is every external id that already won in this session's history.
func wonIDs(s State) map[string]struct{} {
	won := make(map[string]struct{}, len(s.CurrentRoundWinners))
	for _, w := range s.CurrentRoundWinners {
		won[w.ExternalID] = struct{}{}
	}
	for _, r := range s.PastRounds {
		for _, w := range r.Winners {
			won[w.ExternalID] = struct{}{}
		}
	}
	return won
}

// Eligible returns the participants that have not won yet, in roster order.
func Eligible(s State) []Participant {
	won := wonIDs(s)
	return lo.Filter(s.Participants, func(p Participant, _ int) bool {
		_, ok := won[p.ExternalID]
		return !ok
	})
}

// startDraw fixes the winner now; the reveal only makes it official later.
func startDraw(s *State) ([]Event, error) {
	if s.Status == StatusRolling {
		return nil, ErrDrawInProgress
	}

	pool := Eligible(*s)
	if len(pool) == 0 {
		return nil, ErrNoEligibleParticipants
	}

	idx, err := drawRandomInt(len(pool))
	if err != nil {
		return nil, fmt.Errorf("pick winner: %w", err)
	}
	winner := pool[idx]

	s.CurrentWinner = &winner
	s.Status = StatusRolling
	s.Generation++

	return []Event{{Type: EvtDrawStarted, Participant: winner, Generation: s.Generation}}, nil
}

func reveal(s *State, generation uint64) ([]Event, error) {
	if s.Status != StatusRolling || s.CurrentWinner == nil || s.Generation != generation {
		return nil, ErrStaleReveal
	}

	winner := *s.CurrentWinner
	s.CurrentRoundWinners = append(s.CurrentRoundWinners, winner)
	s.Status = StatusRevealed

	return []Event{{Type: EvtWinnerRevealed, Participant: winner, Generation: generation}}, nil
}
