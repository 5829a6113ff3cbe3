package engine

import (
	crand "crypto/rand"
	"math/big"
	"slices"
)

func NewEmptyState() State {
	return State{
		Status:              StatusIdle,
		Participants:        []Participant{},
		CurrentRoundWinners: []Participant{},
		PastRounds:          []RoundRecord{},
	}
}

// Clone returns a deep copy; snapshots handed to other goroutines must
// never share backing arrays with the session's own state.
func (s State) Clone() State {
	c := s
	if s.CurrentWinner != nil {
		w := *s.CurrentWinner
		c.CurrentWinner = &w
	}
	c.Participants = cloneParticipants(s.Participants)
	c.CurrentRoundWinners = cloneParticipants(s.CurrentRoundWinners)
	c.PastRounds = make([]RoundRecord, len(s.PastRounds))
	for i, r := range s.PastRounds {
		r.Winners = cloneParticipants(r.Winners)
		c.PastRounds[i] = r
	}
	return c
}

func cloneParticipants(ps []Participant) []Participant {
	if ps == nil {
		return []Participant{}
	}
	return slices.Clone(ps)
}

// drawRandomInt returns a uniform int in [0, n). Tests swap it out.
var drawRandomInt = secureRandomInt

func secureRandomInt(n int) (int, error) {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
