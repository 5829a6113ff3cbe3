package session

import (
	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"go.uber.org/zap"
)

type Kind string

const (
	KindSnapshot       Kind = "stateSnapshot"
	KindNoEligible     Kind = "noEligibleParticipants"
	KindDrawInProgress Kind = "drawInProgress"
	KindJoinRejected   Kind = "joinRejected"
	KindDenied         Kind = "denied"
	KindRejected       Kind = "rejected"
	KindClosed         Kind = "sessionClosed"
)

// Outbound is what a session hands to a transport. Snapshots carry the
// full state, never a diff.
type Outbound struct {
	Kind      Kind
	SessionID string
	Version   int
	State     *engine.State
	Branding  *Branding
	Reason    string
}

// Subscriber is one transport connection as seen by a session room.
// Kick is called when the subscriber can't keep up and has been dropped.
type Subscriber struct {
	TransportID string
	Outbox      chan<- Outbound
	Kick        func()
}

// room fans snapshots out to every transport subscribed to one session.
// It is owned by the session loop and needs no locking.
type room struct {
	subs map[string]Subscriber
	log  *zap.Logger
}

func newRoom(log *zap.Logger) *room {
	return &room{subs: make(map[string]Subscriber), log: log}
}

func (r *room) subscribe(sub Subscriber) {
	if sub.Outbox == nil || sub.TransportID == "" {
		return
	}
	r.subs[sub.TransportID] = sub
}

func (r *room) unsubscribe(transportID string) {
	delete(r.subs, transportID)
}

func (r *room) size() int { return len(r.subs) }

// publish sends msg to the whole room and to the origin if it is not
// subscribed yet, so the sender always sees the effect of its command.
func (r *room) publish(msg Outbound, origin Subscriber) {
	_, originSubscribed := r.subs[origin.TransportID]

	for _, sub := range r.subs {
		r.deliver(sub, msg)
	}

	if origin.Outbox != nil && !originSubscribed {
		r.unicast(origin, msg)
	}
}

func (r *room) unicast(sub Subscriber, msg Outbound) {
	if sub.Outbox == nil {
		return
	}
	r.deliver(sub, msg)
}

func (r *room) deliver(sub Subscriber, msg Outbound) {
	select {
	case sub.Outbox <- msg:
	default:
		// Slow or full: drop it, it will resync on reconnect.
		delete(r.subs, sub.TransportID)
		r.log.Warn("dropping slow subscriber", zap.String("transport", sub.TransportID))
		if sub.Kick != nil {
			sub.Kick()
		}
	}
}

func (r *room) closeAll(msg Outbound) {
	for id, sub := range r.subs {
		select {
		case sub.Outbox <- msg:
		default:
		}
		delete(r.subs, id)
	}
}
