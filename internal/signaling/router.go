package signaling

import (
	"encoding/json"
	"log/slog"
)

// ChangeKind tells a membership broadcast apart.
type ChangeKind int

const (
	ChangeJoin ChangeKind = iota
	ChangeLeave
)

// Router delivers opaque signaling payloads between participants and
// broadcasts membership events. It never interprets payload contents and
// never queues: a miss is dropped and logged, and the sender's peer
// connection surfaces the resulting timeout as a connection failure.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

func NewRouter(registry *Registry, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{registry: registry, log: log}
}

// RouteDirect re-wraps a signal as p2p-signal and delivers it to one
// target participant. It reports false when the target is not a member of
// the room or its connection is not live.
func (r *Router) RouteDirect(room, fromID, toID string, signal json.RawMessage) bool {
	target := r.registry.Member(room, toID)
	if target == nil {
		r.log.Warn("routing miss, dropping signal",
			"room", room, "from", fromID, "to", toID)
		return false
	}

	ok := target.Send(&Message{
		Type:       MessageTypeP2PSignal,
		RoomID:     room,
		FromUserID: fromID,
		ToUserID:   toID,
		Signal:     signal,
	})
	if !ok {
		r.log.Warn("target connection not live, dropping signal",
			"room", room, "from", fromID, "to", toID)
	}
	return ok
}

// BroadcastMembership sends the full current participant list, plus the id
// that joined or left, to every live connection in the room.
func (r *Router) BroadcastMembership(room string, participants []string, changedID string, kind ChangeKind) {
	msg := &Message{
		Type:         MessageTypeParticipants,
		RoomID:       room,
		Participants: participants,
	}
	switch kind {
	case ChangeJoin:
		msg.NewUser = changedID
	case ChangeLeave:
		msg.LeftUser = changedID
	}

	for _, conn := range r.registry.Members(room) {
		if !conn.Send(msg) {
			r.log.Warn("membership broadcast dropped for one connection",
				"room", room, "changed", changedID)
		}
	}
}
