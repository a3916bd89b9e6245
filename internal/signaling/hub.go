package signaling

import (
	"context"
	"log/slog"
	"time"
)

// RoomStore persists room membership. The hub works without one; a nil
// store keeps everything in memory only.
type RoomStore interface {
	// UpdateRoom upserts a room record with its current participant list.
	// An empty list marks the room inactive.
	UpdateRoom(ctx context.Context, room string, participants []string) error

	// DurableRooms lists room names that survive emptying.
	DurableRooms(ctx context.Context) ([]string, error)
}

// Inbound is one parsed client message together with its origin.
type Inbound struct {
	From Conn
	Msg  *Message
}

// Hub owns the Registry and Router and serializes every membership
// mutation and signal relay on a single goroutine: concurrency is
// interleaved events, not parallel mutation.
type Hub struct {
	registry *Registry
	router   *Router
	store    RoomStore
	log      *slog.Logger

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan Inbound

	done chan struct{}
}

func NewHub(registry *Registry, router *Router, store RoomStore, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		registry:   registry,
		router:     router,
		store:      store,
		log:        log,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's processing loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	h.loadDurableRooms(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			client.Send(&Message{
				Type:    MessageTypeConnected,
				Message: "connected to carebell signaling",
			})

		case client := <-h.Unregister:
			if dep := h.registry.Disconnect(client); dep != nil {
				h.log.Info("participant disconnected",
					"room", dep.Room, "user", dep.UserID)
				h.router.BroadcastMembership(dep.Room, dep.Participants, dep.UserID, ChangeLeave)
				h.persist(dep.Room, dep.Participants)
			}
			close(client.send)

		case in := <-h.Inbound:
			h.dispatch(in)
		}
	}
}

func (h *Hub) dispatch(in Inbound) {
	msg := in.Msg

	switch {
	case msg.Type == MessageTypeJoinRoom:
		if msg.RoomID == "" || msg.UserID == "" {
			in.From.Send(&Message{Type: MessageTypeError, Message: "join-room requires roomId and userId"})
			return
		}
		participants, left := h.registry.Join(msg.RoomID, msg.UserID, in.From)
		if left != nil {
			h.router.BroadcastMembership(left.Room, left.Participants, left.UserID, ChangeLeave)
			h.persist(left.Room, left.Participants)
		}
		h.log.Info("participant joined", "room", msg.RoomID, "user", msg.UserID,
			"occupancy", len(participants))
		h.router.BroadcastMembership(msg.RoomID, participants, msg.UserID, ChangeJoin)
		h.persist(msg.RoomID, participants)

	case msg.Type == MessageTypeLeaveRoom:
		dep := h.registry.Leave(msg.RoomID, msg.UserID)
		if dep == nil {
			// Raced with a disconnect; membership races are tolerated.
			return
		}
		h.log.Info("participant left", "room", dep.Room, "user", dep.UserID)
		h.router.BroadcastMembership(dep.Room, dep.Participants, dep.UserID, ChangeLeave)
		h.persist(dep.Room, dep.Participants)

	case msg.IsSignal():
		if msg.TargetUserID == "" {
			in.From.Send(&Message{Type: MessageTypeError, Message: "signal requires targetUserId"})
			return
		}
		// Sender identity comes from the connection's join, not the
		// message, so a client cannot speak as somebody else.
		room, fromID, ok := h.registry.Assoc(in.From)
		if !ok {
			in.From.Send(&Message{Type: MessageTypeError, Message: "join a room before signaling"})
			return
		}
		h.router.RouteDirect(room, fromID, msg.TargetUserID, msg.Signal)

	default:
		h.log.Warn("unknown message type", "type", msg.Type)
	}
}

// unregister hands a dropped connection back to the hub. It must not
// block once Run has returned, or pump goroutines outlive shutdown.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// persist writes membership changes through the store off the hub
// goroutine; storage latency must not stall signal routing.
func (h *Hub) persist(room string, participants []string) {
	if h.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.store.UpdateRoom(ctx, room, participants); err != nil {
			h.log.Error("room persistence failed", "room", room, "err", err)
		}
	}()
}

func (h *Hub) loadDurableRooms(ctx context.Context) {
	if h.store == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	names, err := h.store.DurableRooms(loadCtx)
	if err != nil {
		h.log.Error("loading durable rooms failed", "err", err)
		return
	}
	for _, name := range names {
		h.registry.MarkDurable(name)
	}
	if len(names) > 0 {
		h.log.Info("durable rooms loaded", "count", len(names))
	}
}

// Registry exposes the registry for read-only HTTP handlers.
func (h *Hub) Registry() *Registry {
	return h.registry
}
