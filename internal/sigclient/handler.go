package sigclient

import (
	"encoding/json"

	"github.com/Leontarin/CareBell-sub000/internal/signaling"
)

// MembershipUpdate is one room-participants broadcast.
type MembershipUpdate struct {
	Participants []string
	NewUser      string
	LeftUser     string
}

// PeerSignal is one routed p2p-signal addressed to us.
type PeerSignal struct {
	From   string
	Signal json.RawMessage
}

// Handler routes incoming signaling messages to typed channels.
type Handler struct {
	client     *Client
	Welcome    chan string
	Membership chan MembershipUpdate
	Signals    chan PeerSignal
	Errors     chan string
	Done       chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		Welcome:    make(chan string, 1),
		Membership: make(chan MembershipUpdate, 8),
		Signals:    make(chan PeerSignal, 64),
		Errors:     make(chan string, 4),
		Done:       make(chan struct{}),
	}
}

// Start listens to incoming messages and routes them until the
// connection drops, then closes Done.
func (h *Handler) Start() {
	defer close(h.Done)

	for msg := range h.client.Incoming() {
		switch msg.Type {

		case signaling.MessageTypeConnected:
			select {
			case h.Welcome <- msg.Message:
			default:
			}

		case signaling.MessageTypeParticipants:
			h.Membership <- MembershipUpdate{
				Participants: msg.Participants,
				NewUser:      msg.NewUser,
				LeftUser:     msg.LeftUser,
			}

		case signaling.MessageTypeP2PSignal:
			h.Signals <- PeerSignal{
				From:   msg.FromUserID,
				Signal: msg.Signal,
			}

		case signaling.MessageTypeError:
			select {
			case h.Errors <- msg.Message:
			default:
			}

		default:
			// Unknown server messages are ignored for forward compatibility.
		}
	}
}

// JoinRoom announces this participant to the room.
func (h *Handler) JoinRoom(roomID, userID string) {
	h.client.SendMessage(&signaling.Message{
		Type:   signaling.MessageTypeJoinRoom,
		RoomID: roomID,
		UserID: userID,
	})
}

// LeaveRoom withdraws this participant from the room.
func (h *Handler) LeaveRoom(roomID, userID string) {
	h.client.SendMessage(&signaling.Message{
		Type:   signaling.MessageTypeLeaveRoom,
		RoomID: roomID,
		UserID: userID,
	})
}

// SendSignal routes an opaque signal payload to one target participant.
// kind is the wire message type: offer, answer, or ice-candidate.
func (h *Handler) SendSignal(kind, roomID, userID, targetUserID string, signal json.RawMessage) {
	h.client.SendMessage(&signaling.Message{
		Type:         kind,
		RoomID:       roomID,
		UserID:       userID,
		TargetUserID: targetUserID,
		Signal:       signal,
	})
}
