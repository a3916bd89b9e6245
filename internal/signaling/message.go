package signaling

import "encoding/json"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
//
// The Signal field carries SDP descriptions and ICE candidates as an
// opaque blob; the server relays it without interpreting the contents.
type Message struct {
	Type string `json:"type"`

	RoomID       string `json:"roomId,omitempty"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId,omitempty"`

	// Set by the server when re-wrapping a routed signal as p2p-signal.
	FromUserID string `json:"fromUserId,omitempty"`
	ToUserID   string `json:"toUserId,omitempty"`

	Signal json.RawMessage `json:"signal,omitempty"`

	// Membership broadcast fields.
	Participants []string `json:"participants,omitempty"`
	NewUser      string   `json:"newUser,omitempty"`
	LeftUser     string   `json:"leftUser,omitempty"`

	// Welcome / error text.
	Message string `json:"message,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom     = "join-room"
	MessageTypeLeaveRoom    = "leave-room"
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice-candidate"

	MessageTypeConnected    = "connected"
	MessageTypeParticipants = "room-participants"
	MessageTypeP2PSignal    = "p2p-signal"
	MessageTypeError        = "error"
)

// IsSignal reports whether the message carries a routed signaling payload.
func (m *Message) IsSignal() bool {
	switch m.Type {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		return true
	}
	return false
}
