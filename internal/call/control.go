package call

import "github.com/vmihailenco/msgpack/v5"

// In-call control messages travel over a per-peer data channel, next to
// the media, so mute and camera state reach peers without a server round
// trip.
const (
	ControlTypeHello  = "hello"
	ControlTypeMute   = "mute"
	ControlTypeCamera = "camera"
)

// ControlMessage is the envelope for all control channel messages.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload announces this participant's display name.
type HelloPayload struct {
	DisplayName string `msgpack:"displayName"`
}

// MutePayload carries microphone state.
type MutePayload struct {
	Muted bool `msgpack:"muted"`
}

// CameraPayload carries camera state.
type CameraPayload struct {
	Enabled bool `msgpack:"enabled"`
}

// NewControlMessage creates a ControlMessage with an encoded payload.
func NewControlMessage(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

// DecodePayload decodes the payload into the provided struct.
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func (m ControlMessage) encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// ParseControlMessage decodes a raw data channel frame.
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, NewError("parse control message", err)
	}
	return &msg, nil
}
