package call

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull           = errors.New("room is full")
	ErrMediaUnavailable   = errors.New("local media unavailable")
	ErrNegotiationTimeout = errors.New("negotiation timeout")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrPeerClosed         = errors.New("peer connection closed")
	ErrSignalingError     = errors.New("signaling server error")
	ErrUnexpectedSignal   = errors.New("unexpected signal type")
)

// CallError carries the failing operation and, when tied to one remote
// participant, that participant's id.
type CallError struct {
	Op   string
	Peer string
	Err  error
}

func (e *CallError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *CallError {
	return &CallError{Op: op, Peer: peer, Err: err}
}
