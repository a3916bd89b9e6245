package call

// PeerState is the lifecycle state of one peer connection.
type PeerState int

const (
	StateIdle PeerState = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s PeerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tells peer events apart.
type EventKind int

const (
	// EventConnected fires when the transport first reaches a working path.
	EventConnected EventKind = iota

	// EventFailed fires at most once per failure episode: transport
	// failure and negotiation timeout look identical to the coordinator.
	EventFailed

	// EventTrack fires as remote tracks arrive. Audio before video is
	// ordinary, not an error.
	EventTrack

	// EventControl carries an in-call control message from the peer.
	EventControl
)

// PeerEvent is the typed notification a peer connection reports to its
// owning coordinator. Injecting a fake peer that emits these is how the
// coordinator is tested.
type PeerEvent struct {
	Peer    string
	Kind    EventKind
	Err     error
	Control *ControlMessage
}
