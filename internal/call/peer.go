package call

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Leontarin/CareBell-sub000/internal/config"
)

// Signal is the payload exchanged between two peers through the signal
// router. The server treats it as opaque.
type Signal struct {
	Type      string                   `json:"type"` // offer | answer | candidate
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalSender delivers one signal to the named remote participant.
type SignalSender func(target string, sig *Signal)

// IsInitiator reports whether the local participant initiates the
// connection to remote. The rule is fixed and side-effect-free on both
// ends: byte-wise comparison of the two ids, the smaller id answers and
// the larger one sends the offer. Both peers always agree.
func IsInitiator(localID, remoteID string) bool {
	return localID > remoteID
}

// Peer manages one negotiated connection to one remote participant,
// hiding offer/answer/ICE mechanics behind a small state machine:
//
//	idle -> negotiating -> connected
//
// failed is reachable from any non-idle state, closed is terminal.
// Failures are reported upward exactly once per episode and never
// retried here; retry policy belongs to the Coordinator.
type Peer struct {
	localID  string
	remoteID string
	room     string

	initiator bool
	cfg       *config.Config
	send      SignalSender
	events    chan<- PeerEvent

	mu        sync.Mutex
	state     PeerState
	pc        *webrtc.PeerConnection
	control   *webrtc.DataChannel
	pending   []webrtc.ICECandidateInit
	remote    *RemoteStream
	timer     *time.Timer
	inEpisode bool // failure already reported for the current episode
	destroyed bool

	helloName string
}

func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// NewPeer builds the underlying transport and attaches local media. The
// connection stays idle until Start.
func NewPeer(cfg *config.Config, room, localID, remoteID string, media LocalMedia, send SignalSender, events chan<- PeerEvent) (*Peer, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		localID:   localID,
		remoteID:  remoteID,
		room:      room,
		initiator: IsInitiator(localID, remoteID),
		cfg:       cfg,
		send:      send,
		events:    events,
		state:     StateIdle,
		pc:        pc,
		remote:    newRemoteStream(),
	}

	tracks := media.Tracks()
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, NewPeerError("add local track", remoteID, err)
		}
	}
	if len(tracks) == 0 {
		// Receive-only participants still need media sections in the SDP.
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, NewPeerError("add transceiver", remoteID, err)
			}
		}
	}

	p.attachHandlers()
	return p, nil
}

// Initiator reports the deterministic role assigned to this side.
func (p *Peer) Initiator() bool { return p.initiator }

// RemoteID returns the remote participant's id.
func (p *Peer) RemoteID() string { return p.remoteID }

// State returns the current lifecycle state.
func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RemoteStream returns the accumulated remote media handle.
func (p *Peer) RemoteStream() *RemoteStream { return p.remote }

func (p *Peer) attachHandlers() {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p.send(p.remoteID, &Signal{Type: SignalCandidate, Candidate: &init})
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.remote.add(track)
		p.emit(PeerEvent{Peer: p.remoteID, Kind: EventTrack})
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		p.control = dc
		p.mu.Unlock()
		p.attachControlHandlers(dc)
	})

	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.mu.Lock()
			if p.destroyed {
				p.mu.Unlock()
				return
			}
			p.state = StateConnected
			p.inEpisode = false
			p.stopTimerLocked()
			p.mu.Unlock()
			p.emit(PeerEvent{Peer: p.remoteID, Kind: EventConnected})

		case webrtc.PeerConnectionStateFailed:
			p.fail(NewPeerError("transport", p.remoteID, ErrConnectionFailed))

		case webrtc.PeerConnectionStateClosed:
			p.mu.Lock()
			wasDestroyed := p.destroyed
			p.mu.Unlock()
			if !wasDestroyed {
				p.fail(NewPeerError("transport", p.remoteID, ErrPeerClosed))
			}
		}
	})
}

// SetDisplayName makes the peer announce this name over the control
// channel as soon as it opens. Must be called before Start.
func (p *Peer) SetDisplayName(name string) {
	p.helloName = name
}

func (p *Peer) attachControlHandlers(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		if p.helloName == "" {
			return
		}
		if msg, err := NewControlMessage(ControlTypeHello, HelloPayload{DisplayName: p.helloName}); err == nil {
			p.SendControl(msg)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		control, err := ParseControlMessage(msg.Data)
		if err != nil {
			return
		}
		p.emit(PeerEvent{Peer: p.remoteID, Kind: EventControl, Control: control})
	})
}

// Start moves idle -> negotiating. The initiator opens the control
// channel and sends the offer; the answerer arms its timeout and waits.
// Not reaching connected within the negotiation window is treated
// exactly like a transport failure.
func (p *Peer) Start() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return NewPeerError("start", p.remoteID, ErrPeerClosed)
	}
	p.state = StateNegotiating
	p.timer = time.AfterFunc(p.cfg.NegotiationTimeout, func() {
		p.fail(NewPeerError("negotiation", p.remoteID, ErrNegotiationTimeout))
	})
	initiator := p.initiator
	p.mu.Unlock()

	if !initiator {
		return nil
	}

	dc, err := p.pc.CreateDataChannel("control", nil)
	if err != nil {
		return NewPeerError("create control channel", p.remoteID, err)
	}
	p.mu.Lock()
	p.control = dc
	p.mu.Unlock()
	p.attachControlHandlers(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return NewPeerError("create offer", p.remoteID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return NewPeerError("set local description", p.remoteID, err)
	}

	p.send(p.remoteID, &Signal{Type: SignalOffer, SDP: offer.SDP})
	return nil
}

// HandleSignal consumes an offer, answer, or ICE candidate addressed to
// this connection. Candidates arriving before the remote description are
// buffered and flushed once it is applied, never dropped.
func (p *Peer) HandleSignal(sig *Signal) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	switch sig.Type {
	case SignalOffer:
		return p.handleOffer(sig)
	case SignalAnswer:
		return p.handleAnswer(sig)
	case SignalCandidate:
		return p.handleCandidate(sig)
	default:
		return NewPeerError("handle signal", p.remoteID, ErrUnexpectedSignal)
	}
}

func (p *Peer) handleOffer(sig *Signal) error {
	p.mu.Lock()
	if p.state == StateIdle {
		p.state = StateNegotiating
	}
	p.mu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return NewPeerError("set remote description", p.remoteID, err)
	}
	if err := p.flushPending(); err != nil {
		return err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return NewPeerError("create answer", p.remoteID, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return NewPeerError("set local description", p.remoteID, err)
	}

	p.send(p.remoteID, &Signal{Type: SignalAnswer, SDP: answer.SDP})
	return nil
}

func (p *Peer) handleAnswer(sig *Signal) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return NewPeerError("set remote description", p.remoteID, err)
	}
	return p.flushPending()
}

func (p *Peer) handleCandidate(sig *Signal) error {
	if sig.Candidate == nil {
		return nil
	}

	p.mu.Lock()
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, *sig.Candidate)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(*sig.Candidate); err != nil {
		return NewPeerError("add ICE candidate", p.remoteID, err)
	}
	return nil
}

func (p *Peer) flushPending() error {
	p.mu.Lock()
	buffered := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, candidate := range buffered {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			return NewPeerError("add buffered ICE candidate", p.remoteID, err)
		}
	}
	return nil
}

// SendControl delivers an in-call control message over the data channel.
func (p *Peer) SendControl(msg ControlMessage) error {
	p.mu.Lock()
	dc := p.control
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return NewPeerError("send control", p.remoteID, ErrPeerClosed)
	}
	data, err := msg.encode()
	if err != nil {
		return NewPeerError("encode control", p.remoteID, err)
	}
	return dc.Send(data)
}

// fail reports one failure episode upward. Duplicate notifications from
// the transport collapse into a single event.
func (p *Peer) fail(err error) {
	p.mu.Lock()
	if p.destroyed || p.inEpisode || p.state == StateIdle || p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.inEpisode = true
	p.state = StateFailed
	p.stopTimerLocked()
	p.mu.Unlock()

	p.emit(PeerEvent{Peer: p.remoteID, Kind: EventFailed, Err: err})
}

// Destroy releases all local resources and transitions to closed. It is
// idempotent and emits nothing: teardown is not a failure episode.
func (p *Peer) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.state = StateClosed
	p.stopTimerLocked()
	dc := p.control
	p.control = nil
	p.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	p.pc.Close()
}

func (p *Peer) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// emit must not be called with p.mu held: the events channel is drained
// by the coordinator loop, which also calls back into this peer.
func (p *Peer) emit(ev PeerEvent) {
	select {
	case p.events <- ev:
	default:
		// Coordinator gone or saturated; events are advisory by then.
	}
}
