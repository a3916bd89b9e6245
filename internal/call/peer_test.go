package call

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Leontarin/CareBell-sub000/internal/config"
)

func peerConfig() *config.Config {
	return &config.Config{
		STUNServer:         "stun:stun.l.google.com:19302",
		MaxParticipants:    6,
		MaxRetryAttempts:   3,
		RetryBaseDelay:     time.Millisecond,
		NegotiationTimeout: 10 * time.Second,
	}
}

func TestIsInitiatorDeterministic(t *testing.T) {
	cases := []struct {
		local, remote string
		want          bool
	}{
		{"bob", "alice", true},
		{"alice", "bob", false},
		{"zoe", "abe", true},
		{"2", "10", true}, // byte-wise, not numeric
	}
	for _, c := range cases {
		if got := IsInitiator(c.local, c.remote); got != c.want {
			t.Errorf("IsInitiator(%s, %s) = %v, want %v", c.local, c.remote, got, c.want)
		}
		// Exactly one side initiates.
		if IsInitiator(c.local, c.remote) == IsInitiator(c.remote, c.local) {
			t.Errorf("both or neither of %s/%s initiate", c.local, c.remote)
		}
	}
}

// nextOfKind drains a signal channel until the wanted type shows up,
// skipping interleaved ICE candidates from async gathering.
func nextOfKind(t *testing.T, ch <-chan *Signal, kind string) *Signal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig := <-ch:
			if sig.Type == kind {
				return sig
			}
		case <-deadline:
			t.Fatalf("no %s signal arrived", kind)
		}
	}
}

func newTestPeer(t *testing.T, cfg *config.Config, localID, remoteID string) (*Peer, chan *Signal, chan PeerEvent) {
	t.Helper()
	out := make(chan *Signal, 32)
	events := make(chan PeerEvent, 32)
	send := func(_ string, sig *Signal) {
		select {
		case out <- sig:
		default:
		}
	}
	p, err := NewPeer(cfg, "family", localID, remoteID, NewStaticMedia(), send, events)
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	return p, out, events
}

func TestPeerOfferAnswerHandshake(t *testing.T) {
	cfg := peerConfig()

	bob, bobOut, _ := newTestPeer(t, cfg, "bob", "alice")
	defer bob.Destroy()
	alice, aliceOut, _ := newTestPeer(t, cfg, "alice", "bob")
	defer alice.Destroy()

	if !bob.Initiator() || alice.Initiator() {
		t.Fatal("role assignment disagrees with the id ordering")
	}

	if err := alice.Start(); err != nil {
		t.Fatalf("answerer Start: %v", err)
	}
	if err := bob.Start(); err != nil {
		t.Fatalf("initiator Start: %v", err)
	}

	offer := nextOfKind(t, bobOut, SignalOffer)
	if offer.SDP == "" {
		t.Fatal("offer carries no SDP")
	}
	if alice.State() != StateNegotiating {
		t.Fatalf("answerer state = %s, want %s", alice.State(), StateNegotiating)
	}

	if err := alice.HandleSignal(offer); err != nil {
		t.Fatalf("handle offer: %v", err)
	}
	answer := nextOfKind(t, aliceOut, SignalAnswer)
	if answer.SDP == "" {
		t.Fatal("answer carries no SDP")
	}

	if err := bob.HandleSignal(answer); err != nil {
		t.Fatalf("handle answer: %v", err)
	}
}

func TestPeerBuffersEarlyCandidates(t *testing.T) {
	cfg := peerConfig()

	alice, _, _ := newTestPeer(t, cfg, "alice", "bob")
	defer alice.Destroy()

	early := &Signal{Type: SignalCandidate, Candidate: &webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host",
	}}
	if err := alice.HandleSignal(early); err != nil {
		t.Fatalf("early candidate rejected: %v", err)
	}

	alice.mu.Lock()
	buffered := len(alice.pending)
	alice.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("pending = %d, want the candidate buffered", buffered)
	}

	// The remote description flushes the buffer.
	bob, bobOut, _ := newTestPeer(t, cfg, "bob", "alice")
	defer bob.Destroy()
	if err := bob.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	offer := nextOfKind(t, bobOut, SignalOffer)
	if err := alice.HandleSignal(offer); err != nil {
		t.Fatalf("handle offer: %v", err)
	}

	alice.mu.Lock()
	buffered = len(alice.pending)
	alice.mu.Unlock()
	if buffered != 0 {
		t.Fatalf("pending = %d after remote description, want 0", buffered)
	}
}

func TestPeerNilCandidateIgnored(t *testing.T) {
	alice, _, _ := newTestPeer(t, peerConfig(), "alice", "bob")
	defer alice.Destroy()

	if err := alice.HandleSignal(&Signal{Type: SignalCandidate}); err != nil {
		t.Fatalf("nil candidate rejected: %v", err)
	}
}

func TestPeerRejectsUnknownSignalType(t *testing.T) {
	alice, _, _ := newTestPeer(t, peerConfig(), "alice", "bob")
	defer alice.Destroy()

	err := alice.HandleSignal(&Signal{Type: "renegotiate"})
	if !errors.Is(err, ErrUnexpectedSignal) {
		t.Fatalf("err = %v, want %v", err, ErrUnexpectedSignal)
	}
}

func TestPeerNegotiationTimeoutReportedOnce(t *testing.T) {
	cfg := peerConfig()
	cfg.NegotiationTimeout = 50 * time.Millisecond

	alice, _, events := newTestPeer(t, cfg, "alice", "bob")
	defer alice.Destroy()

	if err := alice.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventFailed {
			t.Fatalf("event = %+v, want failure", ev)
		}
		if !errors.Is(ev.Err, ErrNegotiationTimeout) {
			t.Fatalf("err = %v, want %v", ev.Err, ErrNegotiationTimeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation timeout never reported")
	}

	// The same episode must not be reported twice.
	select {
	case ev := <-events:
		if ev.Kind == EventFailed {
			t.Fatalf("duplicate failure event: %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPeerDestroyIsIdempotentAndSilent(t *testing.T) {
	alice, _, events := newTestPeer(t, peerConfig(), "alice", "bob")

	alice.Destroy()
	alice.Destroy()

	if alice.State() != StateClosed {
		t.Fatalf("state = %s, want %s", alice.State(), StateClosed)
	}
	select {
	case ev := <-events:
		t.Fatalf("teardown emitted %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	if err := alice.Start(); !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("Start after Destroy = %v, want %v", err, ErrPeerClosed)
	}
	if err := alice.HandleSignal(&Signal{Type: SignalOffer}); err != nil {
		t.Fatalf("signals after Destroy should be dropped quietly, got %v", err)
	}
}
