package call

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Leontarin/CareBell-sub000/internal/config"
)

// PeerHandle is what the coordinator needs from one peer connection.
// *Peer implements it; tests inject fakes.
type PeerHandle interface {
	Start() error
	HandleSignal(sig *Signal) error
	SendControl(msg ControlMessage) error
	RemoteStream() *RemoteStream
	Destroy()
}

// PeerFactory builds a peer connection to one remote participant,
// reporting its lifecycle on events.
type PeerFactory func(remoteID string, events chan<- PeerEvent) (PeerHandle, error)

// Membership is one room-participants update as seen by the coordinator.
type Membership struct {
	Participants []string
	Left         string
}

// meshPeer is the coordinator's book-keeping for one remote participant.
// handle is nil while a retry is pending or the peer is permanently
// failed.
type meshPeer struct {
	handle      PeerHandle
	state       PeerState
	attempts    int
	exhausted   bool
	retryTimer  *time.Timer
	displayName string
	muted       bool
	cameraOff   bool
}

// ParticipantStatus is the observable per-participant view exposed to
// the UI layer.
type ParticipantStatus struct {
	ID          string
	DisplayName string
	State       PeerState
	Attempts    int
	Muted       bool
	CameraOff   bool
	HasAudio    bool
	HasVideo    bool
}

// Coordinator maintains the invariant "one peer connection per current
// remote room participant": it diffs membership updates, assigns
// initiator/answerer roles deterministically, retries failures with a
// bounded linear backoff, and enforces the room-size cap. All state
// transitions run on a single event loop; inputs arrive as messages.
type Coordinator struct {
	cfg     *config.Config
	room    string
	localID string
	factory PeerFactory
	log     *slog.Logger

	events     chan PeerEvent
	membership chan Membership
	signals    chan inboundSignal
	retries    chan string
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.RWMutex
	peers    map[string]*meshPeer
	roomFull bool

	notify chan struct{}
}

type inboundSignal struct {
	from string
	sig  *Signal
}

func NewCoordinator(cfg *config.Config, room, localID string, factory PeerFactory, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:        cfg,
		room:       room,
		localID:    localID,
		factory:    factory,
		log:        log,
		events:     make(chan PeerEvent, 64),
		membership: make(chan Membership, 8),
		signals:    make(chan inboundSignal, 64),
		retries:    make(chan string, 16),
		done:       make(chan struct{}),
		peers:      make(map[string]*meshPeer),
		notify:     make(chan struct{}, 1),
	}
}

// Run processes events until Close. Membership changes, peer lifecycle
// events, routed signals, and retry timer fires are interleaved on this
// one goroutine; nothing else mutates the mesh.
func (c *Coordinator) Run() {
	for {
		select {
		case <-c.done:
			return
		case update := <-c.membership:
			c.applyMembership(update)
		case in := <-c.signals:
			c.dispatchSignal(in.from, in.sig)
		case ev := <-c.events:
			c.handlePeerEvent(ev)
		case remoteID := <-c.retries:
			c.fireRetry(remoteID)
		}
	}
}

// UpdateMembership feeds one room-participants broadcast into the loop.
func (c *Coordinator) UpdateMembership(update Membership) {
	select {
	case c.membership <- update:
	case <-c.done:
	}
}

// DeliverSignal feeds one routed p2p-signal payload into the loop.
// Malformed payloads are dropped; the sender's connection will time out
// and fail on its own.
func (c *Coordinator) DeliverSignal(from string, payload json.RawMessage) {
	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		c.log.Warn("dropping malformed signal", "from", from, "err", err)
		return
	}
	select {
	case c.signals <- inboundSignal{from: from, sig: &sig}:
	case <-c.done:
	}
}

// Events returns the channel peers report on, for wiring a PeerFactory.
func (c *Coordinator) Events() chan<- PeerEvent {
	return c.events
}

// applyMembership reconciles the mesh against a new participant list.
func (c *Coordinator) applyMembership(update Membership) {
	participants := update.Participants

	// Bound the mesh even if the server admitted an over-capacity join:
	// keep the first N in list order.
	if len(participants) > c.cfg.MaxParticipants {
		c.log.Warn("room over capacity, truncating participant list",
			"room", c.room, "size", len(participants), "max", c.cfg.MaxParticipants)
		participants = participants[:c.cfg.MaxParticipants]
	}

	present := false
	for _, id := range participants {
		if id == c.localID {
			present = true
			break
		}
	}
	if !present {
		// We fell outside the truncated list: the room is full from our
		// point of view and we hold no connections at all.
		c.mu.Lock()
		c.roomFull = true
		for id, mp := range c.peers {
			c.releasePeerLocked(mp)
			delete(c.peers, id)
		}
		c.mu.Unlock()
		c.changed()
		return
	}

	c.mu.Lock()
	c.roomFull = false

	wanted := make(map[string]bool, len(participants))
	for _, id := range participants {
		if id != c.localID {
			wanted[id] = true
		}
	}

	// Destroy connections to departed participants immediately; no
	// connection may outlive the membership that justified it.
	for id, mp := range c.peers {
		if !wanted[id] {
			c.releasePeerLocked(mp)
			delete(c.peers, id)
			c.log.Info("peer departed", "room", c.room, "peer", id)
		}
	}

	// Connect to newcomers. A participant whose retries were exhausted is
	// re-admitted by this full update: its counter starts over.
	var starting []string
	for id := range wanted {
		mp, known := c.peers[id]
		if known && (mp.handle != nil || mp.retryTimer != nil) {
			continue
		}
		if known && mp.exhausted {
			mp.attempts = 0
			mp.exhausted = false
		}
		starting = append(starting, id)
	}
	for _, id := range starting {
		c.startPeerLocked(id)
	}
	c.mu.Unlock()
	c.changed()
}

// startPeerLocked creates and starts a connection to one remote
// participant. Factory or start errors count as a failure episode so the
// ordinary retry policy applies.
func (c *Coordinator) startPeerLocked(remoteID string) {
	mp := c.peers[remoteID]
	if mp == nil {
		mp = &meshPeer{}
		c.peers[remoteID] = mp
	}

	handle, err := c.factory(remoteID, c.events)
	if err != nil {
		c.log.Warn("peer creation failed", "peer", remoteID, "err", err)
		c.recordFailureLocked(remoteID, mp)
		return
	}
	mp.handle = handle
	mp.state = StateNegotiating

	if err := handle.Start(); err != nil {
		c.log.Warn("peer start failed", "peer", remoteID, "err", err)
		handle.Destroy()
		mp.handle = nil
		c.recordFailureLocked(remoteID, mp)
		return
	}

	c.log.Info("peer connection started",
		"room", c.room, "peer", remoteID, "initiator", IsInitiator(c.localID, remoteID))
}

// dispatchSignal hands a routed signal to the owning peer. An offer from
// a participant we have not seen in a membership update yet is a
// transiently inconsistent view: create the connection on demand when
// the role rule makes us the answerer, otherwise drop.
func (c *Coordinator) dispatchSignal(from string, sig *Signal) {
	c.mu.Lock()
	mp := c.peers[from]
	if mp == nil || mp.handle == nil {
		if sig.Type == SignalOffer && !IsInitiator(c.localID, from) {
			c.startPeerLocked(from)
			mp = c.peers[from]
		} else {
			c.mu.Unlock()
			c.log.Debug("dropping signal for unknown peer", "from", from, "type", sig.Type)
			return
		}
	}
	handle := mp.handle
	c.mu.Unlock()

	if handle == nil {
		return
	}
	if err := handle.HandleSignal(sig); err != nil {
		c.log.Warn("signal handling failed", "from", from, "err", err)
	}
}

func (c *Coordinator) handlePeerEvent(ev PeerEvent) {
	c.mu.Lock()
	mp, ok := c.peers[ev.Peer]
	if !ok {
		// Event from a peer destroyed by a departure; ignore.
		c.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventConnected:
		mp.state = StateConnected
		mp.attempts = 0
		mp.exhausted = false
		c.log.Info("peer connected", "room", c.room, "peer", ev.Peer)

	case EventFailed:
		c.log.Warn("peer connection failed", "room", c.room, "peer", ev.Peer, "err", ev.Err)
		if mp.handle != nil {
			mp.handle.Destroy()
			mp.handle = nil
		}
		c.recordFailureLocked(ev.Peer, mp)

	case EventTrack:
		// Remote stream handle updated; just surface the change.

	case EventControl:
		c.applyControlLocked(mp, ev.Control)
	}
	c.mu.Unlock()
	c.changed()
}

// recordFailureLocked applies the retry policy after one failure
// episode: linear backoff (base delay times attempt number) up to the
// configured maximum, then permanently failed until a membership update
// re-admits the participant.
func (c *Coordinator) recordFailureLocked(remoteID string, mp *meshPeer) {
	mp.attempts++
	if mp.attempts >= c.cfg.MaxRetryAttempts {
		mp.state = StateFailed
		mp.exhausted = true
		c.log.Warn("retries exhausted, giving up on peer",
			"room", c.room, "peer", remoteID, "attempts", mp.attempts)
		return
	}

	delay := c.cfg.RetryBaseDelay * time.Duration(mp.attempts)
	mp.state = StateNegotiating
	if mp.retryTimer != nil {
		// A stale queued failure event can land while a retry is armed.
		mp.retryTimer.Stop()
	}
	mp.retryTimer = time.AfterFunc(delay, func() {
		select {
		case c.retries <- remoteID:
		case <-c.done:
		}
	})
	c.log.Info("retry scheduled",
		"room", c.room, "peer", remoteID, "attempt", mp.attempts, "delay", delay)
}

// fireRetry re-creates a connection whose backoff elapsed. The peer may
// have departed in the meantime; its entry is gone then and the fire is
// ignored.
func (c *Coordinator) fireRetry(remoteID string) {
	c.mu.Lock()
	mp, ok := c.peers[remoteID]
	if !ok || mp.handle != nil || mp.exhausted {
		c.mu.Unlock()
		return
	}
	mp.retryTimer = nil
	c.startPeerLocked(remoteID)
	c.mu.Unlock()
	c.changed()
}

func (c *Coordinator) applyControlLocked(mp *meshPeer, msg *ControlMessage) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case ControlTypeHello:
		var hello HelloPayload
		if msg.DecodePayload(&hello) == nil {
			mp.displayName = hello.DisplayName
		}
	case ControlTypeMute:
		var mute MutePayload
		if msg.DecodePayload(&mute) == nil {
			mp.muted = mute.Muted
		}
	case ControlTypeCamera:
		var camera CameraPayload
		if msg.DecodePayload(&camera) == nil {
			mp.cameraOff = !camera.Enabled
		}
	}
}

// releasePeerLocked tears one peer down and cancels its pending retry
// timer so no timer outlives the participant that justified it.
func (c *Coordinator) releasePeerLocked(mp *meshPeer) {
	if mp.retryTimer != nil {
		mp.retryTimer.Stop()
		mp.retryTimer = nil
	}
	if mp.handle != nil {
		mp.handle.Destroy()
		mp.handle = nil
	}
}

// Broadcast sends an in-call control message to every connected peer.
// Per-peer send failures are isolated; one closed channel never blocks
// the rest of the mesh.
func (c *Coordinator) Broadcast(msg ControlMessage) {
	c.mu.RLock()
	handles := make([]PeerHandle, 0, len(c.peers))
	for _, mp := range c.peers {
		if mp.handle != nil && mp.state == StateConnected {
			handles = append(handles, mp.handle)
		}
	}
	c.mu.RUnlock()

	for _, handle := range handles {
		if err := handle.SendControl(msg); err != nil {
			c.log.Debug("control broadcast skipped peer", "err", err)
		}
	}
}

// Roster returns the observable per-participant view, sorted by id.
func (c *Coordinator) Roster() []ParticipantStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ParticipantStatus, 0, len(c.peers))
	for id, mp := range c.peers {
		status := ParticipantStatus{
			ID:          id,
			DisplayName: mp.displayName,
			State:       mp.state,
			Attempts:    mp.attempts,
			Muted:       mp.muted,
			CameraOff:   mp.cameraOff,
		}
		if mp.handle != nil {
			stream := mp.handle.RemoteStream()
			if stream != nil {
				status.HasAudio = stream.HasAudio()
				status.HasVideo = stream.HasVideo()
			}
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// States returns the per-participant connection-state map.
func (c *Coordinator) States() map[string]PeerState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]PeerState, len(c.peers))
	for id, mp := range c.peers {
		out[id] = mp.state
	}
	return out
}

// Streams returns the per-participant remote-media-stream map.
func (c *Coordinator) Streams() map[string]*RemoteStream {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*RemoteStream, len(c.peers))
	for id, mp := range c.peers {
		if mp.handle != nil {
			out[id] = mp.handle.RemoteStream()
		}
	}
	return out
}

// RoomFull reports whether the last membership update pushed us outside
// the bounded mesh.
func (c *Coordinator) RoomFull() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomFull
}

// Updates signals (coalesced) that the roster changed.
func (c *Coordinator) Updates() <-chan struct{} {
	return c.notify
}

func (c *Coordinator) changed() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Close tears down every peer connection and stops the loop. Safe to
// call more than once; nothing owned by the mesh outlives it.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		for id, mp := range c.peers {
			c.releasePeerLocked(mp)
			delete(c.peers, id)
		}
		c.mu.Unlock()
	})
}
