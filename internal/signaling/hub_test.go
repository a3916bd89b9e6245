package signaling

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory RoomStore for hub tests.
type memStore struct {
	mu      sync.Mutex
	rooms   map[string][]string
	durable []string
}

func newMemStore(durable ...string) *memStore {
	return &memStore{rooms: make(map[string][]string), durable: durable}
}

func (s *memStore) UpdateRoom(_ context.Context, room string, participants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = participants
	return nil
}

func (s *memStore) DurableRooms(_ context.Context) ([]string, error) {
	return s.durable, nil
}

func newTestHub(store RoomStore) *Hub {
	reg := NewRegistry()
	return NewHub(reg, NewRouter(reg, nil), store, nil)
}

func join(h *Hub, conn Conn, room, user string) {
	h.dispatch(Inbound{From: conn, Msg: &Message{
		Type:   MessageTypeJoinRoom,
		RoomID: room,
		UserID: user,
	}})
}

func TestHubJoinBroadcastsMembership(t *testing.T) {
	h := newTestHub(nil)

	alice, bob := &fakeConn{}, &fakeConn{}
	join(h, alice, "family", "alice")
	join(h, bob, "family", "bob")

	// Alice hears her own join and then bob's.
	if len(alice.sent) != 2 {
		t.Fatalf("alice received %d messages, want 2", len(alice.sent))
	}
	second := alice.sent[1]
	if second.Type != MessageTypeParticipants || second.NewUser != "bob" {
		t.Fatalf("second broadcast = %+v, want bob joining", second)
	}
	if len(second.Participants) != 2 {
		t.Fatalf("participants = %v, want 2 entries", second.Participants)
	}
}

func TestHubRejectsIncompleteJoin(t *testing.T) {
	h := newTestHub(nil)

	conn := &fakeConn{}
	h.dispatch(Inbound{From: conn, Msg: &Message{Type: MessageTypeJoinRoom, RoomID: "family"}})

	if len(conn.sent) != 1 || conn.sent[0].Type != MessageTypeError {
		t.Fatalf("messages = %+v, want one error", conn.sent)
	}
	if h.Registry().Snapshot("family") != nil {
		t.Fatal("incomplete join created a room")
	}
}

func TestHubSignalUsesJoinIdentity(t *testing.T) {
	h := newTestHub(nil)

	alice, bob := &fakeConn{}, &fakeConn{}
	join(h, alice, "family", "alice")
	join(h, bob, "family", "bob")

	// Alice claims to be mallory; the hub routes with her join identity.
	h.dispatch(Inbound{From: alice, Msg: &Message{
		Type:         MessageTypeOffer,
		RoomID:       "family",
		UserID:       "mallory",
		TargetUserID: "bob",
	}})

	last := bob.sent[len(bob.sent)-1]
	if last.Type != MessageTypeP2PSignal {
		t.Fatalf("bob's last message = %s, want %s", last.Type, MessageTypeP2PSignal)
	}
	if last.FromUserID != "alice" {
		t.Fatalf("from = %s, want the join identity alice", last.FromUserID)
	}
}

func TestHubSignalBeforeJoinErrors(t *testing.T) {
	h := newTestHub(nil)

	conn := &fakeConn{}
	h.dispatch(Inbound{From: conn, Msg: &Message{
		Type:         MessageTypeOffer,
		TargetUserID: "bob",
	}})

	if len(conn.sent) != 1 || conn.sent[0].Type != MessageTypeError {
		t.Fatalf("messages = %+v, want one error", conn.sent)
	}
}

func TestHubSignalRequiresTarget(t *testing.T) {
	h := newTestHub(nil)

	alice := &fakeConn{}
	join(h, alice, "family", "alice")

	h.dispatch(Inbound{From: alice, Msg: &Message{Type: MessageTypeICECandidate}})

	last := alice.sent[len(alice.sent)-1]
	if last.Type != MessageTypeError {
		t.Fatalf("last message = %s, want error", last.Type)
	}
}

func TestHubLeaveBroadcastsDeparture(t *testing.T) {
	h := newTestHub(nil)

	alice, bob := &fakeConn{}, &fakeConn{}
	join(h, alice, "family", "alice")
	join(h, bob, "family", "bob")

	h.dispatch(Inbound{From: alice, Msg: &Message{
		Type:   MessageTypeLeaveRoom,
		RoomID: "family",
		UserID: "alice",
	}})

	last := bob.sent[len(bob.sent)-1]
	if last.Type != MessageTypeParticipants || last.LeftUser != "alice" {
		t.Fatalf("bob's last message = %+v, want alice leaving", last)
	}
	if len(last.Participants) != 1 || last.Participants[0] != "bob" {
		t.Fatalf("participants = %v, want [bob]", last.Participants)
	}

	// A racing second leave is silently tolerated.
	h.dispatch(Inbound{From: alice, Msg: &Message{
		Type:   MessageTypeLeaveRoom,
		RoomID: "family",
		UserID: "alice",
	}})
}

func TestHubShutdownUnblocksPumps(t *testing.T) {
	h := newTestHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// A pump noticing its dead connection after shutdown must not hang.
	released := make(chan struct{})
	go func() {
		h.unregister(NewClient(h, nil))
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after the hub loop exited")
	}
}

func TestHubLoadsDurableRoomsOnStart(t *testing.T) {
	h := newTestHub(newMemStore("family-jensen", "family-berg"))

	h.loadDurableRooms(context.Background())

	for _, name := range []string{"family-jensen", "family-berg"} {
		snap := h.Registry().Snapshot(name)
		if snap == nil || !snap.Durable {
			t.Fatalf("room %s = %+v, want durable", name, snap)
		}
	}
}
