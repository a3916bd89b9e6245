package signaling

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRouteDirectRewrapsAsP2PSignal(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	alice, bob := &fakeConn{}, &fakeConn{}
	reg.Join("family", "alice", alice)
	reg.Join("family", "bob", bob)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if !router.RouteDirect("family", "alice", "bob", payload) {
		t.Fatal("route to live member failed")
	}

	if len(bob.sent) != 1 {
		t.Fatalf("bob received %d messages, want 1", len(bob.sent))
	}
	got := bob.sent[0]
	if got.Type != MessageTypeP2PSignal {
		t.Fatalf("type = %s, want %s", got.Type, MessageTypeP2PSignal)
	}
	if got.FromUserID != "alice" || got.ToUserID != "bob" || got.RoomID != "family" {
		t.Fatalf("envelope = %+v, want from alice to bob in family", got)
	}
	if !reflect.DeepEqual(got.Signal, payload) {
		t.Fatal("signal payload was altered in transit")
	}
	if len(alice.sent) != 0 {
		t.Fatal("signal echoed back to sender")
	}
}

func TestRouteDirectDropsOnMiss(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	alice := &fakeConn{}
	reg.Join("family", "alice", alice)

	if router.RouteDirect("family", "alice", "ghost", nil) {
		t.Fatal("route to unknown participant reported success")
	}
	if router.RouteDirect("nowhere", "alice", "bob", nil) {
		t.Fatal("route in unknown room reported success")
	}
}

func TestRouteDirectReportsDeadConnection(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	reg.Join("family", "alice", &fakeConn{})
	reg.Join("family", "bob", &fakeConn{dead: true})

	if router.RouteDirect("family", "alice", "bob", nil) {
		t.Fatal("route to dead connection reported success")
	}
}

func TestBroadcastMembershipReachesWholeRoom(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	conns := map[string]*fakeConn{
		"alice": {}, "bob": {}, "carol": {},
	}
	for id, c := range conns {
		reg.Join("family", id, c)
	}

	participants := reg.Participants("family")
	router.BroadcastMembership("family", participants, "carol", ChangeJoin)

	for id, c := range conns {
		if len(c.sent) != 1 {
			t.Fatalf("%s received %d broadcasts, want 1", id, len(c.sent))
		}
		msg := c.sent[0]
		if msg.Type != MessageTypeParticipants {
			t.Fatalf("type = %s, want %s", msg.Type, MessageTypeParticipants)
		}
		if msg.NewUser != "carol" || msg.LeftUser != "" {
			t.Fatalf("change fields = new %q left %q, want new carol", msg.NewUser, msg.LeftUser)
		}
		if !reflect.DeepEqual(msg.Participants, participants) {
			t.Fatalf("%s got participants %v, want %v", id, msg.Participants, participants)
		}
	}
}

func TestBroadcastMembershipMarksLeaver(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, nil)

	alice := &fakeConn{}
	reg.Join("family", "alice", alice)

	router.BroadcastMembership("family", []string{"alice"}, "bob", ChangeLeave)

	if len(alice.sent) != 1 {
		t.Fatalf("alice received %d broadcasts, want 1", len(alice.sent))
	}
	msg := alice.sent[0]
	if msg.LeftUser != "bob" || msg.NewUser != "" {
		t.Fatalf("change fields = new %q left %q, want left bob", msg.NewUser, msg.LeftUser)
	}
}
