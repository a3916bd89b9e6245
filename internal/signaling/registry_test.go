package signaling

import (
	"reflect"
	"testing"
)

// fakeConn records every message sent to it.
type fakeConn struct {
	sent []*Message
	dead bool
}

func (c *fakeConn) Send(msg *Message) bool {
	if c.dead {
		return false
	}
	c.sent = append(c.sent, msg)
	return true
}

func TestJoinCreatesRoomAndOrdersParticipants(t *testing.T) {
	reg := NewRegistry()

	a, b := &fakeConn{}, &fakeConn{}

	participants, left := reg.Join("family", "alice", a)
	if left != nil {
		t.Fatalf("first join returned departure %+v", left)
	}
	if !reflect.DeepEqual(participants, []string{"alice"}) {
		t.Fatalf("participants = %v, want [alice]", participants)
	}

	participants, _ = reg.Join("family", "bob", b)
	if !reflect.DeepEqual(participants, []string{"alice", "bob"}) {
		t.Fatalf("participants = %v, want join order [alice bob]", participants)
	}
}

func TestRejoinUpdatesConnectionWithoutDuplicating(t *testing.T) {
	reg := NewRegistry()

	old := &fakeConn{}
	reg.Join("family", "alice", old)

	replacement := &fakeConn{}
	participants, left := reg.Join("family", "alice", replacement)
	if left != nil {
		t.Fatalf("rejoin returned departure %+v", left)
	}
	if !reflect.DeepEqual(participants, []string{"alice"}) {
		t.Fatalf("participants = %v, want [alice]", participants)
	}
	if got := reg.Member("family", "alice"); got != Conn(replacement) {
		t.Fatal("rejoin did not update the routing association")
	}
}

func TestStaleDisconnectAfterRejoinIsNoOp(t *testing.T) {
	reg := NewRegistry()

	old := &fakeConn{}
	reg.Join("family", "alice", old)

	// Alice reconnects; the old socket lingers until its pump notices.
	replacement := &fakeConn{}
	reg.Join("family", "alice", replacement)

	if dep := reg.Disconnect(old); dep != nil {
		t.Fatalf("stale disconnect returned %+v, want nil", dep)
	}
	if got := reg.Member("family", "alice"); got != Conn(replacement) {
		t.Fatal("stale disconnect evicted the reconnected participant")
	}
	if !reflect.DeepEqual(reg.Participants("family"), []string{"alice"}) {
		t.Fatalf("participants = %v, want [alice]", reg.Participants("family"))
	}

	// The live connection still performs the real leave.
	dep := reg.Disconnect(replacement)
	if dep == nil || dep.UserID != "alice" {
		t.Fatalf("live disconnect = %+v, want alice leaving", dep)
	}
	if reg.Snapshot("family") != nil {
		t.Fatal("emptied ad hoc room was not deleted")
	}
}

func TestJoinOtherRoomImpliesLeave(t *testing.T) {
	reg := NewRegistry()

	conn := &fakeConn{}
	reg.Join("family", "alice", conn)

	participants, left := reg.Join("friends", "alice", conn)
	if left == nil || left.Room != "family" || left.UserID != "alice" {
		t.Fatalf("implicit leave = %+v, want departure from family", left)
	}
	if !reflect.DeepEqual(participants, []string{"alice"}) {
		t.Fatalf("participants = %v, want [alice]", participants)
	}
	if reg.Snapshot("family") != nil {
		t.Fatal("emptied ad hoc room was not deleted")
	}
}

func TestLeaveRacesAreNoOps(t *testing.T) {
	reg := NewRegistry()

	if dep := reg.Leave("ghost", "nobody"); dep != nil {
		t.Fatalf("leave of unknown room returned %+v", dep)
	}

	conn := &fakeConn{}
	reg.Join("family", "alice", conn)
	reg.Leave("family", "alice")

	// Second leave and late disconnect both race the first leave.
	if dep := reg.Leave("family", "alice"); dep != nil {
		t.Fatalf("double leave returned %+v", dep)
	}
	if dep := reg.Disconnect(conn); dep != nil {
		t.Fatalf("disconnect after leave returned %+v", dep)
	}
}

func TestDisconnectPerformsImplicitLeave(t *testing.T) {
	reg := NewRegistry()

	a, b := &fakeConn{}, &fakeConn{}
	reg.Join("family", "alice", a)
	reg.Join("family", "bob", b)

	dep := reg.Disconnect(a)
	if dep == nil || dep.Room != "family" || dep.UserID != "alice" {
		t.Fatalf("disconnect = %+v, want alice leaving family", dep)
	}
	if !reflect.DeepEqual(dep.Participants, []string{"bob"}) {
		t.Fatalf("remaining participants = %v, want [bob]", dep.Participants)
	}
}

func TestDurableRoomSurvivesEmptying(t *testing.T) {
	reg := NewRegistry()
	reg.MarkDurable("family")

	snap := reg.Snapshot("family")
	if snap == nil || !snap.Durable || snap.Active {
		t.Fatalf("fresh durable room snapshot = %+v, want durable inactive", snap)
	}

	conn := &fakeConn{}
	reg.Join("family", "alice", conn)
	if snap := reg.Snapshot("family"); !snap.Active {
		t.Fatal("joined durable room should be active")
	}

	reg.Leave("family", "alice")
	snap = reg.Snapshot("family")
	if snap == nil {
		t.Fatal("durable room was deleted on emptying")
	}
	if snap.Active || snap.MemberCount != 0 {
		t.Fatalf("emptied durable room snapshot = %+v, want inactive and empty", snap)
	}
}

func TestAdHocRoomDeletedOnEmptying(t *testing.T) {
	reg := NewRegistry()

	conn := &fakeConn{}
	reg.Join("pickup", "alice", conn)
	reg.Leave("pickup", "alice")

	if reg.Snapshot("pickup") != nil {
		t.Fatal("ad hoc room survived emptying")
	}
}

func TestJoinNeverRejectsOverCapacity(t *testing.T) {
	reg := NewRegistry()

	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		participants, _ := reg.Join("big", id, &fakeConn{})
		if len(participants) != i+1 {
			t.Fatalf("join %d: occupancy %d", i, len(participants))
		}
	}
}

func TestAssocReflectsCurrentMembership(t *testing.T) {
	reg := NewRegistry()

	conn := &fakeConn{}
	if _, _, ok := reg.Assoc(conn); ok {
		t.Fatal("unjoined connection has an association")
	}

	reg.Join("family", "alice", conn)
	room, id, ok := reg.Assoc(conn)
	if !ok || room != "family" || id != "alice" {
		t.Fatalf("assoc = (%s, %s, %v), want (family, alice, true)", room, id, ok)
	}

	reg.Leave("family", "alice")
	if _, _, ok := reg.Assoc(conn); ok {
		t.Fatal("association survived leave")
	}
}
