package signaling

import (
	"sync"
	"time"
)

// Conn is the server-side handle of one signaling transport. The registry
// holds a non-owning reference to it for routing; the websocket Client
// owns the actual connection.
type Conn interface {
	// Send queues a message for delivery. It reports false when the
	// connection is no longer live or its buffer is full; the message is
	// dropped in that case.
	Send(msg *Message) bool
}

// Room tracks the participants of one named room.
type Room struct {
	Name      string
	CreatedAt time.Time

	// Durable rooms survive emptying: they are marked inactive instead of
	// deleted when the last participant leaves.
	Durable bool
	Active  bool

	members map[string]Conn
	order   []string // join order, used for deterministic truncation by clients
}

// Participants returns the participant ids in join order.
func (r *Room) Participants() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

type assoc struct {
	room   string
	userID string
}

// Registry is the authoritative membership tracker. It is constructed once
// per server process and injected into the Router and Hub; all mutation
// happens through Join/Leave/Disconnect on the hub goroutine. The mutex
// only guards concurrent reads from the HTTP layer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[Conn]assoc
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		conns: make(map[Conn]assoc),
	}
}

// MarkDurable flags a room as durable. The room is created inactive if it
// does not exist yet, so named rooms loaded from the store are joinable
// before anyone has connected.
func (reg *Registry) MarkDurable(name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[name]
	if !ok {
		room = &Room{
			Name:      name,
			CreatedAt: time.Now().UTC(),
			members:   make(map[string]Conn),
		}
		reg.rooms[name] = room
	}
	room.Durable = true
}

// Join adds a participant to a room, creating the room on first join.
// Re-joining with the same id is a no-op for the set but still updates the
// routing association, so a reconnecting participant gets its signals on
// the new connection. If the connection was previously associated with a
// different room or id, that membership is released first and returned in
// left so the caller can broadcast the departure.
//
// Join never rejects an over-capacity room; the cap is enforced by the
// clients (pre-join check plus mesh truncation).
func (reg *Registry) Join(roomName, participantID string, conn Conn) (participants []string, left *Departure) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	// One room per connection: joining elsewhere implies leaving.
	if prev, ok := reg.conns[conn]; ok && (prev.room != roomName || prev.userID != participantID) {
		left = reg.removeLocked(prev.room, prev.userID)
	}

	room, ok := reg.rooms[roomName]
	if !ok {
		room = &Room{
			Name:      roomName,
			CreatedAt: time.Now().UTC(),
			members:   make(map[string]Conn),
		}
		reg.rooms[roomName] = room
	}

	if prev, rejoined := room.members[participantID]; rejoined {
		// Reconnect: release the superseded connection's association so
		// its eventual disconnect cannot evict the live participant.
		if prev != conn {
			if a, ok := reg.conns[prev]; ok && a.room == roomName && a.userID == participantID {
				delete(reg.conns, prev)
			}
		}
	} else {
		room.order = append(room.order, participantID)
	}
	room.members[participantID] = conn
	room.Active = true
	reg.conns[conn] = assoc{room: roomName, userID: participantID}

	return room.Participants(), left
}

// Departure describes a completed leave, for membership broadcasting.
type Departure struct {
	Room         string
	UserID       string
	Participants []string
}

// Leave removes a participant from a room. Leaving a nonexistent room or
// an unknown participant is a no-op: disconnects can race with explicit
// leaves. When the room empties, ad hoc rooms are deleted and durable
// rooms are marked inactive.
func (reg *Registry) Leave(roomName, participantID string) *Departure {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.removeLocked(roomName, participantID)
}

// Disconnect performs the implicit leave for a dropped connection, using
// its last-known (room, participant) association. No-op if the connection
// never joined, already left, or was superseded by a reconnect.
func (reg *Registry) Disconnect(conn Conn) *Departure {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	prev, ok := reg.conns[conn]
	if !ok {
		return nil
	}
	delete(reg.conns, conn)
	if room, ok := reg.rooms[prev.room]; !ok || room.members[prev.userID] != conn {
		return nil
	}
	return reg.removeLocked(prev.room, prev.userID)
}

func (reg *Registry) removeLocked(roomName, participantID string) *Departure {
	room, ok := reg.rooms[roomName]
	if !ok {
		return nil
	}
	conn, member := room.members[participantID]
	if !member {
		return nil
	}

	delete(room.members, participantID)
	for i, id := range room.order {
		if id == participantID {
			room.order = append(room.order[:i], room.order[i+1:]...)
			break
		}
	}
	if a, ok := reg.conns[conn]; ok && a.room == roomName && a.userID == participantID {
		delete(reg.conns, conn)
	}

	if len(room.members) == 0 {
		if room.Durable {
			room.Active = false
		} else {
			delete(reg.rooms, roomName)
		}
	}

	return &Departure{
		Room:         roomName,
		UserID:       participantID,
		Participants: room.Participants(),
	}
}

// Assoc returns the room and participant id a connection joined as, if any.
func (reg *Registry) Assoc(conn Conn) (room, participantID string, ok bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	a, ok := reg.conns[conn]
	return a.room, a.userID, ok
}

// Member returns the connection currently associated with a participant of
// a room, or nil when either is unknown.
func (reg *Registry) Member(roomName, participantID string) Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomName]
	if !ok {
		return nil
	}
	return room.members[participantID]
}

// Members returns the live connections of a room, for broadcasting.
func (reg *Registry) Members(roomName string) []Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomName]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(room.members))
	for _, c := range room.members {
		out = append(out, c)
	}
	return out
}

// Participants returns the participant ids of a room in join order.
func (reg *Registry) Participants(roomName string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomName]
	if !ok {
		return nil
	}
	return room.Participants()
}

// RoomSnapshot is a read-only view of one room for the HTTP API.
type RoomSnapshot struct {
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	MemberCount  int       `json:"memberCount"`
	Durable      bool      `json:"durable"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Snapshot returns a view of one room, or nil when unknown.
func (reg *Registry) Snapshot(roomName string) *RoomSnapshot {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomName]
	if !ok {
		return nil
	}
	return snapshotLocked(room)
}

// Snapshots returns a view of every room known to the registry.
func (reg *Registry) Snapshots() []RoomSnapshot {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]RoomSnapshot, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, *snapshotLocked(room))
	}
	return out
}

func snapshotLocked(room *Room) *RoomSnapshot {
	return &RoomSnapshot{
		Name:         room.Name,
		Participants: room.Participants(),
		MemberCount:  len(room.members),
		Durable:      room.Durable,
		Active:       room.Active,
		CreatedAt:    room.CreatedAt,
	}
}
