package hub

import (
	"errors"
	"fmt"
	"sync" // sync.Mutex serializes every matchmaking event
)

var (
	// ErrNotInRoom is returned by Leave when the session is Unassigned.
	ErrNotInRoom = errors.New("session is not in a room")
	// ErrRoomNotFound means a session referenced a room the table does not hold.
	// It indicates a broken invariant; the session is reset to Unassigned.
	ErrRoomNotFound = errors.New("room not found")
)

// Transition describes what a matchmaking event changed. Empty fields mean "nothing".
// The Hub uses it to decide what to log and which activity rows to record.
type Transition struct {
	Left   string // room the session left
	Joined string // room the session entered
}

// Changed reports whether the event moved the session at all.
func (t Transition) Changed() bool {
	return t.Left != "" || t.Joined != ""
}

// Matchmaker applies join, leave and disconnect events to the Room Table.
//
// A single mutex serializes every event and every read of Session.currentRoom. A room
// switch is a read-modify-write across two rooms (leave the old one, enter the new one),
// so holding one lock for the whole table means no two events can interleave halfway
// through and leave a session counted in two rooms, or a room with zero members.
//
// Lock order: Matchmaker.mu may be held while taking a Session's own mutex (Session.Closed),
// never the other way round.
type Matchmaker struct {
	mu    sync.Mutex
	rooms *RoomTable // only touched while mu is held
}

// NewMatchmaker creates a Matchmaker over an empty Room Table.
func NewMatchmaker() *Matchmaker {
	return &Matchmaker{rooms: NewRoomTable()}
}

// Join moves s into room instanceID. Re-joining the current room is a no-op; joining a
// different room leaves the old one first. An ErrRoomNotFound from that implicit leave is
// returned alongside a completed join. A session that has already been deregistered gets
// ErrSessionClosed and is never placed in a room.
func (m *Matchmaker) Join(s *Session, instanceID string) (Transition, error) {
	if instanceID == "" {
		return Transition{}, errors.New("empty instance id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Hub.Disconnect closes the session before it takes mu to release the room. Checking
	// here, under mu, means a late join either lands before that release (and is undone by
	// it) or sees the closed session and stops. Either way no room is left behind.
	if s.Closed() {
		return Transition{}, ErrSessionClosed
	}

	// --- Idempotent re-join ---
	// Joining the room the session is already in changes nothing: no leave, no re-add.
	if s.currentRoom == instanceID {
		return Transition{}, nil
	}

	// --- Step 1: leave the old room, if any ---
	// A session is in at most one room, so switching rooms starts with a leave.
	// If the old room is missing from the table, leaveLocked still resets the session
	// to Unassigned; the inconsistency is reported but the join goes ahead.
	var (
		tr        Transition
		violation error
	)
	if s.currentRoom != "" {
		tr.Left, violation = m.leaveLocked(s)
	}

	// --- Step 2: enter the new room ---
	// RoomTable.add creates the room on its first member.
	m.rooms.add(instanceID, s)
	s.currentRoom = instanceID
	tr.Joined = instanceID
	return tr, violation
}

// Leave takes s out of its current room, deleting the room if it becomes empty.
// An Unassigned session gets ErrNotInRoom and nothing changes.
func (m *Matchmaker) Leave(s *Session) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	left, err := m.leaveLocked(s)
	return Transition{Left: left}, err
}

// Disconnect releases any room membership held by s. An Unassigned session needs no cleanup,
// so unlike Leave this is not an error.
func (m *Matchmaker) Disconnect(s *Session) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.currentRoom == "" {
		return Transition{}, nil
	}
	left, err := m.leaveLocked(s)
	return Transition{Left: left}, err
}

// leaveLocked removes s from its current room. The caller must hold m.mu.
//
// The session is reset to Unassigned before the table is touched, so even a broken table
// (room missing, or s not among its members) cannot leave the session pointing at a room.
func (m *Matchmaker) leaveLocked(s *Session) (string, error) {
	id := s.currentRoom
	if id == "" {
		return "", ErrNotInRoom
	}
	s.currentRoom = ""

	// RoomTable.remove deletes the room as soon as its last member is gone.
	if !m.rooms.remove(id, s) {
		return "", fmt.Errorf("%w: %q", ErrRoomNotFound, id)
	}
	return id, nil
}

// RoomOf returns the room s is in.
func (m *Matchmaker) RoomOf(s *Session) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.currentRoom, s.currentRoom != ""
}

// Room returns a snapshot of room instanceID. The snapshot is a copy, safe to hand to
// HTTP handlers after the lock is released.
func (m *Matchmaker) Room(instanceID string) (RoomInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms.get(instanceID)
	if !ok {
		return RoomInfo{}, false
	}
	return room.info(), true
}

// Rooms returns snapshots of every room, ordered by instance id.
func (m *Matchmaker) Rooms() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms.snapshot()
}

// RoomCount returns the number of live rooms.
func (m *Matchmaker) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms.count()
}
