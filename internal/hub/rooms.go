package hub

import (
	"sort" // snapshots are sorted so API responses and tests are deterministic

	"github.com/google/uuid"
)

// Room is one matchmaking group keyed by an externally supplied instance id.
// Members are tracked per connection; the value is the member's user id.
type Room struct {
	InstanceID string
	// members is a set keyed by session id. Go has no built-in set type, so a map is used;
	// the value carries the user id for snapshots.
	members map[uuid.UUID]string
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	InstanceID string   `json:"instance_id"`
	Members    []string `json:"members"` // user ids, sorted
}

func (r *Room) info() RoomInfo {
	members := make([]string, 0, len(r.members))
	for _, userID := range r.members {
		members = append(members, userID)
	}
	sort.Strings(members)
	return RoomInfo{InstanceID: r.InstanceID, Members: members}
}

// RoomTable owns every live room. A room is present only while it has at least one member.
//
// RoomTable does no locking of its own; the Matchmaker serializes every call.
type RoomTable struct {
	rooms map[string]*Room
}

// NewRoomTable creates an empty table.
func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[string]*Room)}
}

// add puts the session into room instanceID, creating the room on first join.
func (t *RoomTable) add(instanceID string, s *Session) {
	room, ok := t.rooms[instanceID]
	// First member: the room comes into existence with this join.
	if !ok {
		room = &Room{InstanceID: instanceID, members: make(map[uuid.UUID]string)}
		t.rooms[instanceID] = room
	}
	room.members[s.ID] = s.Identity.UserID
}

// remove takes the session out of room instanceID and deletes the room once it is empty.
// It reports false if the room or the membership did not exist.
func (t *RoomTable) remove(instanceID string, s *Session) bool {
	room, ok := t.rooms[instanceID]
	if !ok {
		return false
	}
	if _, member := room.members[s.ID]; !member {
		return false
	}
	delete(room.members, s.ID)
	// Last member gone: drop the room so the table never holds an empty one.
	if len(room.members) == 0 {
		delete(t.rooms, instanceID)
	}
	return true
}

func (t *RoomTable) get(instanceID string) (*Room, bool) {
	room, ok := t.rooms[instanceID]
	return room, ok
}

func (t *RoomTable) count() int {
	return len(t.rooms)
}

func (t *RoomTable) snapshot() []RoomInfo {
	out := make([]RoomInfo, 0, len(t.rooms))
	for _, room := range t.rooms {
		out = append(out, room.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}
