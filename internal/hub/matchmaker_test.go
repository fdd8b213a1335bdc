package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/trentd187/activity-lobby/internal/identity"
)

func newTestSession(userID string) *Session {
	return newSession(identity.Identity{UserID: userID, DisplayName: userID}, 8)
}

func TestMatchmaker_JoinCreatesRoom(t *testing.T) {
	m := NewMatchmaker()
	a := newTestSession("A")

	tr, err := m.Join(a, "room-42")
	require.NoError(t, err)
	assert.Equal(t, Transition{Joined: "room-42"}, tr)

	room, ok := m.Room("room-42")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, room.Members)

	got, ok := m.RoomOf(a)
	assert.True(t, ok)
	assert.Equal(t, "room-42", got)
}

func TestMatchmaker_TwoUsersThenLeaveThenDisconnect(t *testing.T) {
	m := NewMatchmaker()
	a, b := newTestSession("A"), newTestSession("B")

	_, err := m.Join(a, "room-42")
	require.NoError(t, err)
	_, err = m.Join(b, "room-42")
	require.NoError(t, err)

	room, ok := m.Room("room-42")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, room.Members)
	assert.Equal(t, 1, m.RoomCount())

	tr, err := m.Leave(a)
	require.NoError(t, err)
	assert.Equal(t, Transition{Left: "room-42"}, tr)

	room, ok = m.Room("room-42")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, room.Members)

	tr, err = m.Disconnect(b)
	require.NoError(t, err)
	assert.Equal(t, Transition{Left: "room-42"}, tr)

	_, ok = m.Room("room-42")
	assert.False(t, ok, "room must be deleted once its last member disconnects")
	assert.Equal(t, 0, m.RoomCount())
}

func TestMatchmaker_SwitchRoomsCollectsOldRoom(t *testing.T) {
	m := NewMatchmaker()
	c := newTestSession("C")

	_, err := m.Join(c, "room-1")
	require.NoError(t, err)
	tr, err := m.Join(c, "room-2")
	require.NoError(t, err)
	assert.Equal(t, Transition{Left: "room-1", Joined: "room-2"}, tr)

	_, ok := m.Room("room-1")
	assert.False(t, ok)
	room, ok := m.Room("room-2")
	require.True(t, ok)
	assert.Equal(t, []string{"C"}, room.Members)
}

func TestMatchmaker_RejoinIsIdempotent(t *testing.T) {
	m := NewMatchmaker()
	a := newTestSession("A")

	_, err := m.Join(a, "x")
	require.NoError(t, err)
	tr, err := m.Join(a, "x")
	require.NoError(t, err)

	assert.False(t, tr.Changed())
	room, ok := m.Room("x")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, room.Members)
}

func TestMatchmaker_LeaveWhileUnassigned(t *testing.T) {
	m := NewMatchmaker()
	a := newTestSession("A")

	tr, err := m.Leave(a)
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.False(t, tr.Changed())

	tr, err = m.Disconnect(a)
	assert.NoError(t, err)
	assert.False(t, tr.Changed())
}

func TestMatchmaker_MissingRoomIsRepaired(t *testing.T) {
	m := NewMatchmaker()
	a := newTestSession("A")
	a.currentRoom = "ghost"

	_, err := m.Leave(a)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, inRoom := m.RoomOf(a)
	assert.False(t, inRoom, "session must be reset to Unassigned")

	a.currentRoom = "ghost"
	tr, err := m.Join(a, "real")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, "real", tr.Joined)
	room, ok := m.Room("real")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, room.Members)
}

func TestMatchmaker_SameUserTwoConnections(t *testing.T) {
	m := NewMatchmaker()
	first, second := newTestSession("A"), newTestSession("A")

	_, err := m.Join(first, "r")
	require.NoError(t, err)
	_, err = m.Join(second, "r")
	require.NoError(t, err)

	_, err = m.Leave(first)
	require.NoError(t, err)

	room, ok := m.Room("r")
	require.True(t, ok, "room stays while the second connection is still a member")
	assert.Equal(t, []string{"A"}, room.Members)
}

func TestMatchmaker_EmptyInstanceID(t *testing.T) {
	m := NewMatchmaker()
	_, err := m.Join(newTestSession("A"), "")
	assert.Error(t, err)
	assert.Equal(t, 0, m.RoomCount())
}

func TestMatchmaker_JoinOnClosedSession(t *testing.T) {
	m := NewMatchmaker()
	s := newTestSession("A")
	s.close()

	tr, err := m.Join(s, "late")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, tr.Changed())
	_, inRoom := m.RoomOf(s)
	assert.False(t, inRoom)
	assert.Equal(t, 0, m.RoomCount(), "a closed session must not create a room")
}

func TestMatchmaker_ConcurrentJoinsAndLeaves(t *testing.T) {
	m := NewMatchmaker()
	rooms := []string{"r1", "r2", "r3"}

	var wg sync.WaitGroup
	sessions := make([]*Session, 50)
	for i := range sessions {
		sessions[i] = newTestSession(fmt.Sprintf("u%d", i))
	}
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = m.Join(s, rooms[(i+j)%len(rooms)])
				if j%3 == 0 {
					_, _ = m.Leave(s)
				}
			}
			_, _ = m.Disconnect(s)
		}(i, s)
	}
	wg.Wait()

	assert.Equal(t, 0, m.RoomCount(), "every room must be collected once all sessions disconnect")
}

// checkInvariants asserts the one-room invariant for every session and the room GC
// invariant for the whole table.
func checkInvariants(t require.TestingT, m *Matchmaker, live []*Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expected := make(map[string]int)
	for _, s := range live {
		if s.currentRoom == "" {
			for id, room := range m.rooms.rooms {
				_, member := room.members[s.ID]
				require.False(t, member, "unassigned session %s is a member of %q", s.ID, id)
			}
			continue
		}
		room, ok := m.rooms.rooms[s.currentRoom]
		require.True(t, ok, "session points at missing room %q", s.currentRoom)
		_, member := room.members[s.ID]
		require.True(t, member, "session not in the members of its own room %q", s.currentRoom)
		expected[s.currentRoom]++
	}

	require.Equal(t, len(expected), len(m.rooms.rooms), "rooms exist iff some session is in them")
	for id, room := range m.rooms.rooms {
		require.NotEmpty(t, room.members, "empty room %q left in table", id)
		require.Equal(t, expected[id], len(room.members), "membership count of %q", id)
	}
}

func TestMatchmaker_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMatchmaker()
		rooms := []string{"r1", "r2", "r3", "r4"}
		users := []string{"alice", "bob", "carol"}

		n := rapid.IntRange(1, 6).Draw(t, "sessions")
		live := make([]*Session, n)
		for i := range live {
			live[i] = newTestSession(users[i%len(users)])
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			idx := rapid.IntRange(0, len(live)-1).Draw(t, "session")
			s := live[idx]

			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0, 1:
				room := rooms[rapid.IntRange(0, len(rooms)-1).Draw(t, "room")]
				before, _ := m.RoomOf(s)
				tr, err := m.Join(s, room)
				require.NoError(t, err)
				if before == room {
					require.False(t, tr.Changed())
				}
			case 2:
				_, inRoom := m.RoomOf(s)
				_, err := m.Leave(s)
				if inRoom {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, ErrNotInRoom)
				}
			case 3:
				_, err := m.Disconnect(s)
				require.NoError(t, err)
				live[idx] = newTestSession(s.Identity.UserID)
			}

			checkInvariants(t, m, live)
		}
	})
}

func TestHub_Properties_WithDispatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := New(zap.NewNop(), NopRecorder{}, 4)
		frames := []string{
			`{"type":"joingame","instance_id":"a"}`,
			`{"type":"joingame","instance_id":"b"}`,
			`{"type":"leaveroom"}`,
			`{"type":"pong"}`,
			`{"type":"bogus"}`,
			`{"type":"joingame"}`,
			`not json`,
		}

		live := []*Session{
			h.Connect(identity.Identity{UserID: "u1"}),
			h.Connect(identity.Identity{UserID: "u2"}),
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			idx := rapid.IntRange(0, len(live)-1).Draw(t, "session")
			if rapid.IntRange(0, 9).Draw(t, "disconnect") == 0 {
				h.Disconnect(live[idx])
				live[idx] = h.Connect(live[idx].Identity)
			} else {
				h.Dispatch(live[idx], []byte(frames[rapid.IntRange(0, len(frames)-1).Draw(t, "frame")]))
			}
			checkInvariants(t, h.Matchmaker(), live)
			require.Equal(t, len(live), h.Registry().Count())
		}
	})
}
