package hub

import (
	"errors"
	"fmt"
	"sync" // sync.RWMutex lets many readers (broadcasts, counts) share the session map

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/identity"
	"github.com/trentd187/activity-lobby/internal/protocol"
)

var (
	// ErrSessionClosed is returned when sending to, or joining with, a session that has
	// been deregistered.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned when a session's outbound queue has no room left.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Registry is the live set of authenticated sessions.
// All methods are safe for concurrent use.
type Registry struct {
	log    *zap.Logger
	buffer int // outbound queue length given to every new session

	// mu guards sessions only. Registration and removal take the write lock; broadcasts
	// and counts take the read lock, so a keepalive tick never blocks other readers.
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates an empty Registry whose sessions queue up to buffer outbound frames.
func NewRegistry(log *zap.Logger, buffer int) *Registry {
	// An unbuffered channel would make every non-blocking send fail, so 1 is the floor.
	if buffer < 1 {
		buffer = 1
	}
	return &Registry{
		log:      log,
		buffer:   buffer,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Register creates and stores a new session for id with no current room.
func (r *Registry) Register(id identity.Identity) *Session {
	// The session is built outside the lock; only the map insert needs it.
	s := newSession(id, r.buffer)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s
}

// Deregister removes s from the live set and closes its outbound channel.
// It returns false if s was already deregistered.
func (r *Registry) Deregister(s *Session) bool {
	r.mu.Lock()
	_, ok := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	// Closing the outbound channel tells the connection's write pump to finish.
	// Session.close is itself idempotent, so a second Deregister is harmless.
	s.close()
	return ok
}

// Send encodes msg and queues it for s. A failure only concerns s.
func (r *Registry) Send(s *Session, msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return s.enqueue(data)
}

// BroadcastAll queues msg for every registered session and returns how many accepted it.
// Sessions whose send fails are logged and skipped.
func (r *Registry) BroadcastAll(msg protocol.Outbound) int {
	// Encode once; every session gets the same bytes.
	data, err := protocol.Encode(msg)
	if err != nil {
		r.log.Error("encoding broadcast", zap.Error(err))
		return 0
	}

	delivered := 0
	// Sessions() copies the map under the read lock, so the sends below run without
	// holding it and a session deregistering mid-broadcast just reports ErrSessionClosed.
	for _, s := range r.Sessions() {
		if err := s.enqueue(data); err != nil {
			// A full or closed queue only affects that one session; keep going.
			r.log.Warn("skipping session in broadcast",
				zap.Stringer("session_id", s.ID),
				zap.String("user_id", s.Identity.UserID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Sessions returns a snapshot of the live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
