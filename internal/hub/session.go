package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trentd187/activity-lobby/internal/identity"
)

// Session is the server-side state of one authenticated, live connection.
//
// Identity is fixed at admission. currentRoom belongs to the Matchmaker and is only read or
// written while holding Matchmaker.mu. The outbound channel is drained by the connection's
// write pump; mu guards closing it.
type Session struct {
	ID       uuid.UUID         // unique per connection; one user may hold several sessions
	Identity identity.Identity // the verified user behind the connection

	currentRoom string // guarded by Matchmaker.mu; "" means Unassigned

	// mu guards send, closed and lastPong. It is only ever held for a channel operation
	// or a field read, never across I/O.
	mu       sync.Mutex
	send     chan []byte // buffered queue of encoded frames for the write pump
	closed   bool        // set once by close; sends after that fail with ErrSessionClosed
	lastPong time.Time
}

func newSession(id identity.Identity, buffer int) *Session {
	return &Session{
		ID:       uuid.New(),
		Identity: id,
		send:     make(chan []byte, buffer),
	}
}

// Outbound returns the channel of encoded frames waiting to be written to the transport.
// It is closed when the session is deregistered.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// enqueue queues data without blocking.
func (s *Session) enqueue(data []byte) error {
	// Holding mu across the send means close cannot run between the closed check and
	// the channel send, so we never send on a closed channel.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	// select with a default case makes the send non-blocking: a slow client whose queue
	// is full loses this frame instead of stalling the caller.
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close closes the outbound channel once. It reports whether this call closed it.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.send)
	return true
}

// Closed reports whether the session has been deregistered.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touchPong(at time.Time) {
	s.mu.Lock()
	s.lastPong = at
	s.mu.Unlock()
}

// LastPong returns when the client last answered a keepalive, or the zero time if never.
func (s *Session) LastPong() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}
