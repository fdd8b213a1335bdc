// Package hub coordinates live lobby sessions: the Session Registry, the Room Table and the
// Matchmaking Engine that moves sessions between rooms, plus the Keepalive broadcaster.
//
// Usage:
//
//	h := hub.New(logger, hub.NopRecorder{}, 32)
//	go hub.NewKeepalive(h.Registry(), 5*time.Second, logger).Run(ctx)
//
//	s := h.Connect(identity)   // after admission
//	h.Dispatch(s, frame)       // for every inbound frame, in order
//	h.Disconnect(s)            // exactly once the transport is gone
//	h.DisconnectAll()          // on server shutdown
//
// Rooms and sessions live in memory only and are lost on restart.
package hub

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/identity"
	"github.com/trentd187/activity-lobby/internal/models"
	"github.com/trentd187/activity-lobby/internal/protocol"
)

// ActivityRecorder receives lifecycle events for the activity log. Record must not block.
// *database.ActivityLog implements it; NopRecorder is used when no database is configured.
type ActivityRecorder interface {
	Record(ev models.SessionEvent)
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Record implements ActivityRecorder.
func (NopRecorder) Record(models.SessionEvent) {}

// Hub ties the registry and the matchmaker together behind the three connection events.
// It holds no lock of its own: the Registry and the Matchmaker each guard their own state.
type Hub struct {
	log        *zap.Logger
	recorder   ActivityRecorder
	registry   *Registry
	matchmaker *Matchmaker
	now        func() time.Time // swapped in tests to pin pong timestamps
}

// New creates a Hub. sendBuffer is the per-session outbound queue length.
func New(log *zap.Logger, recorder ActivityRecorder, sendBuffer int) *Hub {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Hub{
		log:        log,
		recorder:   recorder,
		registry:   NewRegistry(log, sendBuffer),
		matchmaker: NewMatchmaker(),
		now:        time.Now,
	}
}

// Registry returns the session registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Matchmaker returns the matchmaking engine.
func (h *Hub) Matchmaker() *Matchmaker { return h.matchmaker }

// Connect registers a session for a freshly admitted connection.
// The new session starts Unassigned: it is in no room until it sends joingame.
func (h *Hub) Connect(id identity.Identity) *Session {
	s := h.registry.Register(id)
	h.sessionLogger(s).Info("session connected", zap.Int("sessions", h.registry.Count()))
	h.record(s, models.SessionEventConnected, "")
	return s
}

// Dispatch decodes one inbound frame from s and applies it. Frames that fail to decode are
// dropped and logged; the connection is never affected.
func (h *Hub) Dispatch(s *Session, raw []byte) {
	log := h.sessionLogger(s)

	// --- Step 1: decode ---
	// Malformed JSON, an unknown type or a bad instance id all end here. Only a prefix
	// of the payload is logged so a junk frame cannot flood the log.
	msg, err := protocol.Decode(raw)
	if err != nil {
		log.Warn("dropping inbound message", zap.Error(err), zap.ByteString("payload", truncate(raw, 256)))
		return
	}

	// --- Step 2: apply ---
	// The inbound set is closed, so this switch is exhaustive; default only guards
	// against a new message type being added to protocol without a case here.
	switch m := msg.(type) {
	case protocol.JoinGame:
		tr, err := h.matchmaker.Join(s, m.InstanceID)
		switch {
		case errors.Is(err, ErrSessionClosed):
			// The connection is already being torn down; the frame arrived too late.
			log.Debug("ignoring join on closed session", zap.String("instance_id", m.InstanceID))
			return
		case err != nil:
			log.Warn("room table inconsistency during join", zap.String("instance_id", m.InstanceID), zap.Error(err))
		}
		if !tr.Changed() {
			log.Debug("already in room", zap.String("instance_id", m.InstanceID))
		}
		h.apply(s, tr)
	case protocol.LeaveRoom:
		tr, err := h.matchmaker.Leave(s)
		switch {
		case errors.Is(err, ErrNotInRoom):
			// Not an error for the client: leaving while Unassigned is simply a no-op.
			log.Warn("leave requested while not in a room")
		case err != nil:
			log.Warn("room table inconsistency during leave", zap.Error(err))
		}
		h.apply(s, tr)
	case protocol.Pong:
		s.touchPong(h.now())
		log.Debug("pong received")
	default:
		log.Warn("unhandled inbound message", zap.Any("message", m))
	}
}

// Disconnect removes s from the registry and releases the room it held. It is safe to
// call more than once; only the first call records the disconnect.
func (h *Hub) Disconnect(s *Session) {
	log := h.sessionLogger(s)

	// --- Step 1: close the session ---
	// Deregistering first closes the session, so a joingame racing with this call is
	// refused by Matchmaker.Join instead of re-creating a room after step 2.
	first := h.registry.Deregister(s)

	// --- Step 2: release the room ---
	// Runs on every call; on a repeat call the session is already Unassigned and this
	// is a no-op.
	tr, err := h.matchmaker.Disconnect(s)
	if err != nil {
		log.Warn("room table inconsistency during disconnect", zap.Error(err))
	}
	h.apply(s, tr)

	if !first {
		return
	}
	log.Info("session disconnected", zap.Int("sessions", h.registry.Count()))
	h.record(s, models.SessionEventDisconnected, "")
}

// DisconnectAll disconnects every live session and returns how many there were. The server
// calls it on shutdown: upgraded connections are hijacked from the HTTP server, so stopping
// the server alone never runs their cleanup.
func (h *Hub) DisconnectAll() int {
	sessions := h.registry.Sessions()
	for _, s := range sessions {
		h.Disconnect(s)
	}
	return len(sessions)
}

// apply logs and records the room changes in tr. A leave is always recorded before the
// join it made room for.
func (h *Hub) apply(s *Session, tr Transition) {
	if tr.Left != "" {
		h.sessionLogger(s).Info("left room", zap.String("instance_id", tr.Left))
		h.record(s, models.SessionEventLeft, tr.Left)
	}
	if tr.Joined != "" {
		h.sessionLogger(s).Info("joined room", zap.String("instance_id", tr.Joined))
		h.record(s, models.SessionEventJoined, tr.Joined)
	}
}

func (h *Hub) record(s *Session, kind models.SessionEventKind, instanceID string) {
	ev := models.SessionEvent{
		SessionID:   s.ID,
		UserID:      s.Identity.UserID,
		DisplayName: s.Identity.DisplayName,
		Kind:        kind,
		CreatedAt:   h.now(),
	}
	// InstanceID is a nullable column: only room events carry one.
	if instanceID != "" {
		ev.InstanceID = &instanceID
	}
	h.recorder.Record(ev)
}

// sessionLogger tags every line with the session and user it concerns.
func (h *Hub) sessionLogger(s *Session) *zap.Logger {
	return h.log.With(
		zap.Stringer("session_id", s.ID),
		zap.String("user_id", s.Identity.UserID),
	)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
