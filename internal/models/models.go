// Package models defines the data structures that map to database tables.
// GORM uses these structs to generate SQL and map rows back to Go values.
//
// The lobby itself keeps rooms and sessions in memory only. The single table here is an
// append-only activity log of what happened to each connection; it is never read back to
// rebuild lobby state after a restart.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventKind names one step in a connection's life.
type SessionEventKind string

const (
	SessionEventConnected    SessionEventKind = "connected"    // Admission succeeded and the session was registered
	SessionEventJoined       SessionEventKind = "joined"       // The session entered a room
	SessionEventLeft         SessionEventKind = "left"         // The session left a room (explicitly, by switching, or on disconnect)
	SessionEventDisconnected SessionEventKind = "disconnected" // The transport closed and the session was destroyed
)

// SessionEvent is one row of the activity log.
type SessionEvent struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID   uuid.UUID        `gorm:"type:uuid;not null;index"`                   // Connection the event belongs to
	UserID      string           `gorm:"not null;index"`                             // Discord user id from the identity token
	DisplayName string           `gorm:"not null"`                                   // Display name at connect time
	Kind        SessionEventKind `gorm:"type:session_event_kind;not null"`           // What happened
	InstanceID  *string          // Room key for joined/left events; NULL otherwise
	CreatedAt   time.Time        // GORM sets this on insert
}
