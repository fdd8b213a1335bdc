// Package protocol defines the JSON control messages exchanged over a lobby connection.
//
// Every frame is a JSON object with a "type" discriminator. Inbound messages form a closed set
// (joingame, leaveroom, pong); anything else fails to decode and is dropped by the caller.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Message type discriminators.
const (
	TypeJoinGame  = "joingame"
	TypeLeaveRoom = "leaveroom"
	TypePing      = "ping"
	TypePong      = "pong"
)

const (
	// MaxInstanceIDLen bounds the externally supplied room key.
	MaxInstanceIDLen = 256
	// MaxFrameBytes bounds a single inbound frame. The largest valid message is a joingame
	// carrying a MaxInstanceIDLen id, so anything near this size is already garbage.
	MaxFrameBytes = 4096
)

var (
	// ErrMalformed means the frame was not a JSON object with a string "type".
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType means the frame carried a "type" outside the inbound set.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingInstanceID means a joingame frame had no usable instance_id.
	ErrMissingInstanceID = errors.New("missing or invalid instance_id")
)

// Inbound is a decoded client-to-server message. The set of implementations is closed.
type Inbound interface {
	inbound()
}

// JoinGame asks to move the session into the room keyed by InstanceID.
type JoinGame struct {
	InstanceID string `json:"instance_id"`
}

// LeaveRoom asks to leave the session's current room.
type LeaveRoom struct{}

// Pong answers a keepalive ping.
type Pong struct{}

func (JoinGame) inbound()  {}
func (LeaveRoom) inbound() {}
func (Pong) inbound()      {}

type envelope struct {
	Type *string `json:"type"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: no type field", ErrMalformed)
	}

	switch *env.Type {
	case TypeJoinGame:
		var msg JoinGame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingInstanceID, err)
		}
		// The id is an opaque room key: it is used exactly as sent, never normalized.
		if !ValidInstanceID(msg.InstanceID) {
			return nil, ErrMissingInstanceID
		}
		return msg, nil
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	case TypePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *env.Type)
	}
}

// ValidInstanceID reports whether id is usable as a room key: non-empty, bounded, free of
// control characters and without leading or trailing whitespace. Ids that differ only in
// surrounding spaces are rejected rather than silently merged into one room.
func ValidInstanceID(id string) bool {
	if id == "" || len(id) > MaxInstanceIDLen {
		return false
	}
	if strings.TrimSpace(id) != id {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Outbound is a server-to-client message.
type Outbound interface {
	outbound()
}

// Ping is the periodic keepalive probe.
type Ping struct{}

func (Ping) outbound() {}

// Encode serializes an outbound message with its type discriminator.
func Encode(msg Outbound) ([]byte, error) {
	switch msg.(type) {
	case Ping:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{TypePing})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}
