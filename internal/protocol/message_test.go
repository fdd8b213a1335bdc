package protocol_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentd187/activity-lobby/internal/protocol"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    protocol.Inbound
		wantErr error
	}{
		{"join", `{"type":"joingame","instance_id":"room-42"}`, protocol.JoinGame{InstanceID: "room-42"}, nil},
		{"join inner spaces kept", `{"type":"joingame","instance_id":"room 1"}`, protocol.JoinGame{InstanceID: "room 1"}, nil},
		{"join leading space", `{"type":"joingame","instance_id":" room-1"}`, nil, protocol.ErrMissingInstanceID},
		{"join trailing space", `{"type":"joingame","instance_id":"room-1\t"}`, nil, protocol.ErrMissingInstanceID},
		{"leave", `{"type":"leaveroom"}`, protocol.LeaveRoom{}, nil},
		{"pong", `{"type":"pong"}`, protocol.Pong{}, nil},
		{"extra fields ignored", `{"type":"pong","at":123}`, protocol.Pong{}, nil},
		{"not json", `hello`, nil, protocol.ErrMalformed},
		{"array", `[1,2]`, nil, protocol.ErrMalformed},
		{"no type", `{"instance_id":"x"}`, nil, protocol.ErrMalformed},
		{"numeric type", `{"type":5}`, nil, protocol.ErrMalformed},
		{"bogus type", `{"type":"bogus"}`, nil, protocol.ErrUnknownType},
		{"ping is server-only", `{"type":"ping"}`, nil, protocol.ErrUnknownType},
		{"join without id", `{"type":"joingame"}`, nil, protocol.ErrMissingInstanceID},
		{"join blank id", `{"type":"joingame","instance_id":"   "}`, nil, protocol.ErrMissingInstanceID},
		{"join numeric id", `{"type":"joingame","instance_id":42}`, nil, protocol.ErrMissingInstanceID},
		{"join control chars", `{"type":"joingame","instance_id":"a\u0000b"}`, nil, protocol.ErrMissingInstanceID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.Decode([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidInstanceID_Length(t *testing.T) {
	assert.True(t, protocol.ValidInstanceID(strings.Repeat("a", protocol.MaxInstanceIDLen)))
	assert.False(t, protocol.ValidInstanceID(strings.Repeat("a", protocol.MaxInstanceIDLen+1)))
}

func TestEncodePing(t *testing.T) {
	data, err := protocol.Encode(protocol.Ping{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}
