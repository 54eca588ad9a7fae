package eventsub

import (
	"errors"
	"net"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		in   string
		want MessageType
	}{
		{"session_welcome", MessageWelcome},
		{"session_keepalive", MessageKeepalive},
		{"notification", MessageNotification},
		{"session_reconnect", MessageReconnect},
		{"revocation", MessageRevocation},
		{"session_something_new", MessageUnknown},
		{"", MessageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseMessageType(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.want != MessageUnknown {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
	assert.Equal(t, "unknown", MessageUnknown.String())
}

func TestParseSubscriptionType(t *testing.T) {
	tests := []struct {
		in      string
		want    SubscriptionType
		version string
	}{
		{"stream.online", SubscriptionStreamOnline, "1"},
		{"stream.offline", SubscriptionStreamOffline, "1"},
		{"channel.update", SubscriptionChannelUpdate, "2"},
		{"channel.follow", SubscriptionUnknown, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseSubscriptionType(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.version, got.Version())
		})
	}
	assert.Len(t, DefaultSubscriptions, 3)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"metadata":{"message_id":"m1","message_type":"session_welcome","message_timestamp":"2024-10-15T14:30:00Z"},"payload":{"session":{"id":"abc","keepalive_timeout_seconds":10}}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageWelcome, env.Type())
	assert.Equal(t, "m1", env.Metadata.MessageID)

	sp, err := decodeSession(env)
	require.NoError(t, err)
	assert.Equal(t, "abc", sp.ID)
	require.NotNil(t, sp.KeepaliveTimeoutSeconds)
	assert.Equal(t, 10, *sp.KeepaliveTimeoutSeconds)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"metadata":{}}`, `[]`} {
		_, err := decodeEnvelope([]byte(raw))
		var pe *ProtocolError
		assert.True(t, errors.As(err, &pe), "input %q", raw)
	}
}

func TestDecodeNotification(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"metadata":{"message_type":"notification","subscription_type":"channel.update"},"payload":{"subscription":{"type":"channel.update","version":"2"},"event":{"title":"Foo","category_name":"Chess"}}}`))
	require.NoError(t, err)
	nf, err := decodeNotification(env)
	require.NoError(t, err)
	assert.Equal(t, "channel.update", nf.Subscription.Type)
	assert.JSONEq(t, `{"title":"Foo","category_name":"Chess"}`, string(nf.Event))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestReconnectReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "closed"},
		{"server reconnect", errReconnectRequested, "server_reconnect"},
		{"keepalive timeout", &TransportError{Op: "read", Err: timeoutErr{}}, "keepalive_timeout"},
		{"dial", &TransportError{Op: "dial", Err: errors.New("refused")}, "dial_error"},
		{"close frame", &TransportError{Op: "read", Err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}, "server_close"},
		{"abnormal close", &TransportError{Op: "read", Err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}}, "server_close"},
		{"read", &TransportError{Op: "read", Err: errors.New("reset")}, "read_error"},
		{"protocol", &ProtocolError{Op: "decode", Err: errors.New("bad")}, "protocol_error"},
		{"other", errors.New("x"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReconnectReason(tt.err))
		})
	}
}
