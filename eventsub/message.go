package eventsub

import (
	"encoding/json"
	"errors"
	"time"
)

// MessageType is the metadata.message_type of an EventSub frame.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageWelcome
	MessageKeepalive
	MessageNotification
	MessageReconnect
	MessageRevocation
)

var messageTypeNames = map[MessageType]string{
	MessageWelcome:      "session_welcome",
	MessageKeepalive:    "session_keepalive",
	MessageNotification: "notification",
	MessageReconnect:    "session_reconnect",
	MessageRevocation:   "revocation",
}

func (m MessageType) String() string {
	if s, ok := messageTypeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMessageType maps a wire name to a MessageType; unrecognised names map to MessageUnknown.
func ParseMessageType(s string) MessageType {
	for k, v := range messageTypeNames {
		if v == s {
			return k
		}
	}
	return MessageUnknown
}

// SubscriptionType is an EventSub subscription (event) kind.
type SubscriptionType int

const (
	SubscriptionUnknown SubscriptionType = iota
	SubscriptionStreamOnline
	SubscriptionStreamOffline
	SubscriptionChannelUpdate
)

func (s SubscriptionType) String() string {
	switch s {
	case SubscriptionStreamOnline:
		return "stream.online"
	case SubscriptionStreamOffline:
		return "stream.offline"
	case SubscriptionChannelUpdate:
		return "channel.update"
	default:
		return "unknown"
	}
}

// Version is the subscription version the notifier registers.
func (s SubscriptionType) Version() string {
	if s == SubscriptionChannelUpdate {
		return "2"
	}
	return "1"
}

// ParseSubscriptionType maps a wire name to a SubscriptionType.
func ParseSubscriptionType(s string) SubscriptionType {
	switch s {
	case "stream.online":
		return SubscriptionStreamOnline
	case "stream.offline":
		return SubscriptionStreamOffline
	case "channel.update":
		return SubscriptionChannelUpdate
	default:
		return SubscriptionUnknown
	}
}

// DefaultSubscriptions are registered on every new session.
var DefaultSubscriptions = []SubscriptionType{
	SubscriptionStreamOnline,
	SubscriptionStreamOffline,
	SubscriptionChannelUpdate,
}

// Metadata is the envelope header.
type Metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type,omitempty"`
	SubscriptionVersion string    `json:"subscription_version,omitempty"`
}

// Envelope is one EventSub WebSocket frame.
type Envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Type returns the classified message type.
func (e *Envelope) Type() MessageType { return ParseMessageType(e.Metadata.MessageType) }

// SessionPayload is the session object carried by welcome and reconnect frames.
type SessionPayload struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds *int   `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

// SubscriptionInfo is the subscription object carried by notification and revocation frames.
type SubscriptionInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Session is the server-assigned state of one connection.
type Session struct {
	ID               string
	KeepaliveTimeout time.Duration
}

// StreamOnlineEvent is the stream.online event body.
type StreamOnlineEvent struct {
	ID                   string    `json:"id"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// StreamOfflineEvent is the stream.offline event body.
type StreamOfflineEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// ChannelUpdateEvent is the channel.update (v2) event body.
type ChannelUpdateEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	Title                string `json:"title"`
	Language             string `json:"language"`
	CategoryID           string `json:"category_id"`
	CategoryName         string `json:"category_name"`
}

type sessionFrame struct {
	Session SessionPayload `json:"session"`
}

type notificationFrame struct {
	Subscription SubscriptionInfo `json:"subscription"`
	Event        json.RawMessage  `json:"event"`
}

// decodeEnvelope parses a text frame. Errors are *ProtocolError.
func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Op: "decode envelope", Err: err}
	}
	if env.Metadata.MessageType == "" {
		return nil, &ProtocolError{Op: "decode envelope", Err: errors.New("missing metadata.message_type")}
	}
	return &env, nil
}

func decodeSession(env *Envelope) (SessionPayload, error) {
	var f sessionFrame
	if err := json.Unmarshal(env.Payload, &f); err != nil {
		return SessionPayload{}, &ProtocolError{Op: "decode " + env.Metadata.MessageType, Err: err}
	}
	return f.Session, nil
}

func decodeNotification(env *Envelope) (notificationFrame, error) {
	var f notificationFrame
	if err := json.Unmarshal(env.Payload, &f); err != nil {
		return notificationFrame{}, &ProtocolError{Op: "decode notification", Err: err}
	}
	return f, nil
}
