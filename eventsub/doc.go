// Package eventsub drives a Twitch EventSub WebSocket session.
//
// The Driver dials the EventSub endpoint, waits for session_welcome, registers
// the notifier's subscriptions through a Subscriber and then hands every
// notification to a Handler in delivery order. Frames are classified into the
// closed MessageType and SubscriptionType sets; anything unrecognised is logged
// and skipped so new event kinds never break the connection.
//
// Connection lifecycle:
//
//	Connecting -> SessionEstablished -> Streaming -> Closed
//
// Closed always leads back to a new connection: immediately to the
// server-supplied URL after session_reconnect (used once), otherwise after a
// fixed delay to the default URL. The read deadline is the negotiated keepalive
// window plus a margin; missing it ends the connection.
package eventsub
