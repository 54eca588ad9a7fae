package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
)

// SubscriptionRequest describes one EventSub subscription bound to a WebSocket session.
type SubscriptionRequest struct {
	Type          string
	Version       string
	BroadcasterID string
	SessionID     string
}

type subscriptionBody struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport struct {
		Method    string `json:"method"`
		SessionID string `json:"session_id"`
	} `json:"transport"`
}

// CreateEventSubSubscription registers a websocket-transport subscription.
// A 409 Conflict comes back as an *UpstreamError; see IsConflict.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, sr SubscriptionRequest) error {
	var body subscriptionBody
	body.Type = sr.Type
	body.Version = sr.Version
	body.Condition = map[string]string{"broadcaster_user_id": sr.BroadcasterID}
	body.Transport.Method = "websocket"
	body.Transport.SessionID = sr.SessionID
	b, err := json.Marshal(body)
	if err != nil {
		return &UpstreamError{Op: "create subscription", Err: err}
	}
	_, err = hc.do(ctx, "create subscription "+sr.Type, http.MethodPost, "/eventsub/subscriptions", nil, b)
	return err
}
