package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHelixClient_CreateEventSubSubscription(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/helix/eventsub/subscriptions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":[{"id":"sub-1","status":"enabled"}]}`))
	}))
	defer server.Close()

	client := newHelixClient(server.URL, seededTokenSource())
	err := client.CreateEventSubSubscription(context.Background(), SubscriptionRequest{
		Type:          "channel.update",
		Version:       "2",
		BroadcasterID: "1234",
		SessionID:     "sess-1",
	})
	if err != nil {
		t.Fatalf("CreateEventSubSubscription() error = %v", err)
	}
	if got["type"] != "channel.update" || got["version"] != "2" {
		t.Errorf("type/version = %v/%v", got["type"], got["version"])
	}
	cond, _ := got["condition"].(map[string]interface{})
	if cond["broadcaster_user_id"] != "1234" {
		t.Errorf("condition = %v", got["condition"])
	}
	tr, _ := got["transport"].(map[string]interface{})
	if tr["method"] != "websocket" || tr["session_id"] != "sess-1" {
		t.Errorf("transport = %v", got["transport"])
	}
}

func TestHelixClient_CreateEventSubSubscriptionConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"Conflict","status":409,"message":"subscription already exists"}`))
	}))
	defer server.Close()

	client := newHelixClient(server.URL, seededTokenSource())
	err := client.CreateEventSubSubscription(context.Background(), SubscriptionRequest{Type: "stream.online", Version: "1", BroadcasterID: "1", SessionID: "s"})
	if err == nil {
		t.Fatal("expected error for 409")
	}
	if !IsConflict(err) {
		t.Fatalf("IsConflict(%v) = false, want true", err)
	}
}
