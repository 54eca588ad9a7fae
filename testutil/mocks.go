// Package testutil holds test doubles shared across packages: a scripted Twitch
// server for the token and Helix endpoints, and a Postgres helper.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch OAuth and Helix API responses.
// Point TokenSource.TokenURL at TokenURL() and HelixClient.BaseURL at HelixURL().
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu            sync.Mutex
	subscriptions []map[string]interface{}
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// TokenURL is the mocked client-credentials endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// HelixURL is the mocked Helix base.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("login") != login {
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": []interface{}{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]string{{"id": userID, "login": login}},
		})
	})
}

// MockStreamsResponse adds a handler for /helix/streams endpoint. An empty
// slice reports the broadcaster as offline.
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	if streams == nil {
		streams = []map[string]interface{}{}
	}
	m.handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": streams})
	})
}

// MockSubscriptionsResponse adds a handler for POST /helix/eventsub/subscriptions
// answering every request with status and recording the decoded bodies.
func (m *MockTwitchServer) MockSubscriptionsResponse(status int) {
	m.handle("/helix/eventsub/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if err := json.Unmarshal(b, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.subscriptions = append(m.subscriptions, body)
		m.mu.Unlock()
		writeJSON(w, status, map[string]interface{}{"data": []interface{}{body}})
	})
}

// Subscriptions returns the subscription bodies received so far.
func (m *MockTwitchServer) Subscriptions() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, len(m.subscriptions))
	copy(out, m.subscriptions)
	return out
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}
