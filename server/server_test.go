package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/crimson-live/backend/eventsub"
	"github.com/onnwee/crimson-live/backend/live"
)

type fakeDriver struct {
	state   eventsub.State
	session eventsub.Session
}

func (d fakeDriver) State() eventsub.State     { return d.state }
func (d fakeDriver) Session() eventsub.Session { return d.session }

type fakeLive struct{ ref *live.MessageRef }

func (l fakeLive) Current() *live.MessageRef { return l.ref }

type fakeToken struct{ exp time.Time }

func (t fakeToken) ExpiresAt() time.Time { return t.exp }

type fakeEvents struct {
	events []live.Event
	limit  int
	err    error
}

func (e *fakeEvents) RecentLiveEvents(_ context.Context, limit int) ([]live.Event, error) {
	e.limit = limit
	return e.events, e.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var testNow = time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)

func streamingDeps() Deps {
	return Deps{
		Driver: fakeDriver{state: eventsub.StateStreaming, session: eventsub.Session{ID: "sess-1", KeepaliveTimeout: 15 * time.Second}},
		Live:   fakeLive{ref: &live.MessageRef{ChannelID: "111", MessageID: "900"}},
		Token:  fakeToken{exp: testNow.Add(time.Hour)},
		Now:    func() time.Time { return testNow },
	}
}

func serve(t *testing.T, deps Deps, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	NewMux(ctx, deps).ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	rr := serve(t, Deps{}, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Errorf("missing X-Correlation-ID header")
	}
}

func TestCorrelationHeaderReused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	NewMux(ctx, Deps{}).ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Deps)
		wantCode   int
		wantFailed string
	}{
		{"ready", func(*Deps) {}, http.StatusOK, ""},
		{"no driver", func(d *Deps) { d.Driver = nil }, http.StatusServiceUnavailable, "eventsub"},
		{"connecting", func(d *Deps) { d.Driver = fakeDriver{state: eventsub.StateConnecting} }, http.StatusServiceUnavailable, "eventsub"},
		{"no token", func(d *Deps) { d.Token = fakeToken{} }, http.StatusServiceUnavailable, "twitch_token"},
		{"expired token", func(d *Deps) { d.Token = fakeToken{exp: testNow.Add(-time.Second)} }, http.StatusServiceUnavailable, "twitch_token"},
		{"db down", func(d *Deps) { d.DB = fakePinger{err: errors.New("refused")} }, http.StatusServiceUnavailable, "database"},
		{"db up", func(d *Deps) { d.DB = fakePinger{} }, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := streamingDeps()
			tt.mutate(&deps)
			rr := serve(t, deps, http.MethodGet, "/readyz")
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d, body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantFailed == "" {
				if resp["status"] != "ready" {
					t.Errorf("status = %q, want ready", resp["status"])
				}
				return
			}
			if resp["status"] != "not_ready" || resp["failed_check"] != tt.wantFailed {
				t.Errorf("resp = %v, want failed_check=%s", resp, tt.wantFailed)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	rr := serve(t, streamingDeps(), http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "streaming" || resp.SessionID != "sess-1" || resp.KeepaliveSeconds != 15 {
		t.Errorf("unexpected session fields: %+v", resp)
	}
	if !resp.Live || resp.Announcement == nil || resp.Announcement.MessageID != "900" {
		t.Errorf("unexpected announcement: %+v", resp.Announcement)
	}
	if resp.TokenExpiresAt == nil || !resp.TokenExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("token_expires_at = %v", resp.TokenExpiresAt)
	}
}

func TestStatusIdle(t *testing.T) {
	rr := serve(t, Deps{Live: fakeLive{}}, http.MethodGet, "/status")
	if !strings.Contains(rr.Body.String(), `"state":"not_started"`) || !strings.Contains(rr.Body.String(), `"live":false`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "announcement") {
		t.Errorf("idle status must omit announcement: %s", rr.Body.String())
	}
}

func TestEvents(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rr := serve(t, Deps{}, http.MethodGet, "/events")
		if rr.Code != http.StatusNotFound {
			t.Errorf("code = %d, want 404", rr.Code)
		}
	})
	t.Run("lists", func(t *testing.T) {
		ev := &fakeEvents{events: []live.Event{{Kind: "online", Title: "Foo", At: testNow}}}
		rr := serve(t, Deps{Events: ev}, http.MethodGet, "/events?limit=5")
		if rr.Code != http.StatusOK {
			t.Fatalf("code = %d", rr.Code)
		}
		if ev.limit != 5 {
			t.Errorf("limit = %d, want 5", ev.limit)
		}
		var got []live.Event
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0].Kind != "online" || got[0].Title != "Foo" {
			t.Errorf("got %+v", got)
		}
	})
	t.Run("empty list is an array", func(t *testing.T) {
		rr := serve(t, Deps{Events: &fakeEvents{}}, http.MethodGet, "/events")
		if strings.TrimSpace(rr.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rr.Body.String())
		}
	})
	t.Run("error", func(t *testing.T) {
		rr := serve(t, Deps{Events: &fakeEvents{err: errors.New("db down")}}, http.MethodGet, "/events")
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("code = %d, want 500", rr.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	rr := serve(t, Deps{}, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Errorf("metrics output missing default collectors")
	}
}
