package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/onnwee/crimson-live/backend/eventsub"
)

// HandleHealthz responds to liveness probes. The process is alive as long as it can serve.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the EventSub session is streaming and the
// optional database answers.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"eventsub", func() error {
			if h.deps.Driver == nil {
				return errors.New("eventsub driver not started")
			}
			if st := h.deps.Driver.State(); st != eventsub.StateStreaming {
				return fmt.Errorf("eventsub session %s", st)
			}
			return nil
		}},
		{"twitch_token", func() error {
			if h.deps.Token == nil {
				return nil
			}
			exp := h.deps.Token.ExpiresAt()
			if exp.IsZero() {
				return errors.New("no app token acquired")
			}
			if !h.deps.Now().Before(exp) {
				return errors.New("app token expired")
			}
			return nil
		}},
		{"database", func() error {
			if h.deps.DB == nil {
				return nil
			}
			return h.deps.DB.PingContext(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
