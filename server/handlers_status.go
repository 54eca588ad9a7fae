package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/crimson-live/backend/live"
	"github.com/onnwee/crimson-live/backend/telemetry"
)

type statusResponse struct {
	State            string           `json:"state"`
	SessionID        string           `json:"session_id,omitempty"`
	KeepaliveSeconds float64          `json:"keepalive_seconds,omitempty"`
	Live             bool             `json:"live"`
	Announcement     *live.MessageRef `json:"announcement,omitempty"`
	TokenExpiresAt   *time.Time       `json:"token_expires_at,omitempty"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
}

// HandleStatus returns a JSON snapshot of the driver, announcement and token.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{State: "not_started"}
	if h.deps.Driver != nil {
		resp.State = h.deps.Driver.State().String()
		sess := h.deps.Driver.Session()
		resp.SessionID = sess.ID
		resp.KeepaliveSeconds = sess.KeepaliveTimeout.Seconds()
	}
	if h.deps.Live != nil {
		resp.Announcement = h.deps.Live.Current()
		resp.Live = resp.Announcement != nil
	}
	if h.deps.Token != nil {
		if exp := h.deps.Token.ExpiresAt(); !exp.IsZero() {
			exp = exp.UTC()
			resp.TokenExpiresAt = &exp
		}
	}
	resp.UptimeSeconds = int64(h.deps.Now().Sub(h.started).Seconds())
	writeJSON(w, http.StatusOK, resp)
}

// HandleEvents lists recent live transitions from the audit log (?limit=N, default 20).
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		http.Error(w, "event log disabled", http.StatusNotFound)
		return
	}
	events, err := h.deps.Events.RecentLiveEvents(r.Context(), parseIntQuery(r, "limit", 20))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list live events", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []live.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
