// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// using an app access token: user id resolution, stream lookups and EventSub
// subscription management.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultHelixURL is the Helix API base.
const DefaultHelixURL = "https://api.twitch.tv/helix"

const helixMaxRetries = 3

var helixBaseBackoff = 200 * time.Millisecond

// HelixClient provides the Helix calls the live notifier needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// BaseURL overrides DefaultHelixURL.
	BaseURL string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// do performs an authenticated Helix request. 429 and 5xx responses are retried
// with exponential backoff up to helixMaxRetries attempts; a 401 triggers a
// single token re-acquisition followed by one more attempt.
func (hc *HelixClient) do(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := hc.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	refreshed := false
	backoff := helixBaseBackoff
	for attempt := 1; ; attempt++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
		if err != nil {
			return nil, &UpstreamError{Op: op, Err: err}
		}
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.http().Do(req)
		if err != nil {
			return nil, &UpstreamError{Op: op, Err: err}
		}
		b, readErr := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
		if readErr != nil {
			return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: readErr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return b, nil
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			refreshed = true
			at, err := hc.AppTokenSource.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			tok = at.Value
			// the refreshed attempt does not consume a retry slot
			attempt--
			continue
		case retryableStatus(resp.StatusCode) && attempt < helixMaxRetries:
			wait := backoff
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
					wait = time.Duration(secs) * time.Second
				}
			}
			slog.Debug("helix retry", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt), slog.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return nil, &UpstreamError{Op: op, Err: ctx.Err()}
			case <-time.After(wait):
			}
			backoff *= 2
			continue
		default:
			return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(b)))}
		}
	}
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	b, err := hc.do(ctx, "get user", http.MethodGet, "/users", url.Values{"login": {login}}, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return "", &UpstreamError{Op: "get user", Err: err}
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// StreamSnapshot is the live stream metadata reported by Helix at one point in time.
type StreamSnapshot struct {
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	ThumbnailURL string    `json:"thumbnail_url"`
	StartedAt    time.Time `json:"started_at"`
}

// Thumbnail fills the {width}x{height} placeholders of the thumbnail template.
func (s *StreamSnapshot) Thumbnail(width, height int) string {
	if s == nil || s.ThumbnailURL == "" {
		return ""
	}
	r := strings.NewReplacer("{width}", strconv.Itoa(width), "{height}", strconv.Itoa(height))
	return r.Replace(s.ThumbnailURL)
}

// GetStream returns the current stream of the broadcaster with the given user
// id, or nil when the broadcaster is not live.
func (hc *HelixClient) GetStream(ctx context.Context, userID string) (*StreamSnapshot, error) {
	if userID == "" {
		return nil, &UpstreamError{Op: "get stream", Err: errors.New("userID empty")}
	}
	b, err := hc.do(ctx, "get stream", http.MethodGet, "/streams", url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []StreamSnapshot `json:"data"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, &UpstreamError{Op: "get stream", Err: err}
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	s := body.Data[0]
	return &s, nil
}
