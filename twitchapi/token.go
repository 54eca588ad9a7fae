package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/crimson-live/backend/telemetry"
)

const (
	// DefaultTokenURL is the Twitch OAuth token endpoint.
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

	refreshMargin     = 300 * time.Second
	minRefreshSleep   = 60 * time.Second
	refreshRetryDelay = 60 * time.Second
	refreshTimeout    = 15 * time.Second
)

// AccessToken is an app access token and its remaining lifetime at acquisition time.
type AccessToken struct {
	Value     string
	ExpiresIn time.Duration
}

// TokenSource fetches and holds a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat or user-scoped endpoints.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// TokenURL overrides DefaultTokenURL.
	TokenURL string
	Clock    clockwork.Clock

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	expiresIn time.Duration
}

func (ts *TokenSource) clock() clockwork.Clock {
	if ts.Clock != nil {
		return ts.Clock
	}
	return clockwork.NewRealClock()
}

// Acquire performs a client-credentials exchange and stores the resulting token.
// The previous token is left in place when the exchange fails.
func (ts *TokenSource) Acquire(ctx context.Context) (AccessToken, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return AccessToken{}, &AuthError{Op: "acquire", Err: errors.New("missing client id/secret for twitch app token")}
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		ae := &AuthError{Op: "acquire", Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		return AccessToken{}, ae
	}
	if tok.AccessToken == "" {
		return AccessToken{}, &AuthError{Op: "acquire", Err: errors.New("empty access_token in twitch response")}
	}

	expiresIn, ok := wireExpiresIn(tok)
	if !ok && !tok.Expiry.IsZero() {
		expiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	ts.mu.Lock()
	ts.token = tok.AccessToken
	ts.expiresIn = expiresIn
	ts.expiresAt = ts.clock().Now().Add(expiresIn)
	ts.mu.Unlock()
	return AccessToken{Value: tok.AccessToken, ExpiresIn: expiresIn}, nil
}

// wireExpiresIn reads expires_in as sent by Twitch. clientcredentials only
// turns it into an absolute Expiry on the real clock.
func wireExpiresIn(tok *oauth2.Token) (time.Duration, bool) {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		secs = f
	default:
		if tok.ExpiresIn > 0 {
			return time.Duration(tok.ExpiresIn) * time.Second, true
		}
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Current returns the latest token without touching the network. It is empty
// until the first successful Acquire.
func (ts *TokenSource) Current() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.token
}

// ExpiresAt returns the expiry of the held token; zero before the first Acquire.
func (ts *TokenSource) ExpiresAt() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.expiresAt
}

// Get returns the current token, acquiring one first if none is held yet or
// the held one has already expired.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && ts.clock().Now().Before(ts.expiresAt) {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	at, err := ts.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return at.Value, nil
}

// SetToken seeds the source with a known token (tests, warm restarts).
func (ts *TokenSource) SetToken(token string, expiresAt time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = token
	ts.expiresAt = expiresAt
	ts.expiresIn = expiresAt.Sub(ts.clock().Now())
}

func (ts *TokenSource) lifetime() time.Duration {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.expiresIn
}

// NextRefreshDelay returns how long to sleep before refreshing a token that is
// valid for expiresIn: five minutes early, but never sooner than one minute.
func NextRefreshDelay(expiresIn time.Duration) time.Duration {
	d := expiresIn - refreshMargin
	if d < minRefreshSleep {
		return minRefreshSleep
	}
	return d
}

// RunRefresher re-acquires the token shortly before it expires until ctx is
// cancelled. Failures are logged and retried after a fixed backoff; the old
// token stays in place meanwhile.
func (ts *TokenSource) RunRefresher(ctx context.Context) {
	clock := ts.clock()
	delay := NextRefreshDelay(ts.lifetime())
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(delay):
		}
		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		at, err := ts.Acquire(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("twitch token refresh failed, retrying", slog.Duration("retry_in", refreshRetryDelay), slog.Any("err", err), slog.String("component", "twitch_auth"))
			telemetry.RecordTokenRefresh(false)
			delay = refreshRetryDelay
			continue
		}
		telemetry.RecordTokenRefresh(true)
		delay = NextRefreshDelay(at.ExpiresIn)
		slog.Info("twitch token refreshed", slog.Duration("expires_in", at.ExpiresIn), slog.Duration("next_refresh", delay), slog.String("component", "twitch_auth"))
	}
}
