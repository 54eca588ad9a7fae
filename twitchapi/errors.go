package twitchapi

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports a failed app token exchange or refresh.
type AuthError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitch auth %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitch auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a failed Helix call (stream lookup, subscription create, ...).
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("helix %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("helix %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsConflict reports whether err is an upstream 409, which Helix returns when an
// identical EventSub subscription already exists.
func IsConflict(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == http.StatusConflict
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
