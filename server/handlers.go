package server

import (
	"context"
	"time"

	"github.com/onnwee/crimson-live/backend/eventsub"
	"github.com/onnwee/crimson-live/backend/live"
)

// DriverStatus is the read side of the EventSub driver.
type DriverStatus interface {
	State() eventsub.State
	Session() eventsub.Session
}

// LiveStatus is the read side of the live coordinator.
type LiveStatus interface {
	Current() *live.MessageRef
}

// TokenStatus is the read side of the app token source.
type TokenStatus interface {
	ExpiresAt() time.Time
}

// EventLister returns recent live transitions.
type EventLister interface {
	RecentLiveEvents(ctx context.Context, limit int) ([]live.Event, error)
}

// Pinger checks a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the components the handlers report on. Any of them may be nil.
type Deps struct {
	Driver DriverStatus
	Live   LiveStatus
	Token  TokenStatus
	Events EventLister
	DB     Pinger
	Now    func() time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handlers{deps: deps, started: deps.Now()}
}
