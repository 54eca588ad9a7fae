package eventsub

import (
	"context"
	"log/slog"

	"github.com/onnwee/crimson-live/backend/telemetry"
	"github.com/onnwee/crimson-live/backend/twitchapi"
)

// subscriptionCreator is the subset of twitchapi.HelixClient used by Registrar.
type subscriptionCreator interface {
	CreateEventSubSubscription(ctx context.Context, sr twitchapi.SubscriptionRequest) error
}

// SubscriptionResult is the outcome of registering one subscription type.
type SubscriptionResult struct {
	Type SubscriptionType
	Err  error
}

// Registrar registers the notifier's subscriptions against a session.
type Registrar struct {
	client subscriptionCreator
	types  []SubscriptionType
}

// NewRegistrar returns a Registrar for DefaultSubscriptions.
func NewRegistrar(client subscriptionCreator) *Registrar {
	return &Registrar{client: client, types: DefaultSubscriptions}
}

// Subscribe creates each subscription with an independent request. A failed
// type is logged and reported in the results; the others are kept, so the
// session runs with whatever subset succeeded. A 409 Conflict means the
// subscription already exists and counts as success.
func (r *Registrar) Subscribe(ctx context.Context, sessionID, broadcasterID string) []SubscriptionResult {
	log := telemetry.LoggerWithCorr(ctx)
	results := make([]SubscriptionResult, 0, len(r.types))
	for _, typ := range r.types {
		err := r.client.CreateEventSubSubscription(ctx, twitchapi.SubscriptionRequest{
			Type:          typ.String(),
			Version:       typ.Version(),
			BroadcasterID: broadcasterID,
			SessionID:     sessionID,
		})
		if err != nil && twitchapi.IsConflict(err) {
			log.Info("eventsub subscription already exists", slog.String("type", typ.String()))
			err = nil
		}
		if err != nil {
			log.Error("eventsub subscribe failed", slog.String("type", typ.String()), slog.Any("err", err))
		} else {
			log.Info("eventsub subscribed", slog.String("type", typ.String()), slog.String("version", typ.Version()))
		}
		telemetry.RecordSubscription(typ.String(), err == nil)
		results = append(results, SubscriptionResult{Type: typ, Err: err})
	}
	return results
}
