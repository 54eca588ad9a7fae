// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventSubFrames        *prometheus.CounterVec // label: message_type
	EventSubNotifications *prometheus.CounterVec // label: subscription_type
	EventSubReconnects    *prometheus.CounterVec // label: reason
	EventSubRevocations   prometheus.Counter
	SubscriptionResults   *prometheus.CounterVec // labels: subscription_type, result
	TokenRefreshes        *prometheus.CounterVec // label: result
	ChatActions           *prometheus.CounterVec // labels: action, result
	DuplicateGoLive       prometheus.Counter

	// Histograms (seconds)
	NotificationDuration prometheus.Observer

	// Gauges
	LiveGauge    prometheus.Gauge // 1=announcement recorded,0=idle
	SessionGauge prometheus.Gauge // 1=streaming,0=not connected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventSubFrames = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eventsub_frames_total", Help: "EventSub frames received by message type"}, []string{"message_type"})
		EventSubNotifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eventsub_notifications_total", Help: "EventSub notifications dispatched by subscription type"}, []string{"subscription_type"})
		EventSubReconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eventsub_reconnects_total", Help: "EventSub reconnects by reason"}, []string{"reason"})
		EventSubRevocations = promauto.NewCounter(prometheus.CounterOpts{Name: "eventsub_revocations_total", Help: "EventSub subscription revocations received"})
		SubscriptionResults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eventsub_subscribe_total", Help: "EventSub subscription attempts by type and result"}, []string{"subscription_type", "result"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitch_token_refresh_total", Help: "App token refresh attempts by result"}, []string{"result"})
		ChatActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "live_chat_actions_total", Help: "Chat platform side effects by action and result"}, []string{"action", "result"})
		DuplicateGoLive = promauto.NewCounter(prometheus.CounterOpts{Name: "live_duplicate_golive_total", Help: "Go-live notifications received while an announcement was already recorded"})
		NotificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "live_notification_duration_seconds", Help: "Time to fully handle one notification", Buckets: prometheus.DefBuckets})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_announcement_active", Help: "Announcement recorded=1 idle=0"})
		SessionGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "eventsub_session_streaming", Help: "EventSub session streaming=1 otherwise 0"})
	})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordFrame counts one received EventSub frame.
func RecordFrame(messageType string) {
	if EventSubFrames != nil {
		EventSubFrames.WithLabelValues(messageType).Inc()
	}
}

// RecordNotification counts one dispatched notification.
func RecordNotification(subscriptionType string) {
	if EventSubNotifications != nil {
		EventSubNotifications.WithLabelValues(subscriptionType).Inc()
	}
}

// RecordReconnect counts one connection teardown.
func RecordReconnect(reason string) {
	if EventSubReconnects != nil {
		EventSubReconnects.WithLabelValues(reason).Inc()
	}
}

// RecordRevocation counts one revocation frame.
func RecordRevocation() {
	if EventSubRevocations != nil {
		EventSubRevocations.Inc()
	}
}

// RecordSubscription counts one subscription create attempt.
func RecordSubscription(subscriptionType string, ok bool) {
	if SubscriptionResults != nil {
		SubscriptionResults.WithLabelValues(subscriptionType, result(ok)).Inc()
	}
}

// RecordTokenRefresh counts one background token refresh.
func RecordTokenRefresh(ok bool) {
	if TokenRefreshes != nil {
		TokenRefreshes.WithLabelValues(result(ok)).Inc()
	}
}

// RecordChatAction counts one chat platform call (post, edit, lock, unlock, presence).
func RecordChatAction(action string, ok bool) {
	if ChatActions != nil {
		ChatActions.WithLabelValues(action, result(ok)).Inc()
	}
}

// RecordDuplicateGoLive counts a go-live received while already live.
func RecordDuplicateGoLive() {
	if DuplicateGoLive != nil {
		DuplicateGoLive.Inc()
	}
}

// SetLive sets the live gauge.
func SetLive(live bool) {
	if LiveGauge != nil {
		if live {
			LiveGauge.Set(1)
		} else {
			LiveGauge.Set(0)
		}
	}
}

// SetStreaming sets the session gauge.
func SetStreaming(streaming bool) {
	if SessionGauge != nil {
		if streaming {
			SessionGauge.Set(1)
		} else {
			SessionGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
