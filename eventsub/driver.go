package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/crimson-live/backend/telemetry"
)

// DefaultURL is the Twitch EventSub WebSocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultKeepaliveMargin  = 5 * time.Second
	defaultInitialKeepalive = 30 * time.Second
	controlWriteWait        = 5 * time.Second
)

// State is the lifecycle state of the driver's current connection.
type State int

const (
	StateConnecting State = iota
	StateSessionEstablished
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSessionEstablished:
		return "session_established"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives decoded notifications, one at a time, in delivery order.
type Handler interface {
	StreamOnline(ctx context.Context, ev StreamOnlineEvent)
	StreamOffline(ctx context.Context, ev StreamOfflineEvent)
	ChannelUpdate(ctx context.Context, ev ChannelUpdateEvent)
}

// Subscriber registers subscriptions for a freshly welcomed session.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID, broadcasterID string) []SubscriptionResult
}

// Driver owns the EventSub WebSocket connection. Run keeps one connection
// alive at a time; every way a connection can end (keepalive timeout, read
// error, close frame, reconnect directive) goes back through Run.
type Driver struct {
	URL           string
	BroadcasterID string
	Subscriber    Subscriber
	Handler       Handler
	Dialer        *websocket.Dialer

	ReconnectDelay   time.Duration
	KeepaliveMargin  time.Duration
	InitialKeepalive time.Duration

	mu           sync.RWMutex
	state        State
	session      Session
	reconnectURL string
}

// NewDriver returns a Driver with default timings.
func NewDriver(url, broadcasterID string, sub Subscriber, h Handler) *Driver {
	if url == "" {
		url = DefaultURL
	}
	return &Driver{
		URL:              url,
		BroadcasterID:    broadcasterID,
		Subscriber:       sub,
		Handler:          h,
		Dialer:           websocket.DefaultDialer,
		ReconnectDelay:   defaultReconnectDelay,
		KeepaliveMargin:  defaultKeepaliveMargin,
		InitialKeepalive: defaultInitialKeepalive,
		state:            StateClosed,
	}
}

// State returns the current connection state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Session returns the current session; zero when not connected.
func (d *Driver) Session() Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	if s == StateClosed {
		d.session = Session{}
	}
	d.mu.Unlock()
	telemetry.SetStreaming(s == StateStreaming)
}

func (d *Driver) setSession(s Session) {
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
}

// takeReconnectURL returns and clears a server-directed endpoint.
func (d *Driver) takeReconnectURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.reconnectURL
	d.reconnectURL = ""
	return u
}

func (d *Driver) setReconnectURL(u string) {
	d.mu.Lock()
	d.reconnectURL = u
	d.mu.Unlock()
}

func (d *Driver) pendingRedirect() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reconnectURL != ""
}

// Run connects and reconnects until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	delay := d.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	for {
		target := d.takeReconnectURL()
		if target == "" {
			target = d.URL
		}
		err := d.runConnection(ctx, target)
		d.setState(StateClosed)
		if ctx.Err() != nil {
			slog.Info("eventsub driver stopped", slog.String("component", "eventsub"))
			return
		}
		reason := ReconnectReason(err)
		telemetry.RecordReconnect(reason)
		if errors.Is(err, errReconnectRequested) && d.pendingRedirect() {
			slog.Info("eventsub reconnecting to server-supplied endpoint", slog.String("component", "eventsub"))
			continue
		}
		slog.Warn("eventsub connection closed, reconnecting",
			slog.String("reason", reason), slog.Duration("delay", delay), slog.Any("err", err), slog.String("component", "eventsub"))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (d *Driver) runConnection(ctx context.Context, target string) error {
	log := slog.Default().With(slog.String("conn_id", uuid.NewString()), slog.String("component", "eventsub"))
	d.setState(StateConnecting)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("eventsub close", slog.Any("err", err))
		}
	}()
	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	d.setState(StateSessionEstablished)
	log.Info("connected to eventsub", slog.String("url", target))

	conn.SetPingHandler(func(data string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	margin := d.KeepaliveMargin
	keepalive := d.InitialKeepalive + margin
	if d.InitialKeepalive <= 0 {
		keepalive = defaultInitialKeepalive + margin
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(keepalive)); err != nil {
			return &TransportError{Op: "set deadline", Err: err}
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}
		if mt != websocket.TextMessage {
			continue
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			log.Warn("skipping malformed eventsub frame", slog.Any("err", err))
			continue
		}
		telemetry.RecordFrame(env.Type().String())
		fctx := telemetry.WithCorrelation(ctx, env.Metadata.MessageID)
		flog := log.With(slog.String("corr", env.Metadata.MessageID))

		switch env.Type() {
		case MessageWelcome:
			sp, err := decodeSession(env)
			if err == nil && sp.ID == "" {
				err = &ProtocolError{Op: "decode session_welcome", Err: errors.New("missing session id")}
			}
			if err != nil {
				flog.Warn("skipping malformed welcome", slog.Any("err", err))
				continue
			}
			ka := defaultInitialKeepalive
			if sp.KeepaliveTimeoutSeconds != nil {
				ka = time.Duration(*sp.KeepaliveTimeoutSeconds) * time.Second
			}
			keepalive = ka + margin
			d.setSession(Session{ID: sp.ID, KeepaliveTimeout: keepalive})
			flog.Info("eventsub session established", slog.String("session_id", sp.ID), slog.Duration("keepalive", keepalive))
			if d.Subscriber != nil {
				d.Subscriber.Subscribe(fctx, sp.ID, d.BroadcasterID)
			}
			d.setState(StateStreaming)

		case MessageKeepalive:
			// only resets the read deadline

		case MessageNotification:
			if d.State() != StateStreaming {
				flog.Warn("notification before session welcome, dropping", slog.String("subscription_type", env.Metadata.SubscriptionType))
				continue
			}
			d.dispatch(fctx, flog, env)

		case MessageReconnect:
			sp, err := decodeSession(env)
			if err != nil {
				flog.Warn("malformed reconnect frame, using default endpoint", slog.Any("err", err))
			} else if sp.ReconnectURL != "" {
				d.setReconnectURL(sp.ReconnectURL)
			}
			flog.Info("eventsub requested reconnect", slog.String("reconnect_url", sp.ReconnectURL))
			return errReconnectRequested

		case MessageRevocation:
			telemetry.RecordRevocation()
			nf, err := decodeNotification(env)
			if err != nil {
				flog.Warn("malformed revocation frame", slog.Any("err", err))
				continue
			}
			flog.Warn("eventsub subscription revoked", slog.String("type", nf.Subscription.Type), slog.String("reason", nf.Subscription.Status))

		default:
			flog.Warn("unknown eventsub message type", slog.String("message_type", env.Metadata.MessageType))
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, log *slog.Logger, env *Envelope) {
	nf, err := decodeNotification(env)
	if err != nil {
		log.Warn("skipping malformed notification", slog.Any("err", err))
		return
	}
	typName := env.Metadata.SubscriptionType
	if typName == "" {
		typName = nf.Subscription.Type
	}
	kind := ParseSubscriptionType(typName)
	telemetry.RecordNotification(kind.String())
	if kind == SubscriptionUnknown || d.Handler == nil {
		log.Warn("unhandled eventsub notification", slog.String("event_type", typName))
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "eventsub", "eventsub.notification", attribute.String("subscription_type", typName))
	defer span.End()

	var decodeErr error
	telemetry.TimeFunc(telemetry.NotificationDuration, func() {
		switch kind {
		case SubscriptionStreamOnline:
			var ev StreamOnlineEvent
			if decodeErr = json.Unmarshal(nf.Event, &ev); decodeErr == nil {
				log.Info("stream went live")
				d.Handler.StreamOnline(ctx, ev)
			}
		case SubscriptionStreamOffline:
			var ev StreamOfflineEvent
			if decodeErr = json.Unmarshal(nf.Event, &ev); decodeErr == nil {
				log.Info("stream went offline")
				d.Handler.StreamOffline(ctx, ev)
			}
		case SubscriptionChannelUpdate:
			var ev ChannelUpdateEvent
			if decodeErr = json.Unmarshal(nf.Event, &ev); decodeErr == nil {
				d.Handler.ChannelUpdate(ctx, ev)
			}
		}
	})
	if decodeErr != nil {
		err := &ProtocolError{Op: "decode " + typName + " event", Err: decodeErr}
		telemetry.RecordError(span, err)
		log.Warn("skipping malformed notification event", slog.Any("err", err))
		return
	}
	telemetry.SetSpanSuccess(span)
}
