package live

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/crimson-live/backend/eventsub"
	"github.com/onnwee/crimson-live/backend/telemetry"
	"github.com/onnwee/crimson-live/backend/twitchapi"
)

const defaultPresence = "the crimson tide"

// ChatPlatform is the set of side effects the coordinator performs.
type ChatPlatform interface {
	PostAnnouncement(ctx context.Context, channelID string, a Announcement) (MessageRef, error)
	EditAnnouncement(ctx context.Context, ref MessageRef, a Announcement) error
	SetChannelLocked(ctx context.Context, channelID string, locked bool) error
	SetPresence(ctx context.Context, p Presence) error
}

// StreamFetcher looks up the current stream for enrichment.
type StreamFetcher interface {
	GetStream(ctx context.Context, userID string) (*twitchapi.StreamSnapshot, error)
}

// Event is one coordinator transition, handed to an EventRecorder.
type Event struct {
	Kind      string     `json:"kind"` // online, offline, update
	Ref       MessageRef `json:"ref"`
	Title     string     `json:"title,omitempty"`
	Category  string     `json:"category,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
	At        time.Time  `json:"at"`
}

// EventRecorder persists transitions for later inspection.
type EventRecorder interface {
	RecordLiveEvent(ctx context.Context, ev Event) error
}

// Options configures a Coordinator.
type Options struct {
	BroadcasterID     string
	AnnounceChannelID string
	ChatChannelID     string // optional companion channel locked while offline
	RoleID            string // optional role mentioned on go-live
	ChannelURL        string
	DefaultPresence   string
	Recorder          EventRecorder
	Now               func() time.Time
}

// Coordinator holds the announcement reference and applies notifications.
type Coordinator struct {
	platform ChatPlatform
	streams  StreamFetcher
	opts     Options

	mu  sync.RWMutex
	ref *MessageRef
}

var _ eventsub.Handler = (*Coordinator)(nil)

// NewCoordinator returns an idle Coordinator.
func NewCoordinator(platform ChatPlatform, streams StreamFetcher, opts Options) *Coordinator {
	if opts.DefaultPresence == "" {
		opts.DefaultPresence = defaultPresence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{platform: platform, streams: streams, opts: opts}
}

// Current returns the recorded announcement, or nil when idle.
func (c *Coordinator) Current() *MessageRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ref == nil {
		return nil
	}
	ref := *c.ref
	return &ref
}

// replace records ref and reports whether one was already recorded.
func (c *Coordinator) replace(ref MessageRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := c.ref != nil
	c.ref = &ref
	return had
}

// take clears and returns the recorded announcement.
func (c *Coordinator) take() *MessageRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := c.ref
	c.ref = nil
	return ref
}

// StreamOnline posts the go-live announcement.
func (c *Coordinator) StreamOnline(ctx context.Context, ev eventsub.StreamOnlineEvent) {
	ctx, span := telemetry.StartSpan(ctx, "live", "live.stream_online", attribute.String("broadcaster", ev.BroadcasterUserLogin))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "live"))

	snap := c.fetch(ctx, log)
	title := ""
	if snap == nil {
		name := ev.BroadcasterUserName
		if name == "" {
			name = ev.BroadcasterUserLogin
		}
		if name != "" {
			title = name + " is live"
		}
	}
	a := liveAnnouncement(snap, title, "", c.opts.ChannelURL, c.opts.RoleID, c.opts.Now())

	duplicate := false
	ref, err := c.platform.PostAnnouncement(ctx, c.opts.AnnounceChannelID, a)
	telemetry.RecordChatAction("post", err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("failed to post go-live announcement", slog.Any("err", err))
	} else {
		if duplicate = c.replace(ref); duplicate {
			telemetry.RecordDuplicateGoLive()
			log.Warn("go-live received while an announcement was recorded; posted a new one", slog.String("message_id", ref.MessageID))
		} else {
			log.Info("go-live announcement posted", slog.String("message_id", ref.MessageID))
		}
		telemetry.SetLive(true)
	}

	c.lockChat(ctx, log, false)
	presenceTitle := strings.TrimPrefix(a.Title, livePrefix)
	c.setPresence(ctx, log, Presence{Kind: PresenceStreaming, Text: presenceTitle, URL: c.opts.ChannelURL})
	c.record(ctx, log, Event{Kind: "online", Ref: ref, Title: presenceTitle, Category: fieldValue(a, "Game"), Duplicate: duplicate})
	telemetry.SetSpanSuccess(span)
}

// StreamOffline marks the announcement ended and clears it.
func (c *Coordinator) StreamOffline(ctx context.Context, ev eventsub.StreamOfflineEvent) {
	ctx, span := telemetry.StartSpan(ctx, "live", "live.stream_offline", attribute.String("broadcaster", ev.BroadcasterUserLogin))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "live"))

	// cleared before the edit so a failed edit cannot block the next cycle
	ref := c.take()
	telemetry.SetLive(false)
	if ref != nil {
		err := c.platform.EditAnnouncement(ctx, *ref, endedAnnouncement(c.opts.ChannelURL, c.opts.Now()))
		telemetry.RecordChatAction("edit", err == nil)
		if err != nil {
			telemetry.RecordError(span, err)
			log.Error("failed to edit go-live announcement", slog.String("message_id", ref.MessageID), slog.Any("err", err))
		} else {
			log.Info("go-live announcement updated to ended", slog.String("message_id", ref.MessageID))
		}
	} else {
		log.Info("stream offline with no recorded announcement")
	}

	c.lockChat(ctx, log, true)
	c.setPresence(ctx, log, Presence{Kind: PresenceWatching, Text: c.opts.DefaultPresence})
	rec := Event{Kind: "offline"}
	if ref != nil {
		rec.Ref = *ref
	}
	c.record(ctx, log, rec)
	telemetry.SetSpanSuccess(span)
}

// ChannelUpdate refreshes the recorded announcement. It does nothing when idle.
func (c *Coordinator) ChannelUpdate(ctx context.Context, ev eventsub.ChannelUpdateEvent) {
	ref := c.Current()
	if ref == nil {
		slog.Debug("channel update while idle, ignoring", slog.String("component", "live"), slog.String("title", ev.Title))
		return
	}
	ctx, span := telemetry.StartSpan(ctx, "live", "live.channel_update", attribute.String("title", ev.Title))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "live"))

	title := ev.Title
	if title == "" {
		title = untitledStream
	}
	category := ev.CategoryName
	if category == "" {
		category = unknownCategory
	}
	snap := c.fetch(ctx, log)
	a := liveAnnouncement(snap, title, category, c.opts.ChannelURL, c.opts.RoleID, c.opts.Now())

	err := c.platform.EditAnnouncement(ctx, *ref, a)
	telemetry.RecordChatAction("edit", err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("failed to update go-live announcement", slog.String("message_id", ref.MessageID), slog.Any("err", err))
	} else {
		log.Info("go-live announcement updated", slog.String("title", title), slog.String("category", category))
	}
	c.setPresence(ctx, log, Presence{Kind: PresenceStreaming, Text: title, URL: c.opts.ChannelURL})
	c.record(ctx, log, Event{Kind: "update", Ref: *ref, Title: title, Category: category})
	telemetry.SetSpanSuccess(span)
}

func (c *Coordinator) fetch(ctx context.Context, log *slog.Logger) *twitchapi.StreamSnapshot {
	if c.streams == nil || c.opts.BroadcasterID == "" {
		return nil
	}
	snap, err := c.streams.GetStream(ctx, c.opts.BroadcasterID)
	if err != nil {
		log.Warn("stream info unavailable, announcing without enrichment", slog.Any("err", err))
		return nil
	}
	if snap == nil {
		log.Warn("stream not yet visible in helix, announcing without enrichment")
	}
	return snap
}

func (c *Coordinator) lockChat(ctx context.Context, log *slog.Logger, locked bool) {
	if c.opts.ChatChannelID == "" {
		return
	}
	action := "unlock"
	if locked {
		action = "lock"
	}
	err := c.platform.SetChannelLocked(ctx, c.opts.ChatChannelID, locked)
	telemetry.RecordChatAction(action, err == nil)
	if err != nil {
		log.Error("failed to "+action+" live chat channel", slog.String("channel_id", c.opts.ChatChannelID), slog.Any("err", err))
	}
}

func (c *Coordinator) setPresence(ctx context.Context, log *slog.Logger, p Presence) {
	err := c.platform.SetPresence(ctx, p)
	telemetry.RecordChatAction("presence", err == nil)
	if err != nil {
		log.Error("failed to set presence", slog.String("text", p.Text), slog.Any("err", err))
	}
}

func (c *Coordinator) record(ctx context.Context, log *slog.Logger, ev Event) {
	if c.opts.Recorder == nil {
		return
	}
	ev.At = c.opts.Now()
	if err := c.opts.Recorder.RecordLiveEvent(ctx, ev); err != nil {
		log.Warn("failed to record live event", slog.String("kind", ev.Kind), slog.Any("err", err))
	}
}

func fieldValue(a Announcement, name string) string {
	for _, f := range a.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}
