// Package discord implements live.ChatPlatform on top of discordgo: announcement
// posts and edits, @everyone send-permission toggling for the live chat channel,
// and the bot's presence line.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/crimson-live/backend/live"
)

// session is the subset of *discordgo.Session the client uses.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	UpdateStreamingStatus(idle int, name string, url string) error
	UpdateWatchStatus(idle int, name string) error
}

// Client is a live.ChatPlatform backed by a Discord bot session.
type Client struct {
	s session
}

var _ live.ChatPlatform = (*Client)(nil)

// Open creates a bot session for token and connects the gateway, which is
// needed for presence updates.
func Open(token string) (*Client, *discordgo.Session, error) {
	if token == "" {
		return nil, nil, errors.New("discord token not set")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord gateway ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)), slog.String("component", "discord"))
	})
	if err := dg.Open(); err != nil {
		return nil, nil, fmt.Errorf("discord gateway open: %w", err)
	}
	return New(dg), dg, nil
}

// New wraps an existing session.
func New(s session) *Client { return &Client{s: s} }

// PostAnnouncement sends the go-live message to channelID.
func (c *Client) PostAnnouncement(ctx context.Context, channelID string, a live.Announcement) (live.MessageRef, error) {
	msg, err := c.s.ChannelMessageSendComplex(channelID, messageSend(a), discordgo.WithContext(ctx))
	if err != nil {
		return live.MessageRef{}, fmt.Errorf("send announcement to %s: %w", channelID, err)
	}
	return live.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// EditAnnouncement replaces the embed of a previously posted announcement.
func (c *Client) EditAnnouncement(ctx context.Context, ref live.MessageRef, a live.Announcement) error {
	if _, err := c.s.ChannelMessageEditComplex(messageEdit(ref, a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit announcement %s: %w", ref.MessageID, err)
	}
	return nil
}

// SetChannelLocked denies (locked) or allows SEND_MESSAGES for @everyone,
// whose role id equals the guild id.
func (c *Client) SetChannelLocked(ctx context.Context, channelID string, locked bool) error {
	ch, err := c.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	if ch.GuildID == "" {
		return fmt.Errorf("channel %s is not a guild channel", channelID)
	}
	var current *discordgo.PermissionOverwrite
	for _, po := range ch.PermissionOverwrites {
		if po.ID == ch.GuildID && po.Type == discordgo.PermissionOverwriteTypeRole {
			current = po
			break
		}
	}
	allow, deny := lockOverwrite(current, locked)
	if err := c.s.ChannelPermissionSet(channelID, ch.GuildID, discordgo.PermissionOverwriteTypeRole, allow, deny, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("set permissions on %s: %w", channelID, err)
	}
	slog.Info("channel lock state updated", slog.String("channel_id", channelID), slog.Bool("locked", locked), slog.String("component", "discord"))
	return nil
}

// SetPresence updates the bot activity over the gateway.
func (c *Client) SetPresence(_ context.Context, p live.Presence) error {
	var err error
	switch p.Kind {
	case live.PresenceStreaming:
		err = c.s.UpdateStreamingStatus(0, p.Text, p.URL)
	default:
		err = c.s.UpdateWatchStatus(0, p.Text)
	}
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}
