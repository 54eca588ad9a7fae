// Package config loads environment variables and provides a typed Config used across the service.
// It applies defaults so the binary can run locally with minimal setup; call Validate before
// starting the notifier to enforce the required credentials and ids.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTwitchUsername is the channel slug used for stream links when TWITCH_USERNAME is unset.
const DefaultTwitchUsername = "0xDC143C"

type Config struct {
	// Discord
	DiscordToken      string `validate:"required"`
	LiveChannelID     string `validate:"required,numeric"`
	LiveChatChannelID string `validate:"omitempty,numeric"`
	LiveRoleID        string `validate:"omitempty,numeric"`
	PresenceDefault   string

	// Twitch
	TwitchClientID     string `validate:"required"`
	TwitchClientSecret string `validate:"required"`
	TwitchChannelID    string `validate:"omitempty,numeric"`
	TwitchChannel      string `validate:"required_without=TwitchChannelID"`
	TwitchUsername     string `validate:"required"`
	TwitchTokenURL     string `validate:"omitempty,url"`
	TwitchHelixURL     string `validate:"omitempty,url"`

	// EventSub
	EventSubURL            string `validate:"required,url"`
	EventSubReconnectDelay time.Duration

	// Database (optional audit log)
	DBDsn string

	// HTTP / observability
	HTTPAddr  string `validate:"required"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// Load reads environment variables and applies defaults. It only fails on values that cannot be
// parsed; missing credentials are reported by Validate.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.LiveChannelID = os.Getenv("LIVE_CHANNEL_ID")
	cfg.LiveChatChannelID = os.Getenv("LIVE_CHAT_CHANNEL_ID")
	cfg.LiveRoleID = os.Getenv("LIVE_ROLE_ID")
	cfg.PresenceDefault = getenvDefault("PRESENCE_DEFAULT", "the crimson tide")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchChannelID = os.Getenv("TWITCH_CHANNEL_ID")
	cfg.TwitchChannel = strings.ToLower(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")))
	cfg.TwitchUsername = getenvDefault("TWITCH_USERNAME", DefaultTwitchUsername)
	cfg.TwitchTokenURL = os.Getenv("TWITCH_TOKEN_URL")
	cfg.TwitchHelixURL = os.Getenv("TWITCH_HELIX_URL")

	cfg.EventSubURL = getenvDefault("EVENTSUB_URL", "wss://eventsub.wss.twitch.tv/ws")
	cfg.EventSubReconnectDelay = 5 * time.Second
	if v := os.Getenv("EVENTSUB_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EVENTSUB_RECONNECT_DELAY: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid EVENTSUB_RECONNECT_DELAY: must be positive, got %s", d)
		}
		cfg.EventSubReconnectDelay = d
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))

	return cfg, nil
}

// Validate checks required fields and id formats.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", envName(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// HasBroadcasterID reports whether the broadcaster id is known without a Helix lookup.
func (c *Config) HasBroadcasterID() bool { return c.TwitchChannelID != "" }

var envNames = map[string]string{
	"DiscordToken":       "DISCORD_TOKEN",
	"LiveChannelID":      "LIVE_CHANNEL_ID",
	"LiveChatChannelID":  "LIVE_CHAT_CHANNEL_ID",
	"LiveRoleID":         "LIVE_ROLE_ID",
	"TwitchClientID":     "TWITCH_CLIENT_ID",
	"TwitchClientSecret": "TWITCH_CLIENT_SECRET",
	"TwitchChannelID":    "TWITCH_CHANNEL_ID",
	"TwitchChannel":      "TWITCH_CHANNEL",
	"TwitchUsername":     "TWITCH_USERNAME",
	"TwitchTokenURL":     "TWITCH_TOKEN_URL",
	"TwitchHelixURL":     "TWITCH_HELIX_URL",
	"EventSubURL":        "EVENTSUB_URL",
	"HTTPAddr":           "HTTP_ADDR",
	"LogLevel":           "LOG_LEVEL",
	"LogFormat":          "LOG_FORMAT",
}

func envName(field string) string {
	if n, ok := envNames[field]; ok {
		return n
	}
	return field
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
