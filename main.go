// Command backend is the CrimsonX live notifier. It:
//   - Loads configuration and initializes structured logging.
//   - Acquires a Twitch app token and keeps it refreshed.
//   - Opens the Discord bot session used for announcements, chat locks and presence.
//   - Optionally connects to Postgres for the live-event audit log.
//   - Runs the EventSub WebSocket driver that feeds the live coordinator.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /events and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/crimson-live/backend/config"
	"github.com/onnwee/crimson-live/backend/db"
	"github.com/onnwee/crimson-live/backend/discord"
	"github.com/onnwee/crimson-live/backend/eventsub"
	"github.com/onnwee/crimson-live/backend/live"
	"github.com/onnwee/crimson-live/backend/server"
	"github.com/onnwee/crimson-live/backend/telemetry"
	"github.com/onnwee/crimson-live/backend/twitchapi"
)

const serviceVersion = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Config. Logging stays on the slog default until LOG_LEVEL/LOG_FORMAT are validated.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, cfg.LogLevel, cfg.LogFormat)))
	slog.Info("logger initialized", slog.String("level", cfg.LogLevel), slog.String("format", cfg.LogFormat))

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("crimson-live", serviceVersion, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Twitch app token (client credentials). Without it neither Helix nor EventSub work.
	tokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, TokenURL: cfg.TwitchTokenURL}
	actx, cancel := context.WithTimeout(ctx, 15*time.Second)
	tok, err := tokens.Acquire(actx)
	cancel()
	if err != nil {
		slog.Error("twitch app token fetch failed", slog.Any("err", err), slog.String("component", "twitch_auth"))
		os.Exit(1)
	}
	if len(tok.Value) > 6 {
		slog.Info("twitch app token acquired", slog.String("tail", "***"+tok.Value[len(tok.Value)-6:]), slog.Duration("expires_in", tok.ExpiresIn), slog.String("component", "twitch_auth"))
	}
	go tokens.RunRefresher(ctx)

	helix := &twitchapi.HelixClient{AppTokenSource: tokens, ClientID: cfg.TwitchClientID, BaseURL: cfg.TwitchHelixURL}

	broadcasterID := cfg.TwitchChannelID
	if !cfg.HasBroadcasterID() {
		rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		broadcasterID, err = helix.GetUserID(rctx, cfg.TwitchChannel)
		cancel()
		if err != nil {
			slog.Error("failed to resolve twitch broadcaster id", slog.String("login", cfg.TwitchChannel), slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("resolved twitch broadcaster id", slog.String("login", cfg.TwitchChannel), slog.String("id", broadcasterID))
	}

	// Discord
	chatClient, dg, err := discord.Open(cfg.DiscordToken)
	if err != nil {
		slog.Error("failed to open discord session", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := dg.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()

	deps := server.Deps{Token: tokens}
	opts := live.Options{
		BroadcasterID:     broadcasterID,
		AnnounceChannelID: cfg.LiveChannelID,
		ChatChannelID:     cfg.LiveChatChannelID,
		RoleID:            cfg.LiveRoleID,
		ChannelURL:        live.ChannelURL(cfg.TwitchUsername),
		DefaultPresence:   cfg.PresenceDefault,
	}

	// DB (optional audit log)
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		store := &db.LiveEventStore{DB: database}
		opts.Recorder = store
		deps.Events = store
		deps.DB = database
	} else {
		slog.Info("DB_DSN not set, live event audit log disabled")
	}

	coord := live.NewCoordinator(chatClient, helix, opts)
	driver := eventsub.NewDriver(cfg.EventSubURL, broadcasterID, eventsub.NewRegistrar(helix), coord)
	driver.ReconnectDelay = cfg.EventSubReconnectDelay
	deps.Driver = driver
	deps.Live = coord

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		driver.Run(ctx)
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, deps)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	<-driverDone
}

// newLogHandler builds the process handler from validated LOG_LEVEL and LOG_FORMAT values.
func newLogHandler(w io.Writer, level, format string) slog.Handler {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
