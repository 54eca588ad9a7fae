// Package db provides the Postgres connection, schema migrations and the live-event audit log.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/crimson-live/backend/live"
)

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DB_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// LiveEventStore appends coordinator transitions to live_events. It implements
// live.EventRecorder; rows are history only and never used to restore state.
type LiveEventStore struct{ DB *sql.DB }

var _ live.EventRecorder = (*LiveEventStore)(nil)

// RecordLiveEvent inserts one transition.
func (s *LiveEventStore) RecordLiveEvent(ctx context.Context, ev live.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO live_events (kind, channel_id, message_id, title, category, duplicate, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.Kind, nullable(ev.Ref.ChannelID), nullable(ev.Ref.MessageID), nullable(ev.Title), nullable(ev.Category), ev.Duplicate, at.UTC())
	if err != nil {
		return fmt.Errorf("insert live event: %w", err)
	}
	return nil
}

// RecentLiveEvents returns up to limit transitions, newest first.
func (s *LiveEventStore) RecentLiveEvents(ctx context.Context, limit int) ([]live.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT kind, COALESCE(channel_id, ''), COALESCE(message_id, ''), COALESCE(title, ''), COALESCE(category, ''), duplicate, occurred_at
		 FROM live_events ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query live events: %w", err)
	}
	defer rows.Close()
	var out []live.Event
	for rows.Next() {
		var ev live.Event
		if err := rows.Scan(&ev.Kind, &ev.Ref.ChannelID, &ev.Ref.MessageID, &ev.Title, &ev.Category, &ev.Duplicate, &ev.At); err != nil {
			return nil, fmt.Errorf("scan live event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
