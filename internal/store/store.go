// Package store is the durable channel/stream mapping: a thin
// database/sql layer over Postgres with hand-written queries.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/kzh/stitch/internal/model"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps a connection pool and the prepared query surface for
// channels and streams.
type Store struct {
	db *sql.DB
}

// Config tunes the underlying connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open connects to databaseURL, applies cfg to the pool, pings, and
// runs pending migrations.
func Open(databaseURL string, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// TrackChannel upserts by name; on conflict only updated_at changes.
func (s *Store) TrackChannel(ctx context.Context, name, displayName, channelID string) (model.Channel, error) {
	now := time.Now().UTC()
	var c model.Channel
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO channels (name, display_name, channel_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, name, display_name, channel_id, created_at, updated_at
	`, name, displayName, channelID, now, now)
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.ChannelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Channel{}, fmt.Errorf("tracking channel %q: %w", name, err)
	}
	return c, nil
}

// UntrackChannel deletes by name. A missing row is not an error.
func (s *Store) UntrackChannel(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE name = $1`, name); err != nil {
		return fmt.Errorf("untracking channel %q: %w", name, err)
	}
	return nil
}

// ListChannels returns every tracked channel.
func (s *Store) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, channel_id, created_at, updated_at FROM channels
	`)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		var c model.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.ChannelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning channel row: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = sql.ErrNoRows

// GetChannelByName fails with ErrNotFound if absent.
func (s *Store) GetChannelByName(ctx context.Context, name string) (model.Channel, error) {
	var c model.Channel
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, channel_id, created_at, updated_at
		FROM channels WHERE name = $1
	`, name)
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.ChannelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Channel{}, fmt.Errorf("getting channel by name %q: %w", name, err)
	}
	return c, nil
}

// UpdateChannel is used when the upstream reports a renamed account.
func (s *Store) UpdateChannel(ctx context.Context, channelID, name, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name = $1, display_name = $2 WHERE channel_id = $3
	`, name, displayName, channelID)
	if err != nil {
		return fmt.Errorf("updating channel %q: %w", channelID, err)
	}
	return nil
}

// StartStream inserts a new live stream row with its initial event.
func (s *Store) StartStream(ctx context.Context, streamID, channelID, title, category string, messageID int64, startedAt time.Time) error {
	events, err := json.Marshal([]model.UpdateEvent{{Title: title, Category: category, Timestamp: startedAt}})
	if err != nil {
		return fmt.Errorf("marshaling initial event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO streams (stream_id, channel_id, title, started_at, last_updated, message_id, events)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, streamID, channelID, title, startedAt, startedAt, messageID, events)
	if err != nil {
		return fmt.Errorf("starting stream %q: %w", streamID, err)
	}
	return nil
}

// UpdateStream sets title and atomically appends event to the events array.
func (s *Store) UpdateStream(ctx context.Context, streamID, title string, event model.UpdateEvent) error {
	payload, err := json.Marshal([]model.UpdateEvent{event})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE streams
		SET title = $1, events = events || $2::jsonb
		WHERE stream_id = $3
	`, title, payload, streamID)
	if err != nil {
		return fmt.Errorf("updating stream %q: %w", streamID, err)
	}
	return nil
}

// EndStream sets ended_at and title only if the stream is still live;
// idempotent for already-ended rows.
func (s *Store) EndStream(ctx context.Context, streamID, finalTitle string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE streams
		SET ended_at = $1, title = $2
		WHERE stream_id = $3 AND ended_at IS NULL
	`, endedAt, finalTitle, streamID)
	if err != nil {
		return fmt.Errorf("ending stream %q: %w", streamID, err)
	}
	return nil
}

// DeleteStream hard-deletes a stream row, used on untrack during a live stream.
func (s *Store) DeleteStream(ctx context.Context, streamID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM streams WHERE stream_id = $1`, streamID)
	if err != nil {
		return fmt.Errorf("deleting stream %q: %w", streamID, err)
	}
	return nil
}

// GetStreams returns all currently live streams when channelID is empty,
// otherwise every row for that channel.
func (s *Store) GetStreams(ctx context.Context, channelID string) ([]model.Stream, error) {
	var arg interface{}
	if channelID != "" {
		arg = channelID
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, stream_id, title, started_at, ended_at, last_updated, message_id, events
		FROM streams
		WHERE channel_id = $1 OR ($1 IS NULL AND ended_at IS NULL)
		ORDER BY last_updated DESC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("getting streams: %w", err)
	}
	defer rows.Close()

	var streams []model.Stream
	for rows.Next() {
		stream, err := scanStreamRows(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStreamRows(row rowScanner) (model.Stream, error) {
	var s model.Stream
	var eventsJSON []byte
	if err := row.Scan(&s.ID, &s.ChannelID, &s.StreamID, &s.Title, &s.StartedAt, &s.EndedAt, &s.LastUpdated, &s.MessageID, &eventsJSON); err != nil {
		return model.Stream{}, fmt.Errorf("scanning stream row: %w", err)
	}
	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &s.Events); err != nil {
			return model.Stream{}, fmt.Errorf("unmarshaling events for stream %q: %w", s.StreamID, err)
		}
	}
	return s, nil
}
