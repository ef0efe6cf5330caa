// Package model holds the persistent and runtime shapes shared across
// the store, webhook, and control-plane packages.
package model

import "time"

// Channel is a tracked broadcaster: the durable name <-> upstream id mapping.
type Channel struct {
	ID          int32     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	ChannelID   string    `json:"channel_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateEvent is one entry in a Stream's ordered history.
type UpdateEvent struct {
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream is the persistent record of one broadcast, live or ended.
type Stream struct {
	ID          int32         `json:"id"`
	ChannelID   string        `json:"channel_id"`
	StreamID    string        `json:"stream_id"`
	Title       string        `json:"title"`
	StartedAt   time.Time     `json:"started_at"`
	LastUpdated time.Time     `json:"last_updated"`
	MessageID   int64         `json:"message_id"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Events      []UpdateEvent `json:"events"`
}
