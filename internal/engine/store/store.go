// Package store persists channels, videos, metric snapshots and transcripts.
//
// Two implementations share one schema: Postgres (pgx pool) for deployments
// and SQLite (modernc, pure Go) for single-node use and tests.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups and stats-only updates of unknown rows.
	ErrNotFound = errors.New("not found in store")
	// ErrConflict is returned when a concurrent writer raced on a natural key.
	// The write is safe to retry.
	ErrConflict = errors.New("persistence conflict")
)

// Channel is a stored YouTube channel.
type Channel struct {
	ID              int64     `json:"id"`
	YouTubeID       string    `json:"youtube_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	SubscriberCount int64     `json:"subscriber_count"`
	VideoCount      int64     `json:"video_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Video is a stored YouTube video. ViewCount/LikeCount are the latest snapshot.
type Video struct {
	ID              int64     `json:"id"`
	YouTubeID       string    `json:"youtube_id"`
	ChannelID       int64     `json:"channel_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MetricSnapshot is one append-only statistics sighting.
type MetricSnapshot struct {
	ID         int64     `json:"id"`
	VideoID    int64     `json:"video_id"`
	ViewCount  int64     `json:"view_count"`
	LikeCount  int64     `json:"like_count"`
	RunID      string    `json:"run_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Transcript is a stored caption text.
type Transcript struct {
	ID          int64     `json:"id"`
	VideoID     int64     `json:"video_id"`
	Content     string    `json:"content"`
	Language    string    `json:"language"`
	IsGenerated bool      `json:"is_generated"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelInput is the channel metadata written on every sighting.
type ChannelInput struct {
	YouTubeID       string
	Title           string
	Description     string
	SubscriberCount int64
	VideoCount      int64
}

// VideoInput is a fully merged video record ready to persist.
type VideoInput struct {
	YouTubeID       string
	ChannelID       int64
	Title           string
	Description     string
	PublishedAt     time.Time
	ViewCount       int64
	LikeCount       int64
	DurationSeconds int
}

// TranscriptInput is a transcript to create if the video has none.
type TranscriptInput struct {
	Content     string
	Language    string
	IsGenerated bool
}

// UpsertMode selects which columns an existing video row receives.
type UpsertMode int

const (
	// UpsertCrawl inserts all fields, or on an existing row updates channel,
	// title, description and statistics. Duration and published_at are never rewritten.
	UpsertCrawl UpsertMode = iota
	// UpsertStatsOnly updates view/like counts of an existing row and
	// returns ErrNotFound when the row does not exist.
	UpsertStatsOnly
)

func (m UpsertMode) String() string {
	if m == UpsertStatsOnly {
		return "stats_only"
	}
	return "crawl"
}

// Counts is a row count per table.
type Counts struct {
	Channels    int64 `json:"channels"`
	Videos      int64 `json:"videos"`
	Snapshots   int64 `json:"snapshots"`
	Transcripts int64 `json:"transcripts"`
}

// Store is the persistence contract of the ingestion pipeline.
type Store interface {
	UpsertChannel(ctx context.Context, in ChannelInput) (*Channel, error)
	GetChannel(ctx context.Context, youtubeID string) (*Channel, error)

	// UpsertVideo returns the row as written and whether it was inserted.
	UpsertVideo(ctx context.Context, in VideoInput, mode UpsertMode) (*Video, bool, error)
	GetVideo(ctx context.Context, youtubeID string) (*Video, error)

	AppendSnapshot(ctx context.Context, videoID, views, likes int64, runID string) (*MetricSnapshot, error)
	// ListSnapshots returns the newest limit snapshots, captured_at descending.
	ListSnapshots(ctx context.Context, videoID int64, limit int) ([]MetricSnapshot, error)

	// GetOrCreateTranscript never overwrites; created reports whether in was stored.
	GetOrCreateTranscript(ctx context.Context, videoID int64, in TranscriptInput) (t *Transcript, created bool, err error)
	GetTranscript(ctx context.Context, videoID int64) (*Transcript, error)

	Counts(ctx context.Context) (Counts, error)
	Close() error
}
