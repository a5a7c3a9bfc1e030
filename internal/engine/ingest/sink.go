package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
)

// Sink writes merged records: upsert the video, append a snapshot,
// and create the transcript if the video has none.
// Writes for one video id are serialized across all callers sharing the Sink.
type Sink struct {
	store store.Store
	locks *KeyedMutex
}

// NewSink wraps st.
func NewSink(st store.Store) *Sink {
	return &Sink{store: st, locks: NewKeyedMutex()}
}

// WriteResult is what one Write produced.
type WriteResult struct {
	Video            *store.Video          `json:"video"`
	Created          bool                  `json:"created"`
	Snapshot         *store.MetricSnapshot `json:"snapshot"`
	TranscriptStored bool                  `json:"transcript_stored"`
}

// Write persists rec under channelID. In UpsertStatsOnly mode channelID is ignored
// and only statistics change. A snapshot is appended on every call.
func (s *Sink) Write(ctx context.Context, channelID int64, rec VideoRecord, mode store.UpsertMode, runID string) (*WriteResult, error) {
	unlock := s.locks.Lock(rec.YouTubeID)
	defer unlock()

	var res WriteResult
	err := retryConflict(rec.YouTubeID, func() error {
		v, created, err := s.store.UpsertVideo(ctx, rec.Input(channelID), mode)
		res.Video, res.Created = v, created
		return err
	})
	if err != nil {
		return nil, err
	}

	err = retryConflict(rec.YouTubeID, func() error {
		snap, err := s.store.AppendSnapshot(ctx, res.Video.ID, res.Video.ViewCount, res.Video.LikeCount, runID)
		res.Snapshot = snap
		return err
	})
	if err != nil {
		return nil, err
	}
	engine.IncrSnapshotsWritten()

	if tr := rec.Transcript; tr != nil {
		err = retryConflict(rec.YouTubeID, func() error {
			_, created, err := s.store.GetOrCreateTranscript(ctx, res.Video.ID, store.TranscriptInput{
				Content:     tr.Content,
				Language:    tr.Language,
				IsGenerated: tr.IsGenerated,
			})
			res.TranscriptStored = created
			return err
		})
		if err != nil {
			return nil, err
		}
		if res.TranscriptStored {
			engine.IncrTranscriptsStored()
		}
	}
	return &res, nil
}

// retryConflict runs fn again once when it reports store.ErrConflict.
func retryConflict(videoID string, fn func() error) error {
	err := fn()
	if errors.Is(err, store.ErrConflict) {
		slog.Debug("ingest: write conflict, retrying", slog.String("video", videoID), slog.Any("error", err))
		err = fn()
	}
	return err
}
