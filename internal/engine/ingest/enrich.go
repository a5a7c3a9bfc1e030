package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"golang.org/x/sync/errgroup"
)

// DetailBatcher returns statistics and contentDetails for up to sources.MaxBatch ids.
// Ids the platform does not know are absent from the map.
type DetailBatcher interface {
	VideoDetails(ctx context.Context, ids []string) (map[string]sources.DetailPayload, error)
}

// TranscriptSource is one transcript lookup per video.
type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) (sources.TranscriptLookup, error)
}

// VideoRecord is a playlist item merged with its details and transcript.
type VideoRecord struct {
	YouTubeID       string
	Title           string
	Description     string
	PublishedAt     time.Time
	ViewCount       int64
	LikeCount       int64
	DurationSeconds int
	Transcript      *sources.Transcript
}

// Input converts the record into a store write for the given channel row.
func (r VideoRecord) Input(channelID int64) store.VideoInput {
	return store.VideoInput{
		YouTubeID:       r.YouTubeID,
		ChannelID:       channelID,
		Title:           r.Title,
		Description:     r.Description,
		PublishedAt:     r.PublishedAt,
		ViewCount:       r.ViewCount,
		LikeCount:       r.LikeCount,
		DurationSeconds: r.DurationSeconds,
	}
}

// MergeVideo combines a playlist item, its detail payload and an optional
// transcript. A missing payload yields zero statistics and zero duration.
// The only failure is a malformed duration.
func MergeVideo(item sources.RawPlaylistItem, detail sources.DetailPayload, found bool, tr *sources.Transcript) (VideoRecord, error) {
	rec := VideoRecord{
		YouTubeID:   item.VideoID,
		Title:       item.Title,
		Description: item.Description,
		PublishedAt: item.PublishedAt,
		Transcript:  tr,
	}
	if !found {
		return rec, nil
	}
	rec.ViewCount = detail.ViewCount
	rec.LikeCount = detail.LikeCount
	if detail.Duration != "" {
		secs, err := sources.ParseDuration(detail.Duration)
		if err != nil {
			return VideoRecord{}, fmt.Errorf("video %s: %w", item.VideoID, err)
		}
		rec.DurationSeconds = secs
	}
	return rec, nil
}

// Enricher turns one page of playlist items into VideoRecords: one detail
// batch call, then transcripts fetched concurrently.
type Enricher struct {
	details     DetailBatcher
	transcripts TranscriptSource // nil disables transcripts
	concurrency int
}

// NewEnricher bounds transcript fetches to concurrency in flight.
func NewEnricher(details DetailBatcher, transcripts TranscriptSource, concurrency int) *Enricher {
	if concurrency <= 0 {
		concurrency = sources.MaxBatch
	}
	return &Enricher{details: details, transcripts: transcripts, concurrency: concurrency}
}

// PageResult is the enrichment outcome of one page. Records keep page order.
type PageResult struct {
	Records  []VideoRecord
	Failures []ItemError
}

// Enrich never fails as a whole: a failed detail batch marks every item
// detail_fetch_failed, everything else is isolated per item.
func (e *Enricher) Enrich(ctx context.Context, items []sources.RawPlaylistItem) PageResult {
	if len(items) == 0 {
		return PageResult{}
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}
	details, err := e.details.VideoDetails(ctx, ids)
	if err != nil {
		slog.Warn("ingest: detail batch failed", slog.Int("items", len(items)), slog.Any("error", err))
		res := PageResult{Failures: make([]ItemError, len(items))}
		for i, id := range ids {
			res.Failures[i] = newItemError(id, KindDetailFetch, err)
		}
		return res
	}

	slots := make([]*VideoRecord, len(items))
	var (
		mu       sync.Mutex
		failures []ItemError
	)
	fail := func(ie ItemError) {
		mu.Lock()
		failures = append(failures, ie)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, item := range items {
		g.Go(func() error {
			tr, err := e.transcript(gctx, item.VideoID)
			if err != nil {
				fail(newItemError(item.VideoID, KindTranscriptFetch, err))
			}
			d, found := details[item.VideoID]
			rec, err := MergeVideo(item, d, found, tr)
			if err != nil {
				fail(newItemError(item.VideoID, KindMalformedDuration, err))
				return nil
			}
			slots[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	res := PageResult{Failures: failures}
	for _, rec := range slots {
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
	}
	return res
}

func (e *Enricher) transcript(ctx context.Context, videoID string) (*sources.Transcript, error) {
	if e.transcripts == nil {
		return nil, nil
	}
	lookup, err := e.transcripts.Fetch(ctx, videoID)
	if err != nil {
		engine.IncrTranscriptFailures()
		slog.Debug("ingest: transcript failed", slog.String("video", videoID), slog.Any("error", err))
		return nil, err
	}
	if lookup.Absent() {
		engine.IncrTranscriptsAbsent()
		slog.Debug("ingest: no transcript", slog.String("video", videoID), slog.String("reason", lookup.Reason))
		return nil, nil
	}
	return lookup.Track, nil
}
