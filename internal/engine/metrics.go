package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	ChannelIngests     atomic.Int64
	PlaylistIngests    atomic.Int64
	VideoIngests       atomic.Int64
	VideoRefreshes     atomic.Int64
	PagesFetched       atomic.Int64
	VideosProcessed    atomic.Int64
	ItemFailures       atomic.Int64
	SnapshotsWritten   atomic.Int64
	TranscriptsStored  atomic.Int64
	TranscriptsAbsent  atomic.Int64
	TranscriptFailures atomic.Int64
	TranscriptRequests atomic.Int64
	APICalls           atomic.Int64
	QuotaUnits         atomic.Int64
}

// metricKeys fixes the output order of FormatMetrics.
var metricKeys = []string{
	"channel_ingests", "playlist_ingests", "video_ingests", "video_refreshes",
	"pages_fetched", "videos_processed", "item_failures", "snapshots_written",
	"transcripts_stored", "transcripts_absent", "transcript_failures", "transcript_requests",
	"youtube_api_calls", "youtube_quota_units",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"channel_ingests":     metrics.ChannelIngests.Load(),
		"playlist_ingests":    metrics.PlaylistIngests.Load(),
		"video_ingests":       metrics.VideoIngests.Load(),
		"video_refreshes":     metrics.VideoRefreshes.Load(),
		"pages_fetched":       metrics.PagesFetched.Load(),
		"videos_processed":    metrics.VideosProcessed.Load(),
		"item_failures":       metrics.ItemFailures.Load(),
		"snapshots_written":   metrics.SnapshotsWritten.Load(),
		"transcripts_stored":  metrics.TranscriptsStored.Load(),
		"transcripts_absent":  metrics.TranscriptsAbsent.Load(),
		"transcript_failures": metrics.TranscriptFailures.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"youtube_api_calls":   metrics.APICalls.Load(),
		"youtube_quota_units": metrics.QuotaUnits.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the ingest sub-package.
func IncrChannelIngest()            { metrics.ChannelIngests.Add(1) }
func IncrPlaylistIngest()           { metrics.PlaylistIngests.Add(1) }
func IncrVideoIngest()              { metrics.VideoIngests.Add(1) }
func IncrVideoRefresh()             { metrics.VideoRefreshes.Add(1) }
func IncrPagesFetched()             { metrics.PagesFetched.Add(1) }
func AddVideosProcessed(n int)      { metrics.VideosProcessed.Add(int64(n)) }
func AddItemFailures(n int)         { metrics.ItemFailures.Add(int64(n)) }
func IncrSnapshotsWritten()         { metrics.SnapshotsWritten.Add(1) }
func IncrTranscriptsStored()        { metrics.TranscriptsStored.Add(1) }
func IncrTranscriptsAbsent()        { metrics.TranscriptsAbsent.Add(1) }
func IncrTranscriptFailures()       { metrics.TranscriptFailures.Add(1) }

// Incrementors for the sources sub-package.
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }

// IncrAPICall records one Data API call and the quota units it costs.
// list calls cost 1 unit each regardless of page size.
func IncrAPICall(units int) {
	metrics.APICalls.Add(1)
	metrics.QuotaUnits.Add(int64(units))
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 30*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
