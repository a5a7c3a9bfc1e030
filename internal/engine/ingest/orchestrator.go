// Package ingest runs the channel/playlist/video ingestion pipeline:
// page through a playlist, enrich each page with details and transcripts,
// and persist every item with a fresh metric snapshot.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Platform is the remote metadata service.
type Platform interface {
	PageLister
	DetailBatcher
	LookupChannel(ctx context.Context, identifier string) (*sources.ChannelInfo, error)
	LookupPlaylist(ctx context.Context, playlistID string) (*sources.PlaylistInfo, error)
	FetchVideo(ctx context.Context, videoID string) (*sources.VideoInfo, error)
}

// Options tune the pipeline. Zero fields fall back to engine.Cfg.
type Options struct {
	PageSize          int
	MaxPlaylistItems  int
	EnrichConcurrency int
	WriteConcurrency  int
	Timeout           time.Duration // whole-crawl deadline, 0 = none
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = engine.Cfg.PageSize
	}
	if o.MaxPlaylistItems <= 0 {
		o.MaxPlaylistItems = engine.Cfg.MaxPlaylistItems
	}
	if o.MaxPlaylistItems <= 0 {
		o.MaxPlaylistItems = 500
	}
	if o.EnrichConcurrency <= 0 {
		o.EnrichConcurrency = engine.Cfg.EnrichConcurrency
	}
	if o.WriteConcurrency <= 0 {
		o.WriteConcurrency = engine.Cfg.WriteConcurrency
	}
	if o.WriteConcurrency <= 0 {
		o.WriteConcurrency = 1
	}
	if o.Timeout == 0 {
		o.Timeout = engine.Cfg.IngestTimeout
	}
	return o
}

// Result summarizes a channel or playlist crawl.
type Result struct {
	RunID      string         `json:"run_id"`
	Channel    *store.Channel `json:"channel"`
	PlaylistID string         `json:"playlist_id"`
	Processed  int            `json:"processed"`
	Created    int            `json:"created"`
	Pages      int            `json:"pages"`
	Truncated  bool           `json:"truncated"`
	// NextPageToken resumes a truncated crawl.
	NextPageToken string      `json:"next_page_token,omitempty"`
	Failures      []ItemError `json:"failures,omitempty"`
}

// VideoResult summarizes a single-video ingest or refresh.
type VideoResult struct {
	RunID            string                `json:"run_id,omitempty"`
	Video            *store.Video          `json:"video,omitempty"`
	Existing         bool                  `json:"existing"`
	Created          bool                  `json:"created"`
	Snapshot         *store.MetricSnapshot `json:"snapshot,omitempty"`
	TranscriptStored bool                  `json:"transcript_stored"`
	Failures         []ItemError           `json:"failures,omitempty"`
}

// Orchestrator drives ingestion. Safe for concurrent use; concurrent
// crawls share one Sink and therefore one per-video lock table.
type Orchestrator struct {
	platform    Platform
	transcripts TranscriptSource
	store       store.Store
	sink        *Sink
	enricher    *Enricher
	opts        Options
}

// New builds an Orchestrator. transcripts may be nil to skip transcript fetching.
func New(platform Platform, transcripts TranscriptSource, st store.Store, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		platform:    platform,
		transcripts: transcripts,
		store:       st,
		sink:        NewSink(st),
		enricher:    NewEnricher(platform, transcripts, opts.EnrichConcurrency),
		opts:        opts,
	}
}

// Store exposes the backing store for read-only tools.
func (o *Orchestrator) Store() store.Store { return o.store }

// IngestChannel resolves a channel id or @handle, upserts it and crawls its uploads playlist.
func (o *Orchestrator) IngestChannel(ctx context.Context, identifier string) (*Result, error) {
	engine.IncrChannelIngest()

	info, err := o.platform.LookupChannel(ctx, identifier)
	if err != nil {
		return nil, notFound("channel "+identifier, err)
	}
	if info.UploadsPlaylistID == "" {
		return nil, fmt.Errorf("%w: channel %s has no uploads playlist", ErrNotFound, identifier)
	}
	walker, err := NewPageWalker(o.platform, info.UploadsPlaylistID, WalkOptions{PageSize: o.opts.PageSize})
	if err != nil {
		return nil, err
	}
	ch, err := o.upsertChannel(ctx, info)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = engine.TrackOperation(ctx, "ingest_channel", func(ctx context.Context) error {
		var err error
		res, err = o.crawl(ctx, ch, info.UploadsPlaylistID, walker)
		return err
	})
	return res, err
}

// PlaylistOptions narrow a playlist crawl.
type PlaylistOptions struct {
	MaxResults int    // 0 = whole playlist
	PageToken  string // resume a truncated crawl
}

// IngestPlaylist crawls a playlist into its owning channel. Playlists reporting more
// items than the configured ceiling fail with ErrSizeLimitExceeded before any page
// is fetched, unless MaxResults keeps the crawl within the ceiling.
func (o *Orchestrator) IngestPlaylist(ctx context.Context, playlistID string, popts PlaylistOptions) (*Result, error) {
	engine.IncrPlaylistIngest()

	pl, err := o.platform.LookupPlaylist(ctx, playlistID)
	if err != nil {
		return nil, notFound("playlist "+playlistID, err)
	}

	wopts := WalkOptions{PageSize: o.opts.PageSize, MaxResults: popts.MaxResults, StartToken: popts.PageToken}
	if popts.MaxResults <= 0 || popts.MaxResults > o.opts.MaxPlaylistItems {
		wopts.ReportedTotal = pl.ItemCount
		wopts.Ceiling = o.opts.MaxPlaylistItems
	}
	walker, err := NewPageWalker(o.platform, pl.ID, wopts)
	if err != nil {
		return nil, err
	}

	info, err := o.platform.LookupChannel(ctx, pl.ChannelID)
	if err != nil {
		return nil, notFound("owner channel "+pl.ChannelID, err)
	}
	ch, err := o.upsertChannel(ctx, info)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = engine.TrackOperation(ctx, "ingest_playlist", func(ctx context.Context) error {
		var err error
		res, err = o.crawl(ctx, ch, pl.ID, walker)
		return err
	})
	return res, err
}

func (o *Orchestrator) upsertChannel(ctx context.Context, info *sources.ChannelInfo) (*store.Channel, error) {
	ch, err := o.store.UpsertChannel(ctx, store.ChannelInput{
		YouTubeID:       info.ID,
		Title:           info.Title,
		Description:     info.Description,
		SubscriberCount: info.SubscriberCount,
		VideoCount:      info.VideoCount,
	})
	if err != nil {
		return nil, fmt.Errorf("store channel %s: %w", info.ID, err)
	}
	return ch, nil
}

// crawl walks pages sequentially. Each page runs to completion under a
// detached context, so a deadline or cancellation stops paging but never
// abandons items already in flight. A truncated crawl returns its partial
// result with a nil error; a page-listing failure returns it with the error.
func (o *Orchestrator) crawl(ctx context.Context, ch *store.Channel, playlistID string, walker *PageWalker) (*Result, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	res := &Result{RunID: uuid.NewString(), Channel: ch, PlaylistID: playlistID}
	log := slog.With(slog.String("run", res.RunID), slog.String("playlist", playlistID))
	log.Info("ingest: crawl started", slog.String("channel", ch.YouTubeID))
	start := time.Now()

	var crawlErr error
	for {
		if ctx.Err() != nil {
			res.Truncated = true
			break
		}
		items, ok, err := walker.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.Truncated = true
				break
			}
			crawlErr = fmt.Errorf("list playlist %s page %d: %w", playlistID, res.Pages+1, err)
			break
		}
		if !ok {
			break
		}
		res.Pages++
		engine.IncrPagesFetched()
		o.processPage(context.WithoutCancel(ctx), res, items)
	}
	// A capped walk stops mid-page, so its token is not a resume point.
	if res.Truncated || crawlErr != nil {
		res.NextPageToken = walker.Token()
	}
	if walker.Capped() {
		res.Truncated = true
	}

	engine.AddVideosProcessed(res.Processed)
	engine.AddItemFailures(len(res.Failures))
	log.Info("ingest: crawl finished",
		slog.Int("pages", res.Pages),
		slog.Int("processed", res.Processed),
		slog.Int("created", res.Created),
		slog.Int("failures", len(res.Failures)),
		slog.Bool("truncated", res.Truncated),
		slog.Duration("elapsed", time.Since(start)))
	if crawlErr != nil {
		log.Error("ingest: crawl aborted", slog.Any("error", crawlErr))
	}
	return res, crawlErr
}

// processPage enriches one page and writes its records with bounded concurrency.
func (o *Orchestrator) processPage(ctx context.Context, res *Result, items []sources.RawPlaylistItem) {
	page := o.enricher.Enrich(ctx, items)
	res.Failures = append(res.Failures, page.Failures...)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.opts.WriteConcurrency)
	for _, rec := range page.Records {
		g.Go(func() error {
			wr, err := o.sink.Write(ctx, res.Channel.ID, rec, store.UpsertCrawl, res.RunID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("ingest: write failed", slog.String("video", rec.YouTubeID), slog.Any("error", err))
				res.Failures = append(res.Failures, newItemError(rec.YouTubeID, KindPersistence, err))
				return nil
			}
			res.Processed++
			if wr.Created {
				res.Created++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// IngestSingleVideo stores one video with its channel. A video already in the
// store is returned as is without any remote call.
func (o *Orchestrator) IngestSingleVideo(ctx context.Context, videoID string) (*VideoResult, error) {
	engine.IncrVideoIngest()

	existing, err := o.store.GetVideo(ctx, videoID)
	if err == nil {
		return &VideoResult{Video: existing, Existing: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	info, err := o.platform.FetchVideo(ctx, videoID)
	if err != nil {
		return nil, notFound("video "+videoID, err)
	}
	ch, err := o.store.GetChannel(ctx, info.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		var ci *sources.ChannelInfo
		ci, err = o.platform.LookupChannel(ctx, info.ChannelID)
		if err != nil {
			return nil, notFound("channel "+info.ChannelID, err)
		}
		ch, err = o.upsertChannel(ctx, ci)
	}
	if err != nil {
		return nil, err
	}

	res := &VideoResult{RunID: uuid.NewString()}
	rec, err := MergeVideo(info.Item, info.Detail, true, nil)
	if err != nil {
		res.Failures = append(res.Failures, newItemError(videoID, KindMalformedDuration, err))
		engine.AddItemFailures(1)
		return res, nil
	}
	tr, err := o.enricher.transcript(ctx, videoID)
	if err != nil {
		res.Failures = append(res.Failures, newItemError(videoID, KindTranscriptFetch, err))
		engine.AddItemFailures(1)
	}
	rec.Transcript = tr

	wr, err := o.sink.Write(ctx, ch.ID, rec, store.UpsertCrawl, res.RunID)
	if err != nil {
		return nil, fmt.Errorf("store video %s: %w", videoID, err)
	}
	res.apply(wr)
	engine.AddVideosProcessed(1)
	slog.Info("ingest: video stored",
		slog.String("video", videoID),
		slog.String("title", engine.LogTitle(rec.Title)),
		slog.Bool("created", wr.Created))
	return res, nil
}

// RefreshVideo re-reads the statistics of a stored video, updates its counts,
// appends a snapshot and backfills a missing transcript.
func (o *Orchestrator) RefreshVideo(ctx context.Context, v *store.Video) (*VideoResult, error) {
	engine.IncrVideoRefresh()

	details, err := o.platform.VideoDetails(ctx, []string{v.YouTubeID})
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", v.YouTubeID, err)
	}
	d, ok := details[v.YouTubeID]
	if !ok {
		return nil, fmt.Errorf("%w: video %s no longer available", ErrNotFound, v.YouTubeID)
	}

	res := &VideoResult{RunID: uuid.NewString(), Existing: true}
	rec := VideoRecord{YouTubeID: v.YouTubeID, ViewCount: d.ViewCount, LikeCount: d.LikeCount}

	if _, err := o.store.GetTranscript(ctx, v.ID); errors.Is(err, store.ErrNotFound) {
		tr, err := o.enricher.transcript(ctx, v.YouTubeID)
		if err != nil {
			res.Failures = append(res.Failures, newItemError(v.YouTubeID, KindTranscriptFetch, err))
			engine.AddItemFailures(1)
		}
		rec.Transcript = tr
	} else if err != nil {
		return nil, err
	}

	wr, err := o.sink.Write(ctx, v.ChannelID, rec, store.UpsertStatsOnly, res.RunID)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", v.YouTubeID, err)
	}
	res.apply(wr)
	return res, nil
}

// RefreshVideoByID looks a video up in the store and refreshes it.
func (o *Orchestrator) RefreshVideoByID(ctx context.Context, videoID string) (*VideoResult, error) {
	v, err := o.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, notFound("stored video "+videoID, err)
	}
	return o.RefreshVideo(ctx, v)
}

func (r *VideoResult) apply(wr *WriteResult) {
	r.Video = wr.Video
	r.Created = wr.Created
	r.Snapshot = wr.Snapshot
	r.TranscriptStored = wr.TranscriptStored
}

// notFound folds platform and store not-found errors into ErrNotFound.
func notFound(what string, err error) error {
	if errors.Is(err, sources.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
