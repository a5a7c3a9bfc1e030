package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// DataAPI wraps the YouTube Data API v3 service. Safe for concurrent use;
// every call is paced by the shared quota limiter and retried on transient errors.
type DataAPI struct {
	svc     *youtube.Service
	limiter *engine.QuotaLimiter
	retry   engine.RetryConfig
}

// NewDataAPI builds a client authenticated with apiKey. Extra options are
// appended after the key (tests pass option.WithEndpoint / option.WithHTTPClient).
func NewDataAPI(ctx context.Context, apiKey string, limiter *engine.QuotaLimiter, opts ...option.ClientOption) (*DataAPI, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, errors.New("YOUTUBE_API_KEY is required")
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)

	svc, err := youtube.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &DataAPI{svc: svc, limiter: limiter, retry: engine.DefaultRetryConfig}, nil
}

// SetRetry overrides the retry policy; tests use a zero-wait config.
func (a *DataAPI) SetRetry(rc engine.RetryConfig) { a.retry = rc }

// apiCall paces, counts and retries one Data API request.
func apiCall[T any](ctx context.Context, a *DataAPI, fn func() (T, error)) (T, error) {
	return engine.RetryDo(ctx, a.retry, func() (T, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		engine.IncrAPICall(1)
		return fn()
	})
}

// LookupChannel resolves a channel id ("UC...") or handle ("@name").
func (a *DataAPI) LookupChannel(ctx context.Context, identifier string) (*ChannelInfo, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("channel %w: empty identifier", ErrNotFound)
	}
	resp, err := apiCall(ctx, a, func() (*youtube.ChannelListResponse, error) {
		call := a.svc.Channels.List([]string{"snippet", "statistics", "contentDetails"})
		if strings.HasPrefix(identifier, "@") {
			call = call.ForHandle(identifier)
		} else {
			call = call.Id(identifier)
		}
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("channels.list %s: %w", identifier, mapAPIError(err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel %s: %w", identifier, ErrNotFound)
	}

	ch := resp.Items[0]
	info := &ChannelInfo{ID: ch.Id}
	if ch.Snippet != nil {
		info.Title = ch.Snippet.Title
		info.Description = ch.Snippet.Description
	}
	if ch.Statistics != nil {
		info.SubscriberCount = int64(ch.Statistics.SubscriberCount)
		info.VideoCount = int64(ch.Statistics.VideoCount)
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		info.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return info, nil
}

// LookupPlaylist fetches a playlist's owner and reported item count.
func (a *DataAPI) LookupPlaylist(ctx context.Context, playlistID string) (*PlaylistInfo, error) {
	resp, err := apiCall(ctx, a, func() (*youtube.PlaylistListResponse, error) {
		return a.svc.Playlists.List([]string{"snippet", "contentDetails"}).
			Id(playlistID).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("playlists.list %s: %w", playlistID, mapAPIError(err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrNotFound)
	}

	pl := resp.Items[0]
	info := &PlaylistInfo{ID: pl.Id}
	if pl.Snippet != nil {
		info.Title = pl.Snippet.Title
		info.ChannelID = pl.Snippet.ChannelId
	}
	if pl.ContentDetails != nil {
		info.ItemCount = pl.ContentDetails.ItemCount
	}
	return info, nil
}

// ListPlaylistItems fetches one page of a playlist. pageToken is empty for the first page.
func (a *DataAPI) ListPlaylistItems(ctx context.Context, playlistID, pageToken string, pageSize int) (*ItemPage, error) {
	if pageSize <= 0 || pageSize > MaxBatch {
		pageSize = MaxBatch
	}
	resp, err := apiCall(ctx, a, func() (*youtube.PlaylistItemListResponse, error) {
		call := a.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(pageSize))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("playlistItems.list %s: %w", playlistID, mapAPIError(err))
	}

	page := &ItemPage{
		Items:         make([]RawPlaylistItem, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
	}
	if resp.PageInfo != nil {
		page.TotalResults = resp.PageInfo.TotalResults
	}
	for _, it := range resp.Items {
		if raw, ok := playlistItemToRaw(it); ok {
			page.Items = append(page.Items, raw)
		}
	}
	return page, nil
}

// VideoDetails fetches statistics and contentDetails for ids, one call per
// MaxBatch ids. Ids the platform no longer serves are absent from the map.
func (a *DataAPI) VideoDetails(ctx context.Context, ids []string) (map[string]DetailPayload, error) {
	out := make(map[string]DetailPayload, len(ids))
	for start := 0; start < len(ids); start += MaxBatch {
		end := min(start+MaxBatch, len(ids))
		batch := ids[start:end]
		resp, err := apiCall(ctx, a, func() (*youtube.VideoListResponse, error) {
			return a.svc.Videos.List([]string{"statistics", "contentDetails"}).
				Id(batch...).
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, fmt.Errorf("videos.list: %w", mapAPIError(err))
		}
		for _, v := range resp.Items {
			out[v.Id] = videoToDetail(v)
		}
	}
	return out, nil
}

// FetchVideo fetches one video's snippet, statistics and contentDetails.
func (a *DataAPI) FetchVideo(ctx context.Context, videoID string) (*VideoInfo, error) {
	resp, err := apiCall(ctx, a, func() (*youtube.VideoListResponse, error) {
		return a.svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(videoID).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("videos.list %s: %w", videoID, mapAPIError(err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	v := resp.Items[0]
	info := &VideoInfo{
		Item:   RawPlaylistItem{VideoID: v.Id},
		Detail: videoToDetail(v),
	}
	if v.Snippet != nil {
		info.ChannelID = v.Snippet.ChannelId
		info.Item.Title = v.Snippet.Title
		info.Item.Description = v.Snippet.Description
		info.Item.PublishedAt = parseAPITime(v.Snippet.PublishedAt)
	}
	return info, nil
}

func playlistItemToRaw(it *youtube.PlaylistItem) (RawPlaylistItem, bool) {
	var raw RawPlaylistItem
	var snippetPublished string
	if it.Snippet != nil {
		raw.Title = it.Snippet.Title
		raw.Description = it.Snippet.Description
		raw.Position = it.Snippet.Position
		snippetPublished = it.Snippet.PublishedAt
		if it.Snippet.ResourceId != nil {
			raw.VideoID = it.Snippet.ResourceId.VideoId
		}
	}
	if it.ContentDetails != nil {
		if it.ContentDetails.VideoId != "" {
			raw.VideoID = it.ContentDetails.VideoId
		}
		// videoPublishedAt is the upload time; snippet.publishedAt is when it
		// was added to the playlist. Private/deleted entries lack the former.
		if it.ContentDetails.VideoPublishedAt != "" {
			raw.PublishedAt = parseAPITime(it.ContentDetails.VideoPublishedAt)
		}
	}
	if raw.PublishedAt.IsZero() {
		raw.PublishedAt = parseAPITime(snippetPublished)
	}
	if raw.VideoID == "" {
		slog.Debug("youtube: playlist item without video id", slog.String("item", it.Id))
		return raw, false
	}
	return raw, true
}

func videoToDetail(v *youtube.Video) DetailPayload {
	d := DetailPayload{VideoID: v.Id}
	if v.Statistics != nil {
		d.ViewCount = int64(v.Statistics.ViewCount)
		d.LikeCount = int64(v.Statistics.LikeCount)
	}
	if v.ContentDetails != nil {
		d.Duration = v.ContentDetails.Duration
	}
	return d
}

func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// mapAPIError turns a 404 from the Data API into ErrNotFound and keeps the
// original error in the chain.
func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
