package tubeserver

import (
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine/ingest"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
)

// IngestChannelInput is the input for ingest_channel.
type IngestChannelInput struct {
	Channel string `json:"channel" jsonschema:"Channel id (UC...), @handle, or channel URL"`
}

// IngestPlaylistInput is the input for ingest_playlist.
type IngestPlaylistInput struct {
	Playlist   string `json:"playlist" jsonschema:"Playlist id or any URL with list="`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Stop after this many videos (default: whole playlist, subject to the size ceiling)"`
	PageToken  string `json:"page_token,omitempty" jsonschema:"Resume a truncated crawl from its next_page_token"`
}

// VideoInput is the input for ingest_video.
type VideoInput struct {
	Video string `json:"video" jsonschema:"Video id or watch/youtu.be/shorts URL"`
}

// RefreshInput is the input for refresh_video.
type RefreshInput struct {
	Video             string `json:"video" jsonschema:"Video id or URL of a stored video"`
	RecheckTranscript bool   `json:"recheck_transcript,omitempty" jsonschema:"Ignore a cached 'no captions' result and ask YouTube again"`
}

// VideoHistoryInput is the input for video_history.
type VideoHistoryInput struct {
	Video string `json:"video" jsonschema:"Video id or URL of a stored video"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max snapshots, newest first (default 20, max 500)"`
}

// TranscriptInput is the input for video_transcript.
type TranscriptInput struct {
	Video    string `json:"video" jsonschema:"Video id or URL of a stored video"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"Truncate content to this many characters (default: full text)"`
}

// ChannelView is a stored channel as returned to clients.
type ChannelView struct {
	YouTubeID       string `json:"youtube_id"`
	Title           string `json:"title"`
	SubscriberCount int64  `json:"subscriber_count"`
	VideoCount      int64  `json:"video_count"`
	UpdatedAt       string `json:"updated_at"`
}

// VideoView is a stored video as returned to clients.
type VideoView struct {
	YouTubeID       string `json:"youtube_id"`
	Title           string `json:"title"`
	PublishedAt     string `json:"published_at,omitempty"`
	ViewCount       int64  `json:"view_count"`
	LikeCount       int64  `json:"like_count"`
	DurationSeconds int    `json:"duration_seconds"`
	UpdatedAt       string `json:"updated_at"`
}

// SnapshotView is one metric snapshot.
type SnapshotView struct {
	ViewCount  int64  `json:"view_count"`
	LikeCount  int64  `json:"like_count"`
	RunID      string `json:"run_id,omitempty"`
	CapturedAt string `json:"captured_at"`
}

// CrawlOutput is the result of ingest_channel and ingest_playlist.
type CrawlOutput struct {
	RunID         string             `json:"run_id"`
	Channel       ChannelView        `json:"channel"`
	PlaylistID    string             `json:"playlist_id"`
	Processed     int                `json:"processed"`
	Created       int                `json:"created"`
	Pages         int                `json:"pages"`
	Truncated     bool               `json:"truncated"`
	NextPageToken string             `json:"next_page_token,omitempty"`
	Failures      []ingest.ItemError `json:"failures,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// VideoOutput is the result of ingest_video and refresh_video.
type VideoOutput struct {
	RunID            string             `json:"run_id,omitempty"`
	Video            *VideoView         `json:"video,omitempty"`
	Existing         bool               `json:"existing"`
	Created          bool               `json:"created"`
	Snapshot         *SnapshotView      `json:"snapshot,omitempty"`
	TranscriptStored bool               `json:"transcript_stored"`
	Failures         []ingest.ItemError `json:"failures,omitempty"`
}

// VideoHistoryOutput is a stored video with its metric history.
type VideoHistoryOutput struct {
	Video     VideoView      `json:"video"`
	Snapshots []SnapshotView `json:"snapshots"`
}

// TranscriptOutput is a stored transcript.
type TranscriptOutput struct {
	VideoID     string `json:"video_id"`
	Language    string `json:"language"`
	IsGenerated bool   `json:"is_generated"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func channelView(c *store.Channel) ChannelView {
	if c == nil {
		return ChannelView{}
	}
	return ChannelView{
		YouTubeID:       c.YouTubeID,
		Title:           c.Title,
		SubscriberCount: c.SubscriberCount,
		VideoCount:      c.VideoCount,
		UpdatedAt:       formatTime(c.UpdatedAt),
	}
}

func videoView(v *store.Video) VideoView {
	return VideoView{
		YouTubeID:       v.YouTubeID,
		Title:           v.Title,
		PublishedAt:     formatTime(v.PublishedAt),
		ViewCount:       v.ViewCount,
		LikeCount:       v.LikeCount,
		DurationSeconds: v.DurationSeconds,
		UpdatedAt:       formatTime(v.UpdatedAt),
	}
}

func snapshotView(s store.MetricSnapshot) SnapshotView {
	return SnapshotView{ViewCount: s.ViewCount, LikeCount: s.LikeCount, RunID: s.RunID, CapturedAt: formatTime(s.CapturedAt)}
}

func crawlOutput(r *ingest.Result) *CrawlOutput {
	return &CrawlOutput{
		RunID:         r.RunID,
		Channel:       channelView(r.Channel),
		PlaylistID:    r.PlaylistID,
		Processed:     r.Processed,
		Created:       r.Created,
		Pages:         r.Pages,
		Truncated:     r.Truncated,
		NextPageToken: r.NextPageToken,
		Failures:      r.Failures,
	}
}

func videoOutput(r *ingest.VideoResult) *VideoOutput {
	out := &VideoOutput{
		RunID:            r.RunID,
		Existing:         r.Existing,
		Created:          r.Created,
		TranscriptStored: r.TranscriptStored,
		Failures:         r.Failures,
	}
	if r.Video != nil {
		v := videoView(r.Video)
		out.Video = &v
	}
	if r.Snapshot != nil {
		s := snapshotView(*r.Snapshot)
		out.Snapshot = &s
	}
	return out
}
