package sources

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the platform reports zero matches for a
// channel, playlist or video identifier.
var ErrNotFound = errors.New("not found on platform")

// MaxBatch is the Data API per-call limit for id lists and page sizes.
const MaxBatch = 50

// ChannelInfo is the channel metadata returned by a channel lookup.
type ChannelInfo struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	SubscriberCount   int64  `json:"subscriber_count"`
	VideoCount        int64  `json:"video_count"`
	UploadsPlaylistID string `json:"uploads_playlist_id"`
}

// PlaylistInfo is the playlist metadata needed to crawl it.
type PlaylistInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ChannelID string `json:"channel_id"`
	ItemCount int64  `json:"item_count"`
}

// RawPlaylistItem is one playlistItems entry reduced to the snippet fields
// the pipeline persists.
type RawPlaylistItem struct {
	VideoID     string
	Title       string
	Description string
	PublishedAt time.Time
	Position    int64
}

// ItemPage is one page of a playlist listing.
type ItemPage struct {
	Items         []RawPlaylistItem
	NextPageToken string
	TotalResults  int64
}

// DetailPayload carries the statistics and contentDetails parts of a video.
// Duration is still encoded; the merge step parses it.
type DetailPayload struct {
	VideoID   string
	ViewCount int64
	LikeCount int64
	Duration  string
}

// VideoInfo is a single video's full detail: snippet plus statistics and contentDetails.
type VideoInfo struct {
	Item      RawPlaylistItem
	ChannelID string
	Detail    DetailPayload
}

// Transcript is a fetched caption track flattened to text.
type Transcript struct {
	Content     string `json:"content"`
	Language    string `json:"language"`
	IsGenerated bool   `json:"is_generated"`
}

// Reasons a transcript lookup legitimately comes back empty.
const (
	ReasonCaptionsDisabled = "captions_disabled"
	ReasonNoTranscript     = "no_transcript"
)

// TranscriptLookup is the outcome of one transcript fetch.
// Track is nil when the video has no usable captions; Reason then says why.
type TranscriptLookup struct {
	Track  *Transcript
	Reason string
}

// Absent reports whether the lookup found no transcript.
func (l TranscriptLookup) Absent() bool { return l.Track == nil }
