package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// ErrTranscriptFetch wraps every transcript failure that is not one of the
// expected negative outcomes (captions disabled, no track in the requested languages).
var ErrTranscriptFetch = errors.New("transcript fetch failed")

// TranscriptFetcher retrieves one video's captions.
// Primary:  scrape the watch page ytInitialPlayerResponse -> caption XML.
// Fallback: ANDROID Innertube /player -> captionTracks, used when the watch page
// is unreadable or reports the video as unplayable (consent walls, bot checks).
type TranscriptFetcher struct {
	client    *http.Client
	langs     []string
	watchURL  string
	playerURL string // empty disables the fallback
	retry     engine.RetryConfig
}

// NewTranscriptFetcher builds a fetcher preferring tracks in langs, in order.
func NewTranscriptFetcher(client *http.Client, langs []string) *TranscriptFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &TranscriptFetcher{
		client:    client,
		langs:     langs,
		watchURL:  ytWatchURL,
		playerURL: ytPlayerURL,
		retry:     engine.DefaultRetryConfig,
	}
}

// Fetch returns the video's transcript, an absent lookup when the video has
// no usable captions, or an error wrapping ErrTranscriptFetch.
// Absent outcomes are cached so refresh passes do not rescrape the same video.
func (f *TranscriptFetcher) Fetch(ctx context.Context, videoID string) (TranscriptLookup, error) {
	engine.IncrTranscriptRequests()

	key := f.absentKey(videoID)
	if cached, ok := engine.CacheLoadJSON[absentMarker](ctx, key); ok {
		return TranscriptLookup{Reason: cached.Reason}, nil
	}

	lookup, err := f.lookup(ctx, videoID)
	if err != nil {
		return TranscriptLookup{}, fmt.Errorf("%w: %s: %w", ErrTranscriptFetch, videoID, err)
	}
	if lookup.Absent() {
		engine.CacheStoreJSON(ctx, key, absentMarker{Reason: lookup.Reason, CheckedAt: time.Now().UTC()})
	}
	return lookup, nil
}

// Forget drops a cached absent outcome so the next Fetch asks the platform again.
func (f *TranscriptFetcher) Forget(ctx context.Context, videoID string) {
	engine.CacheDelete(ctx, f.absentKey(videoID))
}

func (f *TranscriptFetcher) absentKey(videoID string) string {
	return engine.CacheKey("transcript_absent", videoID, strings.Join(f.langs, ","))
}

// absentMarker is the cached outcome of a lookup that found no captions.
type absentMarker struct {
	Reason    string    `json:"reason"`
	CheckedAt time.Time `json:"checked_at"`
}

func (f *TranscriptFetcher) lookup(ctx context.Context, videoID string) (TranscriptLookup, error) {
	pr, err := f.watchPlayer(ctx, videoID)
	if playable := err == nil && isPlayable(pr); !playable && f.playerURL != "" {
		alt, altErr := f.postPlayer(ctx, videoID)
		switch {
		case altErr == nil:
			pr, err = alt, nil
		case err != nil:
			return TranscriptLookup{}, fmt.Errorf("watch page: %w; player: %w", err, altErr)
		default:
			slog.Debug("youtube: player fallback failed", slog.String("id", videoID), slog.Any("error", altErr))
		}
	}
	if err != nil {
		return TranscriptLookup{}, fmt.Errorf("watch page: %w", err)
	}
	return f.fromPlayer(ctx, pr)
}

func isPlayable(pr *playerResponse) bool {
	ok, _ := pr.playable()
	return ok
}

// watchPlayer scrapes the watch page and extracts ytInitialPlayerResponse.
func (f *TranscriptFetcher) watchPlayer(ctx context.Context, videoID string) (*playerResponse, error) {
	body, err := f.getPage(ctx, f.watchURL+videoID, 6*1024*1024)
	if err != nil {
		return nil, err
	}
	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := leadingObject(body[idx+len(playerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}
	var pr playerResponse
	if err := json.Unmarshal(jsonData, &pr); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &pr, nil
}

// fromPlayer applies the language policy to a player response and downloads the chosen track.
func (f *TranscriptFetcher) fromPlayer(ctx context.Context, pr *playerResponse) (TranscriptLookup, error) {
	if ok, reason := pr.playable(); !ok {
		return TranscriptLookup{}, fmt.Errorf("video unplayable: %s", reason)
	}
	tracks := pr.tracks()
	if len(tracks) == 0 {
		return TranscriptLookup{Reason: ReasonCaptionsDisabled}, nil
	}

	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	track, ok := pickTrack(usable, f.langs)
	if !ok {
		if _, blocked := pickTrack(tracks, f.langs); blocked {
			return TranscriptLookup{}, errors.New("caption track requires PoToken")
		}
		return TranscriptLookup{Reason: ReasonNoTranscript}, nil
	}

	text, err := f.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return TranscriptLookup{}, err
	}
	if text == "" {
		return TranscriptLookup{Reason: ReasonNoTranscript}, nil
	}
	return TranscriptLookup{Track: &Transcript{
		Content:     text,
		Language:    track.LanguageCode,
		IsGenerated: track.generated(),
	}}, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack selects a caption track: a generated track in the first matching
// language of langs, otherwise a manual track in the first matching language.
func pickTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	for _, generated := range []bool{true, false} {
		for _, lang := range langs {
			for _, t := range tracks {
				if t.generated() == generated && t.LanguageCode == lang {
					return t, true
				}
			}
		}
	}
	return captionTrack{}, false
}

// fetchTimedText fetches a timedtext XML caption URL and joins its lines with spaces.
func (f *TranscriptFetcher) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	body, err := f.getPage(ctx, baseURL, 2*1024*1024)
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}

	var sb strings.Builder
	for _, cue := range tt.Cues {
		if text := engine.CaptionText(cue.Text); text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
	}
	return sb.String(), nil
}
