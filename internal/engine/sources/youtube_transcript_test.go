package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timedTextXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0" dur="1.5">Hello &amp;#39;world&amp;#39;</text>` +
	`<text start="1.5" dur="2">  second
line </text>` +
	`<text start="3.5" dur="1"></text>` +
	`<text start="4.5" dur="1">&lt;i&gt;end&lt;/i&gt;</text></transcript>`

// captionServer serves a watch page whose player response is built by tracks,
// and timedtext XML for every caption URL.
type captionServer struct {
	srv         *httptest.Server
	player      string // raw JSON; {{base}} is replaced with the server URL
	watchStatus int
	watchCalls  atomic.Int32
	playerCalls atomic.Int32
	playerJSON  string
}

func newCaptionServer(t *testing.T, player string) *captionServer {
	t.Helper()
	cs := &captionServer{player: player, watchStatus: http.StatusOK}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			cs.watchCalls.Add(1)
			if cs.watchStatus != http.StatusOK {
				w.WriteHeader(cs.watchStatus)
				return
			}
			body := strings.ReplaceAll(cs.player, "{{base}}", cs.srv.URL)
			fmt.Fprintf(w, `<html><script>var ytInitialPlayerResponse = %s;var meta = {};</script></html>`, body)
		case strings.HasPrefix(r.URL.Path, "/player"):
			cs.playerCalls.Add(1)
			if cs.playerJSON == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, strings.ReplaceAll(cs.playerJSON, "{{base}}", cs.srv.URL))
		case strings.HasPrefix(r.URL.Path, "/timedtext"):
			fmt.Fprint(w, timedTextXML)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *captionServer) fetcher(langs ...string) *TranscriptFetcher {
	f := NewTranscriptFetcher(cs.srv.Client(), langs)
	f.watchURL = cs.srv.URL + "/watch?v="
	f.playerURL = ""
	f.retry = engine.RetryConfig{MaxRetries: 0, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	return f
}

func tracksJSON(tracks ...string) string {
	return `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		strings.Join(tracks, ",") + `]}}}`
}

func track(lang, kind string) string {
	return fmt.Sprintf(`{"baseUrl":"{{base}}/timedtext?lang=%s&kind=%s","languageCode":%q,"kind":%q}`, lang, kind, lang, kind)
}

func TestTranscriptPrefersGeneratedInLanguageOrder(t *testing.T) {
	cs := newCaptionServer(t, tracksJSON(track("de", "asr"), track("en", ""), track("en", "asr"), track("fr", "asr")))

	got, err := cs.fetcher("en", "fr").Fetch(context.Background(), "vid1")
	require.NoError(t, err)
	require.False(t, got.Absent())
	assert.Equal(t, "en", got.Track.Language)
	assert.True(t, got.Track.IsGenerated)
	assert.Equal(t, "Hello 'world' second line end", got.Track.Content)
}

func TestTranscriptFallsBackToManualTrack(t *testing.T) {
	cs := newCaptionServer(t, tracksJSON(track("de", "asr"), track("en", "")))

	got, err := cs.fetcher("en").Fetch(context.Background(), "vid2")
	require.NoError(t, err)
	require.False(t, got.Absent())
	assert.Equal(t, "en", got.Track.Language)
	assert.False(t, got.Track.IsGenerated)
}

func TestTranscriptCaptionsDisabledIsAbsent(t *testing.T) {
	cs := newCaptionServer(t, `{"playabilityStatus":{"status":"OK"}}`)

	got, err := cs.fetcher("en").Fetch(context.Background(), "vid3")
	require.NoError(t, err)
	assert.True(t, got.Absent())
	assert.Equal(t, ReasonCaptionsDisabled, got.Reason)
}

func TestTranscriptNoTrackInLanguagesIsAbsent(t *testing.T) {
	cs := newCaptionServer(t, tracksJSON(track("de", "asr"), track("ja", "")))

	got, err := cs.fetcher("en").Fetch(context.Background(), "vid4")
	require.NoError(t, err)
	assert.True(t, got.Absent())
	assert.Equal(t, ReasonNoTranscript, got.Reason)
}

func TestTranscriptUnplayableIsFailure(t *testing.T) {
	cs := newCaptionServer(t, `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm your age"}}`)

	_, err := cs.fetcher("en").Fetch(context.Background(), "vid5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTranscriptFetch))
	assert.Contains(t, err.Error(), "Sign in to confirm your age")
}

func TestTranscriptHTTPErrorIsFailure(t *testing.T) {
	cs := newCaptionServer(t, tracksJSON(track("en", "asr")))
	cs.watchStatus = http.StatusInternalServerError

	_, err := cs.fetcher("en").Fetch(context.Background(), "vid6")
	assert.True(t, errors.Is(err, ErrTranscriptFetch), "got %v", err)
}

func TestTranscriptPoTokenTrackIsFailure(t *testing.T) {
	cs := newCaptionServer(t, tracksJSON(
		`{"baseUrl":"{{base}}/timedtext?lang=en&exp=xpe","languageCode":"en","kind":"asr"}`))

	_, err := cs.fetcher("en").Fetch(context.Background(), "vid7")
	assert.True(t, errors.Is(err, ErrTranscriptFetch), "got %v", err)
}

func TestTranscriptPlayerFallback(t *testing.T) {
	cs := newCaptionServer(t, `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"bot check"}}`)
	cs.playerJSON = tracksJSON(track("en", "asr"))

	f := cs.fetcher("en")
	f.playerURL = cs.srv.URL + "/player"
	got, err := f.Fetch(context.Background(), "vid8")
	require.NoError(t, err)
	require.False(t, got.Absent())
	assert.EqualValues(t, 1, cs.playerCalls.Load())
}

func TestTranscriptAbsentIsCached(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Minute)
	cs := newCaptionServer(t, `{"playabilityStatus":{"status":"OK"}}`)
	f := cs.fetcher("en")

	for range 3 {
		got, err := f.Fetch(context.Background(), "vid-cached")
		require.NoError(t, err)
		assert.Equal(t, ReasonCaptionsDisabled, got.Reason)
	}
	assert.EqualValues(t, 1, cs.watchCalls.Load())
}

func TestLeadingObject(t *testing.T) {
	in := []byte(`{"a":"x\"}","b":{"c":"\\"}};var other = {}`)
	assert.Equal(t, `{"a":"x\"}","b":{"c":"\\"}}`, string(leadingObject(in)))
	assert.Nil(t, leadingObject([]byte(`[1]`)))
	assert.Nil(t, leadingObject([]byte(`{"open":`)))
}

func TestTranscriptForgetClearsAbsentMarker(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Minute)
	cs := newCaptionServer(t, `{"playabilityStatus":{"status":"OK"}}`)
	f := cs.fetcher("en")
	ctx := context.Background()

	_, err := f.Fetch(ctx, "vid-forget")
	require.NoError(t, err)
	f.Forget(ctx, "vid-forget")
	_, err = f.Fetch(ctx, "vid-forget")
	require.NoError(t, err)
	assert.EqualValues(t, 2, cs.watchCalls.Load())
}
