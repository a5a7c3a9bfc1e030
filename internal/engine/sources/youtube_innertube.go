package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// Caption plumbing against YouTube's web surface: the watch page and the
// Innertube /player endpoint as the ANDROID app calls it. Track selection
// lives in youtube_transcript.go.

const (
	ytWatchURL  = "https://www.youtube.com/watch?v="
	ytPlayerURL = "https://www.youtube.com/youtubei/v1/player"

	androidClientVersion = "20.10.38"
	androidClientID      = "3"
	androidSDK           = 30
	androidUA            = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"

	// playerResponseMarker precedes the player JSON inside the watch page.
	playerResponseMarker = "ytInitialPlayerResponse = "
)

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	Context        clientContext `json:"context"`
	RacyCheckOk    bool          `json:"racyCheckOk"`
	ContentCheckOk bool          `json:"contentCheckOk"`
}

type clientContext struct {
	Client struct {
		Name       string `json:"clientName"`
		Version    string `json:"clientVersion"`
		SDKVersion int    `json:"androidSdkVersion,omitempty"`
		Language   string `json:"hl,omitempty"`
		Region     string `json:"gl,omitempty"`
	} `json:"client"`
}

func androidPlayerRequest(videoID string) playerRequest {
	req := playerRequest{VideoID: videoID, RacyCheckOk: true, ContentCheckOk: true}
	c := &req.Context.Client
	c.Name, c.Version, c.SDKVersion = "ANDROID", androidClientVersion, androidSDK
	c.Language, c.Region = "en", "US"
	return req
}

// playerResponse is the subset of the player JSON that captions depend on.
type playerResponse struct {
	Playability *playability   `json:"playabilityStatus"`
	Captions    *captionsBlock `json:"captions"`
}

type playability struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type captionsBlock struct {
	Renderer struct {
		Tracks []captionTrack `json:"captionTracks"`
	} `json:"playerCaptionsTracklistRenderer"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// generated reports an automatic speech recognition track.
func (t captionTrack) generated() bool { return t.Kind == "asr" }

// playable reports whether the response describes a watchable video and,
// if not, the platform's explanation. No status at all counts as playable.
func (p *playerResponse) playable() (bool, string) {
	st := p.Playability
	if st == nil || st.Status == "" || st.Status == "OK" {
		return true, ""
	}
	if st.Reason != "" {
		return false, st.Reason
	}
	return false, st.Status
}

func (p *playerResponse) tracks() []captionTrack {
	if p.Captions == nil {
		return nil
	}
	return p.Captions.Renderer.Tracks
}

// timedText is the legacy caption XML format (format=srv1 and default).
type timedText struct {
	Cues []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// leadingObject returns the JSON object at the start of b with any trailing
// script text dropped, or nil when b does not start with a complete object.
func leadingObject(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var raw json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(b)).Decode(&raw); err != nil {
		return nil
	}
	return raw
}

// postPlayer asks the Innertube player endpoint for videoID as the ANDROID app.
func (f *TranscriptFetcher) postPlayer(ctx context.Context, videoID string) (*playerResponse, error) {
	body, err := json.Marshal(androidPlayerRequest(videoID))
	if err != nil {
		return nil, err
	}
	raw, err := f.do(ctx, 4<<20, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.playerURL+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", androidUA)
		req.Header.Set("X-Youtube-Client-Name", androidClientID)
		req.Header.Set("X-Youtube-Client-Version", androidClientVersion)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("android player: %w", err)
	}
	var pr playerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return &pr, nil
}

// getPage fetches url as a desktop browser would and returns at most limit bytes.
func (f *TranscriptFetcher) getPage(ctx context.Context, url string, limit int64) ([]byte, error) {
	return f.do(ctx, limit, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return req, nil
	})
}

// do sends the request built by build under the fetcher's retry policy and
// reads a 200 body. Other statuses become errors carrying a body snippet.
func (f *TranscriptFetcher) do(ctx context.Context, limit int64, build func() (*http.Request, error)) ([]byte, error) {
	resp, err := engine.RetryHTTP(ctx, f.retry, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return f.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
