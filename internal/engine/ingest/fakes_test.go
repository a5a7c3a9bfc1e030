package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"github.com/stretchr/testify/require"
)

// fakePlatform serves canned channels, playlists and details and counts calls.
type fakePlatform struct {
	mu        sync.Mutex
	channels  map[string]*sources.ChannelInfo
	playlists map[string]*sources.PlaylistInfo
	pages     map[string][]sources.ItemPage
	details   map[string]sources.DetailPayload
	videos    map[string]*sources.VideoInfo
	detailErr error
	listErr   map[int]error // page index -> error
	onList    func(page int)
	calls     map[string]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels:  map[string]*sources.ChannelInfo{},
		playlists: map[string]*sources.PlaylistInfo{},
		pages:     map[string][]sources.ItemPage{},
		details:   map[string]sources.DetailPayload{},
		videos:    map[string]*sources.VideoInfo{},
		listErr:   map[int]error{},
		calls:     map[string]int{},
	}
}

func (p *fakePlatform) count(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

func (p *fakePlatform) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakePlatform) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *fakePlatform) resetCalls() {
	p.mu.Lock()
	p.calls = map[string]int{}
	p.mu.Unlock()
}

// addChannel registers a channel reachable by id and by @handle.
func (p *fakePlatform) addChannel(id, handle, uploads string) *sources.ChannelInfo {
	ci := &sources.ChannelInfo{ID: id, Title: "Channel " + id, SubscriberCount: 1000, VideoCount: 10, UploadsPlaylistID: uploads}
	p.channels[id] = ci
	if handle != "" {
		p.channels[handle] = ci
	}
	return ci
}

// addPlaylist builds pages of the given sizes. Video ids are "<playlist>-<n>",
// n counting from 1; each gets details with n*10 views, n likes, 65s duration.
func (p *fakePlatform) addPlaylist(channelID, playlistID string, sizes ...int) []string {
	var ids []string
	pages := make([]sources.ItemPage, len(sizes))
	n := 0
	for i, size := range sizes {
		for range size {
			n++
			id := fmt.Sprintf("%s-%03d", playlistID, n)
			ids = append(ids, id)
			pages[i].Items = append(pages[i].Items, sources.RawPlaylistItem{
				VideoID:     id,
				Title:       "Video " + id,
				Description: "about " + id,
				PublishedAt: time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC),
				Position:    int64(n - 1),
			})
			p.details[id] = sources.DetailPayload{VideoID: id, ViewCount: int64(n * 10), LikeCount: int64(n), Duration: "PT1M5S"}
		}
		if i < len(sizes)-1 {
			pages[i].NextPageToken = "page-" + strconv.Itoa(i+1)
		}
	}
	p.pages[playlistID] = pages
	p.playlists[playlistID] = &sources.PlaylistInfo{ID: playlistID, Title: "Playlist " + playlistID, ChannelID: channelID, ItemCount: int64(n)}
	return ids
}

func (p *fakePlatform) LookupChannel(_ context.Context, identifier string) (*sources.ChannelInfo, error) {
	p.count("channels")
	p.mu.Lock()
	defer p.mu.Unlock()
	ci, ok := p.channels[identifier]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", identifier, sources.ErrNotFound)
	}
	cp := *ci
	return &cp, nil
}

func (p *fakePlatform) LookupPlaylist(_ context.Context, playlistID string) (*sources.PlaylistInfo, error) {
	p.count("playlists")
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, sources.ErrNotFound)
	}
	cp := *pl
	return &cp, nil
}

func (p *fakePlatform) ListPlaylistItems(_ context.Context, playlistID, pageToken string, pageSize int) (*sources.ItemPage, error) {
	p.count("playlistItems")
	idx := 0
	if pageToken != "" {
		idx, _ = strconv.Atoi(strings.TrimPrefix(pageToken, "page-"))
	}
	if p.onList != nil {
		p.onList(idx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.listErr[idx]; err != nil {
		return nil, err
	}
	pages := p.pages[playlistID]
	if idx >= len(pages) {
		return &sources.ItemPage{}, nil
	}
	page := pages[idx]
	if len(page.Items) > pageSize {
		panic("fake page larger than requested page size")
	}
	return &page, nil
}

func (p *fakePlatform) VideoDetails(_ context.Context, ids []string) (map[string]sources.DetailPayload, error) {
	p.count("videos")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detailErr != nil {
		return nil, p.detailErr
	}
	out := make(map[string]sources.DetailPayload, len(ids))
	for _, id := range ids {
		if d, ok := p.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (p *fakePlatform) FetchVideo(_ context.Context, videoID string) (*sources.VideoInfo, error) {
	p.count("video")
	p.mu.Lock()
	defer p.mu.Unlock()
	vi, ok := p.videos[videoID]
	if !ok {
		return nil, fmt.Errorf("video %s: %w", videoID, sources.ErrNotFound)
	}
	cp := *vi
	return &cp, nil
}

func (p *fakePlatform) setDetail(id string, d sources.DetailPayload) {
	p.mu.Lock()
	p.details[id] = d
	p.mu.Unlock()
}

func (p *fakePlatform) dropDetail(id string) {
	p.mu.Lock()
	delete(p.details, id)
	p.mu.Unlock()
}

// fakeTranscripts returns a track per video, an error, or captions_disabled by default.
type fakeTranscripts struct {
	mu          sync.Mutex
	tracks      map[string]*sources.Transcript
	errs        map[string]error
	delay       time.Duration
	calls       int
	inFlight    int
	maxInFlight int
}

func newFakeTranscripts() *fakeTranscripts {
	return &fakeTranscripts{tracks: map[string]*sources.Transcript{}, errs: map[string]error{}}
}

func (f *fakeTranscripts) withTracks(ids ...string) *fakeTranscripts {
	for _, id := range ids {
		f.tracks[id] = &sources.Transcript{Content: "words of " + id, Language: "en", IsGenerated: true}
	}
	return f
}

func (f *fakeTranscripts) set(id string, tr *sources.Transcript, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracks, id)
	delete(f.errs, id)
	if tr != nil {
		f.tracks[id] = tr
	}
	if err != nil {
		f.errs[id] = err
	}
}

func (f *fakeTranscripts) Fetch(_ context.Context, videoID string) (sources.TranscriptLookup, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	tr, err := f.tracks[videoID], f.errs[videoID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return sources.TranscriptLookup{}, fmt.Errorf("%w: %s: %w", sources.ErrTranscriptFetch, videoID, err)
	}
	if tr != nil {
		cp := *tr
		return sources.TranscriptLookup{Track: &cp}, nil
	}
	return sources.TranscriptLookup{Reason: sources.ReasonCaptionsDisabled}, nil
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tube.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func countRows(t *testing.T, st store.Store) store.Counts {
	t.Helper()
	c, err := st.Counts(context.Background())
	require.NoError(t, err)
	return c
}
