package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore opens a fresh SQLite store in a temp dir with a controllable clock.
func openTestStore(t *testing.T) (*SQLite, *fakeClock) {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tube.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seedChannel(t *testing.T, s Store, id string) *Channel {
	t.Helper()
	ch, err := s.UpsertChannel(context.Background(), ChannelInput{YouTubeID: id, Title: "chan " + id, SubscriberCount: 10, VideoCount: 1})
	require.NoError(t, err)
	return ch
}

func TestUpsertChannelOverwritesCounts(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	first := seedChannel(t, s, "UC1")
	clock.Advance(time.Hour)
	second, err := s.UpsertChannel(ctx, ChannelInput{YouTubeID: "UC1", Title: "renamed", SubscriberCount: 5, VideoCount: 7})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "renamed", second.Title)
	assert.EqualValues(t, 5, second.SubscriberCount, "counts are overwritten, not maxed")
	assert.EqualValues(t, 7, second.VideoCount)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Channels)
}

func TestGetChannelNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.GetChannel(context.Background(), "UCnope")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestUpsertVideoCrawlKeepsImmutableFields(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	ch1 := seedChannel(t, s, "UC1")
	ch2 := seedChannel(t, s, "UC2")

	published := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	v, created, err := s.UpsertVideo(ctx, VideoInput{
		YouTubeID: "v1", ChannelID: ch1.ID, Title: "first", PublishedAt: published,
		ViewCount: 100, LikeCount: 10, DurationSeconds: 3723,
	}, UpsertCrawl)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, published, v.PublishedAt)

	again, created, err := s.UpsertVideo(ctx, VideoInput{
		YouTubeID: "v1", ChannelID: ch2.ID, Title: "retitled", PublishedAt: published.Add(time.Hour),
		ViewCount: 150, LikeCount: 12, DurationSeconds: 1,
	}, UpsertCrawl)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v.ID, again.ID)
	assert.Equal(t, ch2.ID, again.ChannelID)
	assert.Equal(t, "retitled", again.Title)
	assert.EqualValues(t, 150, again.ViewCount)
	assert.Equal(t, 3723, again.DurationSeconds, "duration is immutable")
	assert.Equal(t, published, again.PublishedAt, "published_at is immutable")
}

func TestUpsertVideoStatsOnly(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, s, "UC1")

	_, _, err := s.UpsertVideo(ctx, VideoInput{YouTubeID: "v1", ChannelID: ch.ID, Title: "keep", ViewCount: 1}, UpsertCrawl)
	require.NoError(t, err)

	v, created, err := s.UpsertVideo(ctx, VideoInput{YouTubeID: "v1", Title: "ignored", ViewCount: 99, LikeCount: 9}, UpsertStatsOnly)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "keep", v.Title)
	assert.Equal(t, ch.ID, v.ChannelID)
	assert.EqualValues(t, 99, v.ViewCount)
	assert.EqualValues(t, 9, v.LikeCount)

	_, _, err = s.UpsertVideo(ctx, VideoInput{YouTubeID: "ghost", ViewCount: 1}, UpsertStatsOnly)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestUpsertVideoRequiresChannel(t *testing.T) {
	s, _ := openTestStore(t)
	_, _, err := s.UpsertVideo(context.Background(), VideoInput{YouTubeID: "orphan", ChannelID: 4242, Title: "x"}, UpsertCrawl)
	assert.Error(t, err)
}

func TestSnapshotsNewestFirst(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, s, "UC1")
	v, _, err := s.UpsertVideo(ctx, VideoInput{YouTubeID: "v1", ChannelID: ch.ID, Title: "t"}, UpsertCrawl)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		_, err := s.AppendSnapshot(ctx, v.ID, i*100, i, "run")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	snaps, err := s.ListSnapshots(ctx, v.ID, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.EqualValues(t, 300, snaps[0].ViewCount)
	assert.EqualValues(t, 100, snaps[2].ViewCount)
	assert.True(t, snaps[0].CapturedAt.After(snaps[1].CapturedAt))

	limited, err := s.ListSnapshots(ctx, v.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetOrCreateTranscriptNeverOverwrites(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	ch := seedChannel(t, s, "UC1")
	v, _, err := s.UpsertVideo(ctx, VideoInput{YouTubeID: "v1", ChannelID: ch.ID, Title: "t"}, UpsertCrawl)
	require.NoError(t, err)

	_, err = s.GetTranscript(ctx, v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	first, created, err := s.GetOrCreateTranscript(ctx, v.ID, TranscriptInput{Content: "hello", Language: "en", IsGenerated: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.IsGenerated)

	second, created, err := s.GetOrCreateTranscript(ctx, v.ID, TranscriptInput{Content: "other", Language: "de"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hello", second.Content)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Transcripts)
}

func TestTimestampLayoutSortsLexically(t *testing.T) {
	a := formatTS(time.Date(2025, 1, 1, 0, 0, 0, 5, time.UTC))
	b := formatTS(time.Date(2025, 1, 1, 0, 0, 0, 40, time.UTC))
	assert.Less(t, a, b)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 40, time.UTC), parseTS(b))
}
