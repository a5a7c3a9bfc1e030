package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeVideo(t *testing.T) {
	item := sources.RawPlaylistItem{VideoID: "v1", Title: "t", Description: "d", PublishedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	rec, err := MergeVideo(item, sources.DetailPayload{ViewCount: 5, LikeCount: 2, Duration: "PT1H2M3S"}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", rec.YouTubeID)
	assert.Equal(t, item.PublishedAt, rec.PublishedAt)
	assert.EqualValues(t, 5, rec.ViewCount)
	assert.Equal(t, 3723, rec.DurationSeconds)

	missing, err := MergeVideo(item, sources.DetailPayload{}, false, nil)
	require.NoError(t, err)
	assert.Zero(t, missing.ViewCount)
	assert.Zero(t, missing.LikeCount)
	assert.Zero(t, missing.DurationSeconds)
	assert.Equal(t, "t", missing.Title)

	_, err = MergeVideo(item, sources.DetailPayload{Duration: "1:02:03"}, true, nil)
	assert.True(t, errors.Is(err, sources.ErrMalformedDuration), "got %v", err)
}

func TestEnrichOneDetailCallPerPage(t *testing.T) {
	p := newFakePlatform()
	ids := p.addPlaylist("UC1", "PL1", 50)
	tr := newFakeTranscripts().withTracks(ids[0])

	res := NewEnricher(p, tr, 8).Enrich(context.Background(), p.pages["PL1"][0].Items)

	assert.Equal(t, 1, p.callCount("videos"))
	assert.Equal(t, 50, tr.calls)
	require.Len(t, res.Records, 50)
	assert.Empty(t, res.Failures)
	assert.Equal(t, ids[0], res.Records[0].YouTubeID)
	assert.NotNil(t, res.Records[0].Transcript)
	assert.Nil(t, res.Records[1].Transcript)
}

func TestEnrichBoundsTranscriptConcurrency(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 12)
	tr := newFakeTranscripts()
	tr.delay = 5 * time.Millisecond

	NewEnricher(p, tr, 3).Enrich(context.Background(), p.pages["PL1"][0].Items)

	assert.Equal(t, 12, tr.calls)
	assert.LessOrEqual(t, tr.maxInFlight, 3)
	assert.GreaterOrEqual(t, tr.maxInFlight, 1)
}

func TestEnrichDetailFailureMarksWholePage(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 7)
	p.detailErr = errors.New("quota")
	tr := newFakeTranscripts()

	res := NewEnricher(p, tr, 4).Enrich(context.Background(), p.pages["PL1"][0].Items)

	assert.Empty(t, res.Records)
	require.Len(t, res.Failures, 7)
	for _, f := range res.Failures {
		assert.Equal(t, KindDetailFetch, f.Kind)
	}
	assert.Zero(t, tr.calls)
}

func TestEnrichIsolatesItemFailures(t *testing.T) {
	p := newFakePlatform()
	ids := p.addPlaylist("UC1", "PL1", 5)
	p.details[ids[2]] = sources.DetailPayload{VideoID: ids[2], Duration: "PTXS"}
	p.dropDetail(ids[3])
	tr := newFakeTranscripts().withTracks(ids...)
	tr.set(ids[1], nil, errors.New("blocked"))

	res := NewEnricher(p, tr, 5).Enrich(context.Background(), p.pages["PL1"][0].Items)

	require.Len(t, res.Records, 4)
	require.Len(t, res.Failures, 2)
	kinds := map[string]FailureKind{}
	for _, f := range res.Failures {
		kinds[f.VideoID] = f.Kind
	}
	assert.Equal(t, KindTranscriptFetch, kinds[ids[1]])
	assert.Equal(t, KindMalformedDuration, kinds[ids[2]])

	got := map[string]VideoRecord{}
	for _, r := range res.Records {
		got[r.YouTubeID] = r
	}
	assert.Nil(t, got[ids[1]].Transcript, "failed transcript still yields a record")
	assert.Zero(t, got[ids[3]].ViewCount, "missing detail yields zero stats")
	assert.NotNil(t, got[ids[4]].Transcript)
}

func TestEnrichWithoutTranscripts(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 3)

	res := NewEnricher(p, nil, 0).Enrich(context.Background(), p.pages["PL1"][0].Items)
	require.Len(t, res.Records, 3)
	for _, r := range res.Records {
		assert.Nil(t, r.Transcript)
	}
}
