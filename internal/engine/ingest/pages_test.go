package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, w *PageWalker) [][]sources.RawPlaylistItem {
	t.Helper()
	var pages [][]sources.RawPlaylistItem
	for {
		items, ok, err := w.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return pages
		}
		pages = append(pages, items)
	}
}

func pageSizes(pages [][]sources.RawPlaylistItem) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = len(p)
	}
	return out
}

func TestPageWalkerWalksAllPages(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50, 50, 7)

	w, err := NewPageWalker(p, "PL1", WalkOptions{PageSize: 50})
	require.NoError(t, err)
	pages := drain(t, w)

	assert.Equal(t, []int{50, 50, 7}, pageSizes(pages))
	assert.Equal(t, 3, w.Calls())
	assert.Equal(t, 107, w.Yielded())
	assert.Empty(t, w.Token())
	assert.False(t, w.Capped())
	assert.Equal(t, "PL1-051", pages[1][0].VideoID)
}

func TestPageWalkerMaxResultsTruncatesLastPage(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50, 50, 7)

	w, err := NewPageWalker(p, "PL1", WalkOptions{PageSize: 50, MaxResults: 60})
	require.NoError(t, err)
	pages := drain(t, w)

	assert.Equal(t, []int{50, 10}, pageSizes(pages))
	assert.Equal(t, 2, w.Calls())
	assert.True(t, w.Capped())
}

func TestPageWalkerMaxResultsAtPlaylistEnd(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50, 7)

	w, err := NewPageWalker(p, "PL1", WalkOptions{MaxResults: 57})
	require.NoError(t, err)
	pages := drain(t, w)

	assert.Equal(t, []int{50, 7}, pageSizes(pages))
	assert.False(t, w.Capped())
}

func TestPageWalkerCeilingFailsBeforeFetching(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50)

	_, err := NewPageWalker(p, "PL1", WalkOptions{ReportedTotal: 600, Ceiling: 500})
	assert.True(t, errors.Is(err, ErrSizeLimitExceeded), "got %v", err)
	assert.Zero(t, p.callCount("playlistItems"))

	_, err = NewPageWalker(p, "PL1", WalkOptions{ReportedTotal: 500, Ceiling: 500})
	assert.NoError(t, err)
}

func TestPageWalkerResumesFromToken(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50, 50, 7)

	w, err := NewPageWalker(p, "PL1", WalkOptions{StartToken: "page-2"})
	require.NoError(t, err)
	pages := drain(t, w)

	assert.Equal(t, []int{7}, pageSizes(pages))
	assert.Equal(t, 1, w.Calls())
}

func TestPageWalkerEmptyPlaylist(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1")

	w, err := NewPageWalker(p, "PL1", WalkOptions{})
	require.NoError(t, err)
	assert.Empty(t, drain(t, w))
	assert.Equal(t, 1, w.Calls())
}

func TestPageWalkerErrorKeepsPosition(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50, 50, 7)
	boom := errors.New("boom")
	p.listErr[1] = boom

	w, err := NewPageWalker(p, "PL1", WalkOptions{})
	require.NoError(t, err)

	_, ok, err := w.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = w.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "page-1", w.Token())

	delete(p.listErr, 1)
	items, ok, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, items, 50)
}

func TestPageWalkerClampsPageSize(t *testing.T) {
	p := newFakePlatform()
	p.addPlaylist("UC1", "PL1", 50)

	w, err := NewPageWalker(p, "PL1", WalkOptions{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, []int{50}, pageSizes(drain(t, w)))
}
