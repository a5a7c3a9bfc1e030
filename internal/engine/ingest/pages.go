package ingest

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_tube/internal/engine/sources"
)

// PageLister fetches one page of a playlist listing.
type PageLister interface {
	ListPlaylistItems(ctx context.Context, playlistID, pageToken string, pageSize int) (*sources.ItemPage, error)
}

// WalkOptions bound a PageWalker.
type WalkOptions struct {
	PageSize   int    // items per call, capped at sources.MaxBatch
	MaxResults int    // 0 = walk to the end
	StartToken string // resume from a previous walker's Token()

	// When Ceiling > 0 and ReportedTotal exceeds it, NewPageWalker fails
	// with ErrSizeLimitExceeded.
	ReportedTotal int64
	Ceiling       int
}

// PageWalker iterates a playlist page by page, carrying the continuation token.
// It stops on an empty page, a missing token, or once MaxResults items were yielded.
// Not safe for concurrent use.
type PageWalker struct {
	lister     PageLister
	playlistID string
	opts       WalkOptions

	token   string
	done    bool
	capped  bool
	yielded int
	calls   int
}

// NewPageWalker validates the size ceiling and returns a walker positioned at
// opts.StartToken. No remote call is made.
func NewPageWalker(lister PageLister, playlistID string, opts WalkOptions) (*PageWalker, error) {
	if opts.Ceiling > 0 && opts.ReportedTotal > int64(opts.Ceiling) {
		return nil, fmt.Errorf("%w: playlist %s reports %d items, ceiling is %d",
			ErrSizeLimitExceeded, playlistID, opts.ReportedTotal, opts.Ceiling)
	}
	if opts.PageSize <= 0 || opts.PageSize > sources.MaxBatch {
		opts.PageSize = sources.MaxBatch
	}
	return &PageWalker{lister: lister, playlistID: playlistID, opts: opts, token: opts.StartToken}, nil
}

// Next fetches the next page. ok is false once the walk is finished.
// After an error the walker can be retried, or resumed elsewhere from Token().
func (w *PageWalker) Next(ctx context.Context) (items []sources.RawPlaylistItem, ok bool, err error) {
	if w.done {
		return nil, false, nil
	}

	page, err := w.lister.ListPlaylistItems(ctx, w.playlistID, w.token, w.opts.PageSize)
	w.calls++
	if err != nil {
		return nil, false, err
	}
	if len(page.Items) == 0 {
		w.done = true
		return nil, false, nil
	}

	items = page.Items
	if max := w.opts.MaxResults; max > 0 {
		if remaining := max - w.yielded; len(items) >= remaining {
			w.capped = len(items) > remaining || page.NextPageToken != ""
			items = items[:remaining]
			w.done = true
		}
	}
	w.yielded += len(items)
	w.token = page.NextPageToken
	if w.token == "" {
		w.done = true
	}
	return items, true, nil
}

// Token is the continuation token of the next page ("" before the first page or at the end).
func (w *PageWalker) Token() string { return w.token }

// Calls is the number of remote page requests made.
func (w *PageWalker) Calls() int { return w.calls }

// Yielded is the number of items returned so far.
func (w *PageWalker) Yielded() int { return w.yielded }

// Capped reports whether MaxResults cut the walk short of the playlist's end.
func (w *PageWalker) Capped() bool { return w.capped }
