package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a channel, playlist or video identifier did not resolve. Fatal to the call.
	ErrNotFound = errors.New("not found")
	// ErrSizeLimitExceeded: a playlist reports more items than the configured ceiling.
	// Returned before any page is fetched.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
)

// FailureKind classifies a per-item failure.
type FailureKind string

const (
	KindTranscriptFetch   FailureKind = "transcript_fetch_failed"
	KindMalformedDuration FailureKind = "malformed_duration"
	KindDetailFetch       FailureKind = "detail_fetch_failed"
	KindPersistence       FailureKind = "persistence_failed"
)

// ItemError is one item-level failure. A transcript_fetch_failed item is still
// persisted; every other kind means the item was skipped.
type ItemError struct {
	VideoID string      `json:"video_id"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"error"`
	Err     error       `json:"-"`
}

func newItemError(videoID string, kind FailureKind, err error) ItemError {
	return ItemError{VideoID: videoID, Kind: kind, Message: err.Error(), Err: err}
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.VideoID, e.Kind, e.Message)
}

func (e *ItemError) Unwrap() error { return e.Err }
