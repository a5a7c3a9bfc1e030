// Package tubeserver exposes the ingestion pipeline as MCP tools.
package tubeserver

import (
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_tube/internal/engine/ingest"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps are the services behind the tools.
type Deps struct {
	Ingest *ingest.Orchestrator
	Store  store.Store
	// Transcripts is nil when transcript fetching is disabled.
	Transcripts *sources.TranscriptFetcher
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 6

type tools struct {
	Deps
}

// RegisterTools registers ingest_channel, ingest_playlist, ingest_video,
// refresh_video, video_history and video_transcript.
func RegisterTools(server *mcp.Server, d Deps) {
	t := &tools{Deps: d}
	t.registerIngestChannel(server)
	t.registerIngestPlaylist(server)
	t.registerIngestVideo(server)
	t.registerRefreshVideo(server)
	t.registerVideoHistory(server)
	t.registerVideoTranscript(server)
}

// userError rewrites pipeline sentinels into messages an MCP client can act on.
func userError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrSizeLimitExceeded):
		return fmt.Errorf("%w (pass max_results to crawl part of it)", err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w (run ingest_video first)", err)
	}
	return err
}
