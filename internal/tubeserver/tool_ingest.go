package tubeserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_tube/internal/engine/ingest"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (t *tools) registerIngestChannel(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_channel",
		Description: "Crawl every upload of a YouTube channel into the store: metadata, view/like snapshot and transcript per video. Accepts a channel id (UC...), @handle or channel URL. Re-running is safe and appends a new statistics snapshot per video. Returns counts, per-video failures and whether the crawl was cut short.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input IngestChannelInput) (*mcp.CallToolResult, *CrawlOutput, error) {
		out, err := t.ingestChannel(ctx, input)
		return nil, out, err
	})
}

func (t *tools) ingestChannel(ctx context.Context, input IngestChannelInput) (*CrawlOutput, error) {
	if input.Channel == "" {
		return nil, errors.New("channel is required")
	}
	id, err := toolutil.Channel(input.Channel)
	if err != nil {
		return nil, err
	}
	return crawlResult(t.Ingest.IngestChannel(ctx, id))
}

func (t *tools) registerIngestPlaylist(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_playlist",
		Description: "Crawl a YouTube playlist into the store under its owning channel. Playlists larger than the configured ceiling (default 500) are refused unless max_results is given. A truncated crawl returns next_page_token; pass it back as page_token to continue.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input IngestPlaylistInput) (*mcp.CallToolResult, *CrawlOutput, error) {
		out, err := t.ingestPlaylist(ctx, input)
		return nil, out, err
	})
}

func (t *tools) ingestPlaylist(ctx context.Context, input IngestPlaylistInput) (*CrawlOutput, error) {
	if input.Playlist == "" {
		return nil, errors.New("playlist is required")
	}
	if input.MaxResults < 0 {
		return nil, errors.New("max_results must be positive")
	}
	id, err := toolutil.PlaylistID(input.Playlist)
	if err != nil {
		return nil, err
	}
	return crawlResult(t.Ingest.IngestPlaylist(ctx, id, ingest.PlaylistOptions{
		MaxResults: input.MaxResults,
		PageToken:  input.PageToken,
	}))
}

// crawlResult keeps a partial crawl visible to the client when paging failed midway.
func crawlResult(res *ingest.Result, err error) (*CrawlOutput, error) {
	if res == nil {
		return nil, userError(err)
	}
	out := crawlOutput(res)
	if err != nil {
		slog.Warn("crawl ended early", slog.String("run", res.RunID), slog.Any("error", err))
		out.Error = err.Error()
	}
	return out, nil
}

func (t *tools) registerIngestVideo(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_video",
		Description: "Store a single YouTube video with its channel, statistics snapshot and transcript. A video already in the store is returned as is without calling YouTube; use refresh_video to update it.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoInput) (*mcp.CallToolResult, *VideoOutput, error) {
		out, err := t.ingestVideo(ctx, input)
		return nil, out, err
	})
}

func (t *tools) ingestVideo(ctx context.Context, input VideoInput) (*VideoOutput, error) {
	if input.Video == "" {
		return nil, errors.New("video is required")
	}
	id, err := toolutil.VideoID(input.Video)
	if err != nil {
		return nil, err
	}
	res, err := t.Ingest.IngestSingleVideo(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	return videoOutput(res), nil
}
