package tubeserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_tube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (t *tools) registerRefreshVideo(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_video",
		Description: "Re-read view and like counts of a stored video, update it and append a snapshot. Title, description, duration and publish date are left untouched. Also stores a transcript if the video had none and one is now available.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RefreshInput) (*mcp.CallToolResult, *VideoOutput, error) {
		out, err := t.refreshVideo(ctx, input)
		return nil, out, err
	})
}

func (t *tools) refreshVideo(ctx context.Context, input RefreshInput) (*VideoOutput, error) {
	if input.Video == "" {
		return nil, errors.New("video is required")
	}
	id, err := toolutil.VideoID(input.Video)
	if err != nil {
		return nil, err
	}
	if input.RecheckTranscript && t.Transcripts != nil {
		t.Transcripts.Forget(ctx, id)
	}
	res, err := t.Ingest.RefreshVideoByID(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	return videoOutput(res), nil
}
