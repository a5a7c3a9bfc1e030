package tubeserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (t *tools) registerVideoHistory(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_history",
		Description: "Show a stored video and its view/like snapshots, newest first. Each ingest or refresh run adds one snapshot.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoHistoryInput) (*mcp.CallToolResult, *VideoHistoryOutput, error) {
		out, err := t.videoHistory(ctx, input)
		return nil, out, err
	})
}

func (t *tools) videoHistory(ctx context.Context, input VideoHistoryInput) (*VideoHistoryOutput, error) {
	v, err := t.lookupStored(ctx, input.Video)
	if err != nil {
		return nil, err
	}
	snaps, err := t.Store.ListSnapshots(ctx, v.ID, toolutil.Clamp(input.Limit, 20, 500))
	if err != nil {
		return nil, err
	}
	out := &VideoHistoryOutput{Video: videoView(v), Snapshots: make([]SnapshotView, len(snaps))}
	for i, s := range snaps {
		out.Snapshots[i] = snapshotView(s)
	}
	return out, nil
}

func (t *tools) registerVideoTranscript(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_transcript",
		Description: "Return the stored transcript of a video: caption text flattened to one string, its language, and whether it was auto-generated.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, *TranscriptOutput, error) {
		out, err := t.videoTranscript(ctx, input)
		return nil, out, err
	})
}

func (t *tools) videoTranscript(ctx context.Context, input TranscriptInput) (*TranscriptOutput, error) {
	v, err := t.lookupStored(ctx, input.Video)
	if err != nil {
		return nil, err
	}
	tr, err := t.Store.GetTranscript(ctx, v.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("video %s has no stored transcript (try refresh_video with recheck_transcript)", v.YouTubeID)
	}
	if err != nil {
		return nil, err
	}

	out := &TranscriptOutput{
		VideoID:     v.YouTubeID,
		Language:    tr.Language,
		IsGenerated: tr.IsGenerated,
		Content:     tr.Content,
	}
	if input.MaxChars > 0 {
		out.Content = engine.ClipRunes(tr.Content, input.MaxChars)
		out.Truncated = len(out.Content) < len(tr.Content)
	}
	return out, nil
}

func (t *tools) lookupStored(ctx context.Context, video string) (*store.Video, error) {
	if video == "" {
		return nil, errors.New("video is required")
	}
	id, err := toolutil.VideoID(video)
	if err != nil {
		return nil, err
	}
	v, err := t.Store.GetVideo(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	return v, nil
}
