// go_tube is an MCP server that ingests YouTube channels, playlists and videos.
//
// Crawls channels and playlists through the YouTube Data API, fetches
// transcripts, and stores videos with an append-only history of view and
// like counts in Postgres (DATABASE_URL) or SQLite (SQLITE_PATH).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/ingest"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/engine/store"
	"github.com/anatolykoptev/go_tube/internal/tubeserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	mcpPort := env.Str("MCP_PORT", "8893")

	initEngine()
	ctx := context.Background()

	api, err := sources.NewDataAPI(ctx, engine.Cfg.YouTubeAPIKey, engine.APILimiter())
	if err != nil {
		slog.Error("youtube client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := openStore(ctx)
	if err != nil {
		slog.Error("store init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	deps := tubeserver.Deps{Store: st}
	var transcripts ingest.TranscriptSource
	if engine.Cfg.TranscriptsEnabled {
		deps.Transcripts = sources.NewTranscriptFetcher(engine.Cfg.HTTPClient, engine.Cfg.TranscriptLangs)
		transcripts = deps.Transcripts
		slog.Info("transcripts enabled", slog.Any("langs", engine.Cfg.TranscriptLangs))
	}
	deps.Ingest = ingest.New(api, transcripts, st, ingest.Options{})

	slog.Info("starting go_tube",
		slog.String("port", mcpPort),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_tube",
		Version: version,
	}, nil)

	tubeserver.RegisterTools(server, deps)
	slog.Info("tools registered", slog.Int("count", tubeserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_tube",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 900 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() {
	c := engine.Config{
		YouTubeAPIKey:        env.Str("YOUTUBE_API_KEY", ""),
		YouTubeQPS:           env.Float("YOUTUBE_QPS", 5),
		YouTubeBurst:         env.Int("YOUTUBE_BURST", 10),
		TranscriptsEnabled:   env.Str("TRANSCRIPTS_ENABLED", "true") != "false",
		TranscriptLangs:      env.List("TRANSCRIPT_LANGS", "en"),
		PageSize:             env.Int("PAGE_SIZE", 50),
		MaxPlaylistItems:     env.Int("MAX_PLAYLIST_ITEMS", 500),
		EnrichConcurrency:    env.Int("ENRICH_CONCURRENCY", 0),
		WriteConcurrency:     env.Int("WRITE_CONCURRENCY", 4),
		IngestTimeout:        env.Duration("INGEST_TIMEOUT", 10*time.Minute),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", 15*time.Second),
		DatabaseURL:          env.Str("DATABASE_URL", ""),
		SQLitePath:           env.Str("SQLITE_PATH", ""),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 5000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
	}
	c.HTTPClient = &http.Client{
		Timeout: c.FetchTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	if c.YouTubeAPIKey == "" {
		slog.Warn("YOUTUBE_API_KEY is empty, Data API calls will fail")
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 24*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// openStore picks Postgres when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context) (store.Store, error) {
	if engine.Cfg.DatabaseURL != "" {
		return store.ConnectPostgres(ctx, engine.Cfg.DatabaseURL)
	}
	return store.OpenSQLite(ctx, engine.Cfg.SQLitePath)
}
