package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIKey        string
	YouTubeQPS           float64 // Data API requests per second across the process
	YouTubeBurst         int
	TranscriptsEnabled   bool
	TranscriptLangs      []string // fallback order, e.g. ["en"]
	PageSize             int      // playlist page size, platform max is 50
	MaxPlaylistItems     int      // safety ceiling for playlist crawls
	EnrichConcurrency    int      // transcript fetches in flight per page
	WriteConcurrency     int      // sink writes in flight per page
	IngestTimeout        time.Duration
	FetchTimeout         time.Duration
	DatabaseURL          string // Postgres; empty = SQLite at SQLitePath
	SQLitePath           string
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources, ingest, store).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c.withDefaults()
	Cfg = &cfg
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 || c.PageSize > 50 {
		c.PageSize = 50
	}
	if c.MaxPlaylistItems <= 0 {
		c.MaxPlaylistItems = 500
	}
	if c.EnrichConcurrency <= 0 {
		c.EnrichConcurrency = c.PageSize
	}
	if c.WriteConcurrency <= 0 {
		c.WriteConcurrency = 4
	}
	if len(c.TranscriptLangs) == 0 {
		c.TranscriptLangs = []string{"en"}
	}
	if c.YouTubeQPS <= 0 {
		c.YouTubeQPS = 5
	}
	if c.YouTubeBurst <= 0 {
		c.YouTubeBurst = 10
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}
