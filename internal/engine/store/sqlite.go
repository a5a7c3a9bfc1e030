package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite is the single-file Store. One connection serializes all writers.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// DefaultSQLitePath returns ~/.go_tube/tube.db.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".go_tube", "tube.db")
}

// OpenSQLite opens (creating if needed) the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("sqlite store opened", slog.String("path", path))
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// tsLayout is fixed-width so TEXT ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const sqliteChannelCols = `id, youtube_id, title, description, subscriber_count, video_count, created_at, updated_at`

const sqliteVideoCols = `id, youtube_id, channel_id, title, description, published_at,
	view_count, like_count, duration_seconds, created_at, updated_at`

func (s *SQLite) UpsertChannel(ctx context.Context, in ChannelInput) (*Channel, error) {
	ts := formatTS(s.now())
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO channels (youtube_id, title, description, subscriber_count, video_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (youtube_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			subscriber_count = excluded.subscriber_count,
			video_count = excluded.video_count,
			updated_at = excluded.updated_at
		RETURNING `+sqliteChannelCols,
		in.YouTubeID, in.Title, in.Description, in.SubscriberCount, in.VideoCount, ts, ts)
	ch, err := scanSQLiteChannel(row)
	if err != nil {
		return nil, fmt.Errorf("upsert channel %s: %w", in.YouTubeID, sqliteError(err))
	}
	return ch, nil
}

func (s *SQLite) GetChannel(ctx context.Context, youtubeID string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteChannelCols+` FROM channels WHERE youtube_id = ?`, youtubeID)
	ch, err := scanSQLiteChannel(row)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", youtubeID, sqliteError(err))
	}
	return ch, nil
}

func (s *SQLite) UpsertVideo(ctx context.Context, in VideoInput, mode UpsertMode) (*Video, bool, error) {
	ts := formatTS(s.now())
	if mode == UpsertStatsOnly {
		row := s.db.QueryRowContext(ctx, `
			UPDATE videos SET view_count = ?, like_count = ?, updated_at = ?
			WHERE youtube_id = ?
			RETURNING `+sqliteVideoCols,
			in.ViewCount, in.LikeCount, ts, in.YouTubeID)
		v, err := scanSQLiteVideo(row)
		if err != nil {
			return nil, false, fmt.Errorf("refresh video %s: %w", in.YouTubeID, sqliteError(err))
		}
		return v, false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT count(*) FROM videos WHERE youtube_id = ?`, in.YouTubeID).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("check video %s: %w", in.YouTubeID, sqliteError(err))
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO videos (youtube_id, channel_id, title, description, published_at,
			view_count, like_count, duration_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (youtube_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			title = excluded.title,
			description = excluded.description,
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			updated_at = excluded.updated_at
		RETURNING `+sqliteVideoCols,
		in.YouTubeID, in.ChannelID, in.Title, in.Description, formatTS(in.PublishedAt),
		in.ViewCount, in.LikeCount, in.DurationSeconds, ts, ts)
	v, err := scanSQLiteVideo(row)
	if err != nil {
		return nil, false, fmt.Errorf("upsert video %s: %w", in.YouTubeID, sqliteError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit video %s: %w", in.YouTubeID, sqliteError(err))
	}
	return v, exists == 0, nil
}

func (s *SQLite) GetVideo(ctx context.Context, youtubeID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteVideoCols+` FROM videos WHERE youtube_id = ?`, youtubeID)
	v, err := scanSQLiteVideo(row)
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", youtubeID, sqliteError(err))
	}
	return v, nil
}

func (s *SQLite) AppendSnapshot(ctx context.Context, videoID, views, likes int64, runID string) (*MetricSnapshot, error) {
	var snap MetricSnapshot
	var captured string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO video_metrics (video_id, view_count, like_count, run_id, captured_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, video_id, view_count, like_count, run_id, captured_at`,
		videoID, views, likes, runID, formatTS(s.now()),
	).Scan(&snap.ID, &snap.VideoID, &snap.ViewCount, &snap.LikeCount, &snap.RunID, &captured)
	if err != nil {
		return nil, fmt.Errorf("append snapshot for video %d: %w", videoID, sqliteError(err))
	}
	snap.CapturedAt = parseTS(captured)
	return &snap, nil
}

func (s *SQLite) ListSnapshots(ctx context.Context, videoID int64, limit int) ([]MetricSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_id, view_count, like_count, run_id, captured_at
		FROM video_metrics
		WHERE video_id = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []MetricSnapshot
	for rows.Next() {
		var snap MetricSnapshot
		var captured string
		if err := rows.Scan(&snap.ID, &snap.VideoID, &snap.ViewCount, &snap.LikeCount, &snap.RunID, &captured); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.CapturedAt = parseTS(captured)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLite) GetOrCreateTranscript(ctx context.Context, videoID int64, in TranscriptInput) (*Transcript, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanSQLiteTranscript(tx.QueryRowContext(ctx, `
		SELECT id, video_id, content, language, is_generated, created_at
		FROM transcripts WHERE video_id = ? ORDER BY id LIMIT 1`, videoID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("get transcript %d: %w", videoID, sqliteError(err))
	}

	t, err := scanSQLiteTranscript(tx.QueryRowContext(ctx, `
		INSERT INTO transcripts (video_id, content, language, is_generated, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, video_id, content, language, is_generated, created_at`,
		videoID, in.Content, in.Language, in.IsGenerated, formatTS(s.now())))
	if err != nil {
		return nil, false, fmt.Errorf("insert transcript %d: %w", videoID, sqliteError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transcript %d: %w", videoID, sqliteError(err))
	}
	return t, true, nil
}

func (s *SQLite) GetTranscript(ctx context.Context, videoID int64) (*Transcript, error) {
	t, err := scanSQLiteTranscript(s.db.QueryRowContext(ctx, `
		SELECT id, video_id, content, language, is_generated, created_at
		FROM transcripts WHERE video_id = ? ORDER BY id LIMIT 1`, videoID))
	if err != nil {
		return nil, fmt.Errorf("get transcript %d: %w", videoID, sqliteError(err))
	}
	return t, nil
}

func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM channels),
			(SELECT count(*) FROM videos),
			(SELECT count(*) FROM video_metrics),
			(SELECT count(*) FROM transcripts)`,
	).Scan(&c.Channels, &c.Videos, &c.Snapshots, &c.Transcripts)
	if err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}

func scanSQLiteChannel(row *sql.Row) (*Channel, error) {
	var c Channel
	var created, updated string
	if err := row.Scan(&c.ID, &c.YouTubeID, &c.Title, &c.Description,
		&c.SubscriberCount, &c.VideoCount, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt, c.UpdatedAt = parseTS(created), parseTS(updated)
	return &c, nil
}

func scanSQLiteVideo(row *sql.Row) (*Video, error) {
	var v Video
	var published, created, updated string
	if err := row.Scan(&v.ID, &v.YouTubeID, &v.ChannelID, &v.Title, &v.Description, &published,
		&v.ViewCount, &v.LikeCount, &v.DurationSeconds, &created, &updated); err != nil {
		return nil, err
	}
	v.PublishedAt, v.CreatedAt, v.UpdatedAt = parseTS(published), parseTS(created), parseTS(updated)
	return &v, nil
}

func scanSQLiteTranscript(row *sql.Row) (*Transcript, error) {
	var t Transcript
	var created string
	if err := row.Scan(&t.ID, &t.VideoID, &t.Content, &t.Language, &t.IsGenerated, &created); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTS(created)
	return &t, nil
}

// sqliteError maps driver errors onto the store sentinels, keeping the cause.
func sqliteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch {
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"):
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
