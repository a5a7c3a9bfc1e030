package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// ConnectPostgres creates a pgx pool and runs schema migrations.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	err = migrate(sqlDB, "postgres", "migrations/postgres")
	sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("postgres store connected", slog.String("addr", config.ConnConfig.Host))
	return &Postgres{pool: pool}, nil
}

func (db *Postgres) Close() error {
	db.pool.Close()
	return nil
}

const pgChannelCols = `id, youtube_id, title, description, subscriber_count, video_count, created_at, updated_at`

const pgVideoCols = `id, youtube_id, channel_id, title, description, published_at,
	view_count, like_count, duration_seconds, created_at, updated_at`

func (db *Postgres) UpsertChannel(ctx context.Context, in ChannelInput) (*Channel, error) {
	row := db.pool.QueryRow(ctx, `
		INSERT INTO channels (youtube_id, title, description, subscriber_count, video_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (youtube_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			subscriber_count = EXCLUDED.subscriber_count,
			video_count = EXCLUDED.video_count,
			updated_at = now()
		RETURNING `+pgChannelCols,
		in.YouTubeID, in.Title, in.Description, in.SubscriberCount, in.VideoCount)
	ch, err := scanChannel(row)
	if err != nil {
		return nil, fmt.Errorf("upsert channel %s: %w", in.YouTubeID, pgError(err))
	}
	return ch, nil
}

func (db *Postgres) GetChannel(ctx context.Context, youtubeID string) (*Channel, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+pgChannelCols+` FROM channels WHERE youtube_id = $1`, youtubeID)
	ch, err := scanChannel(row)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", youtubeID, pgError(err))
	}
	return ch, nil
}

func (db *Postgres) UpsertVideo(ctx context.Context, in VideoInput, mode UpsertMode) (*Video, bool, error) {
	if mode == UpsertStatsOnly {
		row := db.pool.QueryRow(ctx, `
			UPDATE videos SET view_count = $2, like_count = $3, updated_at = now()
			WHERE youtube_id = $1
			RETURNING `+pgVideoCols,
			in.YouTubeID, in.ViewCount, in.LikeCount)
		v, err := scanVideo(row)
		if err != nil {
			return nil, false, fmt.Errorf("refresh video %s: %w", in.YouTubeID, pgError(err))
		}
		return v, false, nil
	}

	// xmax is 0 only for a freshly inserted tuple.
	row := db.pool.QueryRow(ctx, `
		INSERT INTO videos (youtube_id, channel_id, title, description, published_at,
			view_count, like_count, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (youtube_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			updated_at = now()
		RETURNING `+pgVideoCols+`, (xmax = 0)`,
		in.YouTubeID, in.ChannelID, in.Title, in.Description, in.PublishedAt,
		in.ViewCount, in.LikeCount, in.DurationSeconds)

	var v Video
	var inserted bool
	err := row.Scan(&v.ID, &v.YouTubeID, &v.ChannelID, &v.Title, &v.Description, &v.PublishedAt,
		&v.ViewCount, &v.LikeCount, &v.DurationSeconds, &v.CreatedAt, &v.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert video %s: %w", in.YouTubeID, pgError(err))
	}
	return &v, inserted, nil
}

func (db *Postgres) GetVideo(ctx context.Context, youtubeID string) (*Video, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+pgVideoCols+` FROM videos WHERE youtube_id = $1`, youtubeID)
	v, err := scanVideo(row)
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", youtubeID, pgError(err))
	}
	return v, nil
}

func (db *Postgres) AppendSnapshot(ctx context.Context, videoID, views, likes int64, runID string) (*MetricSnapshot, error) {
	var s MetricSnapshot
	err := db.pool.QueryRow(ctx, `
		INSERT INTO video_metrics (video_id, view_count, like_count, run_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, video_id, view_count, like_count, run_id, captured_at`,
		videoID, views, likes, runID,
	).Scan(&s.ID, &s.VideoID, &s.ViewCount, &s.LikeCount, &s.RunID, &s.CapturedAt)
	if err != nil {
		return nil, fmt.Errorf("append snapshot for video %d: %w", videoID, pgError(err))
	}
	return &s, nil
}

func (db *Postgres) ListSnapshots(ctx context.Context, videoID int64, limit int) ([]MetricSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx, `
		SELECT id, video_id, view_count, like_count, run_id, captured_at
		FROM video_metrics
		WHERE video_id = $1
		ORDER BY captured_at DESC, id DESC
		LIMIT $2`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []MetricSnapshot
	for rows.Next() {
		var s MetricSnapshot
		if err := rows.Scan(&s.ID, &s.VideoID, &s.ViewCount, &s.LikeCount, &s.RunID, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOrCreateTranscript serializes writers for one video with a transaction-scoped
// advisory lock, so two processes cannot both insert a first transcript.
func (db *Postgres) GetOrCreateTranscript(ctx context.Context, videoID int64, in TranscriptInput) (*Transcript, bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, videoID); err != nil {
		return nil, false, fmt.Errorf("lock transcript %d: %w", videoID, pgError(err))
	}

	existing, err := scanTranscript(tx.QueryRow(ctx, `
		SELECT id, video_id, content, language, is_generated, created_at
		FROM transcripts WHERE video_id = $1 ORDER BY id LIMIT 1`, videoID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("get transcript %d: %w", videoID, pgError(err))
	}

	t, err := scanTranscript(tx.QueryRow(ctx, `
		INSERT INTO transcripts (video_id, content, language, is_generated)
		VALUES ($1, $2, $3, $4)
		RETURNING id, video_id, content, language, is_generated, created_at`,
		videoID, in.Content, in.Language, in.IsGenerated))
	if err != nil {
		return nil, false, fmt.Errorf("insert transcript %d: %w", videoID, pgError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transcript %d: %w", videoID, pgError(err))
	}
	return t, true, nil
}

func (db *Postgres) GetTranscript(ctx context.Context, videoID int64) (*Transcript, error) {
	t, err := scanTranscript(db.pool.QueryRow(ctx, `
		SELECT id, video_id, content, language, is_generated, created_at
		FROM transcripts WHERE video_id = $1 ORDER BY id LIMIT 1`, videoID))
	if err != nil {
		return nil, fmt.Errorf("get transcript %d: %w", videoID, pgError(err))
	}
	return t, nil
}

func (db *Postgres) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.pool.QueryRow(ctx, `
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

func scanChannel(row pgx.Row) (*Channel, error) {
	var c Channel
	if err := row.Scan(&c.ID, &c.YouTubeID, &c.Title, &c.Description,
		&c.SubscriberCount, &c.VideoCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanVideo(row pgx.Row) (*Video, error) {
	var v Video
	if err := row.Scan(&v.ID, &v.YouTubeID, &v.ChannelID, &v.Title, &v.Description, &v.PublishedAt,
		&v.ViewCount, &v.LikeCount, &v.DurationSeconds, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanTranscript(row pgx.Row) (*Transcript, error) {
	var t Transcript
	if err := row.Scan(&t.ID, &t.VideoID, &t.Content, &t.Language, &t.IsGenerated, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// pgError maps driver errors onto the store sentinels, keeping the cause.
func pgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
