// Package postgres implements the warehouse repository on pgx v5. Row-wise
// upserts run as batched ON CONFLICT statements; the bulk variant lands raw
// records via COPY and merges with set-based SQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"playetl/internal/schema"
	"playetl/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
}

// Repository is the Postgres-backed storage.Repository and StageMerger.
type Repository struct {
	pool       *pgxpool.Pool
	autoCreate bool
}

var (
	_ storage.Repository  = (*Repository)(nil)
	_ storage.StageMerger = (*Repository)(nil)
)

// NewRepository opens a pool and verifies connectivity.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectivityError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &storage.ConnectivityError{Op: "ping", Err: err}
	}
	return &Repository{pool: pool, autoCreate: cfg.AutoCreateTables}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// EnsureSchema applies the warehouse DDL when auto-create is enabled.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if !r.autoCreate {
		return nil
	}
	for _, stmt := range createStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return classify("schema", err)
		}
	}
	return nil
}

// execBatch queues one statement per row and sums the affected counts.
func (r *Repository) execBatch(ctx context.Context, table, sql string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(sql, row...)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var affected int64
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			return affected, classify(table, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

func (r *Repository) UpsertSongs(ctx context.Context, rows []schema.Song) (int64, error) {
	return r.execBatch(ctx, "songs", insertSong, values(rows, schema.Song.Values))
}

func (r *Repository) UpsertArtists(ctx context.Context, rows []schema.Artist) (int64, error) {
	return r.execBatch(ctx, "artists", insertArtist, values(rows, schema.Artist.Values))
}

func (r *Repository) UpsertUsers(ctx context.Context, rows []schema.User) (int64, error) {
	return r.execBatch(ctx, "users", upsertUser, values(rows, schema.User.Values))
}

func (r *Repository) UpsertTimeBuckets(ctx context.Context, rows []schema.TimeBucket) (int64, error) {
	return r.execBatch(ctx, "time_buckets", insertTimeBucket, values(rows, schema.TimeBucket.Values))
}

func (r *Repository) InsertPlayEvents(ctx context.Context, rows []schema.PlayEvent) (int64, error) {
	return r.execBatch(ctx, "play_events", insertPlayEvent, values(rows, schema.PlayEvent.Values))
}

// SongKeys returns the natural-key surface for the resolver index.
func (r *Repository) SongKeys(ctx context.Context) ([]storage.SongKey, error) {
	rows, err := r.pool.Query(ctx, selectSongKeys)
	if err != nil {
		return nil, classify("songs", err)
	}
	defer rows.Close()

	var out []storage.SongKey
	for rows.Next() {
		var k storage.SongKey
		if err := rows.Scan(&k.ArtistName, &k.Title, &k.Duration, &k.SongID, &k.ArtistID); err != nil {
			return nil, fmt.Errorf("scan song key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *Repository) CountResolvedPlays(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countResolved).Scan(&n); err != nil {
		return 0, classify("play_events", err)
	}
	return n, nil
}

func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	if !storage.KnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(table)).Scan(&n); err != nil {
		return 0, classify(table, err)
	}
	return n, nil
}

// ResetStaging truncates both staging tables.
func (r *Repository) ResetStaging(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE staging_songs, staging_events"); err != nil {
		return classify("staging", err)
	}
	return nil
}

// StageSongs lands raw song-metadata rows in staging_songs via COPY.
func (r *Repository) StageSongs(ctx context.Context, rows []schema.SongMeta) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"staging_songs"},
		schema.StageSongColumns,
		pgx.CopyFromRows(values(rows, schema.SongMeta.StageValues)),
	)
	if err != nil {
		return n, classify("staging_songs", err)
	}
	return n, nil
}

// StageEvents lands raw log events in staging_events via COPY.
func (r *Repository) StageEvents(ctx context.Context, rows []schema.LogEvent) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"staging_events"},
		schema.StageEventColumns,
		pgx.CopyFromRows(values(rows, schema.LogEvent.StageValues)),
	)
	if err != nil {
		return n, classify("staging_events", err)
	}
	return n, nil
}

// MergeDimensions populates the four dimensions from staging, one statement
// per table, deduping staged rows keep-latest by the staging surrogate.
func (r *Repository) MergeDimensions(ctx context.Context) error {
	for _, stmt := range mergeStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return classify("merge", err)
		}
	}
	return nil
}

// InsertFactsFromStage populates play_events from staged NextSong events.
func (r *Repository) InsertFactsFromStage(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, insertFactsFromStage); err != nil {
		return classify("play_events", err)
	}
	return nil
}

// classify maps driver errors onto the run-fatal storage error kinds.
// Integrity violations (SQLSTATE class 23) become ConstraintError;
// everything else at this layer means the warehouse went away mid-run.
func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") {
			return &storage.ConstraintError{Table: table, Err: err}
		}
		return fmt.Errorf("%s: %w", table, err)
	}
	return &storage.ConnectivityError{Op: table, Err: err}
}

func values[T any](rows []T, f func(T) []any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = f(row)
	}
	return out
}

// pgIdent safely quotes a single identifier segment.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
