// Package sqlite implements the warehouse repository on database/sql with
// the modernc driver. There is no COPY-style bulk primitive, so staging and
// row-wise loads both run as prepared inserts inside a transaction, which
// keeps performance acceptable for moderate volumes and makes the backend
// the natural target for tests and local runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"playetl/internal/schema"
	"playetl/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
}

// Repository is the SQLite-backed storage.Repository and StageMerger.
type Repository struct {
	db         *sql.DB
	autoCreate bool
}

var (
	_ storage.Repository  = (*Repository)(nil)
	_ storage.StageMerger = (*Repository)(nil)
)

// NewRepository opens the DSN and fails fast on invalid paths.
//
// DSN is passed directly to database/sql, e.g. "warehouse.db" or
// "file:warehouse.db?cache=shared".
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectivityError{Op: "open", Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &storage.ConnectivityError{Op: "ping", Err: err}
	}

	// Single writer; the driver serializes anyway and this avoids
	// SQLITE_BUSY on the :memory: DSN used in tests.
	db.SetMaxOpenConns(1)
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	return &Repository{db: db, autoCreate: cfg.AutoCreateTables}, nil
}

func (r *Repository) Close() { _ = r.db.Close() }

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if !r.autoCreate {
		return nil
	}
	for _, stmt := range createStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return classify("schema", err)
		}
	}
	return nil
}

// execRows runs one prepared statement per row inside a transaction and
// sums the affected counts.
func (r *Repository) execRows(ctx context.Context, table, sqlStmt string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(table, err)
	}
	stmt, err := tx.PrepareContext(ctx, sqlStmt)
	if err != nil {
		_ = tx.Rollback()
		return 0, classify(table, err)
	}
	defer stmt.Close()

	var affected int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			_ = tx.Rollback()
			return affected, classify(table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}
	if err := tx.Commit(); err != nil {
		return affected, classify(table, err)
	}
	return affected, nil
}

func (r *Repository) UpsertSongs(ctx context.Context, rows []schema.Song) (int64, error) {
	return r.execRows(ctx, "songs", insertSong, values(rows, schema.Song.Values))
}

func (r *Repository) UpsertArtists(ctx context.Context, rows []schema.Artist) (int64, error) {
	return r.execRows(ctx, "artists", insertArtist, values(rows, schema.Artist.Values))
}

func (r *Repository) UpsertUsers(ctx context.Context, rows []schema.User) (int64, error) {
	return r.execRows(ctx, "users", upsertUser, values(rows, schema.User.Values))
}

func (r *Repository) UpsertTimeBuckets(ctx context.Context, rows []schema.TimeBucket) (int64, error) {
	return r.execRows(ctx, "time_buckets", insertTimeBucket, values(rows, schema.TimeBucket.Values))
}

func (r *Repository) InsertPlayEvents(ctx context.Context, rows []schema.PlayEvent) (int64, error) {
	return r.execRows(ctx, "play_events", insertPlayEvent, values(rows, schema.PlayEvent.Values))
}

func (r *Repository) SongKeys(ctx context.Context) ([]storage.SongKey, error) {
	rows, err := r.db.QueryContext(ctx, selectSongKeys)
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
	if err := r.db.QueryRowContext(ctx, countResolved).Scan(&n); err != nil {
		return 0, classify("play_events", err)
	}
	return n, nil
}

func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	if !storage.KnownTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, classify(table, err)
	}
	return n, nil
}

func (r *Repository) ResetStaging(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM staging_songs", "DELETE FROM staging_events"} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return classify("staging", err)
		}
	}
	return nil
}

func (r *Repository) StageSongs(ctx context.Context, rows []schema.SongMeta) (int64, error) {
	return r.execRows(ctx, "staging_songs",
		insertInto("staging_songs", schema.StageSongColumns),
		values(rows, schema.SongMeta.StageValues))
}

func (r *Repository) StageEvents(ctx context.Context, rows []schema.LogEvent) (int64, error) {
	return r.execRows(ctx, "staging_events",
		insertInto("staging_events", schema.StageEventColumns),
		values(rows, schema.LogEvent.StageValues))
}

func (r *Repository) MergeDimensions(ctx context.Context) error {
	for _, stmt := range mergeStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return classify("merge", err)
		}
	}
	return nil
}

func (r *Repository) InsertFactsFromStage(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, insertFactsFromStage); err != nil {
		return classify("play_events", err)
	}
	return nil
}

// classify maps driver errors onto the run-fatal storage error kinds. The
// modernc driver exposes violations only through the message text.
func classify(table string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") {
		return &storage.ConstraintError{Table: table, Err: err}
	}
	return fmt.Errorf("%s: %w", table, err)
}

func insertInto(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range marks {
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

func values[T any](rows []T, f func(T) []any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = f(row)
	}
	return out
}
