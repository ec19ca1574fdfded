// Package mysql implements the warehouse repository for MySQL targets.
// Row-wise loads only: the bulk stage-then-merge variant is reserved for
// warehouse-class backends with a bulk-append primitive, so this repository
// does not implement storage.StageMerger.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"playetl/internal/schema"
	"playetl/internal/storage"
)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
}

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS songs (
		song_id   VARCHAR(32) PRIMARY KEY,
		title     TEXT NOT NULL,
		artist_id VARCHAR(32) NOT NULL,
		year      DOUBLE,
		duration  DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		artist_id VARCHAR(32) PRIMARY KEY,
		name      TEXT NOT NULL,
		location  TEXT,
		latitude  DOUBLE,
		longitude DOUBLE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id    VARCHAR(32) PRIMARY KEY,
		first_name TEXT,
		last_name  TEXT,
		gender     TEXT,
		level      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS time_buckets (
		start_time BIGINT PRIMARY KEY,
		hour       INT NOT NULL,
		day        INT NOT NULL,
		week       INT NOT NULL,
		month      INT NOT NULL,
		year       INT NOT NULL,
		weekday    INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS play_events (
		play_id    BIGINT PRIMARY KEY,
		start_time BIGINT NOT NULL,
		user_id    VARCHAR(32) NOT NULL,
		level      TEXT,
		song_id    VARCHAR(32),
		artist_id  VARCHAR(32),
		session_id BIGINT,
		location   TEXT,
		user_agent TEXT
	)`,
}

const (
	insertSong = `INSERT IGNORE INTO songs (song_id, title, artist_id, year, duration)
		VALUES (?, ?, ?, ?, ?)`

	insertArtist = `INSERT IGNORE INTO artists (artist_id, name, location, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)`

	upsertUser = `INSERT INTO users (user_id, first_name, last_name, gender, level)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			first_name = VALUES(first_name),
			last_name  = VALUES(last_name),
			gender     = VALUES(gender),
			level      = VALUES(level)`

	insertTimeBucket = `INSERT IGNORE INTO time_buckets
		(start_time, hour, day, week, month, year, weekday)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertPlayEvent = `INSERT IGNORE INTO play_events
		(play_id, start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSongKeys = `SELECT a.name, s.title, s.duration, s.song_id, s.artist_id
		FROM songs s JOIN artists a ON s.artist_id = a.artist_id`

	countResolved = `SELECT COUNT(*) FROM play_events
		WHERE song_id IS NOT NULL AND artist_id IS NOT NULL`
)

// Repository is the MySQL-backed storage.Repository.
type Repository struct {
	db         *sql.DB
	autoCreate bool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens a connection pool and verifies connectivity.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, &storage.ConnectivityError{Op: "open", Err: err}
	}
	db.SetConnMaxLifetime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &storage.ConnectivityError{Op: "ping", Err: err}
	}
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

// classify maps driver errors onto the run-fatal storage error kinds.
func classify(table string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062, 1048, 1216, 1217, 1451, 1452:
			return &storage.ConstraintError{Table: table, Err: err}
		}
		return fmt.Errorf("%s: %w", table, err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) || strings.Contains(err.Error(), "connection refused") {
		return &storage.ConnectivityError{Op: table, Err: err}
	}
	return fmt.Errorf("%s: %w", table, err)
}

func values[T any](rows []T, f func(T) []any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = f(row)
	}
	return out
}
