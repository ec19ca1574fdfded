// Package storage contains the storage-agnostic warehouse contracts and the
// kind-keyed backend factory. Concrete backends live in subpackages and
// register themselves via init; callers blank-import storage/all and stay
// decoupled from drivers.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"playetl/internal/schema"
)

// Config selects and configures a backend.
type Config struct {
	// Kind selects the backend: "postgres", "sqlite", or "mysql".
	Kind string

	// DSN is the backend connection string.
	DSN string

	// AutoCreateTables applies the schema DDL on EnsureSchema.
	AutoCreateTables bool
}

// SongKey is one entry of the natural-key lookup surface: the triple the
// resolver matches on plus the dimension keys it yields.
type SongKey struct {
	ArtistName string
	Title      string
	Duration   float64
	SongID     string
	ArtistID   string
}

// Repository is the warehouse contract shared by all backends.
//
// Idempotency rules per entity: songs, artists, and time buckets are
// insert-if-new (duplicate natural keys are no-ops); users replace on
// conflict so the latest write wins; play events are append-only but keyed
// by a deterministic play_id inserted with conflict-ignore, so re-runs do
// not duplicate facts.
type Repository interface {
	// EnsureSchema creates the five tables (and staging tables where the
	// backend supports the bulk variant) when auto-create is enabled, and
	// verifies connectivity otherwise.
	EnsureSchema(ctx context.Context) error

	UpsertSongs(ctx context.Context, rows []schema.Song) (int64, error)
	UpsertArtists(ctx context.Context, rows []schema.Artist) (int64, error)
	UpsertUsers(ctx context.Context, rows []schema.User) (int64, error)
	UpsertTimeBuckets(ctx context.Context, rows []schema.TimeBucket) (int64, error)
	InsertPlayEvents(ctx context.Context, rows []schema.PlayEvent) (int64, error)

	// SongKeys returns the loaded natural-key surface (songs joined to
	// artist names) for seeding the resolver index.
	SongKeys(ctx context.Context) ([]SongKey, error)

	// CountResolvedPlays counts fact rows with both dimension keys set;
	// the driver's post-run consistency check.
	CountResolvedPlays(ctx context.Context) (int64, error)

	// CountRows counts rows in one of the five schema tables.
	CountRows(ctx context.Context, table string) (int64, error)

	Close()
}

// StageMerger is the optional bulk-variant contract: raw records land in
// staging tables, then set-based SQL populates dimensions (with a
// keep-latest-surrogate dedup for users and artists) and finally the fact
// table via a join against the deduplicated dimensions.
type StageMerger interface {
	// ResetStaging truncates the staging tables so a run stages from clean.
	ResetStaging(ctx context.Context) error

	StageSongs(ctx context.Context, rows []schema.SongMeta) (int64, error)
	StageEvents(ctx context.Context, rows []schema.LogEvent) (int64, error)

	// MergeDimensions populates songs, artists, users, and time buckets
	// from staging. Duplicate natural keys collapse to the row with the
	// highest staging surrogate (latest landed wins), expressed per dialect
	// but with identical semantics.
	MergeDimensions(ctx context.Context) error

	// InsertFactsFromStage populates play_events by joining staged NextSong
	// events against the merged dimensions on (artist name, song title,
	// duration). Ambiguous matches collapse to the lowest song_id, then
	// artist_id. Unmatched events load with both keys null.
	InsertFactsFromStage(ctx context.Context) error
}

// Factory builds a Repository for a registered kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a backend factory under kind. Backends call this from
// init; a duplicate registration panics to surface wiring mistakes early.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("storage: duplicate registration for kind %q", kind))
	}
	factories[kind] = f
}

// New constructs the Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
