// Package pipeline executes the batch run: walk the two feeds, decode and
// validate records, derive star-schema rows, and load them through the
// storage backend. Units process sequentially in sorted order so re-runs are
// deterministic; every load call is idempotent, so a crashed run resumes by
// simply running again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"playetl/internal/config"
	"playetl/internal/datasource"
	"playetl/internal/metrics"
	jsonparser "playetl/internal/parser/json"
	"playetl/internal/schema"
	"playetl/internal/storage"
	"playetl/internal/transform"
)

// Runner holds the wired dependencies for one run.
//
// Songs may be nil, in which case no song metadata loads and plays resolve
// only against songs already in the warehouse.
type Runner struct {
	Repo  storage.Repository
	Songs datasource.Lister
	Logs  datasource.Lister

	// Job labels metrics and logs.
	Job string

	// BatchSize caps rows per load call. Zero means 500.
	BatchSize int

	// OnRecordError is config.PolicySkip or config.PolicyStrict.
	OnRecordError string

	// ErrorSamples caps retained bad-record messages.
	ErrorSamples int
}

func (r *Runner) strict() bool { return r.OnRecordError == config.PolicyStrict }

func (r *Runner) batch() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return 500
}

// step times f and reports it as one pipeline step to the metrics backend.
func (r *Runner) step(name string, f func() error) error {
	start := time.Now()
	err := f()
	metrics.RecordStep(r.Job, name, err, time.Since(start))
	return err
}

// Run executes the row-wise variant. Song units load first so the resolver
// sees every song before the first play event; then log units load users,
// time buckets, and facts per unit.
//
// Storage errors are fatal and abort the run. Bad records and unreadable
// units are not: they count against the summary and, under the strict
// policy, fail their unit while the run continues.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := NewStats(r.ErrorSamples)
	log.Printf("run start: run_id=%s variant=rowwise batch=%d policy=%s",
		stats.RunID, r.batch(), r.OnRecordError)

	if err := r.step("ensure_schema", func() error { return r.Repo.EnsureSchema(ctx) }); err != nil {
		return stats, err
	}

	resolver := transform.NewResolver()
	if err := r.step("seed_resolver", func() error {
		keys, err := r.Repo.SongKeys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			resolver.Add(k.ArtistName, k.Title, k.Duration, k.SongID, k.ArtistID)
		}
		return nil
	}); err != nil {
		return stats, err
	}
	log.Printf("resolver seeded: songs=%d", resolver.Len())

	if r.Songs != nil {
		units, err := r.Songs.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("list song units: %w", err)
		}
		log.Printf("song feed: units=%d", len(units))
		for _, name := range units {
			if err := r.songUnit(ctx, name, resolver, stats); err != nil {
				return stats, err
			}
		}
	}

	if r.Logs != nil {
		units, err := r.Logs.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("list log units: %w", err)
		}
		log.Printf("log feed: units=%d", len(units))
		for _, name := range units {
			if err := r.logUnit(ctx, name, resolver, stats); err != nil {
				return stats, err
			}
		}
	}

	if err := r.verify(ctx, stats); err != nil {
		return stats, err
	}
	r.recordRows(stats)
	stats.LogSummary()
	return stats, nil
}

// songUnit loads one song-metadata unit: derive the song and artist rows,
// collapse duplicates within the unit, upsert, then extend the resolver.
func (r *Runner) songUnit(ctx context.Context, name string, resolver *transform.Resolver, stats *Stats) error {
	start := time.Now()
	metas, ok := r.readSongUnit(ctx, name, stats)
	if !ok {
		return nil
	}

	songs := make([]schema.Song, 0, len(metas))
	artists := make([]schema.Artist, 0, len(metas))
	for _, m := range metas {
		song, artist := transform.SongDimensions(m)
		songs = append(songs, song)
		artists = append(artists, artist)
	}
	songs = transform.DeDup(songs, func(s schema.Song) string { return s.SongID }, transform.KeepFirst)
	artists = transform.DeDup(artists, func(a schema.Artist) string { return a.ArtistID }, transform.KeepFirst)

	for _, batch := range chunks(songs, r.batch()) {
		n, err := r.Repo.UpsertSongs(ctx, batch)
		if err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
		stats.SongsLoaded += n
		metrics.RecordBatches(r.Job, 1)
	}
	for _, batch := range chunks(artists, r.batch()) {
		n, err := r.Repo.UpsertArtists(ctx, batch)
		if err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
		stats.ArtistsLoaded += n
		metrics.RecordBatches(r.Job, 1)
	}

	// Extend the lookup surface only after the rows are durable, so the
	// resolver never points at songs a failed unit did not load.
	for _, m := range metas {
		resolver.Add(m.ArtistName, m.Title, m.Duration, m.SongID, m.ArtistID)
	}

	stats.SongUnits++
	stats.ObserveUnit(time.Since(start))
	return nil
}

// logUnit loads one event-log unit: users (latest occurrence wins within the
// unit), time buckets, then the fact rows with resolved dimension keys.
func (r *Runner) logUnit(ctx context.Context, name string, resolver *transform.Resolver, stats *Stats) error {
	start := time.Now()
	events, ok := r.readLogUnit(ctx, name, true, stats)
	if !ok {
		return nil
	}

	users := make([]schema.User, 0, len(events))
	buckets := make([]schema.TimeBucket, 0, len(events))
	for _, ev := range events {
		users = append(users, transform.UserOf(ev))
		buckets = append(buckets, transform.TimeBucketOf(ev))
	}
	users = transform.DeDup(users, func(u schema.User) string { return u.UserID }, transform.KeepLast)
	buckets = transform.DeDup(buckets, func(t schema.TimeBucket) string {
		return strconv.FormatInt(t.StartTime, 10)
	}, transform.KeepFirst)

	plays := make([]schema.PlayEvent, 0, len(events))
	for _, ev := range events {
		songID, artistID := resolver.Resolve(ev)
		if songID != nil {
			stats.PlaysResolved++
		}
		plays = append(plays, transform.PlayEventOf(ev, songID, artistID))
	}

	for _, batch := range chunks(users, r.batch()) {
		n, err := r.Repo.UpsertUsers(ctx, batch)
		if err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
		stats.UsersLoaded += n
		metrics.RecordBatches(r.Job, 1)
	}
	for _, batch := range chunks(buckets, r.batch()) {
		n, err := r.Repo.UpsertTimeBuckets(ctx, batch)
		if err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
		stats.TimeBucketsLoaded += n
		metrics.RecordBatches(r.Job, 1)
	}
	for _, batch := range chunks(plays, r.batch()) {
		n, err := r.Repo.InsertPlayEvents(ctx, batch)
		if err != nil {
			return fmt.Errorf("unit %s: %w", name, err)
		}
		stats.PlaysLoaded += n
		metrics.RecordBatches(r.Job, 1)
	}

	stats.LogUnits++
	stats.ObserveUnit(time.Since(start))
	return nil
}

// readSongUnit decodes one song unit into validated SongMeta records. The
// bool result reports whether the unit survived: an unreadable or
// undecodable unit is abandoned under either policy, and a bad record
// abandons the unit under strict.
func (r *Runner) readSongUnit(ctx context.Context, name string, stats *Stats) ([]schema.SongMeta, bool) {
	rc, err := r.Songs.Unit(name).Open(ctx)
	if err != nil {
		stats.UnitFailures++
		stats.errs.add(fmt.Sprintf("%s: %v", name, err))
		log.Printf("song unit %s: open failed: %v", name, err)
		return nil, false
	}
	defer rc.Close()

	dec := jsonparser.NewDecoder(rc, jsonparser.Options{AllowArrays: true})
	var metas []schema.SongMeta
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := &schema.ParseError{Path: name, Index: dec.Index() + 1, Err: err}
			stats.RecordError(perr.Error())
			stats.UnitFailures++
			log.Printf("song unit %s: abandoned: %v", name, err)
			return nil, false
		}
		stats.RecordsRead++

		meta, err := schema.NewSongMeta(rec)
		if err != nil {
			perr := &schema.ParseError{Path: name, Index: dec.Index(), Err: err}
			stats.RecordError(perr.Error())
			if r.strict() {
				stats.UnitFailures++
				log.Printf("song unit %s: abandoned under strict policy: %v", name, err)
				return nil, false
			}
			continue
		}
		metas = append(metas, meta)
	}
	return metas, true
}

// readLogUnit decodes one log unit. With playsOnly set it keeps only
// NextSong events that carry every field the extractor needs, counting the
// rest as filtered or bad; without it every decodable event is returned (the
// bulk variant stages the raw feed and filters in SQL).
func (r *Runner) readLogUnit(ctx context.Context, name string, playsOnly bool, stats *Stats) ([]schema.LogEvent, bool) {
	rc, err := r.Logs.Unit(name).Open(ctx)
	if err != nil {
		stats.UnitFailures++
		stats.errs.add(fmt.Sprintf("%s: %v", name, err))
		log.Printf("log unit %s: open failed: %v", name, err)
		return nil, false
	}
	defer rc.Close()

	dec := jsonparser.NewDecoder(rc, jsonparser.Options{})
	var events []schema.LogEvent
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := &schema.ParseError{Path: name, Index: dec.Index() + 1, Err: err}
			stats.RecordError(perr.Error())
			stats.UnitFailures++
			log.Printf("log unit %s: abandoned: %v", name, err)
			return nil, false
		}
		stats.RecordsRead++

		ev, err := schema.NewLogEvent(rec)
		if err != nil {
			perr := &schema.ParseError{Path: name, Index: dec.Index(), Err: err}
			stats.RecordError(perr.Error())
			if r.strict() {
				stats.UnitFailures++
				log.Printf("log unit %s: abandoned under strict policy: %v", name, err)
				return nil, false
			}
			continue
		}

		if playsOnly {
			if ev.Page != schema.PageNextSong {
				stats.Filtered++
				continue
			}
			if missing := ev.PlayFields(); missing != "" {
				stats.RecordError(fmt.Sprintf("%s #%d: NextSong event missing %s", name, dec.Index(), missing))
				if r.strict() {
					stats.UnitFailures++
					log.Printf("log unit %s: abandoned under strict policy: missing %s", name, missing)
					return nil, false
				}
				continue
			}
		}
		events = append(events, ev)
	}
	return events, true
}

// verify logs the warehouse row counts and the post-run consistency
// verdict: when the warehouse holds songs, at least one play should have
// resolved against them. The verdict is a logged signal recorded on the
// stats, not a run failure; only count queries themselves can error.
func (r *Runner) verify(ctx context.Context, stats *Stats) error {
	var songs int64
	for _, table := range storage.Tables {
		n, err := r.Repo.CountRows(ctx, table)
		if err != nil {
			return fmt.Errorf("verify %s: %w", table, err)
		}
		if table == storage.TableSongs {
			songs = n
		}
		log.Printf("verify: table=%s rows=%d", table, n)
	}
	resolved, err := r.Repo.CountResolvedPlays(ctx)
	if err != nil {
		return fmt.Errorf("verify resolved plays: %w", err)
	}
	stats.ConsistencyOK = songs == 0 || resolved > 0
	if stats.ConsistencyOK {
		log.Printf("consistency check passed: songs=%d resolved_plays=%d run_resolved=%d",
			songs, resolved, stats.PlaysResolved)
	} else {
		log.Printf("consistency check FAILED: %d songs loaded but no plays resolved", songs)
	}
	return nil
}

func (r *Runner) recordRows(stats *Stats) {
	metrics.RecordRow(r.Job, "processed", stats.RecordsRead)
	metrics.RecordRow(r.Job, "parse_errors", stats.ParseErrors)
	metrics.RecordRow(r.Job, "filtered", stats.Filtered)
	metrics.RecordRow(r.Job, "plays_inserted", stats.PlaysLoaded)
	metrics.RecordRow(r.Job, "plays_resolved", stats.PlaysResolved)
}

func chunks[T any](in []T, size int) [][]T {
	if len(in) == 0 {
		return nil
	}
	out := make([][]T, 0, len(in)/size+1)
	for start := 0; start < len(in); start += size {
		out = append(out, in[start:min(start+size, len(in))])
	}
	return out
}
