package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

// Stats accumulates run-level counters and per-unit latency. The pipeline is
// sequential, so plain fields suffice; errAgg keeps its own lock because
// backends may report from helper goroutines.
type Stats struct {
	RunID string

	start      time.Time
	unitMillis *hdrhistogram.Histogram

	SongUnits    int64 // song units fully processed
	LogUnits     int64 // log units fully processed
	UnitFailures int64 // units abandoned (unreadable, undecodable, or strict policy)

	RecordsRead int64 // records decoded from all units
	ParseErrors int64 // records that failed to decode or validate
	Filtered    int64 // log records on pages other than NextSong

	SongsLoaded       int64
	ArtistsLoaded     int64
	UsersLoaded       int64
	TimeBucketsLoaded int64
	PlaysLoaded       int64
	PlaysResolved     int64 // plays that matched a song during this run

	// ConsistencyOK is the post-run verdict: false when songs were loaded
	// but no play resolved against them. A signal, not a run failure.
	ConsistencyOK bool

	errs *errAgg
}

// NewStats returns a Stats with a fresh run id. samples caps how many
// bad-record messages the summary retains.
func NewStats(samples int) *Stats {
	if samples <= 0 {
		samples = 5
	}
	return &Stats{
		RunID: uuid.NewString(),
		start: time.Now(),
		// Unit latency from 1ms to 10min; 3 significant figures.
		unitMillis: hdrhistogram.New(1, 600_000, 3),
		errs:       newErrAgg(samples),
	}
}

// ObserveUnit records one unit's wall-clock duration.
func (s *Stats) ObserveUnit(d time.Duration) {
	_ = s.unitMillis.RecordValue(d.Milliseconds())
}

// RecordError counts one bad record and keeps an early sample of its message.
func (s *Stats) RecordError(msg string) {
	s.ParseErrors++
	s.errs.add(msg)
}

// LogSummary prints the end-of-run counters and unit latency percentiles,
// followed by the retained bad-record samples.
func (s *Stats) LogSummary() {
	log.Printf(
		"summary: run_id=%s song_units=%d log_units=%d unit_failures=%d records=%d parse_errors=%d filtered=%d",
		s.RunID, s.SongUnits, s.LogUnits, s.UnitFailures, s.RecordsRead, s.ParseErrors, s.Filtered,
	)
	log.Printf(
		"loaded: songs=%d artists=%d users=%d time_buckets=%d plays=%d resolved=%d elapsed=%s",
		s.SongsLoaded, s.ArtistsLoaded, s.UsersLoaded, s.TimeBucketsLoaded,
		s.PlaysLoaded, s.PlaysResolved, time.Since(s.start).Truncate(time.Millisecond),
	)
	if s.unitMillis.TotalCount() > 0 {
		log.Printf(
			"unit latency: p50=%dms p95=%dms max=%dms",
			s.unitMillis.ValueAtQuantile(50),
			s.unitMillis.ValueAtQuantile(95),
			s.unitMillis.Max(),
		)
	}
	if s.errs.count > 0 {
		log.Printf("bad records: %d (showing first %d)", s.errs.count, len(s.errs.first))
		for i, msg := range s.errs.first {
			log.Printf("  #%03d: %s", i+1, msg)
		}
	}
}

// errAgg aggregates error messages, retaining the first N verbatim.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
