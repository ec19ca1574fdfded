package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"playetl/internal/metrics"
	"playetl/internal/storage"
)

// RunBulk executes the stage-then-merge variant: every unit's raw records
// land in staging tables first, then set-based SQL merges the dimensions and
// inserts the facts in two statements. The warehouse must implement
// storage.StageMerger; row-wise-only backends reject the variant up front.
//
// Bad-record policy and unit failure semantics match the row-wise variant.
// The per-run resolved count is not tracked app-side here; the fact join
// happens in the warehouse, so verify reports the warehouse count alone.
func (r *Runner) RunBulk(ctx context.Context) (*Stats, error) {
	stats := NewStats(r.ErrorSamples)

	merger, ok := r.Repo.(storage.StageMerger)
	if !ok {
		return stats, fmt.Errorf("storage backend does not support the bulk variant")
	}
	log.Printf("run start: run_id=%s variant=bulk batch=%d policy=%s",
		stats.RunID, r.batch(), r.OnRecordError)

	if err := r.step("ensure_schema", func() error { return r.Repo.EnsureSchema(ctx) }); err != nil {
		return stats, err
	}
	if err := r.step("reset_staging", func() error { return merger.ResetStaging(ctx) }); err != nil {
		return stats, err
	}

	var stagedSongs, stagedEvents int64

	if r.Songs != nil {
		units, err := r.Songs.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("list song units: %w", err)
		}
		log.Printf("song feed: units=%d", len(units))
		for _, name := range units {
			start := time.Now()
			metas, ok := r.readSongUnit(ctx, name, stats)
			if !ok {
				continue
			}
			for _, batch := range chunks(metas, r.batch()) {
				n, err := merger.StageSongs(ctx, batch)
				if err != nil {
					return stats, fmt.Errorf("unit %s: %w", name, err)
				}
				stagedSongs += n
				metrics.RecordBatches(r.Job, 1)
			}
			stats.SongUnits++
			stats.ObserveUnit(time.Since(start))
		}
	}

	if r.Logs != nil {
		units, err := r.Logs.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("list log units: %w", err)
		}
		log.Printf("log feed: units=%d", len(units))
		for _, name := range units {
			start := time.Now()
			events, ok := r.readLogUnit(ctx, name, false, stats)
			if !ok {
				continue
			}
			for _, batch := range chunks(events, r.batch()) {
				n, err := merger.StageEvents(ctx, batch)
				if err != nil {
					return stats, fmt.Errorf("unit %s: %w", name, err)
				}
				stagedEvents += n
				metrics.RecordBatches(r.Job, 1)
			}
			stats.LogUnits++
			stats.ObserveUnit(time.Since(start))
		}
	}

	log.Printf("staged: songs=%d events=%d", stagedSongs, stagedEvents)

	if err := r.step("merge_dimensions", func() error { return merger.MergeDimensions(ctx) }); err != nil {
		return stats, err
	}
	if err := r.step("insert_facts", func() error { return merger.InsertFactsFromStage(ctx) }); err != nil {
		return stats, err
	}

	if err := r.verify(ctx, stats); err != nil {
		return stats, err
	}
	r.recordRows(stats)
	stats.LogSummary()
	return stats, nil
}
