// Package ingest executes fetch-and-persist cycles for live games while
// the polling window is active.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtside/ingestion/internal/client"
	"courtside/ingestion/internal/metrics"
	"courtside/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// SnapshotFetcher fetches live snapshots from the upstream provider.
type SnapshotFetcher interface {
	FetchLiveSnapshots(ctx context.Context, gameIDs []int) ([]models.RawSnapshot, error)
}

// SnapshotStore persists raw snapshots to the warehouse.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, snaps []models.RawSnapshot) (int, error)
}

// GameTracker supplies the live fleet and absorbs snapshot results.
type GameTracker interface {
	AllLiveIDs() []int
	UpdateFromSnapshot(snap *models.RawSnapshot) (models.Game, error)
}

// GameStateStore mirrors tracked state changes into the warehouse. May be
// nil when no persistence of derived state is wanted.
type GameStateStore interface {
	UpdateGameState(ctx context.Context, game models.Game) error
}

// CycleResult reports the outcome of one ingestion cycle execution.
type CycleResult struct {
	GamesFetched int       `json:"games_fetched"`
	RowsWritten  int       `json:"rows_written"`
	Errors       int       `json:"errors"`
	Skipped      bool      `json:"skipped"`
	StartedAt    time.Time `json:"started_at"`
	Duration     string    `json:"duration"`
}

// Runner owns the lifecycle of individual ingestion cycle executions.
type Runner struct {
	fetcher  SnapshotFetcher
	store    SnapshotStore
	tracker  GameTracker
	states   GameStateStore
	pageSize int
	now      func() time.Time
}

// NewRunner constructs a cycle runner. pageSize bounds how many game ids go
// into a single upstream call.
func NewRunner(fetcher SnapshotFetcher, store SnapshotStore, tracker GameTracker, states GameStateStore, pageSize int) *Runner {
	if pageSize < 1 {
		pageSize = 10
	}
	return &Runner{
		fetcher:  fetcher,
		store:    store,
		tracker:  tracker,
		states:   states,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// RunCycle performs one fetch of all live games' snapshots and persists
// them. A failed fetch for one page is recorded and the cycle proceeds to
// the next page; one bad game never aborts the whole cycle. A warehouse
// write failure is fatal for the cycle and is returned to the caller.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	start := r.now()
	result := CycleResult{StartedAt: start}

	liveIDs := r.tracker.AllLiveIDs()
	if len(liveIDs) == 0 {
		result.Skipped = true
		result.Duration = time.Since(start).String()
		log.Debug().Msg("No live games, cycle skipped")
		metrics.RecordCycle("skipped", time.Since(start).Seconds())
		return result, nil
	}

	var collected []models.RawSnapshot
	for _, page := range chunk(liveIDs, r.pageSize) {
		snaps, err := r.fetcher.FetchLiveSnapshots(ctx, page)
		if err != nil {
			result.Errors += len(page)
			metrics.RecordError("ingest", classify(err))
			log.Error().
				Err(err).
				Ints("game_ids", page).
				Msg("Failed to fetch snapshots, continuing with next page")
			continue
		}
		result.GamesFetched += len(snaps)
		collected = append(collected, snaps...)
	}

	if len(collected) > 0 {
		written, err := r.store.InsertSnapshots(ctx, collected)
		result.RowsWritten = written
		metrics.SnapshotsWritten.Add(float64(written))
		if err != nil {
			result.Duration = time.Since(start).String()
			metrics.RecordCycle("write_failed", time.Since(start).Seconds())
			return result, fmt.Errorf("cycle write failed: %w", err)
		}

		for i := range collected {
			game, err := r.tracker.UpdateFromSnapshot(&collected[i])
			if err != nil {
				log.Warn().Err(err).Int("game_id", collected[i].GameID).Msg("Failed to apply snapshot to tracker")
				continue
			}
			if r.states != nil {
				if err := r.states.UpdateGameState(ctx, game); err != nil {
					log.Warn().Err(err).Int("game_id", game.GameID).Msg("Failed to persist game state")
				}
			}
		}
	}

	result.Duration = time.Since(start).String()
	status := "success"
	if result.Errors > 0 {
		status = "partial"
	}
	metrics.RecordCycle(status, time.Since(start).Seconds())

	log.Info().
		Int("games_fetched", result.GamesFetched).
		Int("rows_written", result.RowsWritten).
		Int("errors", result.Errors).
		Dur("duration", time.Since(start)).
		Msg("Ingestion cycle complete")

	return result, nil
}

// RunLoop runs cycles on a fixed interval for as long as windowActive
// reports true. The loop re-checks the window on every iteration and exits
// as soon as it goes inactive; an in-flight fetch is never cancelled, it
// runs to completion or its own timeout.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration, windowActive func() bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !windowActive() {
			log.Info().Msg("Polling window inactive, cycle loop exiting")
			return
		}

		if _, err := r.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("Ingestion cycle failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// RunBounded runs cycles on a fixed interval until maxRuntime elapses,
// regardless of window state, relying on re-invocation by an external
// scheduler. Used for the serverless-style deployment.
func (r *Runner) RunBounded(ctx context.Context, maxRuntime, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxRuntime)
	defer cancel()

	var lastErr error
	for {
		res, err := r.RunCycle(ctx)
		if err != nil {
			lastErr = err
			log.Error().Err(err).Msg("Ingestion cycle failed")
		}
		if res.Skipped {
			// Nothing live; no reason to burn the rest of the runtime.
			return lastErr
		}

		select {
		case <-ctx.Done():
			log.Info().Dur("max_runtime", maxRuntime).Msg("Bounded job runtime reached, exiting")
			return lastErr
		case <-time.After(interval):
		}
	}
}

func chunk(ids []int, size int) [][]int {
	var pages [][]int
	for len(ids) > size {
		pages = append(pages, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		pages = append(pages, ids)
	}
	return pages
}

func classify(err error) string {
	switch {
	case errors.Is(err, client.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, client.ErrRateLimitExhausted):
		return "rate_limit"
	case client.IsUpstreamError(err):
		return "upstream"
	default:
		return "other"
	}
}
