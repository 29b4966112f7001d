// Package gatekeeper is the externally-triggered form of the window check:
// a lightweight, stateless pass invoked by an external scheduler that
// decides whether to kick off a bounded-duration ingestion job.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtside/ingestion/internal/jobs"
	"courtside/ingestion/internal/models"
	"courtside/ingestion/internal/window"

	"github.com/rs/zerolog/log"
)

// GameStore supplies the window calculator's inputs from the warehouse.
// The gatekeeper owns no schedule; it re-fetches on every invocation.
type GameStore interface {
	LiveGames(ctx context.Context) ([]models.Game, error)
	UpcomingGamesBetween(ctx context.Context, from, to time.Time) ([]models.Game, error)
}

// TriggerFunc runs one bounded-duration ingestion job.
type TriggerFunc func(ctx context.Context) error

// Gatekeeper decides whether to trigger an ingestion job.
type Gatekeeper struct {
	store   GameStore
	runner  jobs.Runner
	trigger TriggerFunc
	lead    time.Duration
	loc     *time.Location
	now     func() time.Time
}

// New constructs a gatekeeper.
func New(store GameStore, runner jobs.Runner, trigger TriggerFunc, lead time.Duration, loc *time.Location) *Gatekeeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Gatekeeper{
		store:   store,
		runner:  runner,
		trigger: trigger,
		lead:    lead,
		loc:     loc,
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (g *Gatekeeper) SetNowFunc(now func() time.Time) {
	g.now = now
}

// CheckAndTrigger evaluates the polling window from warehouse state and
// triggers a job when it is active and no execution is already in flight.
// The upcoming-games query spans into the next operating day so a game
// just past local midnight still opens the pregame window.
func (g *Gatekeeper) CheckAndTrigger(ctx context.Context) error {
	now := g.now().In(g.loc)

	live, err := g.store.LiveGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to query live games: %w", err)
	}

	upcoming, err := g.store.UpcomingGamesBetween(ctx, now, now.Add(36*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to query upcoming games: %w", err)
	}

	games := append(live, upcoming...)
	if !window.IsActive(now, games, g.lead) {
		log.Info().
			Int("live", len(live)).
			Int("upcoming", len(upcoming)).
			Msg("Polling window inactive, nothing to trigger")
		return nil
	}

	exec, err := g.runner.ActiveExecution(ctx)
	if err != nil {
		return fmt.Errorf("failed to query active execution: %w", err)
	}
	if exec != nil {
		log.Info().
			Int64("execution_id", exec.ID).
			Str("state", string(exec.State)).
			Msg("Execution already in flight, skipping trigger")
		return nil
	}

	started, err := g.runner.Begin(ctx)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		// Another invocation won the race between the check above and
		// the insert. Their job covers the window; nothing to do.
		log.Info().Msg("Execution began elsewhere, skipping trigger")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to begin execution: %w", err)
	}

	log.Info().Int64("execution_id", started.ID).Msg("Triggering ingestion job")

	if err := g.trigger(ctx); err != nil {
		if finishErr := g.runner.Finish(ctx, started.ID, jobs.StateFailed); finishErr != nil {
			log.Error().Err(finishErr).Int64("execution_id", started.ID).Msg("Failed to mark execution failed")
		}
		return fmt.Errorf("ingestion job failed: %w", err)
	}

	if err := g.runner.Finish(ctx, started.ID, jobs.StateSucceeded); err != nil {
		return fmt.Errorf("failed to mark execution succeeded: %w", err)
	}
	return nil
}
