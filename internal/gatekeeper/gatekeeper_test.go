package gatekeeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtside/ingestion/internal/jobs"
	"courtside/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGameStore struct {
	live     []models.Game
	upcoming []models.Game
	err      error
}

func (s *fakeGameStore) LiveGames(ctx context.Context) ([]models.Game, error) {
	return s.live, s.err
}

func (s *fakeGameStore) UpcomingGamesBetween(ctx context.Context, from, to time.Time) ([]models.Game, error) {
	return s.upcoming, s.err
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
}

func newGatekeeper(store GameStore, runner jobs.Runner, trigger TriggerFunc) *Gatekeeper {
	gk := New(store, runner, trigger, 30*time.Minute, time.UTC)
	gk.SetNowFunc(fixedNow)
	return gk
}

func TestCheckAndTrigger_LiveGameTriggersJob(t *testing.T) {
	store := &fakeGameStore{
		live: []models.Game{{GameID: 1, State: models.StateLive, ScheduledStart: fixedNow().Add(-time.Hour)}},
	}
	runner := jobs.NewMemoryRunner()

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true

		// The guard must be visible while the job runs.
		exec, err := runner.ActiveExecution(ctx)
		require.NoError(t, err)
		require.NotNil(t, exec)
		assert.Equal(t, jobs.StateRunning, exec.State)
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.True(t, triggered)

	exec, err := runner.ActiveExecution(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exec, "execution must be finished after a successful job")
}

func TestCheckAndTrigger_InactiveWindowDoesNothing(t *testing.T) {
	store := &fakeGameStore{
		upcoming: []models.Game{{GameID: 1, State: models.StateUpcoming, ScheduledStart: fixedNow().Add(4 * time.Hour)}},
	}
	runner := jobs.NewMemoryRunner()

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.False(t, triggered)
}

func TestCheckAndTrigger_InFlightExecutionSkips(t *testing.T) {
	store := &fakeGameStore{
		live: []models.Game{{GameID: 1, State: models.StateLive, ScheduledStart: fixedNow().Add(-time.Hour)}},
	}
	runner := jobs.NewMemoryRunner()
	runner.Seed(jobs.StateRunning)

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.False(t, triggered, "active window must not double-trigger while a job is in flight")
}

func TestCheckAndTrigger_ReconcilingCountsAsInFlight(t *testing.T) {
	store := &fakeGameStore{
		live: []models.Game{{GameID: 1, State: models.StateLive, ScheduledStart: fixedNow().Add(-time.Hour)}},
	}
	runner := jobs.NewMemoryRunner()
	runner.Seed(jobs.StateReconciling)

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.False(t, triggered)
}

// raceLosingRunner reports no active execution but loses the Begin race,
// as when two invocations check concurrently and the other inserts first.
type raceLosingRunner struct {
	*jobs.MemoryRunner
}

func (r *raceLosingRunner) ActiveExecution(ctx context.Context) (*jobs.Execution, error) {
	return nil, nil
}

func TestCheckAndTrigger_LostBeginRaceSkipsQuietly(t *testing.T) {
	store := &fakeGameStore{
		live: []models.Game{{GameID: 1, State: models.StateLive, ScheduledStart: fixedNow().Add(-time.Hour)}},
	}
	runner := &raceLosingRunner{MemoryRunner: jobs.NewMemoryRunner()}
	runner.Seed(jobs.StateRunning)

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.False(t, triggered, "losing the begin race must not run a second job")
}

func TestCheckAndTrigger_FailedJobMarkedFailed(t *testing.T) {
	store := &fakeGameStore{
		live: []models.Game{{GameID: 1, State: models.StateLive, ScheduledStart: fixedNow().Add(-time.Hour)}},
	}
	runner := jobs.NewMemoryRunner()

	boom := errors.New("upstream down")
	gk := newGatekeeper(store, runner, func(ctx context.Context) error { return boom })

	err := gk.CheckAndTrigger(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	exec, err := runner.ActiveExecution(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exec, "failed execution must not stay in flight")
}

func TestCheckAndTrigger_PregameLeadOpensWindow(t *testing.T) {
	store := &fakeGameStore{
		upcoming: []models.Game{{GameID: 1, State: models.StateUpcoming, ScheduledStart: fixedNow().Add(20 * time.Minute)}},
	}
	runner := jobs.NewMemoryRunner()

	triggered := false
	gk := newGatekeeper(store, runner, func(ctx context.Context) error {
		triggered = true
		return nil
	})

	require.NoError(t, gk.CheckAndTrigger(context.Background()))
	assert.True(t, triggered)
}

func TestCheckAndTrigger_StoreErrorPropagates(t *testing.T) {
	store := &fakeGameStore{err: errors.New("db unavailable")}
	gk := newGatekeeper(store, jobs.NewMemoryRunner(), func(ctx context.Context) error { return nil })

	assert.Error(t, gk.CheckAndTrigger(context.Background()))
}
