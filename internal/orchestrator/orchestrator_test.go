package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courtside/ingestion/internal/ingest"
	"courtside/ingestion/internal/models"
	"courtside/ingestion/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var et = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// clock is a settable time source safe for use from the cycle goroutine.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeScheduleFetcher struct {
	mu       sync.Mutex
	games    []models.Game
	failNext int
	calls    int
}

func (f *fakeScheduleFetcher) FetchSchedule(ctx context.Context, date time.Time) ([]models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("upstream unavailable")
	}
	return f.games, nil
}

func (f *fakeScheduleFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeScheduleStore struct {
	mu      sync.Mutex
	upserts [][]models.Game
}

func (s *fakeScheduleStore) UpsertGames(ctx context.Context, games []models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, games)
	return nil
}

type stubSnapshotFetcher struct{}

func (stubSnapshotFetcher) FetchLiveSnapshots(ctx context.Context, ids []int) ([]models.RawSnapshot, error) {
	return nil, nil
}

type stubSnapshotStore struct{}

func (stubSnapshotStore) InsertSnapshots(ctx context.Context, snaps []models.RawSnapshot) (int, error) {
	return len(snaps), nil
}

func newTestOrchestrator(fetcher ScheduleFetcher, store ScheduleStore, clk *clock, cycleInterval time.Duration) (*Orchestrator, *tracker.Tracker) {
	trk := tracker.New()
	trk.SetNowFunc(clk.Now)
	runner := ingest.NewRunner(stubSnapshotFetcher{}, stubSnapshotStore{}, trk, nil, 10)

	orch := New(fetcher, store, nil, trk, runner, Options{
		Location:      et,
		PregameLead:   30 * time.Minute,
		TickInterval:  time.Hour,
		CycleInterval: cycleInterval,
	})
	orch.SetNowFunc(clk.Now)
	return orch, trk
}

func TestTick_OpensWindowWhenLeadReached(t *testing.T) {
	// Games at 19:00 and 19:30; at 18:35 with a 30 minute lead the first
	// game's window has opened, so the tick must start the cycle runner.
	clk := &clock{t: time.Date(2026, 1, 15, 18, 35, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{games: []models.Game{
		{GameID: 1, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 0, 0, 0, et)},
		{GameID: 2, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 30, 0, 0, et)},
	}}

	orch, trk := newTestOrchestrator(fetcher, nil, clk, 5*time.Millisecond)
	defer orch.ForceStop()

	orch.Tick(context.Background())

	assert.Equal(t, 2, trk.Len())
	st := orch.Status()
	assert.True(t, st.WindowActive)
	assert.Equal(t, "2026-01-15", st.OperatingDay)

	require.Eventually(t, orch.CycleRunning, time.Second, 5*time.Millisecond)

	// Window closes once both games finish; the loop notices on its next
	// iteration and winds down.
	clk.Set(time.Date(2026, 1, 15, 22, 0, 0, 0, et))
	for _, id := range []int{1, 2} {
		_, err := trk.UpdateFromSnapshot(&models.RawSnapshot{GameID: id, Status: "Final", FetchedAt: clk.Now()})
		require.NoError(t, err)
	}

	orch.Tick(context.Background())
	assert.False(t, orch.Status().WindowActive)
	require.Eventually(t, func() bool { return !orch.CycleRunning() }, time.Second, 5*time.Millisecond)
}

func TestTick_WindowStaysActiveThroughScheduledStart(t *testing.T) {
	// Once the 19:00 game's start passes without a snapshot, it is
	// promoted to live: the window must stay open and the game must be
	// in the polled fleet, not silently dropped as a stale upcoming.
	clk := &clock{t: time.Date(2026, 1, 15, 18, 35, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{games: []models.Game{
		{GameID: 1, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 0, 0, 0, et)},
	}}

	orch, trk := newTestOrchestrator(fetcher, nil, clk, time.Hour)
	defer orch.ForceStop()

	orch.Tick(context.Background())
	assert.True(t, orch.Status().WindowActive)

	clk.Set(time.Date(2026, 1, 15, 19, 5, 0, 0, et))
	orch.Tick(context.Background())

	st := orch.Status()
	assert.True(t, st.WindowActive)
	assert.Equal(t, []int{1}, trk.AllLiveIDs())

	require.Len(t, st.Schedule, 1)
	assert.Equal(t, models.StateLive, st.Schedule[0].State)
}

func TestTick_IdleBeforeLeadWindow(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 15, 0, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{games: []models.Game{
		{GameID: 1, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 0, 0, 0, et)},
	}}

	orch, _ := newTestOrchestrator(fetcher, nil, clk, time.Hour)

	orch.Tick(context.Background())

	st := orch.Status()
	assert.False(t, st.WindowActive)
	assert.False(t, orch.CycleRunning())
	assert.Equal(t, time.Date(2026, 1, 15, 19, 0, 0, 0, et), st.NextStart)
}

func TestTick_RefreshOncePerOperatingDay(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{}

	orch, _ := newTestOrchestrator(fetcher, nil, clk, time.Hour)

	orch.Tick(context.Background())
	orch.Tick(context.Background())
	orch.Tick(context.Background())

	// One refresh fetches today and tomorrow.
	assert.Equal(t, 2, fetcher.callCount())

	clk.Set(time.Date(2026, 1, 16, 0, 5, 0, 0, et))
	orch.Tick(context.Background())
	assert.Equal(t, 4, fetcher.callCount())
	assert.Equal(t, "2026-01-16", orch.Status().OperatingDay)
}

func TestTick_FailedRefreshRetriedNextTick(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{
		failNext: 1,
		games: []models.Game{
			{GameID: 1, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 0, 0, 0, et)},
		},
	}

	orch, trk := newTestOrchestrator(fetcher, nil, clk, time.Hour)

	orch.Tick(context.Background())
	st := orch.Status()
	assert.Empty(t, st.OperatingDay, "failed refresh must not mark the day as refreshed")
	assert.GreaterOrEqual(t, st.ErrorCount, 1)
	assert.Equal(t, 0, trk.Len())

	orch.Tick(context.Background())
	assert.Equal(t, "2026-01-15", orch.Status().OperatingDay)
	assert.Equal(t, 1, trk.Len())
}

func TestRefreshSchedule_PersistsToStore(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{games: []models.Game{
		{GameID: 1, State: models.StateUpcoming, ScheduledStart: time.Date(2026, 1, 15, 19, 0, 0, 0, et)},
	}}
	store := &fakeScheduleStore{}

	orch, _ := newTestOrchestrator(fetcher, store, clk, time.Hour)

	require.NoError(t, orch.ForceRefresh(context.Background()))
	require.Len(t, store.upserts, 1)
}

func TestForceStartAndStop(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, et)}
	fetcher := &fakeScheduleFetcher{}

	orch, trk := newTestOrchestrator(fetcher, nil, clk, 5*time.Millisecond)
	trk.IngestSchedule([]models.Game{
		{GameID: 1, State: models.StateLive, ScheduledStart: clk.Now().Add(-time.Hour)},
	})

	orch.ForceStart(context.Background())
	require.Eventually(t, orch.CycleRunning, time.Second, 5*time.Millisecond)

	orch.ForceStop()
	require.Eventually(t, func() bool { return !orch.CycleRunning() }, time.Second, 5*time.Millisecond)
}

func TestForceFetch_RunsSingleCycle(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, et)}
	orch, _ := newTestOrchestrator(&fakeScheduleFetcher{}, nil, clk, time.Hour)

	res, err := orch.ForceFetch(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}
