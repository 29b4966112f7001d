// Package orchestrator drives the game-state polling lifecycle: it
// refreshes the daily schedule, evaluates the polling window every tick,
// and starts/stops the managed ingestion cycle runner.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courtside/ingestion/internal/ingest"
	"courtside/ingestion/internal/metrics"
	"courtside/ingestion/internal/models"
	"courtside/ingestion/internal/tracker"
	"courtside/ingestion/internal/window"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ScheduleFetcher fetches the schedule for one operating date.
type ScheduleFetcher interface {
	FetchSchedule(ctx context.Context, date time.Time) ([]models.Game, error)
}

// ScheduleStore persists the refreshed schedule so other processes (the
// gatekeeper) can read it. May be nil.
type ScheduleStore interface {
	UpsertGames(ctx context.Context, games []models.Game) error
}

// ScheduleCache caches the refreshed schedule with an explicit TTL. May be
// nil; the orchestrator works without it.
type ScheduleCache interface {
	SetSchedule(ctx context.Context, day string, games []models.Game) error
}

// Options configure the orchestrator.
type Options struct {
	Location         *time.Location
	PregameLead      time.Duration
	TickInterval     time.Duration
	CycleInterval    time.Duration
	DailyRefreshCron string
}

// Status is the read-only debug snapshot of the orchestrator.
type Status struct {
	OperatingDay  string        `json:"operating_day"`
	WindowActive  bool          `json:"window_active"`
	CycleRunning  bool          `json:"cycle_running"`
	Schedule      []models.Game `json:"schedule"`
	NextStart     time.Time     `json:"next_start,omitempty"`
	ErrorCount    int           `json:"error_count"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorAt   time.Time     `json:"last_error_at,omitempty"`
	LastRefreshAt time.Time     `json:"last_refresh_at,omitempty"`
}

// Orchestrator is the IDLE <-> WINDOW_ACTIVE state machine. It exclusively
// owns the daily schedule and all polling window decisions.
type Orchestrator struct {
	fetcher ScheduleFetcher
	store   ScheduleStore
	cache   ScheduleCache
	tracker *tracker.Tracker
	runner  *ingest.Runner
	opts    Options
	cron    *cron.Cron
	now     func() time.Time

	mu             sync.Mutex
	cycleRunning   bool
	cycleCancel    context.CancelFunc
	windowActive   bool
	lastRefreshDay string
	lastRefreshAt  time.Time
	errorCount     int
	lastError      string
	lastErrorAt    time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates an orchestrator. fetcher, trk and runner are required; store
// and cache are optional.
func New(fetcher ScheduleFetcher, store ScheduleStore, cache ScheduleCache, trk *tracker.Tracker, runner *ingest.Runner, opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 30 * time.Second
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = 45 * time.Second
	}
	return &Orchestrator{
		fetcher:  fetcher,
		store:    store,
		cache:    cache,
		tracker:  trk,
		runner:   runner,
		opts:     opts,
		cron:     cron.New(cron.WithLocation(opts.Location)),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// SetNowFunc overrides the clock. Test hook.
func (o *Orchestrator) SetNowFunc(now func() time.Time) {
	o.now = now
}

// Start launches the tick loop and the daily refresh cron job. The loop
// runs until the context is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	log.Info().
		Str("timezone", o.opts.Location.String()).
		Dur("tick", o.opts.TickInterval).
		Dur("pregame_lead", o.opts.PregameLead).
		Msg("Orchestrator starting")

	if o.opts.DailyRefreshCron != "" {
		if _, err := o.cron.AddFunc(o.opts.DailyRefreshCron, func() {
			log.Info().Msg("Running daily schedule refresh")
			if err := o.refreshSchedule(ctx); err != nil {
				log.Error().Err(err).Msg("Daily schedule refresh failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule daily refresh: %w", err)
		}
		o.cron.Start()
		log.Info().Str("schedule", o.opts.DailyRefreshCron).Msg("Daily refresh scheduled")
	}

	go o.run(ctx)
	return nil
}

// Stop stops the tick loop and the cron scheduler.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.cron != nil {
			o.cron.Stop()
		}
		close(o.stopChan)
		o.stopCycle()
		log.Info().Msg("Orchestrator stopped")
	})
}

func (o *Orchestrator) run(ctx context.Context) {
	ticker := time.NewTicker(o.opts.TickInterval)
	defer ticker.Stop()

	// First tick immediately so a restart mid-evening doesn't wait.
	o.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, orchestrator loop exiting")
			return
		case <-o.stopChan:
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick performs one orchestrator pass: refresh the schedule if the
// operating day rolled over, evaluate the window, and reconcile the cycle
// runner with it. Schedule refresh happens-before window evaluation;
// window evaluation happens-before starting or stopping the runner.
func (o *Orchestrator) Tick(ctx context.Context) {
	metrics.OrchestratorTicks.Inc()
	now := o.now()
	day := o.operatingDay(now)

	o.mu.Lock()
	needsRefresh := o.lastRefreshDay != day
	o.mu.Unlock()

	if needsRefresh {
		// A failed refresh is retried on the next tick; it never
		// crashes the loop.
		if err := o.refreshSchedule(ctx); err != nil {
			o.recordError(err)
			log.Error().Err(err).Str("operating_day", day).Msg("Schedule refresh failed, will retry next tick")
		}
	}

	games := o.tracker.AllGames()
	active := window.IsActive(now, games, o.opts.PregameLead)
	metrics.SetWindowActive(active)
	metrics.LiveGames.Set(float64(len(o.tracker.AllLiveIDs())))

	o.mu.Lock()
	wasActive := o.windowActive
	o.windowActive = active
	running := o.cycleRunning
	o.mu.Unlock()

	switch {
	case active && !running:
		log.Info().Msg("Polling window opened, starting ingestion cycle runner")
		o.startCycle(ctx)
	case !active && wasActive && running:
		// The loop exits on its own once it re-checks the window;
		// nothing to force here.
		log.Info().Msg("Polling window closed, cycle runner will wind down")
	}
}

// refreshSchedule fetches today's and tomorrow's schedules (tomorrow so a
// just-after-midnight game can open the pregame window before the new
// operating day's refresh) and replaces the tracker's view wholesale.
func (o *Orchestrator) refreshSchedule(ctx context.Context) error {
	now := o.now().In(o.opts.Location)
	day := o.operatingDay(now)

	today, err := o.fetcher.FetchSchedule(ctx, now)
	if err != nil {
		metrics.RecordScheduleRefresh("failed")
		return fmt.Errorf("failed to fetch schedule for %s: %w", day, err)
	}

	tomorrow, err := o.fetcher.FetchSchedule(ctx, now.AddDate(0, 0, 1))
	if err != nil {
		// Tomorrow's schedule is a day-boundary nicety; today's alone
		// still makes the refresh a success.
		log.Warn().Err(err).Msg("Failed to fetch tomorrow's schedule, continuing with today's")
		tomorrow = nil
	}

	games := make([]models.Game, 0, len(today)+len(tomorrow))
	for _, g := range append(today, tomorrow...) {
		g.ScheduledStart = g.ScheduledStart.In(o.opts.Location)
		games = append(games, g)
	}

	o.tracker.IngestSchedule(games)

	if o.store != nil {
		if err := o.store.UpsertGames(ctx, games); err != nil {
			o.recordError(err)
			log.Error().Err(err).Msg("Failed to persist schedule to warehouse")
		}
	}
	if o.cache != nil {
		if err := o.cache.SetSchedule(ctx, day, games); err != nil {
			log.Warn().Err(err).Msg("Failed to cache schedule")
		}
	}

	o.mu.Lock()
	o.lastRefreshDay = day
	o.lastRefreshAt = o.now()
	o.mu.Unlock()

	metrics.RecordScheduleRefresh("success")
	log.Info().
		Str("operating_day", day).
		Int("games", len(games)).
		Msg("Schedule refreshed")
	return nil
}

// startCycle launches the runner loop, guarded so that no two executions
// ever overlap.
func (o *Orchestrator) startCycle(ctx context.Context) {
	o.mu.Lock()
	if o.cycleRunning {
		o.mu.Unlock()
		log.Debug().Msg("Cycle already in flight, not starting another")
		return
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	o.cycleRunning = true
	o.cycleCancel = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			o.cycleRunning = false
			o.cycleCancel = nil
			o.mu.Unlock()
			cancel()
		}()

		o.runner.RunLoop(cycleCtx, o.opts.CycleInterval, func() bool {
			return window.IsActive(o.now(), o.tracker.AllGames(), o.opts.PregameLead)
		})
	}()
}

func (o *Orchestrator) stopCycle() {
	o.mu.Lock()
	cancel := o.cycleCancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ForceStart starts the cycle runner regardless of window state.
// Administrative operation for operational testing.
func (o *Orchestrator) ForceStart(ctx context.Context) {
	log.Info().Msg("Force-start requested")
	o.startCycle(ctx)
}

// ForceStop cancels the running cycle loop, if any.
func (o *Orchestrator) ForceStop() {
	log.Info().Msg("Force-stop requested")
	o.stopCycle()
}

// ForceFetch runs exactly one ingestion cycle synchronously and returns
// its result.
func (o *Orchestrator) ForceFetch(ctx context.Context) (ingest.CycleResult, error) {
	log.Info().Msg("Force-fetch requested")
	return o.runner.RunCycle(ctx)
}

// ForceRefresh re-fetches the daily schedule immediately.
func (o *Orchestrator) ForceRefresh(ctx context.Context) error {
	return o.refreshSchedule(ctx)
}

// Status returns the read-only debug snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	games := o.tracker.AllGames()
	return Status{
		OperatingDay:  o.lastRefreshDay,
		WindowActive:  o.windowActive,
		CycleRunning:  o.cycleRunning,
		Schedule:      games,
		NextStart:     window.NextStart(now, games),
		ErrorCount:    o.errorCount,
		LastError:     o.lastError,
		LastErrorAt:   o.lastErrorAt,
		LastRefreshAt: o.lastRefreshAt,
	}
}

// CycleRunning reports whether a cycle loop is currently in flight.
func (o *Orchestrator) CycleRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycleRunning
}

func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	o.errorCount++
	o.lastError = err.Error()
	o.lastErrorAt = o.now()
	o.mu.Unlock()
	metrics.RecordError("orchestrator", "refresh")
}

// operatingDay formats the calendar date in the operating-day timezone.
// Comparing these strings, not UTC dates, is what keeps the loop from
// double-refreshing near midnight.
func (o *Orchestrator) operatingDay(t time.Time) string {
	return t.In(o.opts.Location).Format("2006-01-02")
}
