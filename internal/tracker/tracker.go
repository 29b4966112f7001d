package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"courtside/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Tracker is the in-memory representation of each known game for the
// current operating day. It owns the single state-derivation rule and
// enforces monotonic UPCOMING -> LIVE -> FINAL transitions.
type Tracker struct {
	mu    sync.RWMutex
	games map[int]*models.Game
	now   func() time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		games: make(map[int]*models.Game),
		now:   time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// IngestSchedule replaces the day's known games wholesale. States already
// advanced past the incoming schedule's view are preserved, never regressed.
func (t *Tracker) IngestSchedule(games []models.Game) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[int]*models.Game, len(games))
	for i := range games {
		g := games[i]
		if prev, ok := t.games[g.GameID]; ok && prev.State.Rank() > g.State.Rank() {
			log.Debug().
				Int("game_id", g.GameID).
				Str("kept_state", string(prev.State)).
				Str("schedule_state", string(g.State)).
				Msg("Schedule would regress game state, keeping tracked state")
			g.State = prev.State
			g.LatestSnapshotTS = prev.LatestSnapshotTS
		}
		next[g.GameID] = &g
	}
	t.games = next

	log.Info().Int("count", len(next)).Msg("Schedule ingested")
}

// UpdateFromSnapshot maps a raw upstream record onto the tracked game,
// applying the derived state. A regression from FINAL back toward
// LIVE/UPCOMING is rejected and logged, not applied: stale or out-of-order
// snapshots must not resurrect a finished game.
func (t *Tracker) UpdateFromSnapshot(snap *models.RawSnapshot) (models.Game, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	game, ok := t.games[snap.GameID]
	if !ok {
		return models.Game{}, fmt.Errorf("snapshot for untracked game %d", snap.GameID)
	}

	derived := models.DeriveState(snap, game.ScheduledStart, t.now())
	if derived.Rank() < game.State.Rank() {
		log.Warn().
			Int("game_id", snap.GameID).
			Str("tracked_state", string(game.State)).
			Str("snapshot_state", string(derived)).
			Msg("Rejecting snapshot that would regress game state")
		return *game, nil
	}

	game.State = derived
	if !snap.FetchedAt.IsZero() {
		game.LatestSnapshotTS = snap.FetchedAt
	}
	return *game, nil
}

// promoteStarted applies the start-time rule on read: a game whose
// scheduled start has passed without a FINAL marker is LIVE, never
// UPCOMING, even before the first snapshot arrives. Caller must hold the
// write lock.
func (t *Tracker) promoteStarted() {
	now := t.now()
	for _, g := range t.games {
		if !g.IsUpcoming() {
			continue
		}
		if models.DeriveState(nil, g.ScheduledStart, now) == models.StateLive {
			log.Info().
				Int("game_id", g.GameID).
				Time("scheduled_start", g.ScheduledStart).
				Msg("Scheduled start passed, promoting game to live")
			g.State = models.StateLive
		}
	}
}

// AllLiveIDs returns the ids of all games currently tracked as live,
// ordered by scheduled start. Games whose scheduled start has passed are
// promoted before the listing.
func (t *Tracker) AllLiveIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.promoteStarted()

	live := make([]*models.Game, 0, len(t.games))
	for _, g := range t.games {
		if g.IsLive() {
			live = append(live, g)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].ScheduledStart.Before(live[j].ScheduledStart)
	})

	ids := make([]int, len(live))
	for i, g := range live {
		ids[i] = g.GameID
	}
	return ids
}

// AllGames returns a copy of every tracked game ordered by scheduled
// start, with past-start games promoted to live.
func (t *Tracker) AllGames() []models.Game {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.promoteStarted()

	games := make([]models.Game, 0, len(t.games))
	for _, g := range t.games {
		games = append(games, *g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].ScheduledStart.Before(games[j].ScheduledStart)
	})
	return games
}

// Len returns the number of tracked games.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.games)
}
