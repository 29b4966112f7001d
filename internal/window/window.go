// Package window decides whether the fleet-wide polling window is active.
package window

import (
	"time"

	"courtside/ingestion/internal/models"
)

// IsActive reports whether high-frequency polling should run right now.
//
// The window is active when any game is live, or when an upcoming game
// starts within the pregame lead. A non-positive lead disables the pregame
// branch entirely. The games slice may span today's and tomorrow's
// schedules; a game scheduled just after midnight must trigger pregame
// polling before the new operating day's schedule has been fetched.
func IsActive(now time.Time, games []models.Game, lead time.Duration) bool {
	for i := range games {
		if games[i].IsLive() {
			return true
		}
	}

	if lead <= 0 {
		return false
	}

	for i := range games {
		g := &games[i]
		if !g.IsUpcoming() {
			continue
		}
		if !g.ScheduledStart.After(now) {
			continue
		}
		if !now.Before(g.ScheduledStart.Add(-lead)) {
			return true
		}
	}
	return false
}

// NextStart returns the earliest future scheduled start among upcoming
// games, or the zero time when there is none. Used by the debug surface.
func NextStart(now time.Time, games []models.Game) time.Time {
	var next time.Time
	for i := range games {
		g := &games[i]
		if !g.IsUpcoming() || !g.ScheduledStart.After(now) {
			continue
		}
		if next.IsZero() || g.ScheduledStart.Before(next) {
			next = g.ScheduledStart
		}
	}
	return next
}
