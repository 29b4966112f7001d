package models

import (
	"time"
)

// GameState is the derived lifecycle state of a game.
// Transitions are monotonic: UPCOMING -> LIVE -> FINAL, never backward.
type GameState string

const (
	StateUpcoming GameState = "UPCOMING"
	StateLive     GameState = "LIVE"
	StateFinal    GameState = "FINAL"
)

// Rank orders states for the monotonic-transition guard.
func (s GameState) Rank() int {
	switch s {
	case StateLive:
		return 1
	case StateFinal:
		return 2
	default:
		return 0
	}
}

// Game represents one scheduled contest for the operating day
type Game struct {
	GameID           int       `json:"game_id"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	State            GameState `json:"state"`
	HomeTeam         string    `json:"home_team"`
	AwayTeam         string    `json:"away_team"`
	LatestSnapshotTS time.Time `json:"latest_snapshot_ts,omitempty"`
}

// IsLive returns true if the game is currently in progress
func (g *Game) IsLive() bool {
	return g.State == StateLive
}

// IsUpcoming returns true if the game has not started
func (g *Game) IsUpcoming() bool {
	return g.State == StateUpcoming
}

// IsFinal returns true if the game is complete
func (g *Game) IsFinal() bool {
	return g.State == StateFinal
}
