package models

import (
	"encoding/json"
	"time"
)

// Terminal status strings the upstream uses for completed games.
const (
	statusFinal      = "Final"
	statusFinalOT    = "F/OT"
	statusCompleted  = "Completed"
	statusInProgress = "InProgress"
)

// RawSnapshot is one point-in-time payload captured from the upstream API.
// Payload is persisted verbatim to the warehouse; the remaining fields are
// the light metadata extracted for state derivation.
type RawSnapshot struct {
	GameID    int             `json:"GameID"`
	Status    string          `json:"Status"`
	Period    *string         `json:"Period,omitempty"`
	Clock     *string         `json:"Clock,omitempty"`
	HomeScore *int            `json:"HomeScore,omitempty"`
	AwayScore *int            `json:"AwayScore,omitempty"`
	Payload   json.RawMessage `json:"-"`
	FetchedAt time.Time       `json:"-"`
}

// HasClock reports whether the payload carries a non-null period or clock.
func (s *RawSnapshot) HasClock() bool {
	if s.Period != nil && *s.Period != "" {
		return true
	}
	return s.Clock != nil && *s.Clock != ""
}

// IsTerminal reports whether the upstream marked the game complete.
func (s *RawSnapshot) IsTerminal() bool {
	switch s.Status {
	case statusFinal, statusFinalOT, statusCompleted:
		return true
	}
	return false
}

// DeriveState maps a raw snapshot to a game state. This is the single
// derivation rule for the whole service; any other LIVE/UPCOMING logic is
// a bug.
//
// Terminal status wins. A non-null period/clock means LIVE. A game whose
// scheduled start has passed without a terminal marker is LIVE, never
// UPCOMING.
func DeriveState(snap *RawSnapshot, scheduledStart, now time.Time) GameState {
	if snap != nil {
		if snap.IsTerminal() {
			return StateFinal
		}
		if snap.HasClock() || snap.Status == statusInProgress {
			return StateLive
		}
	}
	if !now.Before(scheduledStart) {
		return StateLive
	}
	return StateUpcoming
}
