package warehouse

import (
	"context"
	"fmt"
	"time"

	"courtside/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// GameRepository handles game-state reads and schedule writes. The
// orchestrator persists the daily schedule here so the stateless gatekeeper
// can evaluate the polling window without owning a schedule of its own.
type GameRepository struct {
	wh *Warehouse
}

// UpsertGames writes the day's schedule. Replaced wholesale on each daily
// refresh; a conflict on game_id takes the newer schedule row unless the
// stored state has already advanced further.
func (r *GameRepository) UpsertGames(ctx context.Context, games []models.Game) error {
	query := `
		INSERT INTO games (game_id, scheduled_start, state, home_team, away_team)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id) DO UPDATE SET
			scheduled_start = EXCLUDED.scheduled_start,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			state = CASE
				WHEN games.state = 'FINAL' THEN games.state
				WHEN games.state = 'LIVE' AND EXCLUDED.state = 'UPCOMING' THEN games.state
				ELSE EXCLUDED.state
			END,
			updated_at = NOW()
	`

	var errs []error
	for i := range games {
		g := &games[i]
		if _, err := r.wh.Pool.Exec(ctx, query,
			g.GameID, g.ScheduledStart, string(g.State), g.HomeTeam, g.AwayTeam,
		); err != nil {
			errs = append(errs, fmt.Errorf("game %d: %w", g.GameID, err))
		}
	}

	if len(errs) > 0 {
		return &WriteError{Table: "games", Errs: errs}
	}

	log.Debug().Int("count", len(games)).Msg("Schedule persisted to warehouse")
	return nil
}

// UpdateGameState advances a game's persisted state and snapshot timestamp.
// The guard mirrors the tracker's monotonic rule.
func (r *GameRepository) UpdateGameState(ctx context.Context, game models.Game) error {
	query := `
		UPDATE games
		SET state = $1, latest_snapshot_ts = $2, updated_at = NOW()
		WHERE game_id = $3
		  AND CASE state WHEN 'FINAL' THEN 2 WHEN 'LIVE' THEN 1 ELSE 0 END
		      <= CASE $1 WHEN 'FINAL' THEN 2 WHEN 'LIVE' THEN 1 ELSE 0 END
	`

	_, err := r.wh.Pool.Exec(ctx, query,
		string(game.State), game.LatestSnapshotTS, game.GameID)
	if err != nil {
		return fmt.Errorf("failed to update game state: %w", err)
	}
	return nil
}

// LiveGames retrieves all games currently live. A game persisted as
// UPCOMING whose scheduled start has passed counts as live: the stored
// state only advances once a snapshot lands, and a past-start game must
// never be reported as upcoming.
func (r *GameRepository) LiveGames(ctx context.Context) ([]models.Game, error) {
	games, err := r.gamesWhere(ctx, `state = 'LIVE' OR (state = 'UPCOMING' AND scheduled_start <= NOW())`)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range games {
		if games[i].IsUpcoming() {
			games[i].State = models.DeriveState(nil, games[i].ScheduledStart, now)
		}
	}
	return games, nil
}

// UpcomingGamesBetween retrieves upcoming games scheduled inside [from, to).
// Spanning the day boundary is the caller's concern; passing a window past
// local midnight picks up tomorrow's early games.
func (r *GameRepository) UpcomingGamesBetween(ctx context.Context, from, to time.Time) ([]models.Game, error) {
	query := `
		SELECT game_id, scheduled_start, state, home_team, away_team, COALESCE(latest_snapshot_ts, 'epoch'::timestamptz)
		FROM games
		WHERE state = 'UPCOMING' AND scheduled_start >= $1 AND scheduled_start < $2
		ORDER BY scheduled_start
	`

	rows, err := r.wh.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

func (r *GameRepository) gamesWhere(ctx context.Context, cond string) ([]models.Game, error) {
	query := fmt.Sprintf(`
		SELECT game_id, scheduled_start, state, home_team, away_team, COALESCE(latest_snapshot_ts, 'epoch'::timestamptz)
		FROM games
		WHERE %s
		ORDER BY scheduled_start
	`, cond)

	rows, err := r.wh.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanGames(rows pgRows) ([]models.Game, error) {
	var games []models.Game
	for rows.Next() {
		var g models.Game
		var state string
		if err := rows.Scan(&g.GameID, &g.ScheduledStart, &state, &g.HomeTeam, &g.AwayTeam, &g.LatestSnapshotTS); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		g.State = models.GameState(state)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}
