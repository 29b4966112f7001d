package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"courtside/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// SnapshotRepository persists raw upstream snapshots verbatim, plus light
// metadata, to the configured snapshot table.
type SnapshotRepository struct {
	wh    *Warehouse
	table string
}

// InsertSnapshots writes one row per snapshot. Per-row failures are
// collected and surfaced as a WriteError; a failed write is a hard failure
// for the cycle that issued it.
func (r *SnapshotRepository) InsertSnapshots(ctx context.Context, snaps []models.RawSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (game_id, status, period, clock, home_score, away_score, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.table)

	batch := &pgx.Batch{}
	for i := range snaps {
		s := &snaps[i]
		batch.Queue(query,
			s.GameID, s.Status, s.Period, s.Clock,
			s.HomeScore, s.AwayScore, []byte(s.Payload), s.FetchedAt,
		)
	}

	results := r.wh.Pool.SendBatch(ctx, batch)
	defer results.Close()

	var errs []error
	written := 0
	for i := range snaps {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, fmt.Errorf("game %d: %w", snaps[i].GameID, err))
			continue
		}
		written++
	}

	if len(errs) > 0 {
		return written, &WriteError{Table: r.table, Errs: errs}
	}

	log.Debug().Int("count", written).Str("table", r.table).Msg("Snapshots written")
	return written, nil
}

// InsertRows is the generic row-oriented insert of the gateway contract.
// Column order is derived from the sorted keys of the first row; every row
// must carry the same keys. Any per-row error list is surfaced as a
// WriteError.
func (wh *Warehouse) InsertRows(ctx context.Context, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]interface{}, len(cols))
		for i, c := range cols {
			args[i] = row[c]
		}
		batch.Queue(query, args...)
	}

	results := wh.Pool.SendBatch(ctx, batch)
	defer results.Close()

	var errs []error
	for i := range rows {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return &WriteError{Table: table, Errs: errs}
	}
	return nil
}
