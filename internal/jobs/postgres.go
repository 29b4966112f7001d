package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresRunner stores executions in an ingestion_runs table behind the
// shared warehouse pool. The at-most-one-active guarantee relies on the
// store, not on in-process state, so it holds across processes.
type PostgresRunner struct {
	pool *pgxpool.Pool
}

// NewPostgresRunner creates a runner backed by the given pool.
func NewPostgresRunner(pool *pgxpool.Pool) *PostgresRunner {
	return &PostgresRunner{pool: pool}
}

// ActiveExecution returns the in-flight execution, if any.
func (r *PostgresRunner) ActiveExecution(ctx context.Context) (*Execution, error) {
	query := `
		SELECT id, state, started_at, COALESCE(finished_at, 'epoch'::timestamptz)
		FROM ingestion_runs
		WHERE state IN ('RUNNING', 'RECONCILING')
		ORDER BY started_at DESC
		LIMIT 1
	`

	var exec Execution
	var state string
	err := r.pool.QueryRow(ctx, query).Scan(&exec.ID, &state, &exec.StartedAt, &exec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active execution: %w", err)
	}

	exec.State = ExecutionState(state)
	return &exec, nil
}

// Begin records a new RUNNING execution. The insert is guarded in the
// same statement so two racing invocations never both succeed; the loser
// gets ErrAlreadyRunning.
func (r *PostgresRunner) Begin(ctx context.Context) (*Execution, error) {
	query := `
		INSERT INTO ingestion_runs (state, started_at)
		SELECT 'RUNNING', NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM ingestion_runs WHERE state IN ('RUNNING', 'RECONCILING')
		)
		RETURNING id, started_at
	`

	exec := Execution{State: StateRunning}
	err := r.pool.QueryRow(ctx, query).Scan(&exec.ID, &exec.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin execution: %w", err)
	}

	log.Info().Int64("execution_id", exec.ID).Msg("Ingestion execution started")
	return &exec, nil
}

// Finish moves an execution to a terminal state.
func (r *PostgresRunner) Finish(ctx context.Context, id int64, state ExecutionState) error {
	query := `
		UPDATE ingestion_runs
		SET state = $1, finished_at = NOW()
		WHERE id = $2
	`

	tag, err := r.pool.Exec(ctx, query, string(state), id)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution not found: id=%d", id)
	}

	log.Info().Int64("execution_id", id).Str("state", string(state)).Msg("Ingestion execution finished")
	return nil
}
