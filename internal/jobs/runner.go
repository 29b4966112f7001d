// Package jobs tracks ingestion job executions so that at most one runs at
// a time, even when the gatekeeper and the job itself are separate
// processes coordinating only through shared warehouse state.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyRunning is returned by Begin when another execution is in
// flight. Begin is atomic: two concurrent callers never both succeed.
var ErrAlreadyRunning = errors.New("an ingestion execution is already in flight")

// ExecutionState is the lifecycle state of one ingestion job execution.
type ExecutionState string

const (
	StateRunning     ExecutionState = "RUNNING"
	StateReconciling ExecutionState = "RECONCILING"
	StateSucceeded   ExecutionState = "SUCCEEDED"
	StateFailed      ExecutionState = "FAILED"
)

// InFlight reports whether the state counts as an active execution for the
// concurrency guard.
func (s ExecutionState) InFlight() bool {
	return s == StateRunning || s == StateReconciling
}

// Execution is one tracked ingestion job run.
type Execution struct {
	ID         int64
	State      ExecutionState
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner is the job-execution API the gatekeeper guards against.
type Runner interface {
	// ActiveExecution returns the execution currently in a RUNNING or
	// RECONCILING state, or nil when none is in flight.
	ActiveExecution(ctx context.Context) (*Execution, error)

	// Begin atomically records a new RUNNING execution, or returns
	// ErrAlreadyRunning when one is already in flight.
	Begin(ctx context.Context) (*Execution, error)

	// Finish moves an execution to a terminal state.
	Finish(ctx context.Context, id int64, state ExecutionState) error
}
