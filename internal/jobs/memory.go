package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRunner is an in-process Runner for single-process deployments and
// tests.
type MemoryRunner struct {
	mu     sync.Mutex
	nextID int64
	execs  map[int64]*Execution
}

// NewMemoryRunner creates an empty in-memory runner.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{execs: make(map[int64]*Execution)}
}

// ActiveExecution returns the in-flight execution, if any.
func (r *MemoryRunner) ActiveExecution(ctx context.Context) (*Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.execs {
		if e.State.InFlight() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

// Begin records a new RUNNING execution, or returns ErrAlreadyRunning
// when one is already in flight.
func (r *MemoryRunner) Begin(ctx context.Context) (*Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.execs {
		if e.State.InFlight() {
			return nil, ErrAlreadyRunning
		}
	}

	r.nextID++
	e := &Execution{
		ID:        r.nextID,
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	r.execs[e.ID] = e

	cp := *e
	return &cp, nil
}

// Finish moves an execution to a terminal state.
func (r *MemoryRunner) Finish(ctx context.Context, id int64, state ExecutionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.execs[id]
	if !ok {
		return fmt.Errorf("execution not found: id=%d", id)
	}
	e.State = state
	e.FinishedAt = time.Now()
	return nil
}

// Seed inserts an execution directly. Test hook.
func (r *MemoryRunner) Seed(state ExecutionState) *Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &Execution{ID: r.nextID, State: state, StartedAt: time.Now()}
	r.execs[e.ID] = e
	return e
}
