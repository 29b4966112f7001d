package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRunner_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRunner()

	exec, err := r.ActiveExecution(ctx)
	require.NoError(t, err)
	assert.Nil(t, exec)

	started, err := r.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, started.State)

	active, err := r.ActiveExecution(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.ID, active.ID)

	require.NoError(t, r.Finish(ctx, started.ID, StateSucceeded))

	exec, err = r.ActiveExecution(ctx)
	require.NoError(t, err)
	assert.Nil(t, exec)
}

func TestMemoryRunner_BeginRefusesSecondExecution(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRunner()

	started, err := r.Begin(ctx)
	require.NoError(t, err)

	_, err = r.Begin(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, r.Finish(ctx, started.ID, StateFailed))

	_, err = r.Begin(ctx)
	assert.NoError(t, err)
}

func TestMemoryRunner_FinishUnknownID(t *testing.T) {
	r := NewMemoryRunner()
	assert.Error(t, r.Finish(context.Background(), 99, StateFailed))
}

func TestExecutionState_InFlight(t *testing.T) {
	assert.True(t, StateRunning.InFlight())
	assert.True(t, StateReconciling.InFlight())
	assert.False(t, StateSucceeded.InFlight())
	assert.False(t, StateFailed.InFlight())
}
