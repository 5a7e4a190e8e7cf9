package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *StateMachine[string] {
	return NewStateMachine(map[string][]string{
		"IDLE":   {"ISSUED"},
		"ISSUED": {"IDLE", "SCAN"},
		"SCAN":   {"ISSUED", "DONE"},
		"DONE":   {},
	})
}

func TestCanTransition(t *testing.T) {
	sm := newTestMachine()

	assert.True(t, sm.CanTransition("IDLE", "ISSUED"))
	assert.True(t, sm.CanTransition("SCAN", "DONE"))
	assert.False(t, sm.CanTransition("IDLE", "DONE"))
	assert.False(t, sm.CanTransition("DONE", "IDLE"))
	assert.False(t, sm.CanTransition("UNKNOWN", "IDLE"))
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := newTestMachine()

	assert.ElementsMatch(t, []string{"IDLE", "SCAN"}, sm.GetAllowedTransitions("ISSUED"))
	assert.Empty(t, sm.GetAllowedTransitions("DONE"))
	assert.Empty(t, sm.GetAllowedTransitions("UNKNOWN"))

	// callers must not be able to mutate the table
	allowed := sm.GetAllowedTransitions("IDLE")
	allowed[0] = "DONE"
	assert.False(t, sm.CanTransition("IDLE", "DONE"))
}

func TestTransition(t *testing.T) {
	sm := newTestMachine()

	next, err := sm.Transition("IDLE", "ISSUED")
	require.NoError(t, err)
	assert.Equal(t, "ISSUED", next)

	next, err = sm.Transition("IDLE", "SCAN")
	require.Error(t, err)
	assert.Equal(t, "IDLE", next)

	var terr *TransitionError[string]
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "IDLE", terr.From)
	assert.Equal(t, "SCAN", terr.To)
	assert.Equal(t, "transition from IDLE to SCAN is not allowed", err.Error())
}
