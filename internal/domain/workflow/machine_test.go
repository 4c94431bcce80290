package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsTerminal())
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"approved", StateApproved, true},
		{"unknown", State("CANCELLED"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsValid())
		})
	}
}

func TestBuilder_ConfigureReturnsSameTable(t *testing.T) {
	builder := NewBuilder()
	first := builder.Configure(StatePending)
	second := builder.Configure(StatePending)
	assert.Same(t, first, second)
}

func TestBuilder_PanicsOnInvalidStates(t *testing.T) {
	assert.Panics(t, func() { NewBuilder().Configure(State("INVALID")) })
	assert.Panics(t, func() { NewBuilder().Build(State("INVALID")) })
	assert.Panics(t, func() {
		NewBuilder().Configure(StatePending).Permit(TriggerApprove, State("NOPE"))
	})
}

func TestBuilder_MachinesAreIndependent(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).Permit(TriggerReject, StateRejected)

	m1 := builder.Build(StatePending)
	m2 := builder.Build(StatePending)

	require.NoError(t, m1.Fire(context.Background(), TriggerReject))
	assert.Equal(t, StateRejected, m1.State())
	assert.Equal(t, StatePending, m2.State())

	// Later configuration does not leak into machines already built.
	builder.Configure(StatePending).Permit(TriggerApprove, StateApproved)
	assert.False(t, m2.CanFire(TriggerApprove))
}

func TestStateMachine_GuardOrdering(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func(context.Context) bool { return false }).
		Permit(TriggerApprove, StatePending)

	m := builder.Build(StatePending)
	require.NoError(t, m.Fire(context.Background(), TriggerApprove))
	assert.Equal(t, StatePending, m.State())
}

func TestStateMachine_AllGuardsFail(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func(context.Context) bool { return false })

	m := builder.Build(StatePending)
	err := m.Fire(context.Background(), TriggerApprove)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGuardFailed))
	assert.Equal(t, StatePending, m.State())
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	m := NewApprovalMachine(StatePending, StageProgress{})
	assert.Equal(t, []Trigger{TriggerApprove, TriggerReject}, m.PermittedTriggers())

	terminal := NewApprovalMachine(StateApproved, StageProgress{})
	assert.Empty(t, terminal.PermittedTriggers())
}

func TestApprovalMachine(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		progress StageProgress
		trigger  Trigger
		want     State
		wantErr  error
	}{
		{"approve waits on incomplete stage", StatePending, StageProgress{Complete: false, Last: true}, TriggerApprove, StatePending, nil},
		{"approve advances middle stage", StatePending, StageProgress{Complete: true, Last: false}, TriggerApprove, StatePending, nil},
		{"approve completes last stage", StatePending, StageProgress{Complete: true, Last: true}, TriggerApprove, StateApproved, nil},
		{"reject ignores progress", StatePending, StageProgress{Complete: false}, TriggerReject, StateRejected, nil},
		{"approved is terminal", StateApproved, StageProgress{Complete: true, Last: true}, TriggerApprove, StateApproved, ErrInvalidTransition},
		{"rejected is terminal", StateRejected, StageProgress{}, TriggerReject, StateRejected, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewApprovalMachine(tt.from, tt.progress)
			err := m.Fire(context.Background(), tt.trigger)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, m.State())
		})
	}
}
