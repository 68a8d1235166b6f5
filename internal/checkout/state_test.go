package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
	}{
		{StateIdle, EventProceed, StateSessionRequested},
		{StateSessionRequested, EventSessionCreated, StateAwaitingPaymentConfirmation},
		{StateSessionRequested, EventPaymentFailed, StateFailed},
		{StateAwaitingPaymentConfirmation, EventPaymentSucceeded, StateSucceeded},
		{StateAwaitingPaymentConfirmation, EventPaymentFailed, StateFailed},
		{StateSucceeded, EventReset, StateIdle},
		{StateFailed, EventReset, StateIdle},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		assert.NoError(t, err, "%s on %s", tc.ev, tc.from)
		assert.Equal(t, tc.to, got)
	}
}

func TestTransition_Illegal(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
	}{
		{StateIdle, EventPaymentSucceeded},
		{StateIdle, EventSessionCreated},
		{StateIdle, EventReset},
		{StateSessionRequested, EventPaymentSucceeded},
		{StateAwaitingPaymentConfirmation, EventProceed},
		{StateSucceeded, EventPaymentFailed},
		{StateFailed, EventProceed},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.ev)
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, tc.from, got)
	}
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StateIdle, StateSessionRequested))
	assert.True(t, CanTransitionTo(StateFailed, StateIdle))
	assert.False(t, CanTransitionTo(StateIdle, StateSucceeded))
	assert.False(t, CanTransitionTo(StateSucceeded, StateFailed))
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateSucceeded.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateAwaitingPaymentConfirmation.IsTerminal())
}
