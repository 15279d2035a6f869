package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[edge]State{
		{StatePending, EventSubmit}:     StateProcessing,
		{StatePending, EventApprove}:    StateApproved,
		{StateProcessing, EventApprove}: StateApproved,
		{StatePending, EventReject}:     StateRejected,
		{StateProcessing, EventReject}:  StateRejected,
		{StateApproved, EventComplete}:  StateCompleted,
		{StatePending, EventSupersede}:  StateCancelled,
	}

	for _, from := range States {
		for _, event := range Events {
			to, err := Transition(from, event)
			want, ok := allowed[edge{from, event}]
			if ok {
				require.NoError(t, err, "%s on %s", event, from)
				require.Equal(t, want, to)
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", event, from)
			require.Equal(t, from, to)
		}
	}
}

func TestTerminalStatesAcceptNoEvents(t *testing.T) {
	for _, from := range States {
		if !from.Terminal() {
			continue
		}
		for _, event := range Events {
			_, err := Transition(from, event)
			require.Error(t, err, "%s on %s", event, from)
		}
	}
	require.False(t, StatePending.Terminal())
	require.False(t, StateApproved.Terminal())
}

func TestCompletingTwiceIsAlreadyCompleted(t *testing.T) {
	_, err := Transition(StateCompleted, EventComplete)
	require.True(t, errors.Is(err, ErrAlreadyCompleted))
	require.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = Transition(StatePending, EventComplete)
	require.False(t, errors.Is(err, ErrAlreadyCompleted))
}

func TestSourcesFor(t *testing.T) {
	require.ElementsMatch(t, []State{StatePending, StateProcessing}, SourcesFor(EventApprove))
	require.Equal(t, []State{StateApproved}, SourcesFor(EventComplete))
	require.Equal(t, []State{StatePending}, SourcesFor(EventSupersede))
}

func TestParseState(t *testing.T) {
	s, err := ParseState("approved")
	require.NoError(t, err)
	require.Equal(t, StateApproved, s)

	_, err = ParseState("Approved")
	require.ErrorIs(t, err, ErrInvalidState)
}
