package domain

import "fmt"

type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateApproved   State = "approved"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// States lists every payment state; Failed has no inbound edge and is kept for provider-side failures.
var States = []State{
	StatePending,
	StateProcessing,
	StateApproved,
	StateCompleted,
	StateRejected,
	StateCancelled,
	StateFailed,
}

func ParseState(value string) (State, error) {
	for _, s := range States {
		if string(s) == value {
			return s, nil
		}
	}
	return "", ErrInvalidState
}

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

type Event string

const (
	EventSubmit    Event = "submit_amount_against_control_number"
	EventApprove   Event = "admin_approve"
	EventReject    Event = "admin_reject"
	EventComplete  Event = "admin_complete"
	EventSupersede Event = "superseded_by_new_control_number"
)

var Events = []Event{EventSubmit, EventApprove, EventReject, EventComplete, EventSupersede}

type edge struct {
	from  State
	event Event
}

var transitions = map[edge]State{
	{StatePending, EventSubmit}:     StateProcessing,
	{StatePending, EventApprove}:    StateApproved,
	{StateProcessing, EventApprove}: StateApproved,
	{StatePending, EventReject}:     StateRejected,
	{StateProcessing, EventReject}:  StateRejected,
	{StateApproved, EventComplete}:  StateCompleted,
	{StatePending, EventSupersede}:  StateCancelled,
}

// Transition returns the state reached by applying event in state from.
func Transition(from State, event Event) (State, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, &TransitionError{From: from, Event: event}
	}
	return to, nil
}

// SourcesFor lists the states from which event is accepted. Writers use it as
// the compare-and-set guard so a concurrent transition cannot be overwritten.
func SourcesFor(event Event) []State {
	var out []State
	for _, s := range States {
		if _, ok := transitions[edge{s, event}]; ok {
			out = append(out, s)
		}
	}
	return out
}

// TransitionError reports an event that is not accepted in the current state.
// Completing an already completed payment also matches ErrAlreadyCompleted.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: %s not allowed from %s", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrInvalidTransition:
		return true
	case ErrAlreadyCompleted:
		return e.From == StateCompleted && e.Event == EventComplete
	default:
		return false
	}
}
