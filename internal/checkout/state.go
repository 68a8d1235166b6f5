package checkout

import "fmt"

type State string

const (
	StateIdle                        State = "IDLE"
	StateSessionRequested            State = "SESSION_REQUESTED"
	StateAwaitingPaymentConfirmation State = "AWAITING_PAYMENT_CONFIRMATION"
	StateSucceeded                   State = "SUCCEEDED"
	StateFailed                      State = "FAILED"
)

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

type Event string

const (
	EventProceed          Event = "PROCEED"
	EventSessionCreated   Event = "SESSION_CREATED"
	EventPaymentSucceeded Event = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    Event = "PAYMENT_FAILED"
	EventReset            Event = "RESET"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventProceed: StateSessionRequested,
	},
	StateSessionRequested: {
		EventSessionCreated: StateAwaitingPaymentConfirmation,
		EventPaymentFailed:  StateFailed,
	},
	StateAwaitingPaymentConfirmation: {
		EventPaymentSucceeded: StateSucceeded,
		EventPaymentFailed:    StateFailed,
	},
	StateSucceeded: {
		EventReset: StateIdle,
	},
	StateFailed: {
		EventReset: StateIdle,
	},
}

// IllegalTransitionError reports an event that is not valid in a state.
type IllegalTransitionError struct {
	From  State
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal checkout transition: %s on %s", e.Event, e.From)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Transition is the pure transition function of a checkout attempt.
func Transition(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &IllegalTransitionError{From: from, Event: ev}
}

// CanTransitionTo reports whether some event moves from to to.
func CanTransitionTo(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
