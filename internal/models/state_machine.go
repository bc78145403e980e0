package models

import (
	"fmt"
	"time"
)

// LifecycleState represents where a symbol's order lifecycle stands within
// a single run.
type LifecycleState string

const (
	// StateIdle means no order activity yet for the symbol this run.
	StateIdle LifecycleState = "idle"
	// StateEntered means the market entry filled and a fill price is known.
	StateEntered LifecycleState = "entered"
	// StateBracketPlaced means both linked exit legs were submitted.
	StateBracketPlaced LifecycleState = "bracket_placed"
	// StateEodClosed means end-of-day cleanup flattened the symbol.
	StateEodClosed LifecycleState = "eod_closed"
	// StateSkipped means sizing produced zero contracts; a deliberate no-op.
	StateSkipped LifecycleState = "skipped"
	// StateFailed is terminal for the symbol this run; siblings are unaffected.
	StateFailed LifecycleState = "failed"
)

// Transition conditions.
const (
	ConditionEntryFilled   = "entry_filled"
	ConditionBracketPlaced = "bracket_placed"
	ConditionEodCleanup    = "eod_cleanup"
	ConditionZeroQuantity  = "zero_quantity"
	ConditionFailure       = "failure"
)

// LifecycleTransition defines one valid edge of the lifecycle state machine.
type LifecycleTransition struct {
	From      LifecycleState
	To        LifecycleState
	Condition string
}

// ValidLifecycleTransitions enumerates every permitted transition.
// EOD cleanup is reachable from any non-terminal state because it runs
// unconditionally at the end of every invocation.
var ValidLifecycleTransitions = []LifecycleTransition{
	{StateIdle, StateEntered, ConditionEntryFilled},
	{StateIdle, StateSkipped, ConditionZeroQuantity},
	{StateIdle, StateFailed, ConditionFailure},
	{StateEntered, StateBracketPlaced, ConditionBracketPlaced},
	{StateEntered, StateFailed, ConditionFailure},
	{StateIdle, StateEodClosed, ConditionEodCleanup},
	{StateEntered, StateEodClosed, ConditionEodCleanup},
	{StateBracketPlaced, StateEodClosed, ConditionEodCleanup},
	{StateFailed, StateEodClosed, ConditionEodCleanup},
}

// Lifecycle tracks a single symbol's order lifecycle through one run.
type Lifecycle struct {
	symbol         string
	currentState   LifecycleState
	previousState  LifecycleState
	transitionTime time.Time
}

// NewLifecycle creates a lifecycle tracker starting at StateIdle.
func NewLifecycle(symbol string) *Lifecycle {
	return &Lifecycle{
		symbol:        symbol,
		currentState:  StateIdle,
		previousState: StateIdle,
	}
}

// Symbol returns the tracked symbol.
func (l *Lifecycle) Symbol() string { return l.symbol }

// State returns the current lifecycle state.
func (l *Lifecycle) State() LifecycleState { return l.currentState }

// PreviousState returns the state before the last transition.
func (l *Lifecycle) PreviousState() LifecycleState { return l.previousState }

// Transition moves to a new state if the edge exists in
// ValidLifecycleTransitions, otherwise returns an error.
func (l *Lifecycle) Transition(to LifecycleState, condition string) error {
	for _, t := range ValidLifecycleTransitions {
		if t.From == l.currentState && t.To == to && t.Condition == condition {
			l.previousState = l.currentState
			l.currentState = to
			l.transitionTime = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid lifecycle transition for %s: %s -> %s (condition %q)",
		l.symbol, l.currentState, to, condition)
}

// Terminal returns true once no further entry or bracket activity is
// permitted for the symbol this run.
func (l *Lifecycle) Terminal() bool {
	switch l.currentState {
	case StateEodClosed, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}
