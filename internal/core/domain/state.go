package domain

import "fmt"

// ItemState is a step in an item's life inside one coordinator run.
//
//	ingested -> validating -> staged -> transforming -> curated
//	                       \-> quarantined
//
// curated and quarantined are terminal. There are no backward transitions.
type ItemState string

// Item states.
const (
	StateIngested     ItemState = "ingested"
	StateValidating   ItemState = "validating"
	StateStaged       ItemState = "staged"
	StateQuarantined  ItemState = "quarantined"
	StateTransforming ItemState = "transforming"
	StateCurated      ItemState = "curated"
)

var transitions = map[ItemState][]ItemState{
	StateIngested:     {StateValidating},
	StateValidating:   {StateStaged, StateQuarantined},
	StateStaged:       {StateTransforming},
	StateTransforming: {StateCurated},
}

// IsTerminal returns true for states with no outgoing transitions.
func (s ItemState) IsTerminal() bool {
	return s == StateCurated || s == StateQuarantined
}

// CanTransition reports whether next is a legal successor of s.
func (s ItemState) CanTransition(next ItemState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Advance returns next if the transition is legal, or ErrIllegalTransition.
func (s ItemState) Advance(next ItemState) (ItemState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// String returns the string representation.
func (s ItemState) String() string {
	return string(s)
}

// Stage names the coordinator step an item was in when something happened.
type Stage string

// Coordinator stages.
const (
	StageIngest    Stage = "ingest"
	StageValidate  Stage = "validate"
	StageRoute     Stage = "route"
	StageTransform Stage = "transform"
	StageCatalog   Stage = "catalog"
	StageMonitor   Stage = "monitor"
)
