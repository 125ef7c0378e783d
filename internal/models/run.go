package models

import (
	"fmt"
	"time"
)

// RunKind is the kind of provisioning run.
type RunKind string

const (
	RunValidate RunKind = "validate"
	RunBuild    RunKind = "build"
	RunFork     RunKind = "fork"
)

// RunState is the lifecycle state of a spec or provisioning run.
type RunState string

const (
	StateGenerated      RunState = "GENERATED"
	StateValidating     RunState = "VALIDATING"
	StateValid          RunState = "VALID"
	StateRejected       RunState = "REJECTED"
	StateBuilding       RunState = "BUILDING"
	StateBuilt          RunState = "BUILT"
	StatePartiallyBuilt RunState = "PARTIALLY_BUILT"
	StateFailed         RunState = "FAILED"
)

var runTransitions = map[RunState][]RunState{
	StateGenerated:  {StateValidating},
	StateValidating: {StateValid, StateRejected},
	StateRejected:   {StateValidating},
	StateValid:      {StateBuilding},
	StateBuilding:   {StateBuilt, StatePartiallyBuilt, StateFailed},
}

// CanTransition reports whether a run may move from s to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return len(runTransitions[s]) == 0
}

// ProvisionRun is the ledger record of one validation, build or fork.
type ProvisionRun struct {
	BaseModel
	ProgressTracking
	Kind      RunKind        `json:"kind"`
	SubjectID string         `json:"subject_id"`
	State     RunState       `json:"state"`
	RepoURL   string         `json:"repo_url,omitempty"`
	Created   map[string]int `json:"created,omitempty"`
	Omissions []Omission     `json:"omissions,omitempty"`
}

// Omission is an entity that could not be created during a run.
type Omission struct {
	Kind   string    `json:"kind"`
	Entity string    `json:"entity"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// Transition moves the run to next, rejecting transitions the state machine
// does not allow.
func (r *ProvisionRun) Transition(next RunState, now time.Time) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("invalid run transition %s -> %s", r.State, next)
	}
	r.State = next
	r.UpdatedAt = now
	r.LastUpdateTime = now
	return nil
}
