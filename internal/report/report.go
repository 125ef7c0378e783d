// Package report records what a provisioning run created and what it had to
// skip, and decides per entity kind whether a failure aborts the run.
package report

import (
	"fmt"
	"time"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Kind is a class of remote entity created by a run.
type Kind string

const (
	KindRepository   Kind = "repository"
	KindBlob         Kind = "blob"
	KindTree         Kind = "tree"
	KindCommit       Kind = "commit"
	KindRef          Kind = "ref"
	KindLabel        Kind = "label"
	KindIssue        Kind = "issue"
	KindComment      Kind = "comment"
	KindIssueState   Kind = "issue_state"
	KindTemplateFlag Kind = "template_flag"
)

// Action is what a run does when creating an entity fails.
type Action int

const (
	// Skip logs the failure and continues with the remaining entities.
	Skip Action = iota
	// Abort stops the run; no usable repository exists without the entity.
	Abort
)

func (a Action) String() string {
	if a == Abort {
		return "abort"
	}
	return "skip"
}

// Policy maps entity kinds to failure actions. Kinds missing from the table
// are skipped.
type Policy map[Kind]Action

// DefaultPolicy tolerates every per-entity failure except the repository
// itself and the final branch ref.
func DefaultPolicy() Policy {
	return Policy{
		KindRepository:   Abort,
		KindRef:          Abort,
		KindBlob:         Skip,
		KindTree:         Skip,
		KindCommit:       Skip,
		KindLabel:        Skip,
		KindIssue:        Skip,
		KindComment:      Skip,
		KindIssueState:   Skip,
		KindTemplateFlag: Skip,
	}
}

// ActionFor returns the action configured for kind.
func (p Policy) ActionFor(kind Kind) Action {
	if p == nil {
		return Skip
	}
	return p[kind]
}

// AbortError is returned by Report.Fail when the policy aborts on a kind.
type AbortError struct {
	Kind   Kind
	Entity string
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Entity, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Report accumulates the outcome of one run. It is owned by the goroutine
// driving the run and is not safe for concurrent use.
type Report struct {
	policy    Policy
	now       func() time.Time
	created   map[Kind]int
	omissions []models.Omission
}

// New creates a report governed by policy.
func New(policy Policy) *Report {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Report{
		policy:  policy,
		now:     time.Now,
		created: make(map[Kind]int),
	}
}

// Created counts a successfully created entity.
func (r *Report) Created(kind Kind) {
	r.created[kind]++
}

// Fail records a failed entity. It returns an *AbortError when the policy
// aborts on kind and nil when the run should continue.
func (r *Report) Fail(kind Kind, entity string, err error) error {
	r.omissions = append(r.omissions, models.Omission{
		Kind:   string(kind),
		Entity: entity,
		Error:  err.Error(),
		At:     r.now(),
	})
	if r.policy.ActionFor(kind) == Abort {
		return &AbortError{Kind: kind, Entity: entity, Err: err}
	}
	return nil
}

// Count returns how many entities of kind were created.
func (r *Report) Count(kind Kind) int {
	return r.created[kind]
}

// CreatedCounts returns created counts keyed by kind name.
func (r *Report) CreatedCounts() map[string]int {
	out := make(map[string]int, len(r.created))
	for k, v := range r.created {
		out[string(k)] = v
	}
	return out
}

// Omissions returns the recorded failures in the order they happened.
func (r *Report) Omissions() []models.Omission {
	return append([]models.Omission(nil), r.omissions...)
}

// State is the terminal state of a run that reached its final step.
func (r *Report) State() models.RunState {
	if len(r.omissions) > 0 {
		return models.StatePartiallyBuilt
	}
	return models.StateBuilt
}
