package spec

import (
	"errors"
	"fmt"
	"strings"
)

// Phase names the validation pass that produced a violation.
type Phase string

const (
	PhaseStructural Phase = "structural"
	PhaseSemantic   Phase = "semantic"
)

// Rule identifiers carried by violations.
const (
	RuleRequired   = "required"
	RuleType       = "type"
	RuleRange      = "range"
	RuleEnum       = "enum"
	RuleMinCount   = "min_count"
	RuleMinLength  = "min_length"
	RulePath       = "path"
	RuleScaffold   = "scaffold"
	RuleAuthor     = "author_known"
	RuleCommitIdx  = "commit_index"
	RuleMainTask   = "main_task"
	RuleUniquePath = "unique_path"
	RuleReference  = "reference"
	RuleImport     = "import"
)

// Violation is one failed check, naming the rule and the offending entity.
type Violation struct {
	Rule    string `json:"rule"`
	Entity  string `json:"entity"`
	Message string `json:"message"`
}

// ValidationError carries every violation found by the failing phase.
type ValidationError struct {
	Phase      Phase       `json:"phase"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("spec validation failed (%s): %s", e.Phase, strings.Join(msgs, "; "))
}

// Has reports whether any violation has the given rule.
func (e *ValidationError) Has(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

type collector struct {
	violations []Violation
}

func (c *collector) add(rule, entity, format string, args ...interface{}) {
	c.violations = append(c.violations, Violation{
		Rule:    rule,
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *collector) err(phase Phase) error {
	if len(c.violations) == 0 {
		return nil
	}
	return &ValidationError{Phase: phase, Violations: c.violations}
}
