// Package spec turns untrusted candidate project specifications into
// validated, immutable RepoSpecs.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Validator checks candidate specs in two phases. The structural phase checks
// shapes, types, ranges and minimum counts; the semantic phase, which runs
// only when the structural one passes, checks the cross references between
// files, commits, issues and authors.
type Validator struct {
	registry *config.Registry
	logger   *logrus.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report synthesized files.
func WithLogger(logger *logrus.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a validator. When registry is nil, scaffold ids are
// not checked and no baseline files or optional files are known.
func NewValidator(registry *config.Registry, opts ...Option) *Validator {
	v := &Validator{registry: registry, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateJSON decodes a JSON candidate and validates it.
func (v *Validator) ValidateJSON(data []byte) (*models.RepoSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var candidate map[string]any
	if err := dec.Decode(&candidate); err != nil {
		return nil, &ValidationError{
			Phase: PhaseStructural,
			Violations: []Violation{{
				Rule:    RuleType,
				Entity:  "spec",
				Message: fmt.Sprintf("spec must be a JSON object: %v", err),
			}},
		}
	}
	return v.Validate(candidate)
}

// ValidateSpec re-validates an already typed spec, for callers that decoded
// it themselves.
func (v *Validator) ValidateSpec(s *models.RepoSpec) (*models.RepoSpec, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}
	return v.ValidateJSON(data)
}

// Validate checks an untrusted candidate and returns a fresh RepoSpec that
// includes any synthesized optional files. On failure the error is a
// *ValidationError listing every violation of the failing phase.
func (v *Validator) Validate(candidate map[string]any) (*models.RepoSpec, error) {
	if candidate == nil {
		return nil, &ValidationError{
			Phase:      PhaseStructural,
			Violations: []Violation{{Rule: RuleRequired, Entity: "spec", Message: "spec is required"}},
		}
	}

	structural := &collector{}
	s := (&decoder{c: structural}).decode(candidate)

	var scaffold config.Scaffold
	if v.registry != nil && s.ScaffoldID != "" {
		found, ok := v.registry.Get(s.ScaffoldID)
		if !ok {
			structural.add(RuleScaffold, "scaffoldId", "unknown scaffold %q", s.ScaffoldID)
		}
		scaffold = found
	}
	if err := structural.err(PhaseStructural); err != nil {
		return nil, err
	}

	in := semanticInput{
		baseline: scaffold.BaselineFiles,
		aliases:  scaffold.ImportAliases,
	}
	if len(in.aliases) == 0 {
		in.aliases = DefaultImportAliases
	}
	if v.registry != nil {
		in.optional = v.registry.OptionalFiles()
	}

	semantic := &collector{}
	synthesized := checkSemantics(s, in, semantic)
	if err := semantic.err(PhaseSemantic); err != nil {
		return nil, err
	}

	for _, f := range synthesized {
		v.logger.WithFields(logrus.Fields{
			"project": s.ProjectName,
			"path":    f.Path,
		}).Info("Synthesizing referenced optional file")
	}
	s.Files = append(s.Files, synthesized...)
	return s, nil
}
