package provision

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
)

// CandidateSource produces candidate specs, typically by asking a generative
// model. feedback is the validation error of the previous attempt, nil on
// the first call.
type CandidateSource interface {
	Generate(ctx context.Context, feedback error) (map[string]any, error)
}

// CandidateSourceFunc adapts a function to CandidateSource.
type CandidateSourceFunc func(ctx context.Context, feedback error) (map[string]any, error)

func (f CandidateSourceFunc) Generate(ctx context.Context, feedback error) (map[string]any, error) {
	return f(ctx, feedback)
}

// ValidateSpec validates one candidate against the service's scaffold
// registry. It records nothing in the ledger.
func (s *Service) ValidateSpec(ctx context.Context, candidate map[string]any) (*models.RepoSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.validator.Validate(candidate)
}

// ValidateGenerated asks source for candidates until one validates or
// MaxGenerationAttempts is reached, passing every rejection back as
// feedback. The run for subjectID moves GENERATED -> VALIDATING ->
// VALID|REJECTED, re-entering VALIDATING on each retry.
func (s *Service) ValidateGenerated(ctx context.Context, subjectID string, source CandidateSource) (*models.RepoSpec, error) {
	run, err := s.tracker.Start(ctx, models.RunValidate, subjectID, models.StateGenerated)
	if err != nil {
		return nil, err
	}
	defer s.tracker.Release(run)

	attempts := s.cfg.MaxGenerationAttempts
	if attempts <= 0 {
		attempts = 1
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": run.ID, "subject": subjectID})

	var feedback error
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate, err := source.Generate(ctx, feedback)
		if err != nil {
			return nil, fmt.Errorf("failed to generate candidate: %w", err)
		}
		if err := s.tracker.Transition(ctx, run, models.StateValidating); err != nil {
			return nil, err
		}

		validated, err := s.ValidateSpec(ctx, candidate)
		if err == nil {
			run.Error = ""
			if err := s.tracker.Transition(ctx, run, models.StateValid); err != nil {
				return nil, err
			}
			log.WithField("attempt", attempt).Info("Candidate accepted")
			return validated, nil
		}
		if _, ok := spec.AsValidationError(err); !ok {
			return nil, err
		}

		feedback = err
		run.Error = err.Error()
		if err := s.tracker.Transition(ctx, run, models.StateRejected); err != nil {
			return nil, err
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Candidate rejected")
	}

	return nil, feedback
}
