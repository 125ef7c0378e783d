package api

import (
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
)

// ErrorResponse represents an API error
// @Description Error response from the API
// @swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// @example REMOTE_FATAL: build failed
	Error string `json:"error" example:"INVALID_INPUT: unknown scaffold \"cobol\""`
}

// ValidationResponse is the outcome of validating a spec
// @Description Result of spec validation. Violations are reported for the first failing phase only.
// @swagger:model ValidationResponse
type ValidationResponse struct {
	// Whether the candidate passed every phase
	Valid bool `json:"valid" example:"false"`
	// The normalized spec, when valid
	Spec *models.RepoSpec `json:"spec,omitempty"`
	// Failing phase
	Phase string `json:"phase,omitempty" example:"semantic" enums:"structural,semantic"`
	// Violations found in the failing phase
	Violations []spec.Violation `json:"violations,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ProvisionResponse is returned by builds and forks
// @Description A provisioned repository
// @swagger:model ProvisionResponse
type ProvisionResponse struct {
	// Scenario or assessment id
	// @example s-42
	SubjectID string `json:"subject_id" example:"s-42"`
	// URL of the provisioned repository
	// @example https://github.com/acme/scenario-s-42
	RepoURL string `json:"repo_url" example:"https://github.com/acme/scenario-s-42"`
}
