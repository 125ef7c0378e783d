package config

import "time"

// ProvisionConfig holds repository provisioning configuration
type ProvisionConfig struct {
	DefaultBranch         string
	BlobWorkers           int
	SettleTimeout         time.Duration
	PollInterval          time.Duration
	FallbackDelay         time.Duration
	MaxGenerationAttempts int
	ScenarioRepoPrefix    string
	AssessmentRepoPrefix  string
	PrivateRepos          bool

	// BlobDelay spaces out blob uploads per worker slot.
	BlobDelay time.Duration
}

// DefaultProvisionConfig returns the default provisioning configuration
func DefaultProvisionConfig() *ProvisionConfig {
	return &ProvisionConfig{
		DefaultBranch:         "main",
		BlobWorkers:           4,
		SettleTimeout:         30 * time.Second,
		PollInterval:          time.Second,
		FallbackDelay:         5 * time.Second,
		MaxGenerationAttempts: 3,
		ScenarioRepoPrefix:    "scenario-",
		AssessmentRepoPrefix:  "assessment-",
		PrivateRepos:          true,
	}
}
