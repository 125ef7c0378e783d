package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "2022-11-28", cfg.GitHub.APIVersion)
		assert.Equal(t, 4, cfg.Provision.BlobWorkers)
		assert.Equal(t, time.Second, cfg.Provision.PollInterval)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("GITHUB_ORG", "acme-assessments")
		t.Setenv("PROVISION_BLOB_WORKERS", "8")
		t.Setenv("PROVISION_SETTLE_TIMEOUT_SECONDS", "90")
		t.Setenv("PROVISION_POLL_INTERVAL_MS", "250")
		t.Setenv("PROVISION_BLOB_DELAY_MS", "20")
		t.Setenv("GITHUB_MAX_RETRIES", "5")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "acme-assessments", cfg.GitHub.Org)
		assert.Equal(t, 8, cfg.Provision.BlobWorkers)
		assert.Equal(t, 90*time.Second, cfg.Provision.SettleTimeout)
		assert.Equal(t, 250*time.Millisecond, cfg.Provision.PollInterval)
		assert.Equal(t, 20*time.Millisecond, cfg.Provision.BlobDelay)
		assert.Equal(t, 5, cfg.GitHub.RateLimit.MaxRetries)
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Setenv("PROVISION_BLOB_WORKERS", "many")
		_, err := Load()
		assert.Error(t, err)
	})
}
