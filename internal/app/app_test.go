package app

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/db"
)

func testConfig() *config.Config {
	gh := config.DefaultGitHubConfig()
	gh.Org = "acme"
	gh.Token = "ghp_test"
	return &config.Config{
		Port:      "8080",
		LogLevel:  "info",
		GitHub:    gh,
		Provision: config.DefaultProvisionConfig(),
	}
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
	_, ok := NewLogger("warn").Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNew_MemoryLedger(t *testing.T) {
	a, err := New(testConfig(), NewLogger("error"))
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Store.(*db.MemoryStore)
	assert.True(t, ok)
	assert.True(t, a.Registry.Has("node-express"))
	assert.NotNil(t, a.Service)
	assert.Equal(t, "acme", a.Service.ScenarioRepo("s1").Owner)
}

func TestNew_RequiresOrg(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.Org = ""

	_, err := New(cfg, NewLogger("error"))
	assert.Error(t, err)
}

func TestNew_BadScaffoldsFile(t *testing.T) {
	cfg := testConfig()
	cfg.ScaffoldsFile = "testdata/does-not-exist.yaml"

	_, err := New(cfg, NewLogger("error"))
	assert.Error(t, err)
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(3, 0, func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retry(3, 0, func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}
