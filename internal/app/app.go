// Package app wires configuration, the run ledger and the provisioning
// service for the binaries.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/db"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/provision"
	"github.com/Kamar-Folarin/repo-provisioner/internal/tracker"
)

// NewLogger returns a JSON logger at level. An unknown level falls back to
// info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	Registry *config.Registry
	Store    db.Store
	Tracker  *tracker.Tracker
	Service  *provision.Service
}

// New wires the application. Runs are kept in Postgres when
// DB_CONNECTION_STRING is set, in memory otherwise.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if cfg.GitHub.Org == "" {
		return nil, fmt.Errorf("GITHUB_ORG must be set")
	}

	registry, err := config.LoadRegistryOrDefault(cfg.ScaffoldsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load scaffolds: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr := tracker.NewTracker(store, logger)
	clients := github.NewClientFactory(cfg.GitHub, logger,
		github.WithRetryConfig(cfg.GitHub.RateLimit.MaxRetries, cfg.GitHub.RateLimit.InitialBackoff, cfg.GitHub.RateLimit.MaxBackoff))
	svc := provision.NewService(clients, registry, tr, cfg.Provision, cfg.GitHub.Org, logger,
		provision.WithDefaultToken(cfg.GitHub.Token))

	return &App{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Tracker:  tr,
		Service:  svc,
	}, nil
}

// Close releases the run ledger.
func (a *App) Close() error {
	return a.Store.Close()
}

func openStore(cfg *config.Config, logger *logrus.Logger) (db.Store, error) {
	if cfg.DBConnectionString == "" {
		logger.Warn("DB_CONNECTION_STRING not set, keeping runs in memory")
		return db.NewMemoryStore(), nil
	}

	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := retry(3, 5*time.Second, store.Migrate); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations after retries: %w", err)
	}
	return store, nil
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
