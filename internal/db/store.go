// Package db persists the provisioning run ledger.
package db

import (
	"context"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Store defines the interface for run ledger operations
type Store interface {
	// SaveRun inserts the run or replaces the stored copy with the same ID.
	SaveRun(ctx context.Context, run *models.ProvisionRun) error
	GetRun(ctx context.Context, id string) (*models.ProvisionRun, error)
	// ListRuns returns runs newest first. An empty subjectID lists every run.
	ListRuns(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}
