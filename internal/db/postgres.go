package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded migrations.
func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts a run. The full record is kept as JSON; the indexed
// columns mirror the fields runs are looked up by.
func (s *PostgresStore) SaveRun(ctx context.Context, run *models.ProvisionRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provision_runs (id, kind, subject_id, state, repo_url, run_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			repo_url = EXCLUDED.repo_url,
			run_json = EXCLUDED.run_json,
			updated_at = EXCLUDED.updated_at
		WHERE provision_runs.deleted_at IS NULL
	`, run.ID, string(run.Kind), run.SubjectID, string(run.State), run.RepoURL, runJSON, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

// GetRun retrieves a run by id
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.ProvisionRun, error) {
	var runJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT run_json FROM provision_runs
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&runJSON)

	if err == sql.ErrNoRows {
		return nil, errors.NewResourceNotFoundError("run", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run models.ProvisionRun
	if err := json.Unmarshal(runJSON, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error) {
	query := `
		SELECT run_json FROM provision_runs
		WHERE deleted_at IS NULL`
	var args []interface{}
	if subjectID != "" {
		query += " AND subject_id = $1"
		args = append(args, subjectID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ProvisionRun
	for rows.Next() {
		var runJSON []byte
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		var run models.ProvisionRun
		if err := json.Unmarshal(runJSON, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// DeleteRun soft deletes a run
func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE provision_runs
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewResourceNotFoundError("run", id)
	}

	return nil
}
