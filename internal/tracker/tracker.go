// Package tracker records provisioning runs in the ledger and enforces their
// state machine.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/db"
	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

// Tracker creates and advances runs. Runs are cached by id; the store is
// written on every change.
type Tracker struct {
	store  db.Store
	logger *logrus.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cache  map[string]*models.ProvisionRun
	active map[activeKey]string // run id per kind and subject
}

type activeKey struct {
	kind    models.RunKind
	subject string
}

// NewTracker creates a run tracker
func NewTracker(store db.Store, logger *logrus.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]*models.ProvisionRun),
		active: make(map[activeKey]string),
	}
}

// Start records a new run for subjectID in state initial. Only one run of a
// kind per subject may be active at a time.
func (t *Tracker) Start(ctx context.Context, kind models.RunKind, subjectID string, initial models.RunState) (*models.ProvisionRun, error) {
	if subjectID == "" {
		return nil, errors.NewValidationError("subject id cannot be empty", nil)
	}

	key := activeKey{kind: kind, subject: subjectID}
	t.mu.Lock()
	if _, busy := t.active[key]; busy {
		t.mu.Unlock()
		return nil, errors.NewRunInProgressError(subjectID)
	}
	now := t.now()
	run := &models.ProvisionRun{
		BaseModel:        models.BaseModel{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
		ProgressTracking: models.ProgressTracking{StartTime: now, LastUpdateTime: now},
		Kind:             kind,
		SubjectID:        subjectID,
		State:            initial,
	}
	t.active[key] = run.ID
	t.mu.Unlock()

	if err := t.save(ctx, run); err != nil {
		t.release(run)
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"kind":    kind,
		"subject": subjectID,
	}).Info("Run started")
	return clone(run), nil
}

// Transition moves run to next and saves it.
func (t *Tracker) Transition(ctx context.Context, run *models.ProvisionRun, next models.RunState) error {
	if err := run.Transition(next, t.now()); err != nil {
		return errors.NewValidationError(err.Error(), nil)
	}
	if err := t.save(ctx, run); err != nil {
		return err
	}
	if run.State.Terminal() {
		t.release(run)
	}
	return nil
}

// Finish moves run to its terminal state and records what rep collected.
// runErr, when set, is stored as the run's error.
func (t *Tracker) Finish(ctx context.Context, run *models.ProvisionRun, state models.RunState, rep *report.Report, runErr error) error {
	if rep != nil {
		run.Created = rep.CreatedCounts()
		run.Omissions = rep.Omissions()
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := t.Transition(ctx, run, state); err != nil {
		return err
	}

	entry := t.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"state":     run.State,
		"omissions": len(run.Omissions),
	})
	if runErr != nil {
		entry.WithError(runErr).Warn("Run finished")
	} else {
		entry.Info("Run finished")
	}
	return nil
}

// Release frees the subject of a run that will not progress further here, for
// example after cancellation, keeping its last saved state.
func (t *Tracker) Release(run *models.ProvisionRun) {
	t.release(run)
}

// Get retrieves a run by id
func (t *Tracker) Get(ctx context.Context, id string) (*models.ProvisionRun, error) {
	t.mu.RLock()
	if run, ok := t.cache[id]; ok {
		t.mu.RUnlock()
		return clone(run), nil
	}
	t.mu.RUnlock()

	run, err := t.store.GetRun(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.NewInternalError("failed to get run", err)
	}

	t.mu.Lock()
	t.cache[id] = clone(run)
	t.mu.Unlock()
	return run, nil
}

// List returns runs newest first, optionally for one subject.
func (t *Tracker) List(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error) {
	runs, err := t.store.ListRuns(ctx, subjectID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list runs", err)
	}
	return runs, nil
}

func (t *Tracker) save(ctx context.Context, run *models.ProvisionRun) error {
	if err := t.store.SaveRun(ctx, run); err != nil {
		return errors.NewInternalError("failed to save run", err)
	}
	t.mu.Lock()
	t.cache[run.ID] = clone(run)
	t.mu.Unlock()
	return nil
}

func (t *Tracker) release(run *models.ProvisionRun) {
	t.mu.Lock()
	key := activeKey{kind: run.Kind, subject: run.SubjectID}
	if t.active[key] == run.ID {
		delete(t.active, key)
	}
	t.mu.Unlock()
}

func clone(run *models.ProvisionRun) *models.ProvisionRun {
	c := *run
	if run.Created != nil {
		c.Created = make(map[string]int, len(run.Created))
		for k, v := range run.Created {
			c.Created[k] = v
		}
	}
	c.Omissions = append([]models.Omission(nil), run.Omissions...)
	return &c
}
