package tracker

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/db"
	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveRun(ctx context.Context, run *models.ProvisionRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id string) (*models.ProvisionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProvisionRun), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).([]*models.ProvisionRun), args.Error(1)
}

func (m *MockStore) DeleteRun(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) Close() error {
	return nil
}

func newTestTracker(store db.Store) *Tracker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tr := NewTracker(store, logger)
	tr.now = func() time.Time { return time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC) }
	return tr
}

func TestTracker_BuildLifecycle(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	tr := newTestTracker(store)

	run, err := tr.Start(ctx, models.RunBuild, "scenario-7", models.StateValid)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	require.NoError(t, tr.Transition(ctx, run, models.StateBuilding))

	rep := report.New(nil)
	rep.Created(report.KindCommit)
	require.NoError(t, rep.Fail(report.KindLabel, "bug", stderrors.New("boom")))
	run.RepoURL = "https://github.com/acme/scenario-7"
	require.NoError(t, tr.Finish(ctx, run, rep.State(), rep, nil))

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePartiallyBuilt, stored.State)
	assert.Equal(t, map[string]int{"commit": 1}, stored.Created)
	require.Len(t, stored.Omissions, 1)
	assert.Equal(t, "bug", stored.Omissions[0].Entity)
	assert.Equal(t, run.RepoURL, stored.RepoURL)

	cached, err := tr.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePartiallyBuilt, cached.State)

	// the subject is free again
	_, err = tr.Start(ctx, models.RunBuild, "scenario-7", models.StateValid)
	assert.NoError(t, err)
}

func TestTracker_RejectsConcurrentRunsForSubject(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(db.NewMemoryStore())

	_, err := tr.Start(ctx, models.RunFork, "assessment-1", models.StateValid)
	require.NoError(t, err)

	_, err = tr.Start(ctx, models.RunFork, "assessment-1", models.StateValid)
	var inProgress *errors.RunInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, "assessment-1", inProgress.SubjectID)

	_, err = tr.Start(ctx, models.RunFork, "assessment-2", models.StateValid)
	assert.NoError(t, err)
}

func TestTracker_KindsDoNotShareSubjects(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(db.NewMemoryStore())

	build, err := tr.Start(ctx, models.RunBuild, "42", models.StateValid)
	require.NoError(t, err)
	fork, err := tr.Start(ctx, models.RunFork, "42", models.StateValid)
	require.NoError(t, err)

	_, err = tr.Start(ctx, models.RunBuild, "42", models.StateValid)
	var inProgress *errors.RunInProgressError
	require.ErrorAs(t, err, &inProgress)

	// releasing the fork leaves the build holding its subject
	tr.Release(fork)
	_, err = tr.Start(ctx, models.RunBuild, "42", models.StateValid)
	require.ErrorAs(t, err, &inProgress)

	tr.Release(build)
	_, err = tr.Start(ctx, models.RunBuild, "42", models.StateValid)
	assert.NoError(t, err)
}

func TestTracker_InvalidTransition(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(db.NewMemoryStore())

	run, err := tr.Start(ctx, models.RunValidate, "spec-1", models.StateGenerated)
	require.NoError(t, err)

	err = tr.Transition(ctx, run, models.StateBuilt)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, models.StateGenerated, run.State)
}

func TestTracker_FinishRecordsError(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	tr := newTestTracker(store)

	run, err := tr.Start(ctx, models.RunBuild, "scenario-9", models.StateValid)
	require.NoError(t, err)
	require.NoError(t, tr.Transition(ctx, run, models.StateBuilding))
	require.NoError(t, tr.Finish(ctx, run, models.StateFailed, nil, stderrors.New("ref update failed")))

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, stored.State)
	assert.Equal(t, "ref update failed", stored.Error)
}

func TestTracker_Release(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(db.NewMemoryStore())

	run, err := tr.Start(ctx, models.RunBuild, "scenario-4", models.StateValid)
	require.NoError(t, err)
	tr.Release(run)

	_, err = tr.Start(ctx, models.RunBuild, "scenario-4", models.StateValid)
	assert.NoError(t, err)
}

func TestTracker_SaveFailureReleasesSubject(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("SaveRun", mock.Anything, mock.Anything).Return(stderrors.New("connection refused")).Once()
	store.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	tr := newTestTracker(store)

	_, err := tr.Start(ctx, models.RunBuild, "scenario-5", models.StateValid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrInternal, appErr.Type)

	_, err = tr.Start(ctx, models.RunBuild, "scenario-5", models.StateValid)
	assert.NoError(t, err)
	store.AssertNumberOfCalls(t, "SaveRun", 2)
}

func TestTracker_GetFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	run := &models.ProvisionRun{BaseModel: models.BaseModel{ID: "run-1"}, State: models.StateBuilt}
	store.On("GetRun", mock.Anything, "run-1").Return(run, nil).Once()
	store.On("GetRun", mock.Anything, "missing").Return(nil, errors.NewResourceNotFoundError("run", "missing"))
	tr := newTestTracker(store)

	got, err := tr.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateBuilt, got.State)

	// served from cache
	_, err = tr.Get(ctx, "run-1")
	require.NoError(t, err)

	_, err = tr.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	store.AssertExpectations(t)
}
