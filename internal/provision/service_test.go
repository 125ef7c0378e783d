package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/db"
	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github/githubtest"
	"github.com/Kamar-Folarin/repo-provisioner/internal/issues"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
	"github.com/Kamar-Folarin/repo-provisioner/internal/tracker"
)

var (
	fixedNow     = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	scaffoldRepo = models.RepoRef{Owner: "assessment-scaffolds", Name: "node-express"}
)

func testConfig() *config.ProvisionConfig {
	cfg := config.DefaultProvisionConfig()
	cfg.BlobWorkers = 2
	cfg.SettleTimeout = 200 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.FallbackDelay = time.Millisecond
	return cfg
}

func newTestService(t *testing.T, opts ...Option) (*Service, *githubtest.Store) {
	t.Helper()
	store := githubtest.NewStore("acme")
	store.AddRepo(scaffoldRepo, "main", map[string]string{
		"package.json": `{"name":"scaffold","scripts":{"test":"jest"}}`,
		".gitignore":   "node_modules\n",
		"README.md":    "# Scaffold\n",
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clients := func(token string) (github.ObjectStore, error) {
		return store, nil
	}
	tr := tracker.NewTracker(db.NewMemoryStore(), logger)
	opts = append([]Option{WithDefaultToken("token"), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(clients, config.DefaultRegistry(), tr, testConfig(), "acme", logger, opts...), store
}

func loadCandidate(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile("testdata/team-tasks.json")
	require.NoError(t, err)
	var candidate map[string]any
	require.NoError(t, json.Unmarshal(data, &candidate))
	return candidate
}

func loadSpec(t *testing.T, svc *Service) *models.RepoSpec {
	t.Helper()
	s, err := svc.ValidateSpec(context.Background(), loadCandidate(t))
	require.NoError(t, err)
	return s
}

func messages(history []githubtest.CommitSnapshot) []string {
	var out []string
	for _, c := range history {
		out = append(out, c.Message)
	}
	return out
}

func runsFor(t *testing.T, svc *Service, subjectID string) []*models.ProvisionRun {
	t.Helper()
	runs, err := svc.Tracker().List(context.Background(), subjectID)
	require.NoError(t, err)
	return runs
}

func TestBuildFromSpec(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	url, err := svc.BuildFromSpec(ctx, "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/scenario-s1", url)

	repo := svc.ScenarioRepo("s1")
	history := store.History(repo, "main")
	require.Len(t, history, 4)
	assert.Equal(t, []string{"Initial commit", "Initial server", "Add express app", "Stub users routes"}, messages(history))

	assert.Equal(t, "Alice Chen", history[1].Author.Name)
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), history[1].Author.Date)
	assert.Equal(t, "bob@example.com", history[2].Committer.Email)
	assert.Equal(t, fixedNow.AddDate(0, 0, -20), history[2].Committer.Date)
	assert.Equal(t, fixedNow.AddDate(0, 0, -3), history[3].Author.Date)

	files := store.Files(repo, "main")
	assert.Equal(t, "node_modules\n", files[".gitignore"])
	assert.Contains(t, files["README.md"], "# Team Tasks")
	assert.Equal(t, "module.exports = { router: null };\n", files["src/routes/users.js"])
	assert.Contains(t, files, "package.json")
	assert.Contains(t, files, "src/app.js")

	got := store.Issues(repo)
	require.Len(t, got, 2)
	assert.Equal(t, "Add pagination to users endpoint", got[0].Title)
	assert.Equal(t, models.IssueOpen, got[0].State)
	require.Len(t, got[0].Comments, 1)
	assert.Equal(t, issues.Banner("Bob Martin", "Page size should default to 20."), got[0].Comments[0].Body)
	assert.Equal(t, models.IssueClosed, got[1].State)

	info, err := store.GetRepository(ctx, repo)
	require.NoError(t, err)
	assert.True(t, info.IsTemplate)
	assert.True(t, info.Private)

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateBuilt, runs[0].State)
	assert.Equal(t, models.RunBuild, runs[0].Kind)
	assert.Equal(t, url, runs[0].RepoURL)
	assert.Empty(t, runs[0].Omissions)
	assert.Equal(t, 3, runs[0].Created["commit"])
	assert.Equal(t, 2, runs[0].Created["issue"])
}

func TestBuildFromSpec_RerunConverges(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	s := loadSpec(t, svc)

	_, err := svc.BuildFromSpec(ctx, "s1", s, "")
	require.NoError(t, err)
	repo := svc.ScenarioRepo("s1")
	firstFiles := store.Files(repo, "main")
	firstHistory := store.History(repo, "main")

	_, err = svc.BuildFromSpec(ctx, "s1", s, "")
	require.NoError(t, err)

	history := store.History(repo, "main")
	assert.Equal(t, messages(firstHistory), messages(history))
	assert.Equal(t, firstHistory[0].SHA, history[0].SHA)
	assert.Equal(t, firstFiles, store.Files(repo, "main"))
	assert.Len(t, store.Issues(repo), 2)
	assert.Len(t, store.Calls("GenerateFromTemplate"), 2)

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, models.StateBuilt, run.State)
	}
}

func TestBuildFromSpec_WaitsForReadiness(t *testing.T) {
	svc, store := newTestService(t)
	store.PendingReads = 3

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.Len(t, store.Calls("GetFile"), 4)
	assert.Len(t, store.History(svc.ScenarioRepo("s1"), "main"), 4)
}

func TestBuildFromSpec_ReadinessFallbackDelay(t *testing.T) {
	svc, store := newTestService(t)
	svc.cfg.SettleTimeout = 20 * time.Millisecond
	svc.cfg.FallbackDelay = time.Minute
	store.Fail("GetFile", githubtest.ServerError("get file"))

	var mu sync.Mutex
	var waited []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		if d == time.Minute {
			mu.Lock()
			waited = append(waited, d)
			mu.Unlock()
			return nil
		}
		return sleepContext(ctx, d)
	}

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, waited)
}

func TestBuildFromSpec_EmptyRepositoryIsNotReady(t *testing.T) {
	svc, store := newTestService(t)
	svc.cfg.SettleTimeout = 20 * time.Millisecond
	svc.cfg.FallbackDelay = time.Minute
	store.Fail("GetFile", githubtest.ConflictError("get file"))

	var waited []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		if d == time.Minute {
			waited = append(waited, d)
			return nil
		}
		return sleepContext(ctx, d)
	}

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.Greater(t, len(store.Calls("GetFile")), 1)
	assert.Empty(t, waited, "a 409 is a readiness signal, no fallback delay")
}

func TestBuildFromSpec_RejectedProbeIsLogged(t *testing.T) {
	svc, store := newTestService(t)
	var buf bytes.Buffer
	svc.logger.SetOutput(&buf)
	svc.logger.SetFormatter(&logrus.JSONFormatter{})
	svc.cfg.SettleTimeout = 20 * time.Millisecond
	store.Fail("GetFile", githubtest.UnprocessableError("get file", "No commit found for the ref main"))

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Readiness probe rejected")
}

type quotaStore struct {
	*githubtest.Store
}

func (quotaStore) RateLimit() github.RateLimitInfo {
	return github.RateLimitInfo{Limit: 5000, Remaining: 4321}
}

func TestRateLimitFields(t *testing.T) {
	store := githubtest.NewStore("acme")
	assert.Empty(t, rateLimitFields(store))

	fields := rateLimitFields(quotaStore{store})
	assert.Equal(t, 4321, fields["rate_remaining"])
}

func TestBuildFromSpec_PartialFailures(t *testing.T) {
	svc, store := newTestService(t)
	store.FailWhen("CreateIssue", func(c githubtest.Call) bool {
		return c.Arg == "Fix crash on startup"
	}, githubtest.ServerError("create issue"))

	url, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Len(t, store.Issues(svc.ScenarioRepo("s1")), 1)

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatePartiallyBuilt, runs[0].State)
	require.Len(t, runs[0].Omissions, 1)
	assert.Equal(t, "issue", runs[0].Omissions[0].Kind)
	assert.Equal(t, "Fix crash on startup", runs[0].Omissions[0].Entity)
}

func TestBuildFromSpec_StrictPolicy(t *testing.T) {
	policy := report.DefaultPolicy()
	policy[report.KindIssue] = report.Abort
	svc, store := newTestService(t, WithPolicy(policy))
	store.FailWhen("CreateIssue", func(c githubtest.Call) bool {
		return c.Arg == "Fix crash on startup"
	}, githubtest.ServerError("create issue"))

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.Error(t, err)
	assert.True(t, errors.IsRemoteFatal(err))
	var abort *report.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, report.KindIssue, abort.Kind)
	assert.Empty(t, store.Calls("SetTemplate"))

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
}

func TestBuildFromSpec_RepositoryFailureIsFatal(t *testing.T) {
	svc, store := newTestService(t)
	store.Fail("GenerateFromTemplate", githubtest.ServerError("generate"))

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.Error(t, err)
	assert.True(t, errors.IsRemoteFatal(err))
	assert.Empty(t, store.Calls("CreateCommit"))

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
	assert.NotEmpty(t, runs[0].Error)
}

func TestBuildFromSpec_RefFailureIsFatal(t *testing.T) {
	svc, store := newTestService(t)
	store.Fail("UpdateRef", githubtest.ServerError("update ref"))

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.Error(t, err)
	assert.True(t, errors.IsRemoteFatal(err))
	assert.Empty(t, store.Calls("CreateIssue"))

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
}

func TestBuildFromSpec_UnknownScaffold(t *testing.T) {
	svc, store := newTestService(t)
	s := loadSpec(t, svc)
	s.ScaffoldID = "cobol-batch"

	_, err := svc.BuildFromSpec(context.Background(), "s1", s, "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Empty(t, store.Calls("GenerateFromTemplate"))
	assert.Empty(t, runsFor(t, svc, "s1"))
}

func TestBuildFromSpec_NoCredential(t *testing.T) {
	svc, store := newTestService(t, WithDefaultToken(""))

	_, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Empty(t, store.Calls(""))

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
}

func TestBuildFromSpec_RejectsConcurrentRun(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	run, err := svc.Tracker().Start(ctx, models.RunBuild, "s1", models.StateValid)
	require.NoError(t, err)

	_, err = svc.BuildFromSpec(ctx, "s1", loadSpec(t, svc), "")
	var busy *errors.RunInProgressError
	require.ErrorAs(t, err, &busy)

	svc.Tracker().Release(run)
	_, err = svc.BuildFromSpec(ctx, "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
}

func TestBuildFromSpec_IndependentRuns(t *testing.T) {
	svc, store := newTestService(t)
	s := loadSpec(t, svc)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.BuildFromSpec(context.Background(), id, s, "")
		}(i, id)
	}
	wg.Wait()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"Initial commit", "Initial server", "Add express app", "Stub users routes"},
			messages(store.History(svc.ScenarioRepo(id), "main")))
		assert.Len(t, store.Issues(svc.ScenarioRepo(id)), 2)
	}
}

func TestBuildFromSpec_Cancelled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.BuildFromSpec(ctx, "s1", loadSpec(t, svc), "")
	require.ErrorIs(t, err, context.Canceled)

	runs := runsFor(t, svc, "s1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
}

func buildSource(t *testing.T, svc *Service) string {
	t.Helper()
	url, err := svc.BuildFromSpec(context.Background(), "s1", loadSpec(t, svc), "")
	require.NoError(t, err)
	return url
}

func TestForkWithHistory(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	sourceURL := buildSource(t, svc)
	source := svc.ScenarioRepo("s1")

	url, err := svc.ForkWithHistory(ctx, "a1", sourceURL, "")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/assessment-a1", url)

	target := svc.AssessmentRepo("a1")
	srcHistory := store.History(source, "main")
	history := store.History(target, "main")
	require.Len(t, history, len(srcHistory))
	assert.Equal(t, "github", history[0].Author.Name)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, srcHistory[i].Message, history[i].Message)
		assert.Equal(t, srcHistory[i].Author, history[i].Author)
		assert.Equal(t, srcHistory[i].Committer, history[i].Committer)
	}
	assert.Equal(t, store.Files(source, "main"), store.Files(target, "main"))

	srcIssues := store.Issues(source)
	got := store.Issues(target)
	require.Len(t, got, len(srcIssues))
	for i := range got {
		assert.Equal(t, srcIssues[i].Title, got[i].Title)
		assert.Equal(t, srcIssues[i].Body, got[i].Body)
		assert.Equal(t, srcIssues[i].State, got[i].State)
		assert.Equal(t, srcIssues[i].Comments, got[i].Comments)
	}

	info, err := store.GetRepository(ctx, target)
	require.NoError(t, err)
	assert.True(t, info.Private)
	assert.False(t, info.IsTemplate)

	runs := runsFor(t, svc, "a1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFork, runs[0].Kind)
	assert.Equal(t, models.StateBuilt, runs[0].State)
}

func TestForkWithHistory_RerunConverges(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	sourceURL := buildSource(t, svc)

	_, err := svc.ForkWithHistory(ctx, "a1", sourceURL, "")
	require.NoError(t, err)
	_, err = svc.ForkWithHistory(ctx, "a1", sourceURL, "")
	require.NoError(t, err)

	target := svc.AssessmentRepo("a1")
	assert.Len(t, store.History(target, "main"), 4)
	assert.Len(t, store.Issues(target), 2)
	assert.Equal(t, store.Files(svc.ScenarioRepo("s1"), "main"), store.Files(target, "main"))
}

func TestForkWithHistory_TargetOnDifferentBranch(t *testing.T) {
	svc, store := newTestService(t)
	sourceURL := buildSource(t, svc)
	store.GeneratedBranch = "trunk"

	_, err := svc.ForkWithHistory(context.Background(), "a1", sourceURL, "")
	require.NoError(t, err)

	source := svc.ScenarioRepo("s1")
	target := svc.AssessmentRepo("a1")
	assert.Equal(t, messages(store.History(source, "main"))[1:], messages(store.History(target, "trunk"))[1:])
	assert.Equal(t, store.Files(source, "main"), store.Files(target, "trunk"))
	assert.Empty(t, store.Head(target, "main"))
}

func TestForkWithHistory_KeepsLabelColors(t *testing.T) {
	svc, store := newTestService(t)
	sourceURL := buildSource(t, svc)
	store.AddIssue(svc.ScenarioRepo("s1"), models.SourceIssue{
		Title:    "Flaky users test",
		Body:     "The users suite fails about one run in five.",
		Labels:   []models.Label{{Name: "needs-triage", Color: "5319e7"}},
		Author:   "carol",
		Comments: []models.SourceComment{{Author: "dave", Body: "Seen it on CI too."}},
	})

	_, err := svc.ForkWithHistory(context.Background(), "a1", sourceURL, "")
	require.NoError(t, err)

	target := svc.AssessmentRepo("a1")
	got := store.Issues(target)
	require.Len(t, got, 3)
	assert.Equal(t, "Flaky users test", got[2].Title)
	require.Len(t, got[2].Comments, 1)
	assert.Contains(t, got[2].Comments[0].Body, "Seen it on CI too.")

	label, ok := store.Label(target, "needs-triage")
	require.True(t, ok)
	assert.Equal(t, "5319e7", label.Color)
}

func TestForkWithHistory_UnreadableCommentsSkipped(t *testing.T) {
	svc, store := newTestService(t)
	sourceURL := buildSource(t, svc)
	store.Fail("ListIssueComments", githubtest.ServerError("list comments"))

	_, err := svc.ForkWithHistory(context.Background(), "a1", sourceURL, "")
	require.NoError(t, err)

	got := store.Issues(svc.AssessmentRepo("a1"))
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Comments)

	runs := runsFor(t, svc, "a1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatePartiallyBuilt, runs[0].State)
	assert.Len(t, runs[0].Omissions, 2)
}

func TestForkWithHistory_InvalidSource(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.ForkWithHistory(context.Background(), "a1", "not a repository", "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Empty(t, store.Calls(""))
}

func TestForkWithHistory_MissingSource(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ForkWithHistory(context.Background(), "a1", "acme/scenario-missing", "")
	require.Error(t, err)
	assert.True(t, errors.IsRemoteFatal(err))

	runs := runsFor(t, svc, "a1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateFailed, runs[0].State)
}

func TestValidateGenerated(t *testing.T) {
	svc, _ := newTestService(t)
	var feedback []error
	source := CandidateSourceFunc(func(ctx context.Context, prev error) (map[string]any, error) {
		feedback = append(feedback, prev)
		candidate := loadCandidate(t)
		if prev == nil {
			candidate["scaffoldId"] = "cobol-batch"
		}
		return candidate, nil
	})

	s, err := svc.ValidateGenerated(context.Background(), "g1", source)
	require.NoError(t, err)
	assert.Equal(t, "team-tasks", s.ProjectName)

	require.Len(t, feedback, 2)
	assert.Nil(t, feedback[0])
	verr, ok := spec.AsValidationError(feedback[1])
	require.True(t, ok)
	assert.True(t, verr.Has(spec.RuleScaffold))

	runs := runsFor(t, svc, "g1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunValidate, runs[0].Kind)
	assert.Equal(t, models.StateValid, runs[0].State)
	assert.Empty(t, runs[0].Error)
}

func TestValidateGenerated_AttemptsExhausted(t *testing.T) {
	svc, _ := newTestService(t)
	svc.cfg.MaxGenerationAttempts = 2
	calls := 0
	source := CandidateSourceFunc(func(ctx context.Context, prev error) (map[string]any, error) {
		calls++
		candidate := loadCandidate(t)
		delete(candidate, "commitHistory")
		return candidate, nil
	})

	_, err := svc.ValidateGenerated(context.Background(), "g1", source)
	require.Error(t, err)
	_, ok := spec.AsValidationError(err)
	assert.True(t, ok)
	assert.Equal(t, 2, calls)

	runs := runsFor(t, svc, "g1")
	require.Len(t, runs, 1)
	assert.Equal(t, models.StateRejected, runs[0].State)
	assert.NotEmpty(t, runs[0].Error)

	// the subject is free again
	_, err = svc.ValidateGenerated(context.Background(), "g1", CandidateSourceFunc(func(ctx context.Context, prev error) (map[string]any, error) {
		return loadCandidate(t), nil
	}))
	require.NoError(t, err)
}
