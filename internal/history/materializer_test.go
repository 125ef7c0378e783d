package history

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/batch"
	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github/githubtest"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

var (
	testRepo = models.RepoRef{Owner: "acme", Name: "scenario-todo"}
	fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestMaterializer(store *githubtest.Store) *Materializer {
	processor := batch.NewProcessor(&config.ProvisionConfig{BlobWorkers: 3})
	return NewMaterializer(store, processor, testLogger(), WithClock(func() time.Time { return fixedNow }))
}

// seedBaseline creates the repository with a scaffold baseline and returns
// the target positioned on its root commit.
func seedBaseline(t *testing.T, store *githubtest.Store) Target {
	t.Helper()
	root := store.AddRepo(testRepo, "main", map[string]string{
		"package.json": `{"name":"todo"}`,
		".gitignore":   "node_modules\n",
	})
	base, err := ResolveHead(context.Background(), store, testRepo, root)
	require.NoError(t, err)
	return Target{Repo: testRepo, Branch: "main", Base: base}
}

func testSpec() *models.RepoSpec {
	return &models.RepoSpec{
		ProjectName:   "todo",
		ReadmeContent: "# Todo\n\nA small todo service used for onboarding exercises.",
		Files: []models.FileSpec{
			{Path: "src/index.js", Content: "require('./app')\n", Purpose: models.PurposeWorking, AddedInCommit: 0},
			{Path: "src/app.js", Content: "module.exports = {}\n", Purpose: models.PurposeWorking, AddedInCommit: 1},
			{Path: "test/app.test.js", Content: "test('app', () => {})\n", Purpose: models.PurposeTest, AddedInCommit: 2},
			{Path: "scripts/setup.sh", Content: "#!/bin/sh\nnpm ci\n", Purpose: models.PurposeConfig, AddedInCommit: 2},
		},
		CommitHistory: []models.CommitSpec{
			{Message: "Set up project", AuthorName: "Alice Chen", AuthorEmail: "alice@example.com", DaysAgo: 30},
			{Message: "Add app module", AuthorName: "Bob Martin", AuthorEmail: "bob@example.com", DaysAgo: 12},
			{Message: "Add tests", AuthorName: "Alice Chen", AuthorEmail: "alice@example.com", DaysAgo: 2},
		},
	}
}

func messages(history []githubtest.CommitSnapshot) []string {
	var out []string
	for _, c := range history {
		out = append(out, c.Message)
	}
	return out
}

func TestMaterialize(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	rep := report.New(nil)

	res, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), rep)
	require.NoError(t, err)

	history := store.History(testRepo, "main")
	require.Len(t, history, 4)
	assert.Equal(t, []string{"Initial commit", "Set up project", "Add app module", "Add tests"}, messages(history))
	assert.Equal(t, res.Head.CommitSHA, history[3].SHA)
	assert.Equal(t, []string{history[1].SHA, history[2].SHA, history[3].SHA}, res.Commits)

	// linear chain rooted at the baseline
	for i := 1; i < len(history); i++ {
		assert.Equal(t, []string{history[i-1].SHA}, history[i].Parents)
	}

	assert.Equal(t, "Alice Chen", history[1].Author.Name)
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), history[1].Author.Date)
	assert.Equal(t, history[1].Author, history[1].Committer)
	assert.Equal(t, "bob@example.com", history[2].Author.Email)
	assert.Equal(t, fixedNow.AddDate(0, 0, -2), history[3].Committer.Date)

	assert.Equal(t, map[string]string{
		"package.json":     `{"name":"todo"}`,
		".gitignore":       "node_modules\n",
		"README.md":        "# Todo\n\nA small todo service used for onboarding exercises.",
		"src/index.js":     "require('./app')\n",
		"src/app.js":       "module.exports = {}\n",
		"test/app.test.js": "test('app', () => {})\n",
		"scripts/setup.sh": "#!/bin/sh\nnpm ci\n",
	}, store.Files(testRepo, "main"))

	assert.Equal(t, 5, rep.Count(report.KindBlob))
	assert.Equal(t, 3, rep.Count(report.KindTree))
	assert.Equal(t, 3, rep.Count(report.KindCommit))
	assert.Equal(t, 1, rep.Count(report.KindRef))
	assert.Equal(t, models.StateBuilt, rep.State())
}

func TestMaterialize_ReadmeInFirstCommit(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), report.New(nil))
	require.NoError(t, err)

	history := store.History(testRepo, "main")
	first := store.Files(testRepo, "main")
	require.Contains(t, first, "README.md")

	detail, err := store.GetCommit(context.Background(), testRepo, history[1].SHA)
	require.NoError(t, err)
	var paths []string
	for _, f := range detail.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"README.md", "src/index.js"}, paths)
}

func TestMaterialize_ReadmeOwnedByFile(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	s := testSpec()
	s.Files = append(s.Files, models.FileSpec{
		Path: "README.md", Content: "# Owned\n", Purpose: models.PurposeDoc, AddedInCommit: 1,
	})

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, s, report.New(nil))
	require.NoError(t, err)

	assert.Equal(t, "# Owned\n", store.Files(testRepo, "main")["README.md"])
	for _, c := range store.Calls("CreateBlob") {
		assert.NotEqual(t, s.ReadmeContent, c.Arg)
	}
}

func TestMaterialize_CommitWithoutFilesReusesTree(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	s := testSpec()
	s.CommitHistory = append(s.CommitHistory, models.CommitSpec{
		Message: "Bump version", AuthorName: "Bob Martin", AuthorEmail: "bob@example.com", DaysAgo: 1,
	})

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, s, report.New(nil))
	require.NoError(t, err)

	history := store.History(testRepo, "main")
	require.Len(t, history, 5)
	assert.Equal(t, history[3].TreeSHA, history[4].TreeSHA)
	assert.Len(t, store.Calls("CreateTree"), 3)
}

func TestMaterialize_BlobFailureSkipsFile(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	store.FailWhen("CreateBlob", func(c githubtest.Call) bool {
		return c.Arg == "module.exports = {}\n"
	}, githubtest.ServerError("create blob"))
	rep := report.New(nil)

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), rep)
	require.NoError(t, err)

	files := store.Files(testRepo, "main")
	assert.NotContains(t, files, "src/app.js")
	assert.Contains(t, files, "test/app.test.js")
	assert.Len(t, store.History(testRepo, "main"), 4)

	assert.Equal(t, models.StatePartiallyBuilt, rep.State())
	omissions := rep.Omissions()
	require.Len(t, omissions, 1)
	assert.Equal(t, string(report.KindBlob), omissions[0].Kind)
	assert.Equal(t, "src/app.js", omissions[0].Entity)
}

func TestMaterialize_TreeFailureKeepsWaypoint(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	store.FailWhen("CreateTree", func(c githubtest.Call) bool {
		return c.Arg == "src/app.js"
	}, githubtest.ServerError("create tree"))
	rep := report.New(nil)

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), rep)
	require.NoError(t, err)

	history := store.History(testRepo, "main")
	require.Len(t, history, 4)
	assert.Equal(t, "Add app module", history[2].Message)
	assert.Equal(t, history[1].TreeSHA, history[2].TreeSHA)
	assert.NotContains(t, store.Files(testRepo, "main"), "src/app.js")

	require.Len(t, rep.Omissions(), 1)
	assert.Equal(t, string(report.KindTree), rep.Omissions()[0].Kind)
	assert.Equal(t, 3, rep.Count(report.KindCommit))
}

func TestMaterialize_CommitFailureSkipsCommit(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	store.FailWhen("CreateCommit", func(c githubtest.Call) bool {
		return c.Arg == "Add app module"
	}, githubtest.ServerError("create commit"))
	rep := report.New(nil)

	res, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), rep)
	require.NoError(t, err)

	history := store.History(testRepo, "main")
	assert.Equal(t, []string{"Initial commit", "Set up project", "Add tests"}, messages(history))
	assert.Len(t, res.Commits, 2)
	assert.NotContains(t, store.Files(testRepo, "main"), "src/app.js")
	require.Len(t, rep.Omissions(), 1)
	assert.Equal(t, string(report.KindCommit), rep.Omissions()[0].Kind)
}

func TestMaterialize_RefFailureAborts(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	store.Fail("UpdateRef", githubtest.ServerError("update ref"))
	rep := report.New(nil)

	res, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), rep)
	require.Error(t, err)
	assert.Nil(t, res)

	var abort *report.AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, report.KindRef, abort.Kind)
	assert.Equal(t, target.Base.CommitSHA, store.Head(testRepo, "main"))
	assert.Len(t, store.Calls("CreateCommit"), 3)
}

func TestMaterialize_AbortPolicy(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	store.Fail("CreateBlob", githubtest.ServerError("create blob"))

	policy := report.DefaultPolicy()
	policy[report.KindBlob] = report.Abort

	_, err := newTestMaterializer(store).Materialize(context.Background(), target, testSpec(), report.New(policy))

	var abort *report.AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, report.KindBlob, abort.Kind)
	assert.Empty(t, store.Calls("CreateCommit"))
	assert.Empty(t, store.Calls("UpdateRef"))
}

func TestMaterialize_Cancelled(t *testing.T) {
	store := githubtest.NewStore("acme")
	target := seedBaseline(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestMaterializer(store).Materialize(ctx, target, testSpec(), report.New(nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, target.Base.CommitSHA, store.Head(testRepo, "main"))
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	store := githubtest.NewStore("acme")
	source := models.RepoRef{Owner: "acme", Name: "scenario-todo"}
	alice := models.Signature{Name: "Alice Chen", Email: "alice@example.com", Date: fixedNow.AddDate(0, 0, -9)}
	bob := models.Signature{Name: "Bob Martin", Email: "bob@example.com", Date: fixedNow.AddDate(0, 0, -3)}

	store.AddRepo(source, "main", map[string]string{"package.json": "{}"})
	store.Commit(source, "main", "Add server", alice, map[string]string{"src/server.js": "listen()\n", "src/util.js": "util\n"})
	store.Rename(source, "main", "Move util", bob, "src/util.js", "src/lib/util.js")
	store.Commit(source, "main", "Drop server", alice, map[string]string{"src/server.js": "", "src/main.js": "main()\n"})

	fork := models.RepoRef{Owner: "acme", Name: "assessment-todo-jdoe"}
	_, err := store.GenerateFromTemplate(ctx, source, models.TemplateRequest{Owner: "acme", Name: fork.Name})
	require.NoError(t, err)
	base, err := ResolveHead(ctx, store, fork, store.Head(fork, "main"))
	require.NoError(t, err)

	commits, err := store.ListCommits(ctx, source, "main")
	require.NoError(t, err)
	require.Len(t, commits, 4)

	rep := report.New(nil)
	res, err := newTestMaterializer(store).Replay(ctx, source, Target{Repo: fork, Branch: "main", Base: base}, commits[1:], rep)
	require.NoError(t, err)
	assert.Len(t, res.Commits, 3)

	history := store.History(fork, "main")
	assert.Equal(t, []string{"Initial commit", "Add server", "Move util", "Drop server"}, messages(history))
	assert.Equal(t, bob, history[2].Author)
	assert.Equal(t, bob, history[2].Committer)
	assert.Equal(t, alice, history[3].Author)

	assert.Equal(t, store.Files(source, "main"), store.Files(fork, "main"))
	assert.Equal(t, models.StateBuilt, rep.State())
}

func TestReplay_UnreadableCommitSkipped(t *testing.T) {
	ctx := context.Background()
	store := githubtest.NewStore("acme")
	source := models.RepoRef{Owner: "acme", Name: "scenario-api"}
	sig := models.Signature{Name: "Alice Chen", Email: "alice@example.com", Date: fixedNow}

	store.AddRepo(source, "main", map[string]string{"go.mod": "module api\n"})
	bad := store.Commit(source, "main", "Add handler", sig, map[string]string{"handler.go": "package api\n"})
	store.Commit(source, "main", "Add tests", sig, map[string]string{"handler_test.go": "package api\n"})

	fork := models.RepoRef{Owner: "acme", Name: "assessment-api-jdoe"}
	_, err := store.GenerateFromTemplate(ctx, source, models.TemplateRequest{Name: fork.Name})
	require.NoError(t, err)
	base, err := ResolveHead(ctx, store, fork, store.Head(fork, "main"))
	require.NoError(t, err)

	store.FailWhen("GetCommit", func(c githubtest.Call) bool {
		return c.Repo == source && c.Arg == bad
	}, githubtest.ServerError("get commit"))

	commits, err := store.ListCommits(ctx, source, "main")
	require.NoError(t, err)

	rep := report.New(nil)
	_, err = newTestMaterializer(store).Replay(ctx, source, Target{Repo: fork, Branch: "main", Base: base}, commits[1:], rep)
	require.NoError(t, err)

	assert.Equal(t, []string{"Initial commit", "Add tests"}, messages(store.History(fork, "main")))
	require.Len(t, rep.Omissions(), 1)
	assert.Equal(t, "commit "+bad, rep.Omissions()[0].Entity)
}
