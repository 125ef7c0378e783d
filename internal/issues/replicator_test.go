package issues

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/github/githubtest"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

var testRepo = models.RepoRef{Owner: "acme", Name: "scenario-todo"}

func newTestReplicator(t *testing.T) (*Replicator, *githubtest.Store) {
	t.Helper()
	store := githubtest.NewStore("acme")
	store.AddRepo(testRepo, "main", map[string]string{"README.md": "# todo"})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewReplicator(store, logger), store
}

func specIssues() []models.IssueSpec {
	return []models.IssueSpec{
		{
			Title:      "Add due dates to todos",
			Body:       "Todos need an optional due date field.",
			Labels:     []string{"enhancement", "main task"},
			State:      models.IssueOpen,
			IsMainTask: true,
		},
		{
			Title:  "Crash on empty title",
			Body:   "Posting an empty title returns a 500.",
			Labels: []string{"bug", "api"},
			State:  models.IssueClosed,
			Comments: []models.IssueComment{
				{AuthorName: "Bob Martin", Body: "Reproduced locally."},
				{AuthorName: "Alice Chen", Body: "Fixed in the validation middleware."},
			},
		},
	}
}

func TestLabelColor(t *testing.T) {
	assert.Equal(t, "d73a4a", LabelColor("bug"))
	assert.Equal(t, "d73a4a", LabelColor(" Bug "))
	assert.Equal(t, DefaultLabelColor, LabelColor("api"))
}

func TestBanner(t *testing.T) {
	assert.Equal(t, "**Bob Martin** commented:\n\nLooks good.", Banner("Bob Martin", "Looks good."))
	assert.Equal(t, "Looks good.", Banner("", "Looks good."))

	bannered := Banner("Bob Martin", "Looks good.")
	assert.Equal(t, bannered, Banner("provisioner-bot", bannered))
}

func TestReplicateIssues(t *testing.T) {
	r, store := newTestReplicator(t)
	rep := report.New(nil)

	res, err := r.ReplicateIssues(context.Background(), testRepo, FromSpec(specIssues()), Options{Report: rep})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Add due dates to todos": 1, "Crash on empty title": 2}, res.Created)

	got := store.Issues(testRepo)
	require.Len(t, got, 2)
	assert.Equal(t, "Add due dates to todos", got[0].Title)
	assert.Equal(t, models.IssueOpen, got[0].State)
	assert.Empty(t, got[0].Comments)

	assert.Equal(t, models.IssueClosed, got[1].State)
	assert.Equal(t, []models.SourceComment{
		{Author: "acme", Body: "**Bob Martin** commented:\n\nReproduced locally."},
		{Author: "acme", Body: "**Alice Chen** commented:\n\nFixed in the validation middleware."},
	}, got[1].Comments)

	bug, ok := store.Label(testRepo, "bug")
	require.True(t, ok)
	assert.Equal(t, "d73a4a", bug.Color)
	api, ok := store.Label(testRepo, "api")
	require.True(t, ok)
	assert.Equal(t, DefaultLabelColor, api.Color)

	assert.Equal(t, 4, rep.Count(report.KindLabel))
	assert.Equal(t, 2, rep.Count(report.KindIssue))
	assert.Equal(t, 2, rep.Count(report.KindComment))
	assert.Equal(t, 1, rep.Count(report.KindIssueState))
	assert.Equal(t, models.StateBuilt, rep.State())
}

func TestReplicateIssues_CloseAfterComments(t *testing.T) {
	r, store := newTestReplicator(t)

	_, err := r.ReplicateIssues(context.Background(), testRepo, FromSpec(specIssues()), Options{})
	require.NoError(t, err)

	var ops []string
	for _, c := range store.Calls("") {
		switch c.Op {
		case "CreateIssue", "CreateIssueComment", "SetIssueState":
			ops = append(ops, c.Op)
		}
	}
	assert.Equal(t, []string{
		"CreateIssue",
		"CreateIssue", "CreateIssueComment", "CreateIssueComment", "SetIssueState",
	}, ops)
}

func TestReplicateIssues_SourceColorsOverride(t *testing.T) {
	r, store := newTestReplicator(t)
	src := []models.SourceIssue{{
		Title:  "Slow list endpoint",
		Body:   "GET /todos takes seconds with 10k rows.",
		State:  models.IssueOpen,
		Labels: []models.Label{{Name: "bug", Color: "112233"}, {Name: "perf", Color: "abcdef"}},
		Comments: []models.SourceComment{
			{Author: "carol", Body: "Needs an index."},
		},
	}}

	_, err := r.ReplicateIssues(context.Background(), testRepo, FromSource(src), Options{})
	require.NoError(t, err)

	bug, _ := store.Label(testRepo, "bug")
	assert.Equal(t, "112233", bug.Color)
	perf, _ := store.Label(testRepo, "perf")
	assert.Equal(t, "abcdef", perf.Color)

	got := store.Issues(testRepo)
	require.Len(t, got, 1)
	assert.Equal(t, "**carol** commented:\n\nNeeds an index.", got[0].Comments[0].Body)
}

func TestReplicateIssues_LabelsDeduplicated(t *testing.T) {
	r, store := newTestReplicator(t)
	list := []Issue{
		{Title: "One", Body: "first issue body", Labels: []models.Label{{Name: "bug"}}},
		{Title: "Two", Body: "second issue body", Labels: []models.Label{{Name: "Bug"}, {Name: "bug"}}},
	}

	_, err := r.ReplicateIssues(context.Background(), testRepo, list, Options{})
	require.NoError(t, err)
	assert.Len(t, store.Calls("CreateLabel"), 1)
}

func TestReplicateIssues_FailuresAreSkipped(t *testing.T) {
	r, store := newTestReplicator(t)
	store.Fail("CreateLabel", githubtest.ServerError("create label"))
	store.FailWhen("CreateIssue", func(c githubtest.Call) bool {
		return c.Arg == "Add due dates to todos"
	}, githubtest.ServerError("create issue"))
	store.FailWhen("CreateIssueComment", func(c githubtest.Call) bool {
		return c.Arg == Banner("Bob Martin", "Reproduced locally.")
	}, githubtest.ServerError("create comment"))
	rep := report.New(nil)

	res, err := r.ReplicateIssues(context.Background(), testRepo, FromSpec(specIssues()), Options{Report: rep})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Crash on empty title": 1}, res.Created)

	got := store.Issues(testRepo)
	require.Len(t, got, 1)
	assert.Equal(t, models.IssueClosed, got[0].State)
	require.Len(t, got[0].Comments, 1)

	kinds := map[string]int{}
	for _, o := range rep.Omissions() {
		kinds[o.Kind]++
	}
	assert.Equal(t, map[string]int{"label": 4, "issue": 1, "comment": 1}, kinds)
	assert.Equal(t, models.StatePartiallyBuilt, rep.State())
}

func TestReplicateIssues_SkipExisting(t *testing.T) {
	r, store := newTestReplicator(t)
	ctx := context.Background()

	_, err := r.ReplicateIssues(ctx, testRepo, FromSpec(specIssues()[:1]), Options{})
	require.NoError(t, err)

	res, err := r.ReplicateIssues(ctx, testRepo, FromSpec(specIssues()), Options{SkipExisting: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Add due dates to todos"}, res.Skipped)
	assert.Len(t, store.Issues(testRepo), 2)
}

func TestReplicateIssues_AbortPolicy(t *testing.T) {
	r, store := newTestReplicator(t)
	store.Fail("CreateIssue", githubtest.ServerError("create issue"))
	policy := report.DefaultPolicy()
	policy[report.KindIssue] = report.Abort

	_, err := r.ReplicateIssues(context.Background(), testRepo, FromSpec(specIssues()), Options{Report: report.New(policy)})
	var abort *report.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Len(t, store.Calls("CreateIssue"), 1)
}
