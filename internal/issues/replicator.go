// Package issues recreates issues, labels and comments on a repository.
package issues

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

// DefaultLabelColor is used for labels outside the palette.
const DefaultLabelColor = "ededed"

var palette = map[string]string{
	"bug":              "d73a4a",
	"documentation":    "0075ca",
	"duplicate":        "cfd3d7",
	"enhancement":      "a2eeef",
	"feature":          "a2eeef",
	"good first issue": "7057ff",
	"help wanted":      "008672",
	"invalid":          "e4e669",
	"question":         "d876e3",
	"wontfix":          "ffffff",
	"main task":        "b60205",
	"task":             "1d76db",
	"backend":          "5319e7",
	"frontend":         "fbca04",
	"testing":          "0e8a16",
	"security":         "b60205",
	"performance":      "f9d0c4",
	"refactor":         "c5def5",
}

// LabelColor returns the palette color for a label name.
func LabelColor(name string) string {
	if c, ok := palette[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return DefaultLabelColor
}

// Issue is an issue to recreate.
type Issue struct {
	Title  string
	Body   string
	Labels []models.Label
	State  models.IssueState
	// Comments are posted in order.
	Comments []Comment
}

// Comment is an issue comment and the name it is attributed to.
type Comment struct {
	Author string
	Body   string
}

// Options control a replication.
type Options struct {
	// SkipExisting leaves issues whose title already exists untouched.
	SkipExisting bool
	// Report receives created counts and omissions. A nil report uses the
	// default policy.
	Report *report.Report
}

// Result lists what a replication did.
type Result struct {
	// Created maps issue titles to their new numbers.
	Created map[string]int
	Skipped []string
}

// Replicator recreates issues through an IssueStore.
type Replicator struct {
	store  github.IssueStore
	logger *logrus.Logger
}

// NewReplicator creates a replicator.
func NewReplicator(store github.IssueStore, logger *logrus.Logger) *Replicator {
	return &Replicator{store: store, logger: logger}
}

// FromSpec converts spec issues. Labels carry no color, so the palette
// applies.
func FromSpec(specs []models.IssueSpec) []Issue {
	out := make([]Issue, 0, len(specs))
	for _, s := range specs {
		issue := Issue{Title: s.Title, Body: s.Body, State: s.State}
		for _, name := range s.Labels {
			issue.Labels = append(issue.Labels, models.Label{Name: name})
		}
		for _, c := range s.Comments {
			issue.Comments = append(issue.Comments, Comment{Author: c.AuthorName, Body: c.Body})
		}
		out = append(out, issue)
	}
	return out
}

// FromSource converts issues read from an existing repository, keeping their
// label colors.
func FromSource(src []models.SourceIssue) []Issue {
	out := make([]Issue, 0, len(src))
	for _, s := range src {
		issue := Issue{
			Title:  s.Title,
			Body:   s.Body,
			State:  s.State,
			Labels: append([]models.Label(nil), s.Labels...),
		}
		for _, c := range s.Comments {
			issue.Comments = append(issue.Comments, Comment{Author: c.Author, Body: c.Body})
		}
		out = append(out, issue)
	}
	return out
}

var bannerPrefix = regexp.MustCompile(`^\*\*[^*\n]+\*\* commented:\n\n`)

// Banner prefixes a comment body with the name it is attributed to. Every
// comment is posted by the provisioning credential, so authorship only
// survives in the text. A body that already carries a banner, as comments
// read back from a provisioned repository do, is left alone.
func Banner(author, body string) string {
	if author == "" || bannerPrefix.MatchString(body) {
		return body
	}
	return fmt.Sprintf("**%s** commented:\n\n%s", author, body)
}

// ReplicateIssues ensures labels exist, then creates the issues in order with
// their comments, closing closed issues once their comments are posted.
// Individual failures are recorded in the report and skipped as its policy
// allows.
func (r *Replicator) ReplicateIssues(ctx context.Context, repo models.RepoRef, list []Issue, opts Options) (*Result, error) {
	rep := opts.Report
	if rep == nil {
		rep = report.New(nil)
	}
	log := r.logger.WithField("repo", repo.String())
	result := &Result{Created: make(map[string]int)}

	if err := r.ensureLabels(ctx, repo, list, rep, log); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	if opts.SkipExisting {
		current, err := r.store.ListIssues(ctx, repo)
		if err != nil {
			log.WithError(err).Warn("Failed to list existing issues")
			if abort := rep.Fail(report.KindIssue, "existing issues", err); abort != nil {
				return nil, abort
			}
		}
		for _, is := range current {
			existing[is.Title] = true
		}
	}

	for _, issue := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if existing[issue.Title] {
			result.Skipped = append(result.Skipped, issue.Title)
			continue
		}
		number, err := r.replicate(ctx, repo, issue, rep, log.WithField("issue", issue.Title))
		if err != nil {
			return nil, err
		}
		if number > 0 {
			result.Created[issue.Title] = number
		}
	}

	log.WithFields(logrus.Fields{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("Issues replicated")
	return result, nil
}

func (r *Replicator) ensureLabels(ctx context.Context, repo models.RepoRef, list []Issue, rep *report.Report, log *logrus.Entry) error {
	seen := make(map[string]bool)
	var labels []models.Label
	for _, issue := range list {
		for _, l := range issue.Labels {
			key := strings.ToLower(l.Name)
			if l.Name == "" || seen[key] {
				continue
			}
			seen[key] = true
			color := l.Color
			if color == "" {
				color = LabelColor(l.Name)
			}
			labels = append(labels, models.Label{Name: l.Name, Color: color})
		}
	}

	for _, l := range labels {
		if err := r.store.CreateLabel(ctx, repo, l); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.WithError(err).WithField("label", l.Name).Warn("Skipping label")
			if abort := rep.Fail(report.KindLabel, l.Name, err); abort != nil {
				return abort
			}
			continue
		}
		rep.Created(report.KindLabel)
	}
	return nil
}

// replicate creates one issue and returns its number, or 0 when it was
// skipped.
func (r *Replicator) replicate(ctx context.Context, repo models.RepoRef, issue Issue, rep *report.Report, log *logrus.Entry) (int, error) {
	names := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		names = append(names, l.Name)
	}

	number, err := r.store.CreateIssue(ctx, repo, issue.Title, issue.Body, names)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		log.WithError(err).Warn("Skipping issue")
		return 0, rep.Fail(report.KindIssue, issue.Title, err)
	}
	rep.Created(report.KindIssue)

	for i, c := range issue.Comments {
		if err := r.store.CreateIssueComment(ctx, repo, number, Banner(c.Author, c.Body)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			log.WithError(err).WithField("comment_index", i).Warn("Skipping comment")
			if abort := rep.Fail(report.KindComment, fmt.Sprintf("%s#%d", issue.Title, i), err); abort != nil {
				return 0, abort
			}
			continue
		}
		rep.Created(report.KindComment)
	}

	if issue.State == models.IssueClosed {
		if err := r.store.SetIssueState(ctx, repo, number, models.IssueClosed); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			log.WithError(err).Warn("Failed to close issue")
			if abort := rep.Fail(report.KindIssueState, issue.Title, err); abort != nil {
				return 0, abort
			}
		} else {
			rep.Created(report.KindIssueState)
		}
	}
	return number, nil
}
