package github

import (
	"context"

	gh "github.com/google/go-github/v57/github"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// CreateLabel creates a label. A label that already exists counts as
// created.
func (c *GitHubClient) CreateLabel(ctx context.Context, ref models.RepoRef, label models.Label) error {
	body := &gh.Label{
		Name:  gh.String(label.Name),
		Color: gh.String(label.Color),
	}
	_, resp, err := c.gh.Issues.CreateLabel(ctx, ref.Owner, ref.Name, body)
	if err != nil {
		wrapped := wrapError("create label", resp, err)
		if IsAlreadyExists(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// CreateIssue opens an issue and returns its number.
func (c *GitHubClient) CreateIssue(ctx context.Context, ref models.RepoRef, title, body string, labels []string) (int, error) {
	req := &gh.IssueRequest{
		Title: gh.String(title),
		Body:  gh.String(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	issue, resp, err := c.gh.Issues.Create(ctx, ref.Owner, ref.Name, req)
	if err != nil {
		return 0, wrapError("create issue", resp, err)
	}
	return issue.GetNumber(), nil
}

// CreateIssueComment posts body on issue number.
func (c *GitHubClient) CreateIssueComment(ctx context.Context, ref models.RepoRef, number int, body string) error {
	comment := &gh.IssueComment{Body: gh.String(body)}
	if _, resp, err := c.gh.Issues.CreateComment(ctx, ref.Owner, ref.Name, number, comment); err != nil {
		return wrapError("create issue comment", resp, err)
	}
	return nil
}

// SetIssueState opens or closes issue number.
func (c *GitHubClient) SetIssueState(ctx context.Context, ref models.RepoRef, number int, state models.IssueState) error {
	req := &gh.IssueRequest{State: gh.String(string(state))}
	if _, resp, err := c.gh.Issues.Edit(ctx, ref.Owner, ref.Name, number, req); err != nil {
		return wrapError("set issue state", resp, err)
	}
	return nil
}

// ListIssues returns every open and closed issue in creation order. Pull
// requests, which the issues endpoint also returns, are dropped.
func (c *GitHubClient) ListIssues(ctx context.Context, ref models.RepoRef) ([]models.SourceIssue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var issues []models.SourceIssue
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, ref.Owner, ref.Name, opts)
		if err != nil {
			return nil, wrapError("list issues", resp, err)
		}
		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			src := models.SourceIssue{
				Number: issue.GetNumber(),
				Title:  issue.GetTitle(),
				Body:   issue.GetBody(),
				State:  models.IssueState(issue.GetState()),
				Author: issue.GetUser().GetLogin(),
			}
			for _, l := range issue.Labels {
				src.Labels = append(src.Labels, models.Label{Name: l.GetName(), Color: l.GetColor()})
			}
			issues = append(issues, src)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

// ListIssueComments returns the comments of issue number oldest first.
func (c *GitHubClient) ListIssueComments(ctx context.Context, ref models.RepoRef, number int) ([]models.SourceComment, error) {
	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.String("created"),
		Direction:   gh.String("asc"),
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var comments []models.SourceComment
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, ref.Owner, ref.Name, number, opts)
		if err != nil {
			return nil, wrapError("list issue comments", resp, err)
		}
		for _, comment := range page {
			comments = append(comments, models.SourceComment{
				Author: comment.GetUser().GetLogin(),
				Body:   comment.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}
