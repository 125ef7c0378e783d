package github

import (
	"context"

	gh "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

const perPage = 100

// GenerateFromTemplate creates req.Owner/req.Name from template.
func (c *GitHubClient) GenerateFromTemplate(ctx context.Context, template models.RepoRef, req models.TemplateRequest) (*models.RepoInfo, error) {
	body := &gh.TemplateRepoRequest{
		Name:               gh.String(req.Name),
		Owner:              gh.String(req.Owner),
		Description:        gh.String(req.Description),
		Private:            gh.Bool(req.Private),
		IncludeAllBranches: gh.Bool(req.IncludeAllBranches),
	}
	repo, resp, err := c.gh.Repositories.CreateFromTemplate(ctx, template.Owner, template.Name, body)
	if err != nil {
		return nil, wrapError("generate from template", resp, err)
	}

	c.logCall(ctx, "generate from template", logrus.Fields{
		"template": template.String(),
		"repo":     repo.GetFullName(),
	}).Info("Repository generated from template")
	return toRepoInfo(repo), nil
}

// GetRepository fetches repository metadata.
func (c *GitHubClient) GetRepository(ctx context.Context, ref models.RepoRef) (*models.RepoInfo, error) {
	repo, resp, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, wrapError("get repository", resp, err)
	}
	return toRepoInfo(repo), nil
}

// SetTemplate toggles the template flag of a repository.
func (c *GitHubClient) SetTemplate(ctx context.Context, ref models.RepoRef, isTemplate bool) error {
	patch := &gh.Repository{IsTemplate: gh.Bool(isTemplate)}
	if _, resp, err := c.gh.Repositories.Edit(ctx, ref.Owner, ref.Name, patch); err != nil {
		return wrapError("set template", resp, err)
	}
	return nil
}

// GetFile reads path on branch through the contents API.
func (c *GitHubClient) GetFile(ctx context.Context, ref models.RepoRef, path, branch string) (*models.FileContent, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: branch}
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Name, path, opts)
	if err != nil {
		return nil, wrapError("get file", resp, err)
	}
	if file == nil {
		return nil, NewValidationError("path", path+" is a directory")
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, NewGitHubError("get file", resp.StatusCode, "undecodable content", err)
	}
	return &models.FileContent{
		Path:    file.GetPath(),
		SHA:     file.GetSHA(),
		Content: []byte(content),
	}, nil
}

// PutFile creates or replaces path on branch with a single commit and returns
// that commit's sha.
func (c *GitHubClient) PutFile(ctx context.Context, ref models.RepoRef, path, branch, message string, content []byte) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: content,
		Branch:  gh.String(branch),
	}

	existing, err := c.GetFile(ctx, ref, path, branch)
	switch {
	case err == nil:
		opts.SHA = gh.String(existing.SHA)
		res, resp, err := c.gh.Repositories.UpdateFile(ctx, ref.Owner, ref.Name, path, opts)
		if err != nil {
			return "", wrapError("put file", resp, err)
		}
		return res.Commit.GetSHA(), nil
	case IsNotFound(err):
		res, resp, err := c.gh.Repositories.CreateFile(ctx, ref.Owner, ref.Name, path, opts)
		if err != nil {
			return "", wrapError("put file", resp, err)
		}
		return res.Commit.GetSHA(), nil
	default:
		return "", err
	}
}

// ListCommits walks every page of the branch history and returns it oldest
// first.
func (c *GitHubClient) ListCommits(ctx context.Context, ref models.RepoRef, branch string) ([]models.CommitSummary, error) {
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var commits []models.CommitSummary
	for {
		page, resp, err := c.gh.Repositories.ListCommits(ctx, ref.Owner, ref.Name, opts)
		if err != nil {
			return nil, wrapError("list commits", resp, err)
		}
		for _, rc := range page {
			commits = append(commits, models.CommitSummary{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	// the API lists newest first
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// GetCommit returns a commit with every page of its changed files.
func (c *GitHubClient) GetCommit(ctx context.Context, ref models.RepoRef, sha string) (*models.CommitDetail, error) {
	opts := &gh.ListOptions{PerPage: perPage}

	var detail *models.CommitDetail
	for {
		rc, resp, err := c.gh.Repositories.GetCommit(ctx, ref.Owner, ref.Name, sha, opts)
		if err != nil {
			return nil, wrapError("get commit", resp, err)
		}
		if detail == nil {
			commit := rc.GetCommit()
			detail = &models.CommitDetail{
				SHA:       rc.GetSHA(),
				TreeSHA:   commit.GetTree().GetSHA(),
				Message:   commit.GetMessage(),
				Author:    fromCommitAuthor(commit.GetAuthor()),
				Committer: fromCommitAuthor(commit.GetCommitter()),
			}
			for _, parent := range rc.Parents {
				detail.Parents = append(detail.Parents, parent.GetSHA())
			}
		}
		for _, f := range rc.Files {
			detail.Files = append(detail.Files, models.ChangedFile{
				Path:         f.GetFilename(),
				PreviousPath: f.GetPreviousFilename(),
				Status:       models.ChangeStatus(f.GetStatus()),
				BlobSHA:      f.GetSHA(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return detail, nil
}

func toRepoInfo(repo *gh.Repository) *models.RepoInfo {
	return &models.RepoInfo{
		Ref: models.RepoRef{
			Owner: repo.GetOwner().GetLogin(),
			Name:  repo.GetName(),
		},
		HTMLURL:       repo.GetHTMLURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		IsTemplate:    repo.GetIsTemplate(),
	}
}
