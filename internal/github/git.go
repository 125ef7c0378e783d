package github

import (
	"context"
	"encoding/base64"

	gh "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// CreateBlob uploads content as a base64 blob and returns its sha.
func (c *GitHubClient) CreateBlob(ctx context.Context, repo models.RepoRef, content []byte) (string, error) {
	blob := &gh.Blob{
		Content:  gh.String(base64.StdEncoding.EncodeToString(content)),
		Encoding: gh.String("base64"),
	}
	created, resp, err := c.gh.Git.CreateBlob(ctx, repo.Owner, repo.Name, blob)
	if err != nil {
		return "", wrapError("create blob", resp, err)
	}
	return created.GetSHA(), nil
}

// CreateTree layers entries over baseTree. Delete entries are sent with a
// null sha, which removes the path.
func (c *GitHubClient) CreateTree(ctx context.Context, repo models.RepoRef, baseTree string, entries []models.TreeEntry) (string, error) {
	ghEntries := make([]*gh.TreeEntry, 0, len(entries))
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = models.ModeFile
		}
		entry := &gh.TreeEntry{
			Path: gh.String(e.Path),
			Mode: gh.String(mode),
			Type: gh.String("blob"),
		}
		if !e.Delete {
			entry.SHA = gh.String(e.BlobSHA)
		}
		ghEntries = append(ghEntries, entry)
	}

	tree, resp, err := c.gh.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTree, ghEntries)
	if err != nil {
		return "", wrapError("create tree", resp, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object. Zero signature dates are left for
// the server to fill in.
func (c *GitHubClient) CreateCommit(ctx context.Context, repo models.RepoRef, req models.CommitRequest) (string, error) {
	commit := &gh.Commit{
		Message:   gh.String(req.Message),
		Tree:      &gh.Tree{SHA: gh.String(req.TreeSHA)},
		Author:    toCommitAuthor(req.Author),
		Committer: toCommitAuthor(req.Committer),
	}
	for _, parent := range req.Parents {
		commit.Parents = append(commit.Parents, &gh.Commit{SHA: gh.String(parent)})
	}

	created, resp, err := c.gh.Git.CreateCommit(ctx, repo.Owner, repo.Name, commit, nil)
	if err != nil {
		return "", wrapError("create commit", resp, err)
	}
	return created.GetSHA(), nil
}

// GetRef resolves refs/heads/<branch> to a commit sha.
func (c *GitHubClient) GetRef(ctx context.Context, repo models.RepoRef, branch string) (string, error) {
	ref, resp, err := c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", wrapError("get ref", resp, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// UpdateRef moves refs/heads/<branch> to sha.
func (c *GitHubClient) UpdateRef(ctx context.Context, repo models.RepoRef, branch, sha string, force bool) error {
	ref := &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.String(sha)},
	}
	if _, resp, err := c.gh.Git.UpdateRef(ctx, repo.Owner, repo.Name, ref, force); err != nil {
		return wrapError("update ref", resp, err)
	}
	c.logCall(ctx, "update ref", logrus.Fields{
		"repo":   repo.String(),
		"branch": branch,
		"sha":    sha,
		"force":  force,
	}).Debug("Branch moved")
	return nil
}

// GetBlob downloads the raw bytes of a blob.
func (c *GitHubClient) GetBlob(ctx context.Context, repo models.RepoRef, sha string) ([]byte, error) {
	data, resp, err := c.gh.Git.GetBlobRaw(ctx, repo.Owner, repo.Name, sha)
	if err != nil {
		return nil, wrapError("get blob", resp, err)
	}
	return data, nil
}

func toCommitAuthor(sig models.Signature) *gh.CommitAuthor {
	if sig.Name == "" && sig.Email == "" {
		return nil
	}
	author := &gh.CommitAuthor{
		Name:  gh.String(sig.Name),
		Email: gh.String(sig.Email),
	}
	if !sig.Date.IsZero() {
		author.Date = &gh.Timestamp{Time: sig.Date}
	}
	return author
}

func fromCommitAuthor(author *gh.CommitAuthor) models.Signature {
	if author == nil {
		return models.Signature{}
	}
	return models.Signature{
		Name:  author.GetName(),
		Email: author.GetEmail(),
		Date:  author.GetDate().Time,
	}
}
