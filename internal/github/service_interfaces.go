package github

import (
	"context"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// GitStore defines the low-level git object operations
type GitStore interface {
	// CreateBlob stores content and returns its sha
	CreateBlob(ctx context.Context, repo models.RepoRef, content []byte) (string, error)

	// CreateTree layers entries over baseTree and returns the new tree sha.
	// Entries with Delete set remove the path.
	CreateTree(ctx context.Context, repo models.RepoRef, baseTree string, entries []models.TreeEntry) (string, error)

	// CreateCommit creates a commit object and returns its sha
	CreateCommit(ctx context.Context, repo models.RepoRef, req models.CommitRequest) (string, error)

	// GetRef resolves a branch to its commit sha
	GetRef(ctx context.Context, repo models.RepoRef, branch string) (string, error)

	// UpdateRef points a branch at sha
	UpdateRef(ctx context.Context, repo models.RepoRef, branch, sha string, force bool) error

	// GetBlob returns the raw bytes of a blob
	GetBlob(ctx context.Context, repo models.RepoRef, sha string) ([]byte, error)
}

// RepoStore defines repository level operations
type RepoStore interface {
	// GenerateFromTemplate creates a new repository from a template
	GenerateFromTemplate(ctx context.Context, template models.RepoRef, req models.TemplateRequest) (*models.RepoInfo, error)

	// GetRepository fetches repository metadata
	GetRepository(ctx context.Context, repo models.RepoRef) (*models.RepoInfo, error)

	// SetTemplate flags or unflags a repository as a template
	SetTemplate(ctx context.Context, repo models.RepoRef, isTemplate bool) error

	// GetFile reads one file on branch
	GetFile(ctx context.Context, repo models.RepoRef, path, branch string) (*models.FileContent, error)

	// PutFile creates or replaces one file on branch through a single commit
	PutFile(ctx context.Context, repo models.RepoRef, path, branch, message string, content []byte) (string, error)

	// ListCommits lists the commits reachable from branch, oldest first
	ListCommits(ctx context.Context, repo models.RepoRef, branch string) ([]models.CommitSummary, error)

	// GetCommit returns a commit with its changed files
	GetCommit(ctx context.Context, repo models.RepoRef, sha string) (*models.CommitDetail, error)
}

// IssueStore defines issue tracker operations
type IssueStore interface {
	// CreateLabel creates a label; an existing label is not an error
	CreateLabel(ctx context.Context, repo models.RepoRef, label models.Label) error

	// CreateIssue opens an issue and returns its number
	CreateIssue(ctx context.Context, repo models.RepoRef, title, body string, labels []string) (int, error)

	// CreateIssueComment posts a comment on an issue
	CreateIssueComment(ctx context.Context, repo models.RepoRef, number int, body string) error

	// SetIssueState opens or closes an issue
	SetIssueState(ctx context.Context, repo models.RepoRef, number int, state models.IssueState) error

	// ListIssues lists all issues, excluding pull requests, oldest first
	ListIssues(ctx context.Context, repo models.RepoRef) ([]models.SourceIssue, error)

	// ListIssueComments lists the comments of one issue in posting order
	ListIssueComments(ctx context.Context, repo models.RepoRef, number int) ([]models.SourceComment, error)
}

// ObjectStore is the full remote surface the provisioner needs
type ObjectStore interface {
	GitStore
	RepoStore
	IssueStore
}

var _ ObjectStore = (*GitHubClient)(nil)
