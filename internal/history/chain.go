// Package history builds linear commit histories on the remote object store.
package history

import (
	"context"
	"fmt"

	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Head is the position of a history under construction: the last commit and
// the tree it points at.
type Head struct {
	CommitSHA string
	TreeSHA   string
}

// Step is one commit to append.
type Step struct {
	Message   string
	Author    models.Signature
	Committer models.Signature
	// Entries are applied on top of the current tree. An empty list reuses
	// the current tree unchanged.
	Entries []models.TreeEntry
}

// StepResult describes an appended commit.
type StepResult struct {
	Head Head
	// TreeErr is set when the tree could not be built and the commit was
	// created on the previous tree instead.
	TreeErr error
}

// Chain threads the head through a sequence of commits. Each commit's parent
// and base tree are the previous commit's outputs, so a Chain must be driven
// by a single goroutine and steps are applied strictly in order.
type Chain struct {
	store    github.GitStore
	repo     models.RepoRef
	head     Head
	appended []string
}

// NewChain starts a chain at base.
func NewChain(store github.GitStore, repo models.RepoRef, base Head) *Chain {
	return &Chain{store: store, repo: repo, head: base}
}

// Head returns the current head.
func (c *Chain) Head() Head {
	return c.head
}

// Commits returns the shas appended so far, oldest first.
func (c *Chain) Commits() []string {
	return append([]string(nil), c.appended...)
}

// Append creates the step's tree and commit and advances the head. When the
// tree fails the commit is still created on the current tree, keeping the
// history waypoint. When the commit fails the head does not move and the
// error is returned.
func (c *Chain) Append(ctx context.Context, step Step) (StepResult, error) {
	tree := c.head.TreeSHA
	var treeErr error
	if len(step.Entries) > 0 {
		created, err := c.store.CreateTree(ctx, c.repo, c.head.TreeSHA, step.Entries)
		if err != nil {
			treeErr = fmt.Errorf("failed to create tree: %w", err)
		} else {
			tree = created
		}
	}

	var parents []string
	if c.head.CommitSHA != "" {
		parents = []string{c.head.CommitSHA}
	}
	sha, err := c.store.CreateCommit(ctx, c.repo, models.CommitRequest{
		Message:   step.Message,
		TreeSHA:   tree,
		Parents:   parents,
		Author:    step.Author,
		Committer: step.Committer,
	})
	if err != nil {
		return StepResult{Head: c.head, TreeErr: treeErr}, fmt.Errorf("failed to create commit: %w", err)
	}

	c.head = Head{CommitSHA: sha, TreeSHA: tree}
	c.appended = append(c.appended, sha)
	return StepResult{Head: c.head, TreeErr: treeErr}, nil
}

// Publish force-moves branch to the current head.
func (c *Chain) Publish(ctx context.Context, branch string) error {
	if err := c.store.UpdateRef(ctx, c.repo, branch, c.head.CommitSHA, true); err != nil {
		return fmt.Errorf("failed to update ref %s: %w", branch, err)
	}
	return nil
}
