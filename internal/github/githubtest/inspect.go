package githubtest

import (
	"strings"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// CommitSnapshot is a commit as stored, for assertions.
type CommitSnapshot struct {
	SHA       string
	TreeSHA   string
	Message   string
	Author    models.Signature
	Committer models.Signature
	Parents   []string
}

// Head returns the commit sha branch points at, or "".
func (s *Store) Head(ref models.RepoRef, branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return ""
	}
	return r.refs[branch]
}

// History returns the first-parent chain of branch, oldest first.
func (s *Store) History(ref models.RepoRef, branch string) []CommitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return nil
	}
	var out []CommitSnapshot
	for _, c := range r.firstParentChain(r.refs[branch]) {
		out = append(out, CommitSnapshot{
			SHA:       c.sha,
			TreeSHA:   c.tree,
			Message:   c.message,
			Author:    c.author,
			Committer: c.committer,
			Parents:   append([]string(nil), c.parents...),
		})
	}
	return out
}

// Files returns path to content for the head tree of branch.
func (s *Store) Files(ref models.RepoRef, branch string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return nil
	}
	head, ok := r.commits[r.refs[branch]]
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for p, b := range r.trees[head.tree] {
		out[p] = string(r.blobs[b])
	}
	return out
}

// Issues returns every issue of the repository with its comments.
func (s *Store) Issues(ref models.RepoRef) []models.SourceIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return nil
	}
	out := make([]models.SourceIssue, 0, len(r.issues))
	for _, is := range r.issues {
		src := r.sourceIssue(is)
		src.Comments = append([]models.SourceComment(nil), is.comments...)
		out = append(out, src)
	}
	return out
}

// Label returns a label by name.
func (s *Store) Label(ref models.RepoRef, name string) (models.Label, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return models.Label{}, false
	}
	l, ok := r.labels[strings.ToLower(name)]
	return l, ok
}

// Info returns the repository metadata.
func (s *Store) Info(ref models.RepoRef) (models.RepoInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[ref.String()]
	if !ok {
		return models.RepoInfo{}, false
	}
	return r.info, true
}

// Commit appends a commit on branch that writes files (content "" deletes
// the path) with the given author. It returns the new sha.
func (s *Store) Commit(ref models.RepoRef, branch, message string, author models.Signature, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[ref.String()]
	head := r.refs[branch]

	tree := make(map[string]string)
	for p, b := range r.trees[r.commits[head].tree] {
		tree[p] = b
	}
	for p, content := range files {
		if content == "" {
			delete(tree, p)
			continue
		}
		tree[p] = r.putBlob([]byte(content))
	}
	c := r.putCommit(&commit{
		tree:      r.putTree(tree),
		message:   message,
		author:    author,
		committer: author,
		parents:   []string{head},
	}, s.nextSeq())
	r.refs[branch] = c.sha
	return c.sha
}

// Rename appends a commit on branch that moves from to to.
func (s *Store) Rename(ref models.RepoRef, branch, message string, author models.Signature, from, to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[ref.String()]
	head := r.refs[branch]

	tree := make(map[string]string)
	for p, b := range r.trees[r.commits[head].tree] {
		tree[p] = b
	}
	tree[to] = tree[from]
	delete(tree, from)
	c := r.putCommit(&commit{
		tree:      r.putTree(tree),
		message:   message,
		author:    author,
		committer: author,
		parents:   []string{head},
	}, s.nextSeq())
	r.refs[branch] = c.sha
	return c.sha
}

// AddIssue seeds an issue with its labels and comments.
func (s *Store) AddIssue(ref models.RepoRef, src models.SourceIssue) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.repos[ref.String()]
	var names []string
	for _, l := range src.Labels {
		r.labels[strings.ToLower(l.Name)] = l
		names = append(names, l.Name)
	}
	state := src.State
	if state == "" {
		state = models.IssueOpen
	}
	is := &issue{
		number:   len(r.issues) + 1,
		title:    src.Title,
		body:     src.Body,
		state:    state,
		labels:   names,
		author:   src.Author,
		comments: append([]models.SourceComment(nil), src.Comments...),
	}
	r.issues = append(r.issues, is)
	return is.number
}
