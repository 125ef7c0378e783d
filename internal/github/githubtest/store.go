// Package githubtest provides an in-memory, content-addressed ObjectStore for
// exercising provisioning pipelines without a network.
package githubtest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	gh "github.com/google/go-github/v57/github"

	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Call describes one store operation, used for failure injection and
// assertions. Arg is the most identifying argument of the operation: blob
// content, the first tree path, the commit message, the branch, the label
// name, the issue title, the comment body or the file path.
type Call struct {
	Op   string
	Repo models.RepoRef
	Arg  string
}

type failure struct {
	op    string
	match func(Call) bool
	err   error
}

type commit struct {
	sha       string
	tree      string
	message   string
	author    models.Signature
	committer models.Signature
	parents   []string
}

type issue struct {
	number   int
	title    string
	body     string
	state    models.IssueState
	labels   []string
	author   string
	comments []models.SourceComment
}

type repo struct {
	info    models.RepoInfo
	blobs   map[string][]byte
	trees   map[string]map[string]string
	commits map[string]*commit
	refs    map[string]string
	labels  map[string]models.Label
	issues  []*issue
	// reads that still answer 404 while the repository is being populated
	pendingReads int
}

// Store is an in-memory github.ObjectStore.
type Store struct {
	mu       sync.Mutex
	owner    string
	repos    map[string]*repo
	failures []failure
	calls    []Call
	seq      int

	// PendingReads is the number of GetFile/GetRef calls on a freshly
	// generated repository that report 404 before its content appears.
	PendingReads int

	// GeneratedBranch, when set, names the default branch of generated
	// repositories instead of the template's.
	GeneratedBranch string
}

var _ github.ObjectStore = (*Store)(nil)

// NewStore creates an empty store whose generated repositories are owned by
// owner unless a request names another owner.
func NewStore(owner string) *Store {
	return &Store{
		owner: owner,
		repos: make(map[string]*repo),
	}
}

// Fail makes every call of op fail with err.
func (s *Store) Fail(op string, err error) {
	s.FailWhen(op, nil, err)
}

// FailWhen makes calls of op for which match returns true fail with err.
func (s *Store) FailWhen(op string, match func(Call) bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op: op, match: match, err: err})
}

// Calls returns the recorded calls of op, or every call when op is empty.
func (s *Store) Calls(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// AddRepo seeds a repository with a single "Initial commit" holding files.
func (s *Store) AddRepo(ref models.RepoRef, branch string, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.newRepo(ref, branch)
	tree := make(map[string]string, len(files))
	for path, content := range files {
		tree[path] = r.putBlob([]byte(content))
	}
	treeSHA := r.putTree(tree)
	c := r.putCommit(&commit{
		tree:    treeSHA,
		message: "Initial commit",
		author:  models.Signature{Name: "scaffold", Email: "scaffold@example.com"},
	}, s.nextSeq())
	c.committer = c.author
	r.refs[branch] = c.sha
	return c.sha
}

// NotFoundError builds the error the client returns for a 404.
func NotFoundError(op string) error {
	return apiError(op, http.StatusNotFound, "Not Found", nil)
}

// ConflictError builds the 409 served by an empty repository.
func ConflictError(op string) error {
	return apiError(op, http.StatusConflict, "Git Repository is empty.", nil)
}

// AlreadyExistsError builds the error the client returns for a duplicate.
func AlreadyExistsError(op, resource string) error {
	return apiError(op, http.StatusUnprocessableEntity, "Validation Failed", []gh.Error{
		{Resource: resource, Field: "name", Code: "already_exists"},
	})
}

// ServerError builds the error the client returns once retries on a 5xx are
// exhausted.
func ServerError(op string) error {
	return apiError(op, http.StatusBadGateway, "Bad Gateway", nil)
}

// UnprocessableError builds a 422 that is not a duplicate.
func UnprocessableError(op, message string) error {
	return apiError(op, http.StatusUnprocessableEntity, message, nil)
}

func apiError(op string, status int, message string, errs []gh.Error) error {
	resp := &gh.ErrorResponse{
		Response: &http.Response{StatusCode: status},
		Message:  message,
		Errors:   errs,
	}
	return &github.GitHubError{Op: op, StatusCode: status, Message: message, Err: resp}
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

// record logs the call and returns an injected failure, if any. Callers hold
// s.mu.
func (s *Store) record(op string, ref models.RepoRef, arg string) error {
	call := Call{Op: op, Repo: ref, Arg: arg}
	s.calls = append(s.calls, call)
	for _, f := range s.failures {
		if f.op != op {
			continue
		}
		if f.match == nil || f.match(call) {
			return f.err
		}
	}
	return nil
}

func (s *Store) newRepo(ref models.RepoRef, branch string) *repo {
	r := &repo{
		info: models.RepoInfo{
			Ref:           ref,
			HTMLURL:       "https://github.com/" + ref.String(),
			DefaultBranch: branch,
		},
		blobs:   make(map[string][]byte),
		trees:   make(map[string]map[string]string),
		commits: make(map[string]*commit),
		refs:    make(map[string]string),
		labels:  make(map[string]models.Label),
	}
	s.repos[ref.String()] = r
	return r
}

func (s *Store) repo(op string, ref models.RepoRef) (*repo, error) {
	r, ok := s.repos[ref.String()]
	if !ok {
		return nil, NotFoundError(op)
	}
	return r, nil
}

func hash(kind string, parts ...string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00", kind)
	for _, p := range parts {
		fmt.Fprintf(h, "%s\x00", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *repo) putBlob(content []byte) string {
	sha := hash("blob", string(content))
	r.blobs[sha] = append([]byte(nil), content...)
	return sha
}

func (r *repo) putTree(entries map[string]string) string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+"="+entries[p])
	}
	sha := hash("tree", parts...)
	r.trees[sha] = entries
	return sha
}

func (r *repo) putCommit(c *commit, seq int) *commit {
	c.sha = hash("commit", c.tree, c.message, strings.Join(c.parents, ","), c.author.Date.String(), fmt.Sprint(seq))
	r.commits[c.sha] = c
	return c
}

// firstParentChain returns the commits reachable from head, oldest first.
func (r *repo) firstParentChain(head string) []*commit {
	var chain []*commit
	for sha := head; sha != ""; {
		c, ok := r.commits[sha]
		if !ok {
			break
		}
		chain = append(chain, c)
		if len(c.parents) == 0 {
			break
		}
		sha = c.parents[0]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// CreateBlob implements github.GitStore.
func (s *Store) CreateBlob(ctx context.Context, ref models.RepoRef, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateBlob", ref, string(content)); err != nil {
		return "", err
	}
	r, err := s.repo("create blob", ref)
	if err != nil {
		return "", err
	}
	return r.putBlob(content), nil
}

// CreateTree implements github.GitStore.
func (s *Store) CreateTree(ctx context.Context, ref models.RepoRef, baseTree string, entries []models.TreeEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arg := ""
	if len(entries) > 0 {
		arg = entries[0].Path
	}
	if err := s.record("CreateTree", ref, arg); err != nil {
		return "", err
	}
	r, err := s.repo("create tree", ref)
	if err != nil {
		return "", err
	}

	next := make(map[string]string)
	if baseTree != "" {
		base, ok := r.trees[baseTree]
		if !ok {
			return "", UnprocessableError("create tree", "base_tree is not a valid tree")
		}
		for p, b := range base {
			next[p] = b
		}
	}
	for _, e := range entries {
		if !validTreePath(e.Path) {
			return "", UnprocessableError("create tree", "tree.path contains a malformed path component")
		}
		if e.Delete {
			delete(next, e.Path)
			continue
		}
		if _, ok := r.blobs[e.BlobSHA]; !ok {
			return "", UnprocessableError("create tree", "tree.sha "+e.BlobSHA+" is not a valid blob")
		}
		next[e.Path] = e.BlobSHA
	}
	return r.putTree(next), nil
}

// validTreePath rejects the paths the tree API refuses: absolute paths and
// empty, "." or ".." components.
func validTreePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// CreateCommit implements github.GitStore.
func (s *Store) CreateCommit(ctx context.Context, ref models.RepoRef, req models.CommitRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateCommit", ref, req.Message); err != nil {
		return "", err
	}
	r, err := s.repo("create commit", ref)
	if err != nil {
		return "", err
	}
	if _, ok := r.trees[req.TreeSHA]; !ok {
		return "", UnprocessableError("create commit", "tree is not a valid tree")
	}
	for _, p := range req.Parents {
		if _, ok := r.commits[p]; !ok {
			return "", UnprocessableError("create commit", "parent "+p+" is not a valid commit")
		}
	}
	c := r.putCommit(&commit{
		tree:      req.TreeSHA,
		message:   req.Message,
		author:    req.Author,
		committer: req.Committer,
		parents:   append([]string(nil), req.Parents...),
	}, s.nextSeq())
	return c.sha, nil
}

// GetRef implements github.GitStore.
func (s *Store) GetRef(ctx context.Context, ref models.RepoRef, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("GetRef", ref, branch); err != nil {
		return "", err
	}
	r, err := s.repo("get ref", ref)
	if err != nil {
		return "", err
	}
	if r.pendingReads > 0 {
		r.pendingReads--
		return "", NotFoundError("get ref")
	}
	sha, ok := r.refs[branch]
	if !ok {
		return "", NotFoundError("get ref")
	}
	return sha, nil
}

// UpdateRef implements github.GitStore.
func (s *Store) UpdateRef(ctx context.Context, ref models.RepoRef, branch, sha string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateRef", ref, branch); err != nil {
		return err
	}
	r, err := s.repo("update ref", ref)
	if err != nil {
		return err
	}
	if _, ok := r.commits[sha]; !ok {
		return UnprocessableError("update ref", "object does not exist")
	}
	if !force {
		if current, ok := r.refs[branch]; ok && !r.isAncestor(current, sha) {
			return UnprocessableError("update ref", "update is not a fast forward")
		}
	}
	r.refs[branch] = sha
	return nil
}

func (r *repo) isAncestor(ancestor, sha string) bool {
	for _, c := range r.firstParentChain(sha) {
		if c.sha == ancestor {
			return true
		}
	}
	return false
}

// GetBlob implements github.GitStore.
func (s *Store) GetBlob(ctx context.Context, ref models.RepoRef, sha string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("GetBlob", ref, sha); err != nil {
		return nil, err
	}
	r, err := s.repo("get blob", ref)
	if err != nil {
		return nil, err
	}
	content, ok := r.blobs[sha]
	if !ok {
		return nil, NotFoundError("get blob")
	}
	return append([]byte(nil), content...), nil
}

// GenerateFromTemplate implements github.RepoStore. The new repository holds
// a single commit with the template's head tree, like the real endpoint.
func (s *Store) GenerateFromTemplate(ctx context.Context, template models.RepoRef, req models.TemplateRequest) (*models.RepoInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := req.Owner
	if owner == "" {
		owner = s.owner
	}
	target := models.RepoRef{Owner: owner, Name: req.Name}
	if err := s.record("GenerateFromTemplate", target, template.String()); err != nil {
		return nil, err
	}
	src, err := s.repo("generate from template", template)
	if err != nil {
		return nil, err
	}
	if _, exists := s.repos[target.String()]; exists {
		return nil, AlreadyExistsError("generate from template", "Repository")
	}

	branch := src.info.DefaultBranch
	if s.GeneratedBranch != "" {
		branch = s.GeneratedBranch
	}
	r := s.newRepo(target, branch)
	r.info.Private = req.Private
	r.pendingReads = s.PendingReads

	tree := make(map[string]string)
	if head, ok := src.refs[src.info.DefaultBranch]; ok {
		for p, blobSHA := range src.trees[src.commits[head].tree] {
			tree[p] = r.putBlob(src.blobs[blobSHA])
		}
	}
	c := r.putCommit(&commit{
		tree:    r.putTree(tree),
		message: "Initial commit",
		author:  models.Signature{Name: "github", Email: "noreply@github.com"},
	}, s.nextSeq())
	c.committer = c.author
	r.refs[branch] = c.sha

	info := r.info
	return &info, nil
}

// GetRepository implements github.RepoStore.
func (s *Store) GetRepository(ctx context.Context, ref models.RepoRef) (*models.RepoInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("GetRepository", ref, ref.Name); err != nil {
		return nil, err
	}
	r, err := s.repo("get repository", ref)
	if err != nil {
		return nil, err
	}
	info := r.info
	return &info, nil
}

// SetTemplate implements github.RepoStore.
func (s *Store) SetTemplate(ctx context.Context, ref models.RepoRef, isTemplate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetTemplate", ref, fmt.Sprint(isTemplate)); err != nil {
		return err
	}
	r, err := s.repo("set template", ref)
	if err != nil {
		return err
	}
	r.info.IsTemplate = isTemplate
	return nil
}

// GetFile implements github.RepoStore.
func (s *Store) GetFile(ctx context.Context, ref models.RepoRef, path, branch string) (*models.FileContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("GetFile", ref, path); err != nil {
		return nil, err
	}
	r, err := s.repo("get file", ref)
	if err != nil {
		return nil, err
	}
	if r.pendingReads > 0 {
		r.pendingReads--
		return nil, NotFoundError("get file")
	}
	head, ok := r.refs[branch]
	if !ok {
		return nil, NotFoundError("get file")
	}
	blobSHA, ok := r.trees[r.commits[head].tree][path]
	if !ok {
		return nil, NotFoundError("get file")
	}
	return &models.FileContent{
		Path:    path,
		SHA:     blobSHA,
		Content: append([]byte(nil), r.blobs[blobSHA]...),
	}, nil
}

// PutFile implements github.RepoStore.
func (s *Store) PutFile(ctx context.Context, ref models.RepoRef, path, branch, message string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("PutFile", ref, path); err != nil {
		return "", err
	}
	r, err := s.repo("put file", ref)
	if err != nil {
		return "", err
	}

	tree := make(map[string]string)
	var parents []string
	if head, ok := r.refs[branch]; ok {
		for p, b := range r.trees[r.commits[head].tree] {
			tree[p] = b
		}
		parents = []string{head}
	}
	tree[path] = r.putBlob(content)
	c := r.putCommit(&commit{
		tree:    r.putTree(tree),
		message: message,
		parents: parents,
	}, s.nextSeq())
	r.refs[branch] = c.sha
	return c.sha, nil
}

// ListCommits implements github.RepoStore.
func (s *Store) ListCommits(ctx context.Context, ref models.RepoRef, branch string) ([]models.CommitSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListCommits", ref, branch); err != nil {
		return nil, err
	}
	r, err := s.repo("list commits", ref)
	if err != nil {
		return nil, err
	}
	var out []models.CommitSummary
	for _, c := range r.firstParentChain(r.refs[branch]) {
		out = append(out, models.CommitSummary{SHA: c.sha, Message: c.message})
	}
	return out, nil
}

// GetCommit implements github.RepoStore. Files are the diff against the
// first parent; a removed and an added path sharing a blob are reported as a
// rename.
func (s *Store) GetCommit(ctx context.Context, ref models.RepoRef, sha string) (*models.CommitDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("GetCommit", ref, sha); err != nil {
		return nil, err
	}
	r, err := s.repo("get commit", ref)
	if err != nil {
		return nil, err
	}
	c, ok := r.commits[sha]
	if !ok {
		return nil, NotFoundError("get commit")
	}

	var before map[string]string
	if len(c.parents) > 0 {
		before = r.trees[r.commits[c.parents[0]].tree]
	}
	after := r.trees[c.tree]

	detail := &models.CommitDetail{
		SHA:       c.sha,
		TreeSHA:   c.tree,
		Message:   c.message,
		Author:    c.author,
		Committer: c.committer,
		Parents:   append([]string(nil), c.parents...),
		Files:     diffTrees(before, after),
	}
	return detail, nil
}

func diffTrees(before, after map[string]string) []models.ChangedFile {
	var added, removed, files []models.ChangedFile
	for p, b := range after {
		old, ok := before[p]
		switch {
		case !ok:
			added = append(added, models.ChangedFile{Path: p, Status: models.ChangeAdded, BlobSHA: b})
		case old != b:
			files = append(files, models.ChangedFile{Path: p, Status: models.ChangeModified, BlobSHA: b})
		}
	}
	for p, b := range before {
		if _, ok := after[p]; !ok {
			removed = append(removed, models.ChangedFile{Path: p, Status: models.ChangeRemoved, BlobSHA: b})
		}
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i].Path < removed[j].Path })
	for _, a := range added {
		renamed := false
		for i, rm := range removed {
			if rm.BlobSHA == a.BlobSHA {
				files = append(files, models.ChangedFile{Path: a.Path, PreviousPath: rm.Path, Status: models.ChangeRenamed, BlobSHA: a.BlobSHA})
				removed = append(removed[:i], removed[i+1:]...)
				renamed = true
				break
			}
		}
		if !renamed {
			files = append(files, a)
		}
	}
	files = append(files, removed...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// CreateLabel implements github.IssueStore.
func (s *Store) CreateLabel(ctx context.Context, ref models.RepoRef, label models.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateLabel", ref, label.Name); err != nil {
		return err
	}
	r, err := s.repo("create label", ref)
	if err != nil {
		return err
	}
	if _, exists := r.labels[strings.ToLower(label.Name)]; !exists {
		r.labels[strings.ToLower(label.Name)] = label
	}
	return nil
}

// CreateIssue implements github.IssueStore.
func (s *Store) CreateIssue(ctx context.Context, ref models.RepoRef, title, body string, labels []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateIssue", ref, title); err != nil {
		return 0, err
	}
	r, err := s.repo("create issue", ref)
	if err != nil {
		return 0, err
	}
	for _, l := range labels {
		// the API creates unknown labels with a default color
		if _, ok := r.labels[strings.ToLower(l)]; !ok {
			r.labels[strings.ToLower(l)] = models.Label{Name: l, Color: "ededed"}
		}
	}
	is := &issue{
		number: len(r.issues) + 1,
		title:  title,
		body:   body,
		state:  models.IssueOpen,
		labels: append([]string(nil), labels...),
		author: s.owner,
	}
	r.issues = append(r.issues, is)
	return is.number, nil
}

// CreateIssueComment implements github.IssueStore.
func (s *Store) CreateIssueComment(ctx context.Context, ref models.RepoRef, number int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateIssueComment", ref, body); err != nil {
		return err
	}
	is, err := s.issue("create issue comment", ref, number)
	if err != nil {
		return err
	}
	is.comments = append(is.comments, models.SourceComment{Author: s.owner, Body: body})
	return nil
}

// SetIssueState implements github.IssueStore.
func (s *Store) SetIssueState(ctx context.Context, ref models.RepoRef, number int, state models.IssueState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetIssueState", ref, string(state)); err != nil {
		return err
	}
	is, err := s.issue("set issue state", ref, number)
	if err != nil {
		return err
	}
	is.state = state
	return nil
}

func (s *Store) issue(op string, ref models.RepoRef, number int) (*issue, error) {
	r, err := s.repo(op, ref)
	if err != nil {
		return nil, err
	}
	if number < 1 || number > len(r.issues) {
		return nil, NotFoundError(op)
	}
	return r.issues[number-1], nil
}

// ListIssues implements github.IssueStore.
func (s *Store) ListIssues(ctx context.Context, ref models.RepoRef) ([]models.SourceIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListIssues", ref, ""); err != nil {
		return nil, err
	}
	r, err := s.repo("list issues", ref)
	if err != nil {
		return nil, err
	}
	out := make([]models.SourceIssue, 0, len(r.issues))
	for _, is := range r.issues {
		out = append(out, r.sourceIssue(is))
	}
	return out, nil
}

func (r *repo) sourceIssue(is *issue) models.SourceIssue {
	src := models.SourceIssue{
		Number: is.number,
		Title:  is.title,
		Body:   is.body,
		State:  is.state,
		Author: is.author,
	}
	for _, l := range is.labels {
		src.Labels = append(src.Labels, r.labels[strings.ToLower(l)])
	}
	return src
}

// ListIssueComments implements github.IssueStore.
func (s *Store) ListIssueComments(ctx context.Context, ref models.RepoRef, number int) ([]models.SourceComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListIssueComments", ref, fmt.Sprint(number)); err != nil {
		return nil, err
	}
	is, err := s.issue("list issue comments", ref, number)
	if err != nil {
		return nil, err
	}
	return append([]models.SourceComment(nil), is.comments...), nil
}
