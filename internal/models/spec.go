package models

// FilePurpose classifies a file in a RepoSpec.
type FilePurpose string

const (
	PurposeStub    FilePurpose = "stub"
	PurposeWorking FilePurpose = "working"
	PurposeTest    FilePurpose = "test"
	PurposeDoc     FilePurpose = "doc"
	PurposeConfig  FilePurpose = "config"
)

// Valid reports whether p is one of the known purposes.
func (p FilePurpose) Valid() bool {
	switch p {
	case PurposeStub, PurposeWorking, PurposeTest, PurposeDoc, PurposeConfig:
		return true
	}
	return false
}

// IssueState is the open/closed state of an issue.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// Valid reports whether s is open or closed.
func (s IssueState) Valid() bool {
	return s == IssueOpen || s == IssueClosed
}

// RepoSpec is a validated project specification. Values returned by the
// validator are never modified afterwards; consumers treat them as read-only.
type RepoSpec struct {
	ProjectName        string       `json:"projectName"`
	ProjectDescription string       `json:"projectDescription"`
	ScaffoldID         string       `json:"scaffoldId"`
	ReadmeContent      string       `json:"readmeContent"`
	Files              []FileSpec   `json:"files"`
	CommitHistory      []CommitSpec `json:"commitHistory"`
	Issues             []IssueSpec  `json:"issues"`
	Authors            []AuthorSpec `json:"authors"`
}

// FileSpec is one file of the generated project.
type FileSpec struct {
	Path          string      `json:"path"`
	Content       string      `json:"content"`
	Purpose       FilePurpose `json:"purpose"`
	AddedInCommit int         `json:"addedInCommit"`
}

// CommitSpec is one commit of the generated history.
type CommitSpec struct {
	Message     string `json:"message"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
	DaysAgo     int    `json:"daysAgo"`
}

// IssueSpec is one issue of the generated tracker.
type IssueSpec struct {
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Labels     []string       `json:"labels"`
	State      IssueState     `json:"state"`
	IsMainTask bool           `json:"isMainTask"`
	Comments   []IssueComment `json:"comments"`
}

// IssueComment is a comment attributed to a fictional author.
type IssueComment struct {
	AuthorName string `json:"authorName"`
	Body       string `json:"body"`
}

// AuthorSpec is a project contributor.
type AuthorSpec struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// FilesByCommit groups file specs by the commit index that introduces them,
// preserving the declaration order inside each group.
func (s *RepoSpec) FilesByCommit() map[int][]FileSpec {
	groups := make(map[int][]FileSpec)
	for _, f := range s.Files {
		groups[f.AddedInCommit] = append(groups[f.AddedInCommit], f)
	}
	return groups
}

// MainTask returns the issue flagged as the main task, if any.
func (s *RepoSpec) MainTask() (IssueSpec, bool) {
	for _, issue := range s.Issues {
		if issue.IsMainTask {
			return issue, true
		}
	}
	return IssueSpec{}, false
}
