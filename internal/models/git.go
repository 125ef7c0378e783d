package models

import (
	"fmt"
	"time"
)

// RepoRef identifies a repository on the remote object store.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r RepoRef) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Signature is the author or committer identity of a commit.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// File modes accepted by the tree API.
const (
	ModeFile       = "100644"
	ModeExecutable = "100755"
)

// TreeEntry is one path change applied on top of a base tree. An entry with
// Delete set removes the path from the resulting tree.
type TreeEntry struct {
	Path    string
	Mode    string
	BlobSHA string
	Delete  bool
}

// CommitRequest describes a commit to create.
type CommitRequest struct {
	Message   string
	TreeSHA   string
	Parents   []string
	Author    Signature
	Committer Signature
}

// ChangeStatus is the status of a file inside a commit diff.
type ChangeStatus string

const (
	ChangeAdded     ChangeStatus = "added"
	ChangeModified  ChangeStatus = "modified"
	ChangeRemoved   ChangeStatus = "removed"
	ChangeRenamed   ChangeStatus = "renamed"
	ChangeCopied    ChangeStatus = "copied"
	ChangeChanged   ChangeStatus = "changed"
	ChangeUnchanged ChangeStatus = "unchanged"
)

// ChangedFile is a file touched by a commit.
type ChangedFile struct {
	Path         string       `json:"path"`
	PreviousPath string       `json:"previous_path,omitempty"`
	Status       ChangeStatus `json:"status"`
	BlobSHA      string       `json:"sha"`
}

// CommitSummary is a commit as returned by a commit listing.
type CommitSummary struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// CommitDetail is a single commit with its file-level diff.
type CommitDetail struct {
	SHA       string        `json:"sha"`
	TreeSHA   string        `json:"tree_sha"`
	Message   string        `json:"message"`
	Author    Signature     `json:"author"`
	Committer Signature     `json:"committer"`
	Parents   []string      `json:"parents"`
	Files     []ChangedFile `json:"files"`
}
