package models

// RepoInfo is the subset of repository metadata the provisioner needs.
type RepoInfo struct {
	Ref           RepoRef `json:"ref"`
	HTMLURL       string  `json:"html_url"`
	DefaultBranch string  `json:"default_branch"`
	Private       bool    `json:"private"`
	IsTemplate    bool    `json:"is_template"`
}

// TemplateRequest describes a repository to generate from a template.
type TemplateRequest struct {
	Owner              string
	Name               string
	Description        string
	Private            bool
	IncludeAllBranches bool
}

// FileContent is a file read through the contents API.
type FileContent struct {
	Path    string
	SHA     string
	Content []byte
}

// SourceIssue is an issue read from an existing repository.
type SourceIssue struct {
	Number   int
	Title    string
	Body     string
	State    IssueState
	Labels   []Label
	Author   string
	Comments []SourceComment
}

// SourceComment is an issue comment read from an existing repository.
type SourceComment struct {
	Author string
	Body   string
}

// Label is an issue label with its color.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}
