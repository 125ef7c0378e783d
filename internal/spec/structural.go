package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Minimum sizes of a usable spec.
const (
	MinFiles        = 3
	MinCommits      = 3
	MinIssues       = 2
	MinAuthors      = 2
	MinReadmeLength = 50
	MinIssueBody    = 10
)

// decoder converts an untyped candidate into a RepoSpec, recording every
// structural problem instead of stopping at the first.
type decoder struct {
	c *collector
}

func (d *decoder) decode(candidate map[string]any) *models.RepoSpec {
	s := &models.RepoSpec{
		ProjectName:        d.str(candidate, "projectName", "projectName", true),
		ProjectDescription: d.str(candidate, "projectDescription", "projectDescription", false),
		ScaffoldID:         d.str(candidate, "scaffoldId", "scaffoldId", true),
		ReadmeContent:      d.str(candidate, "readmeContent", "readmeContent", true),
	}
	if _, ok := candidate["readmeContent"].(string); ok && len(strings.TrimSpace(s.ReadmeContent)) < MinReadmeLength {
		d.c.add(RuleMinLength, "readmeContent", "readmeContent must be at least %d characters", MinReadmeLength)
	}

	for i, obj := range d.objects(candidate, "files", MinFiles) {
		entity := fmt.Sprintf("files[%d]", i)
		f := models.FileSpec{
			Path:          d.str(obj, "path", entity+".path", true),
			Content:       d.str(obj, "content", entity+".content", false),
			Purpose:       models.FilePurpose(d.str(obj, "purpose", entity+".purpose", true)),
			AddedInCommit: d.index(obj, "addedInCommit", entity+".addedInCommit"),
		}
		if f.Purpose != "" && !f.Purpose.Valid() {
			d.c.add(RuleEnum, entity+".purpose", "%s.purpose %q must be one of stub, working, test, doc, config", entity, f.Purpose)
		}
		if f.Path != "" {
			if msg := checkPath(f.Path); msg != "" {
				d.c.add(RulePath, entity+".path", "file path %q %s", f.Path, msg)
			}
		}
		s.Files = append(s.Files, f)
	}

	for i, obj := range d.objects(candidate, "commitHistory", MinCommits) {
		entity := fmt.Sprintf("commitHistory[%d]", i)
		s.CommitHistory = append(s.CommitHistory, models.CommitSpec{
			Message:     d.str(obj, "message", entity+".message", true),
			AuthorName:  d.str(obj, "authorName", entity+".authorName", true),
			AuthorEmail: d.str(obj, "authorEmail", entity+".authorEmail", true),
			DaysAgo:     d.index(obj, "daysAgo", entity+".daysAgo"),
		})
	}

	for i, obj := range d.objects(candidate, "issues", MinIssues) {
		entity := fmt.Sprintf("issues[%d]", i)
		is := models.IssueSpec{
			Title:      d.str(obj, "title", entity+".title", true),
			Body:       d.str(obj, "body", entity+".body", true),
			Labels:     d.strings(obj, "labels", entity+".labels"),
			State:      models.IssueState(d.str(obj, "state", entity+".state", true)),
			IsMainTask: d.boolean(obj, "isMainTask", entity+".isMainTask"),
		}
		if _, ok := obj["body"].(string); ok && len(strings.TrimSpace(is.Body)) < MinIssueBody {
			d.c.add(RuleMinLength, entity+".body", "%s.body must be at least %d characters", entity, MinIssueBody)
		}
		if is.State != "" && !is.State.Valid() {
			d.c.add(RuleEnum, entity+".state", "%s.state %q must be open or closed", entity, is.State)
		}
		for j, cobj := range d.optionalObjects(obj, "comments", entity+".comments") {
			centity := fmt.Sprintf("%s.comments[%d]", entity, j)
			is.Comments = append(is.Comments, models.IssueComment{
				AuthorName: d.str(cobj, "authorName", centity+".authorName", true),
				Body:       d.str(cobj, "body", centity+".body", true),
			})
		}
		s.Issues = append(s.Issues, is)
	}

	for i, obj := range d.objects(candidate, "authors", MinAuthors) {
		entity := fmt.Sprintf("authors[%d]", i)
		s.Authors = append(s.Authors, models.AuthorSpec{
			Name:  d.str(obj, "name", entity+".name", true),
			Email: d.str(obj, "email", entity+".email", true),
			Role:  d.str(obj, "role", entity+".role", false),
		})
	}

	return s
}

// str reads a string field. Required fields must be present and non-blank;
// optional fields may be absent but must be strings when present.
func (d *decoder) str(obj map[string]any, key, entity string, required bool) string {
	raw, ok := obj[key]
	if !ok || raw == nil {
		if required {
			d.c.add(RuleRequired, entity, "%s is required", entity)
		}
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		d.c.add(RuleType, entity, "%s must be a string", entity)
		return ""
	}
	if required && strings.TrimSpace(s) == "" {
		d.c.add(RuleRequired, entity, "%s must not be empty", entity)
	}
	return s
}

// index reads a required non-negative integer. JSON numbers arrive as
// float64 or json.Number; both must be integral.
func (d *decoder) index(obj map[string]any, key, entity string) int {
	raw, ok := obj[key]
	if !ok || raw == nil {
		d.c.add(RuleRequired, entity, "%s is required", entity)
		return 0
	}

	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			d.c.add(RuleType, entity, "%s must be a number", entity)
			return 0
		}
		f = parsed
	default:
		d.c.add(RuleType, entity, "%s must be a number", entity)
		return 0
	}

	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		d.c.add(RuleRange, entity, "%s must be a non-negative integer", entity)
		return 0
	}
	return int(f)
}

func (d *decoder) boolean(obj map[string]any, key, entity string) bool {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		d.c.add(RuleType, entity, "%s must be a boolean", entity)
	}
	return b
}

func (d *decoder) strings(obj map[string]any, key, entity string) []string {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		d.c.add(RuleType, entity, "%s must be an array of strings", entity)
		return nil
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			d.c.add(RuleType, fmt.Sprintf("%s[%d]", entity, i), "%s[%d] must be a non-empty string", entity, i)
			continue
		}
		// labels are a set
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// objects reads a required array of objects with at least min elements.
func (d *decoder) objects(obj map[string]any, key string, min int) []map[string]any {
	raw, ok := obj[key]
	if !ok || raw == nil {
		d.c.add(RuleRequired, key, "%s is required", key)
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		d.c.add(RuleType, key, "%s must be an array", key)
		return nil
	}
	if len(list) < min {
		d.c.add(RuleMinCount, key, "%s must contain at least %d entries, found %d", key, min, len(list))
	}
	return d.elements(list, key)
}

func (d *decoder) optionalObjects(obj map[string]any, key, entity string) []map[string]any {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		d.c.add(RuleType, entity, "%s must be an array", entity)
		return nil
	}
	return d.elements(list, entity)
}

func (d *decoder) elements(list []any, entity string) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			d.c.add(RuleType, fmt.Sprintf("%s[%d]", entity, i), "%s[%d] must be an object", entity, i)
			// keep indexes aligned with the candidate
			m = map[string]any{}
		}
		out = append(out, m)
	}
	return out
}

// checkPath returns a description of what is wrong with a file path, or "".
func checkPath(p string) string {
	switch {
	case strings.HasPrefix(p, "/"):
		return "must be relative"
	case strings.Contains(p, "\\"):
		return "must use forward slashes"
	case strings.HasSuffix(p, "/"):
		return "must name a file"
	case path.Clean(p) != p:
		return "must be normalized"
	case p == ".." || strings.HasPrefix(p, "../"):
		return "must stay inside the repository"
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".git" {
			return "must not touch .git"
		}
	}
	return ""
}
