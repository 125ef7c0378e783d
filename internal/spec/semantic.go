package spec

import (
	"fmt"
	"path"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// semanticInput is what the cross-reference checks need besides the spec.
type semanticInput struct {
	baseline []string
	aliases  map[string]string
	optional []config.OptionalFile
}

// checkSemantics verifies the cross-entity invariants of a structurally valid
// spec. It returns the optional files that have to be synthesized for
// references the spec makes without declaring them.
func checkSemantics(s *models.RepoSpec, in semanticInput, c *collector) []models.FileSpec {
	checkAuthors(s, c)
	checkCommitIndexes(s, c)
	checkMainTask(s, c)
	checkUniquePaths(s, c)

	files := newFileIndex()
	files.add("README.md")
	for _, p := range in.baseline {
		files.add(p)
	}
	for _, f := range s.Files {
		files.add(f.Path)
	}

	synthesized := checkReferences(s, files, in.optional, c)
	for _, f := range synthesized {
		files.add(f.Path)
	}
	checkImports(s, files, in.aliases, c)
	return synthesized
}

func checkAuthors(s *models.RepoSpec, c *collector) {
	known := make(map[string]bool, len(s.Authors))
	for _, a := range s.Authors {
		known[a.Name] = true
	}
	for i, commit := range s.CommitHistory {
		if !known[commit.AuthorName] {
			c.add(RuleAuthor, fmt.Sprintf("commitHistory[%d]", i),
				"commit author %s not found in authors list", commit.AuthorName)
		}
	}
	for i, issue := range s.Issues {
		for j, comment := range issue.Comments {
			if !known[comment.AuthorName] {
				c.add(RuleAuthor, fmt.Sprintf("issues[%d].comments[%d]", i, j),
					"comment author %s on issue %q not found in authors list", comment.AuthorName, issue.Title)
			}
		}
	}
}

func checkCommitIndexes(s *models.RepoSpec, c *collector) {
	n := len(s.CommitHistory)
	for _, f := range s.Files {
		if f.AddedInCommit < 0 || f.AddedInCommit >= n {
			c.add(RuleCommitIdx, f.Path,
				"file %s references commit index %d but only %d commits exist", f.Path, f.AddedInCommit, n)
		}
	}
}

func checkMainTask(s *models.RepoSpec, c *collector) {
	var main []models.IssueSpec
	for _, issue := range s.Issues {
		if issue.IsMainTask {
			main = append(main, issue)
		}
	}
	if len(main) != 1 {
		c.add(RuleMainTask, "issues", "expected exactly 1 main task issue, found %d", len(main))
		return
	}
	if main[0].State != models.IssueOpen {
		c.add(RuleMainTask, main[0].Title, "main task issue %q must be open, found %s", main[0].Title, main[0].State)
	}
}

func checkUniquePaths(s *models.RepoSpec, c *collector) {
	seen := make(map[string]bool, len(s.Files))
	for _, f := range s.Files {
		if seen[f.Path] {
			c.add(RuleUniquePath, f.Path, "duplicate file path %s", f.Path)
			continue
		}
		seen[f.Path] = true
	}
}

// checkReferences resolves the paths mentioned in the README, issue bodies
// and comments. Unresolved references that match the optional files table
// are synthesized instead of rejected.
func checkReferences(s *models.RepoSpec, files *fileIndex, optional []config.OptionalFile, c *collector) []models.FileSpec {
	var synthesized []models.FileSpec
	planned := make(map[string]bool)

	check := func(entity, where, text string) {
		for _, ref := range ExtractReferences(text) {
			if files.resolves(ref) || planned[ref] {
				continue
			}
			if f, ok := matchOptional(ref, optional); ok {
				if msg := checkPath(ref); msg != "" {
					c.add(RulePath, entity, "%s references %s, which %s", where, ref, msg)
					continue
				}
				planned[ref] = true
				synthesized = append(synthesized, models.FileSpec{
					Path:          ref,
					Content:       f.DefaultContent,
					Purpose:       models.PurposeConfig,
					AddedInCommit: 0,
				})
				continue
			}
			c.add(RuleReference, entity, "%s references missing file %s", where, ref)
		}
	}

	check("readmeContent", "README", s.ReadmeContent)
	for i, issue := range s.Issues {
		entity := fmt.Sprintf("issues[%d]", i)
		where := fmt.Sprintf("issue %q", issue.Title)
		check(entity, where, issue.Body)
		for j, comment := range issue.Comments {
			check(fmt.Sprintf("%s.comments[%d]", entity, j), fmt.Sprintf("comment on issue %q", issue.Title), comment.Body)
		}
	}
	return synthesized
}

func matchOptional(ref string, optional []config.OptionalFile) (config.OptionalFile, bool) {
	for _, f := range optional {
		if f.Matches(ref) || f.Matches(path.Base(ref)) {
			return f, true
		}
	}
	return config.OptionalFile{}, false
}

func checkImports(s *models.RepoSpec, files *fileIndex, aliases map[string]string, c *collector) {
	resolver := newImportResolver(files, aliases)
	for _, f := range s.Files {
		for _, ref := range extractImports(f.Path, f.Content) {
			if _, checked, ok := resolver.resolve(f.Path, ref); checked && !ok {
				c.add(RuleImport, f.Path, "file %s imports %s which does not resolve to a file", f.Path, ref.specifier)
			}
		}
	}
}
