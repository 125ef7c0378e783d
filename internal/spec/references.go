package spec

import (
	"path"
	"regexp"
	"strings"
)

var inlineCode = regexp.MustCompile("`([^`\n]+)`")

// referenceExtensions are the file extensions that make a token look like a
// file path. Anything else (req.body, user.name) is prose.
var referenceExtensions = map[string]bool{
	"js": true, "jsx": true, "ts": true, "tsx": true, "mjs": true, "cjs": true,
	"json": true, "md": true, "py": true, "go": true, "java": true, "kt": true,
	"rb": true, "rs": true, "php": true, "cs": true, "c": true, "h": true, "cpp": true,
	"yml": true, "yaml": true, "toml": true, "ini": true, "cfg": true, "xml": true,
	"html": true, "css": true, "scss": true, "sql": true, "sh": true, "txt": true,
	"vue": true, "svelte": true, "graphql": true, "prisma": true, "proto": true,
	"lock": true, "mod": true, "sum": true, "example": true, "env": true,
}

// technologyNames look like files but name libraries.
var technologyNames = map[string]bool{
	"node.js": true, "next.js": true, "nuxt.js": true, "vue.js": true, "express.js": true,
	"react.js": true, "three.js": true, "d3.js": true, "chart.js": true, "nest.js": true,
	"socket.io": true, "ember.js": true, "backbone.js": true, "alpine.js": true,
}

var lineSuffix = regexp.MustCompile(`:\d+(:\d+)?$`)

// ExtractReferences returns the file-like paths mentioned in free text, in
// order of first appearance. Inline code spans count on their own; bare
// tokens must contain a slash. URLs, scoped package names and globs are
// ignored.
func ExtractReferences(text string) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(token string, requireSlash bool) {
		ref, ok := normalizeReference(token, requireSlash)
		if ok && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	for _, m := range inlineCode.FindAllStringSubmatch(text, -1) {
		span := strings.TrimSpace(m[1])
		if !strings.ContainsAny(span, " \t") {
			add(span, false)
		}
	}

	for _, token := range strings.FieldsFunc(text, isTokenSeparator) {
		add(token, true)
	}
	return refs
}

func isTokenSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '(', ')', '`', '"', '\'', '<', '>', ',', '|':
		return true
	}
	return false
}

func normalizeReference(token string, requireSlash bool) (string, bool) {
	token = strings.TrimLeft(token, "*_")
	token = strings.TrimRight(token, ".,;:!?*_")
	if i := strings.IndexByte(token, '#'); i > 0 {
		token = token[:i]
	}
	token = lineSuffix.ReplaceAllString(token, "")
	if token == "" {
		return "", false
	}
	if strings.Contains(token, "://") || strings.HasPrefix(token, "www.") {
		return "", false
	}
	if strings.HasPrefix(token, "@") || strings.HasPrefix(token, "~") || strings.HasPrefix(token, "$") {
		return "", false
	}
	if strings.ContainsAny(token, "*?[]{}#=") {
		return "", false
	}
	if requireSlash && !strings.Contains(token, "/") {
		return "", false
	}
	if technologyNames[strings.ToLower(token)] {
		return "", false
	}

	token = strings.TrimPrefix(token, "./")
	if strings.HasPrefix(token, "/") {
		token = strings.TrimLeft(token, "/")
	}
	if !hasReferenceExtension(token) {
		return "", false
	}
	return path.Clean(token), true
}

// hasReferenceExtension checks the extension of the base name, ignoring a
// leading dot so that ".env" is not a reference but ".env.example" is.
func hasReferenceExtension(p string) bool {
	base := strings.TrimPrefix(path.Base(p), ".")
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return false
	}
	return referenceExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// fileIndex answers whether a reference names a known file.
type fileIndex struct {
	paths map[string]bool
}

func newFileIndex() *fileIndex {
	return &fileIndex{paths: make(map[string]bool)}
}

func (i *fileIndex) add(p string) {
	i.paths[p] = true
}

func (i *fileIndex) has(p string) bool {
	return i.paths[p]
}

// resolves reports whether ref equals a known path or is a path suffix of
// one ("index.ts" resolves to "src/index.ts").
func (i *fileIndex) resolves(ref string) bool {
	if i.paths[ref] {
		return true
	}
	suffix := "/" + ref
	for p := range i.paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}
