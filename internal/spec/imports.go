package spec

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	jsImportFrom    = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?(?:[\w$*{}\s,]+?\s+from\s+)?["']([^"'\n]+)["']`)
	jsExportFrom    = regexp.MustCompile(`(?m)^\s*export\s+(?:type\s+)?(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s+from\s+["']([^"'\n]+)["']`)
	jsRequire       = regexp.MustCompile(`\brequire\(\s*["']([^"'\n]+)["']\s*\)`)
	jsDynamicImport = regexp.MustCompile(`\bimport\(\s*["']([^"'\n]+)["']\s*\)`)

	pyRelativeImport = regexp.MustCompile(`(?m)^\s*from\s+(\.+)([\w.]*)\s+import\s+`)
)

var scriptExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// DefaultImportAliases apply when the scaffold declares none.
var DefaultImportAliases = map[string]string{
	"@/": "src/",
	"~/": "src/",
}

// importRef is one import statement found in a source file.
type importRef struct {
	specifier string
	python    bool
}

func isScript(p string) bool {
	switch path.Ext(p) {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue", ".svelte":
		return true
	}
	return false
}

// extractImports returns the module specifiers imported by a source file.
func extractImports(filePath, content string) []importRef {
	var refs []importRef
	switch {
	case isScript(filePath):
		for _, re := range []*regexp.Regexp{jsImportFrom, jsExportFrom, jsRequire, jsDynamicImport} {
			for _, m := range re.FindAllStringSubmatch(content, -1) {
				refs = append(refs, importRef{specifier: m[1]})
			}
		}
	case path.Ext(filePath) == ".py":
		for _, m := range pyRelativeImport.FindAllStringSubmatch(content, -1) {
			refs = append(refs, importRef{specifier: m[1] + m[2], python: true})
		}
	}
	return refs
}

// importResolver resolves relative and aliased imports against a file index.
type importResolver struct {
	files   *fileIndex
	aliases []alias
}

type alias struct {
	prefix string
	target string
}

func newImportResolver(files *fileIndex, aliases map[string]string) *importResolver {
	r := &importResolver{files: files}
	for prefix, target := range aliases {
		r.aliases = append(r.aliases, alias{prefix: prefix, target: target})
	}
	// longest prefix wins
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].prefix) != len(r.aliases[j].prefix) {
			return len(r.aliases[i].prefix) > len(r.aliases[j].prefix)
		}
		return r.aliases[i].prefix < r.aliases[j].prefix
	})
	return r
}

// resolve returns the file an import refers to. checked is false for
// imports of external packages, which are not validated.
func (r *importResolver) resolve(importer string, ref importRef) (resolved string, checked bool, ok bool) {
	if ref.python {
		return r.resolvePython(importer, ref.specifier)
	}

	spec := ref.specifier
	if i := strings.IndexAny(spec, "?#"); i > 0 {
		spec = spec[:i]
	}

	var target string
	switch {
	case spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		joined, valid := walk(dirSegments(importer), spec)
		if !valid {
			return "", true, false
		}
		target = joined
	default:
		matched := false
		for _, a := range r.aliases {
			if strings.HasPrefix(spec, a.prefix) {
				joined, valid := walk(nil, strings.TrimSuffix(a.target, "/")+"/"+strings.TrimPrefix(spec, a.prefix))
				if !valid {
					return "", true, false
				}
				target = joined
				matched = true
				break
			}
		}
		if !matched {
			return "", false, false
		}
	}

	resolved, ok = r.probe(target)
	return resolved, true, ok
}

// probe tries the path as written, with each script extension, and as a
// directory index. A ".js" specifier also matches its TypeScript source.
func (r *importResolver) probe(p string) (string, bool) {
	if p != "" && r.files.has(p) {
		return p, true
	}
	for _, ext := range scriptExtensions {
		if r.files.has(p + ext) {
			return p + ext, true
		}
	}
	for _, ext := range scriptExtensions {
		candidate := path.Join(p, "index"+ext)
		if r.files.has(candidate) {
			return candidate, true
		}
	}
	if stem := strings.TrimSuffix(p, path.Ext(p)); stem != p {
		switch path.Ext(p) {
		case ".js", ".jsx", ".mjs", ".cjs":
			for _, ext := range []string{".ts", ".tsx", ".mts", ".cts"} {
				if r.files.has(stem + ext) {
					return stem + ext, true
				}
			}
		}
	}
	return "", false
}

// resolvePython handles "from .models import X": one dot is the importer's
// package, every further dot climbs one level.
func (r *importResolver) resolvePython(importer, spec string) (string, bool, bool) {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	module := strings.TrimLeft(spec, ".")

	rel := "."
	for i := 1; i < dots; i++ {
		rel += "/.."
	}
	if module != "" {
		rel += "/" + strings.ReplaceAll(module, ".", "/")
	}
	target, valid := walk(dirSegments(importer), rel)
	if !valid {
		return "", true, false
	}
	if module == "" {
		// "from . import x" refers to the package itself
		candidate := path.Join(target, "__init__.py")
		if r.files.has(candidate) {
			return candidate, true, true
		}
		return target, true, true
	}
	for _, candidate := range []string{target + ".py", path.Join(target, "__init__.py")} {
		if r.files.has(candidate) {
			return candidate, true, true
		}
	}
	return "", true, false
}

func dirSegments(file string) []string {
	dir := path.Dir(file)
	if dir == "." {
		return nil
	}
	return strings.Split(dir, "/")
}

// walk applies the segments of rel to base: ".." pops, "." and empty
// segments are no-ops, anything else pushes. Popping above the repository
// root makes the path unresolvable.
func walk(base []string, rel string) (string, bool) {
	stack := append([]string(nil), base...)
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	return strings.Join(stack, "/"), true
}
