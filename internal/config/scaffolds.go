package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// Scaffold is a baseline repository with working build tooling that specs
// are materialized on top of.
type Scaffold struct {
	ID            string            `yaml:"id" json:"id"`
	Template      string            `yaml:"template" json:"template"`
	Keywords      []string          `yaml:"keywords" json:"keywords"`
	Commands      map[string]string `yaml:"commands" json:"commands"`
	BaselineFiles []string          `yaml:"baseline_files" json:"baseline_files"`
	ReadinessFile string            `yaml:"readiness_file" json:"readiness_file"`
	ImportAliases map[string]string `yaml:"import_aliases" json:"import_aliases,omitempty"`
}

// TemplateRef returns the template repository the scaffold is generated from.
func (s Scaffold) TemplateRef() (models.RepoRef, error) {
	owner, name, ok := strings.Cut(s.Template, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return models.RepoRef{}, fmt.Errorf("scaffold %q: template must be owner/name, got %q", s.ID, s.Template)
	}
	return models.RepoRef{Owner: owner, Name: name}, nil
}

func (s Scaffold) clone() Scaffold {
	out := s
	out.Keywords = append([]string(nil), s.Keywords...)
	out.BaselineFiles = append([]string(nil), s.BaselineFiles...)
	out.Commands = cloneMap(s.Commands)
	out.ImportAliases = cloneMap(s.ImportAliases)
	return out
}

// OptionalFile is a well-known file that is synthesized with default content
// when a spec references it without declaring it.
type OptionalFile struct {
	Pattern        string `yaml:"pattern" json:"pattern"`
	DefaultContent string `yaml:"default_content" json:"default_content"`
}

// Matches reports whether path is covered by the optional file pattern.
func (f OptionalFile) Matches(path string) bool {
	ok, err := doublestar.Match(f.Pattern, path)
	return err == nil && ok
}

// RegistryFile is the on-disk layout of a scaffold registry.
type RegistryFile struct {
	Scaffolds     []Scaffold     `yaml:"scaffolds"`
	OptionalFiles []OptionalFile `yaml:"optional_files"`
}

// Registry is an immutable set of scaffolds and optional files. It is built
// once at startup and passed to the components that need it.
type Registry struct {
	scaffolds []Scaffold
	byID      map[string]int
	optional  []OptionalFile
}

// NewRegistry validates and copies the given scaffolds and optional files.
func NewRegistry(scaffolds []Scaffold, optional []OptionalFile) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(scaffolds))}
	for _, s := range scaffolds {
		if s.ID == "" {
			return nil, fmt.Errorf("scaffold with template %q has no id", s.Template)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scaffold id %q", s.ID)
		}
		if _, err := s.TemplateRef(); err != nil {
			return nil, err
		}
		r.byID[s.ID] = len(r.scaffolds)
		r.scaffolds = append(r.scaffolds, s.clone())
	}
	for _, f := range optional {
		if !doublestar.ValidatePattern(f.Pattern) {
			return nil, fmt.Errorf("invalid optional file pattern %q", f.Pattern)
		}
		r.optional = append(r.optional, f)
	}
	return r, nil
}

// LoadRegistry reads a registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaffold registry: %w", err)
	}
	var file RegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scaffold registry %s: %w", path, err)
	}
	return NewRegistry(file.Scaffolds, file.OptionalFiles)
}

// LoadRegistryOrDefault loads the registry from path, or returns the built-in
// registry when path is empty.
func LoadRegistryOrDefault(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	return LoadRegistry(path)
}

// Get returns a copy of the scaffold with the given id.
func (r *Registry) Get(id string) (Scaffold, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Scaffold{}, false
	}
	return r.scaffolds[i].clone(), true
}

// Has reports whether a scaffold id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns copies of all scaffolds in registration order.
func (r *Registry) List() []Scaffold {
	out := make([]Scaffold, 0, len(r.scaffolds))
	for _, s := range r.scaffolds {
		out = append(out, s.clone())
	}
	return out
}

// OptionalFiles returns the well-known optional files table.
func (r *Registry) OptionalFiles() []OptionalFile {
	return append([]OptionalFile(nil), r.optional...)
}

// Match picks the scaffold whose keywords best match a free-text tech stack
// description. Ties go to the scaffold registered first.
func (r *Registry) Match(techStack string) (Scaffold, bool) {
	words := strings.FieldsFunc(strings.ToLower(techStack), func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.' || c == '#' || c == '+')
	})
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	type scored struct {
		index int
		score int
	}
	var candidates []scored
	for i, s := range r.scaffolds {
		score := 0
		for _, kw := range s.Keywords {
			if present[strings.ToLower(kw)] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{index: i, score: score})
		}
	}
	if len(candidates) == 0 {
		return Scaffold{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return r.scaffolds[candidates[0].index].clone(), true
}

// DefaultRegistry returns the built-in scaffold registry.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultScaffolds, defaultOptionalFiles)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in scaffold registry: %v", err))
	}
	return r
}

var defaultOptionalFiles = []OptionalFile{
	{
		Pattern:        "**/.env.example",
		DefaultContent: "# Copy this file to .env and fill in the values for your environment.\nPORT=3000\n",
	},
}

var defaultScaffolds = []Scaffold{
	{
		ID:            "node-express",
		Template:      "assessment-scaffolds/node-express",
		Keywords:      []string{"node", "node.js", "nodejs", "express", "javascript", "typescript", "api"},
		Commands:      map[string]string{"install": "npm install", "test": "npm test", "start": "npm start"},
		BaselineFiles: []string{"package.json", "package-lock.json", "tsconfig.json", ".gitignore", "README.md", "jest.config.js"},
		ReadinessFile: "package.json",
	},
	{
		ID:            "react-vite",
		Template:      "assessment-scaffolds/react-vite",
		Keywords:      []string{"react", "vite", "frontend", "typescript", "tsx", "spa"},
		Commands:      map[string]string{"install": "npm install", "test": "npm test", "dev": "npm run dev", "build": "npm run build"},
		BaselineFiles: []string{"package.json", "package-lock.json", "tsconfig.json", "vite.config.ts", "index.html", ".gitignore", "README.md", "src/main.tsx"},
		ReadinessFile: "package.json",
		ImportAliases: map[string]string{"@/": "src/"},
	},
	{
		ID:            "python-fastapi",
		Template:      "assessment-scaffolds/python-fastapi",
		Keywords:      []string{"python", "fastapi", "pydantic", "pytest", "uvicorn"},
		Commands:      map[string]string{"install": "pip install -r requirements.txt", "test": "pytest", "start": "uvicorn app.main:app --reload"},
		BaselineFiles: []string{"requirements.txt", "pyproject.toml", ".gitignore", "README.md"},
		ReadinessFile: "requirements.txt",
	},
	{
		ID:            "go-service",
		Template:      "assessment-scaffolds/go-service",
		Keywords:      []string{"go", "golang", "grpc", "microservice"},
		Commands:      map[string]string{"test": "go test ./...", "build": "go build ./..."},
		BaselineFiles: []string{"go.mod", "go.sum", ".gitignore", "README.md", "Makefile"},
		ReadinessFile: "go.mod",
	},
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
