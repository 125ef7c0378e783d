package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	s, ok := r.Get("react-vite")
	require.True(t, ok)
	assert.Equal(t, "src/", s.ImportAliases["@/"])

	ref, err := s.TemplateRef()
	require.NoError(t, err)
	assert.Equal(t, "assessment-scaffolds", ref.Owner)
	assert.Equal(t, "react-vite", ref.Name)

	_, ok = r.Get("cobol-mainframe")
	assert.False(t, ok)
}

func TestRegistryIsImmutable(t *testing.T) {
	r := DefaultRegistry()

	s, ok := r.Get("node-express")
	require.True(t, ok)
	s.BaselineFiles[0] = "mutated.json"
	s.Commands["install"] = "rm -rf /"

	again, _ := r.Get("node-express")
	assert.Equal(t, "package.json", again.BaselineFiles[0])
	assert.Equal(t, "npm install", again.Commands["install"])
}

func TestRegistryMatch(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		stack string
		want  string
		found bool
	}{
		{"A React + Vite dashboard written in TypeScript", "react-vite", true},
		{"FastAPI service with pytest", "python-fastapi", true},
		{"Express API on Node.js", "node-express", true},
		{"golang gRPC microservice", "go-service", true},
		{"COBOL batch jobs", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.stack, func(t *testing.T) {
			s, ok := r.Match(tt.stack)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, s.ID)
		})
	}
}

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry([]Scaffold{{ID: "a", Template: "owner/a"}, {ID: "a", Template: "owner/b"}}, nil)
	assert.ErrorContains(t, err, "duplicate scaffold id")

	_, err = NewRegistry([]Scaffold{{ID: "a", Template: "no-slash"}}, nil)
	assert.ErrorContains(t, err, "template must be owner/name")

	_, err = NewRegistry(nil, []OptionalFile{{Pattern: "[unclosed"}})
	assert.ErrorContains(t, err, "invalid optional file pattern")
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaffolds.yaml")
	err := os.WriteFile(path, []byte(`
scaffolds:
  - id: rails
    template: acme/rails-template
    keywords: [ruby, rails]
    readiness_file: Gemfile
    baseline_files: [Gemfile, Rakefile]
optional_files:
  - pattern: "**/config/database.yml.example"
    default_content: "development:\n  adapter: sqlite3\n"
`), 0o644)
	require.NoError(t, err)

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	s, ok := r.Get("rails")
	require.True(t, ok)
	assert.Equal(t, "Gemfile", s.ReadinessFile)
	assert.Equal(t, []string{"Gemfile", "Rakefile"}, s.BaselineFiles)

	optional := r.OptionalFiles()
	require.Len(t, optional, 1)
	assert.True(t, optional[0].Matches("config/database.yml.example"))
	assert.True(t, optional[0].Matches("api/config/database.yml.example"))
	assert.False(t, optional[0].Matches(".env.example"))
}

func TestOptionalFileMatchesRoot(t *testing.T) {
	f := defaultOptionalFiles[0]
	assert.True(t, f.Matches(".env.example"))
	assert.True(t, f.Matches("server/.env.example"))
	assert.False(t, f.Matches(".env"))
}
