package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// ParseRepoURL parses a repository reference given as an https URL, an ssh
// remote (git@host:owner/name.git) or a bare owner/name.
func ParseRepoURL(repoURL string) (models.RepoRef, error) {
	raw := strings.TrimSpace(repoURL)
	if raw == "" {
		return models.RepoRef{}, fmt.Errorf("invalid repository URL: empty")
	}

	var path string
	switch {
	case strings.HasPrefix(raw, "git@"):
		_, rest, ok := strings.Cut(raw, ":")
		if !ok {
			return models.RepoRef{}, fmt.Errorf("invalid repository URL: %s", repoURL)
		}
		path = rest
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return models.RepoRef{}, fmt.Errorf("invalid repository URL: %w", err)
		}
		if u.Host == "" {
			return models.RepoRef{}, fmt.Errorf("invalid repository URL: %s", repoURL)
		}
		path = u.Path
	default:
		path = raw
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.RepoRef{}, fmt.Errorf("invalid repository URL: %s", repoURL)
	}

	return models.RepoRef{
		Owner: parts[0],
		Name:  strings.TrimSuffix(parts[1], ".git"),
	}, nil
}

// IsValidRepoURL reports whether ParseRepoURL accepts repoURL.
func IsValidRepoURL(repoURL string) bool {
	_, err := ParseRepoURL(repoURL)
	return err == nil
}
