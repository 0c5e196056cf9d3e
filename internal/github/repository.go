package github

import (
	"fmt"
	"net/url"
	"strings"
)

// Repository identifies the repository being ingested. It is re-derived from
// the URL on every ingestion.
type Repository struct {
	Owner         string
	Name          string
	URL           string // the URL exactly as submitted; records are keyed by it
	DefaultBranch string // empty until resolved against the API
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRepositoryURL takes owner and name from the trailing two path segments
// of a repository URL. Both "https://github.com/owner/repo" and "owner/repo"
// are accepted; a trailing ".git" is ignored.
func ParseRepositoryURL(raw string) (Repository, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Repository{}, fmt.Errorf("%w: empty", ErrInvalidRepositoryURL)
	}

	path := trimmed
	if u, err := url.Parse(trimmed); err == nil && u.Host != "" {
		path = u.Path
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return Repository{}, fmt.Errorf("%w: %q has fewer than two path segments", ErrInvalidRepositoryURL, raw)
	}

	owner := segments[len(segments)-2]
	name := strings.TrimSuffix(segments[len(segments)-1], ".git")
	if name == "" {
		return Repository{}, fmt.Errorf("%w: %q has an empty repository name", ErrInvalidRepositoryURL, raw)
	}

	return Repository{Owner: owner, Name: name, URL: raw}, nil
}
