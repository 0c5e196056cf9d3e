package server

import "github.com/bull/gitglean/internal/indexer"

// IngestRequest is the request body for POST /ingest. The GitHub fields are
// passed through to the fetcher for this request only and never stored.
type IngestRequest struct {
	RepositoryURL     string `json:"repositoryUrl"`
	GitHubAccessToken string `json:"githubAccessToken,omitempty"`
	GitHubBaseURL     string `json:"githubBaseUrl,omitempty"`
	GitHubAPIURL      string `json:"githubApiUrl,omitempty"`
}

// IngestResponse is the response body for POST /ingest. On success the
// ingestion statistics are inlined next to the success flag.
type IngestResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*indexer.Result
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Input         string `json:"input"`
	RepositoryURL string `json:"repositoryUrl"`
}

// ErrorResponse is returned by /search on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}
