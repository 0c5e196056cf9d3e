// Package mcp exposes repository ingestion and search as MCP tools.
package mcp

// IngestRepositoryInput defines the input parameters for the ingest_repository tool.
type IngestRepositoryInput struct {
	// RepositoryURL is the GitHub repository to (re)ingest.
	RepositoryURL string `json:"repository_url" jsonschema:"GitHub repository URL, e.g. https://github.com/owner/name"`
	// GitHubAccessToken grants access to private repositories for this call only.
	GitHubAccessToken string `json:"github_access_token,omitempty" jsonschema:"Optional GitHub token for private repositories. Used for this call only and never stored"`
	// GitHubBaseURL selects a GitHub Enterprise installation.
	GitHubBaseURL string `json:"github_base_url,omitempty" jsonschema:"Optional GitHub Enterprise base URL"`
	// GitHubAPIURL overrides the API endpoint derived from GitHubBaseURL.
	GitHubAPIURL string `json:"github_api_url,omitempty" jsonschema:"Optional GitHub Enterprise API base URL"`
}

// IngestRepositoryOutput contains ingestion statistics.
type IngestRepositoryOutput struct {
	Repository    string `json:"repository"`
	DefaultBranch string `json:"default_branch"`
	Files         int    `json:"files"`
	Chunks        int    `json:"chunks"`
	DurationMS    int64  `json:"duration_ms"`
}

// SearchRepositoryInput defines the input parameters for the search_repository tool.
type SearchRepositoryInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"Natural-language question about the repository"`
	// RepositoryURL is a previously ingested repository.
	RepositoryURL string `json:"repository_url" jsonschema:"URL of a repository ingested with ingest_repository"`
}

// SearchRepositoryOutput contains the search results.
type SearchRepositoryOutput struct {
	// Results holds at most one entry per file, best match first.
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching files found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single file match from semantic search.
type SearchResult struct {
	// Source is the file path within the repository.
	Source string `json:"source"`
	// Score is the similarity score of the best chunk of the file.
	Score float64 `json:"score"`
	// Content is the best matching chunk of the file.
	Content string `json:"content"`
}
