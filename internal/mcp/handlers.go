package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/indexer"
)

// makeIngestHandler creates the ingest_repository tool handler.
func makeIngestHandler(ingester Ingester) func(
	context.Context, *mcp.CallToolRequest, IngestRepositoryInput,
) (*mcp.CallToolResult, IngestRepositoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestRepositoryInput) (
		*mcp.CallToolResult, IngestRepositoryOutput, error,
	) {
		if strings.TrimSpace(input.RepositoryURL) == "" {
			return nil, IngestRepositoryOutput{}, fmt.Errorf("repository_url is required")
		}

		result, err := ingester.Ingest(ctx, indexer.Request{
			RepositoryURL: input.RepositoryURL,
			Credentials: github.Credentials{
				Token:   input.GitHubAccessToken,
				BaseURL: input.GitHubBaseURL,
				APIURL:  input.GitHubAPIURL,
			},
		})
		if err != nil {
			return nil, IngestRepositoryOutput{}, fmt.Errorf("ingestion failed: %w", err)
		}

		output := IngestRepositoryOutput{
			Repository:    result.Repository,
			DefaultBranch: result.DefaultBranch,
			Files:         result.Files,
			Chunks:        result.Chunks,
			DurationMS:    result.DurationMS,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Ingested %s (%s): %d files, %d chunks",
					output.Repository, output.DefaultBranch, output.Files, output.Chunks)},
			},
		}, output, nil
	}
}

// makeSearchHandler creates the search_repository tool handler.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchRepositoryInput,
) (*mcp.CallToolResult, SearchRepositoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchRepositoryInput) (
		*mcp.CallToolResult, SearchRepositoryOutput, error,
	) {
		results, err := searcher.Search(ctx, input.Query, input.RepositoryURL)
		if err != nil {
			return nil, SearchRepositoryOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			return nil, SearchRepositoryOutput{
				Results: []SearchResult{},
				Message: "No matching files found. Ingest the repository first or try broader search terms.",
			}, nil
		}

		out := make([]SearchResult, len(results))
		for i, r := range results {
			out[i] = SearchResult{Source: r.Source, Score: r.Score, Content: r.PageContent}
		}
		return nil, SearchRepositoryOutput{Results: out}, nil
	}
}
