//go:build integration

package indexer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/gitglean/internal/chunker"
	"github.com/bull/gitglean/internal/embedding"
	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/storage"
)

func TestPipeline_Ingest_Integration(t *testing.T) {
	apiKey := os.Getenv("TOGETHER_API_KEY")
	if apiKey == "" {
		t.Skip("TOGETHER_API_KEY not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ghClient, err := github.NewClient(os.Getenv("GITHUB_TOKEN"))
	require.NoError(t, err)
	fetcher := github.NewFetcher(ghClient, github.FetcherConfig{}, nil)

	client, err := embedding.NewClient(embedding.ClientConfig{APIKey: apiKey})
	require.NoError(t, err)
	embedder := embedding.NewEmbedder(client, embedding.Config{}, nil)

	idx, err := storage.NewMemoryIndex(storage.MemoryConfig{})
	require.NoError(t, err)
	store := storage.NewStore(idx, storage.Config{Dimension: embedder.Dimension()}, nil)

	pipeline := NewPipeline(fetcher, chunker.New(0, 0), embedder, store, nil, nil)

	// A small public repository keeps the run short.
	const url = "https://github.com/octocat/Hello-World"
	result, err := pipeline.Ingest(ctx, Request{RepositoryURL: url})
	require.NoError(t, err)
	assert.Equal(t, "octocat/Hello-World", result.Repository)
	assert.NotEmpty(t, result.DefaultBranch)

	if result.Chunks == 0 {
		return
	}
	query, err := embedder.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)

	hits, err := store.Search(ctx, query, url, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "Should find ingested chunks")
	for _, hit := range hits {
		assert.NotEmpty(t, hit.SourcePath)
		assert.NotEmpty(t, hit.PageContent)
	}
}
