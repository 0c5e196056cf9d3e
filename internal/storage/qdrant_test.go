//go:build integration
// +build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQdrant connects to a local Qdrant and uses a throwaway collection.
// Skips test if Qdrant is not running.
func setupQdrant(t *testing.T) *QdrantIndex {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idx, err := NewQdrantIndex(ctx, QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "gitglean_test",
	}, testDim)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	t.Cleanup(func() {
		_ = idx.DropCollection(context.Background())
		_ = idx.Close()
	})
	return idx
}

func TestQdrantReplaceAndSearch(t *testing.T) {
	idx := setupQdrant(t)
	store := NewStore(idx, Config{Dimension: testDim}, nil)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{
		record(repoA, "old.go", 0, 5),
	}))
	require.NoError(t, store.ReplaceAll(ctx, repoB, []Record{
		record(repoB, "other.go", 0, 0),
	}))

	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{
		record(repoA, "main.go", 0, 0),
		record(repoA, "main.go", 1, 1),
		record(repoA, "util.go", 0, 2),
	}))

	results, err := store.Search(ctx, vec(0), repoA, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "main.go", results[0].SourcePath)
	assert.Equal(t, 0, results[0].SequenceIndex)
	assert.Equal(t, "main.go chunk 0", results[0].PageContent)
	assert.Equal(t, "util.go", results[1].SourcePath)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	count, err := idx.PointsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestQdrantEnsureCollectionRejectsOtherDimension(t *testing.T) {
	idx := setupQdrant(t)

	other := &QdrantIndex{client: idx.client, collection: idx.collection, dimension: testDim * 2}
	err := other.EnsureCollection(context.Background())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantHealth(t *testing.T) {
	idx := setupQdrant(t)
	assert.NoError(t, idx.Health(context.Background()))
}
