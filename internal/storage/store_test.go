package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDim = 4
	repoA   = "https://github.com/acme/widgets"
	repoB   = "https://github.com/acme/gadgets"
)

func newMemoryStore(t *testing.T) (*Store, *MemoryIndex) {
	t.Helper()
	idx, err := NewMemoryIndex(MemoryConfig{})
	require.NoError(t, err)
	return NewStore(idx, Config{Dimension: testDim}, nil), idx
}

// vec returns a unit vector whose angle to (1,0,0,0) grows with n.
func vec(n int) []float32 {
	angle := float64(n) * 0.05
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0, 0}
}

func record(repo, source string, seq, n int) Record {
	return Record{
		RepositoryURL: repo,
		SourcePath:    source,
		PageContent:   fmt.Sprintf("%s chunk %d", source, seq),
		SequenceIndex: seq,
		Vector:        vec(n),
	}
}

func sources(results []ScoredRecord) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.SourcePath
	}
	return out
}

func TestReplaceAllReplacesPreviousGeneration(t *testing.T) {
	store, idx := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{
		record(repoA, "old/a.go", 0, 1),
		record(repoA, "old/b.go", 0, 2),
		record(repoA, "old/c.go", 0, 3),
	}))
	require.NoError(t, store.ReplaceAll(ctx, repoB, []Record{
		record(repoB, "gadget.go", 0, 1),
	}))
	require.Equal(t, 4, idx.Count())

	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{
		record(repoA, "new/a.go", 0, 1),
		record(repoA, "new/b.go", 0, 2),
	}))
	assert.Equal(t, 3, idx.Count())

	results, err := store.Search(ctx, vec(0), repoA, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new/a.go", "new/b.go"}, sources(results))

	results, err = store.Search(ctx, vec(0), repoB, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gadget.go"}, sources(results), "other repositories are untouched")
}

func TestReplaceAllWithNoRecordsClearsRepository(t *testing.T) {
	store, idx := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{record(repoA, "a.go", 0, 1)}))
	require.NoError(t, store.ReplaceAll(ctx, repoA, nil))
	assert.Zero(t, idx.Count())

	results, err := store.Search(ctx, vec(0), repoA, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReplaceAllAssignsIDs(t *testing.T) {
	store, _ := newMemoryStore(t)

	records := []Record{record(repoA, "a.go", 0, 1), record(repoA, "a.go", 1, 2)}
	records[1].ID = "6f1c1f4e-36f3-4ac3-9e8a-000000000001"
	require.NoError(t, store.ReplaceAll(context.Background(), repoA, records))

	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, "6f1c1f4e-36f3-4ac3-9e8a-000000000001", records[1].ID)
}

func TestReplaceAllValidatesBeforeDeleting(t *testing.T) {
	store, idx := newMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceAll(ctx, repoA, []Record{record(repoA, "a.go", 0, 1)}))

	bad := record(repoA, "b.go", 0, 2)
	bad.Vector = []float32{1, 0}
	err := store.ReplaceAll(ctx, repoA, []Record{bad})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = store.ReplaceAll(ctx, repoA, []Record{record(repoB, "c.go", 0, 3)})
	assert.ErrorIs(t, err, ErrRepositoryMismatch)

	err = store.ReplaceAll(ctx, "", nil)
	assert.ErrorIs(t, err, ErrMissingRepository)

	assert.Equal(t, 1, idx.Count(), "rejected writes leave the previous generation in place")
}

func TestSearchReturnsOneResultPerFile(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	// 12 files with 3 chunks each.
	var records []Record
	for f := 0; f < 12; f++ {
		for c := 0; c < 3; c++ {
			records = append(records, record(repoA, fmt.Sprintf("pkg/file%02d.go", f), c, f*3+c))
		}
	}
	require.NoError(t, store.ReplaceAll(ctx, repoA, records))

	results, err := store.Search(ctx, vec(0), repoA, 0)
	require.NoError(t, err)
	require.Len(t, results, DefaultTopK)

	seen := map[string]bool{}
	for i, r := range results {
		assert.False(t, seen[r.SourcePath], "duplicate source %s", r.SourcePath)
		seen[r.SourcePath] = true
		assert.Equal(t, repoA, r.RepositoryURL)
		if i > 0 {
			assert.LessOrEqual(t, r.Score, results[i-1].Score)
		}
	}
	assert.Equal(t, "pkg/file00.go", results[0].SourcePath)
	assert.Equal(t, 0, results[0].SequenceIndex, "best chunk of the file is kept")
}

func TestSearchWhileAnotherRepositoryIsReplaced(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	var recordsA []Record
	for i := 0; i < 20; i++ {
		recordsA = append(recordsA, record(repoA, fmt.Sprintf("a/file%02d.go", i), 0, i))
	}
	require.NoError(t, store.ReplaceAll(ctx, repoA, recordsA))

	var recordsB []Record
	for i := 0; i < 200; i++ {
		recordsB = append(recordsB, record(repoB, fmt.Sprintf("b/file%03d.go", i), 0, i))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			// IDs are reassigned on every generation.
			batch := make([]Record, len(recordsB))
			copy(batch, recordsB)
			if err := store.ReplaceAll(ctx, repoB, batch); err != nil {
				t.Errorf("replace repoB: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		results, err := store.Search(ctx, vec(0), repoA, 0)
		require.NoError(t, err)
		require.Len(t, results, DefaultTopK)
		assert.Equal(t, "a/file00.go", results[0].SourcePath)
	}
	close(stop)
	wg.Wait()
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	store, _ := newMemoryStore(t)

	_, err := store.Search(context.Background(), []float32{1}, repoA, 10)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Search(context.Background(), vec(0), "", 10)
	assert.ErrorIs(t, err, ErrMissingRepository)
}

func TestDedupBySource(t *testing.T) {
	in := []ScoredRecord{
		{Record: Record{SourcePath: "a"}, Score: 0.9},
		{Record: Record{SourcePath: "b"}, Score: 0.8},
		{Record: Record{SourcePath: "a"}, Score: 0.7},
		{Record: Record{SourcePath: "c"}, Score: 0.6},
	}

	out := DedupBySource(in, 10)
	assert.Equal(t, []string{"a", "b", "c"}, sources(out))
	assert.Equal(t, 0.9, out[0].Score)

	assert.Equal(t, []string{"a", "b"}, sources(DedupBySource(in, 2)))
	assert.Equal(t, []string{"a", "b", "c"}, sources(DedupBySource(in, 0)))
	assert.Empty(t, DedupBySource(nil, 10))
}

// recordingIndex is an Index that records calls and fails on demand.
type recordingIndex struct {
	deleted     []string
	inserts     []int
	queryLimit  int
	queryResult []ScoredRecord
	failDelete  error
	failInsert  error
	failHealth  error
}

func (r *recordingIndex) DeleteRepository(_ context.Context, repositoryURL string) error {
	r.deleted = append(r.deleted, repositoryURL)
	return r.failDelete
}

func (r *recordingIndex) Insert(_ context.Context, records []Record) error {
	if r.failInsert != nil {
		return r.failInsert
	}
	r.inserts = append(r.inserts, len(records))
	return nil
}

func (r *recordingIndex) Query(_ context.Context, _ []float32, _ string, limit int) ([]ScoredRecord, error) {
	r.queryLimit = limit
	return r.queryResult, nil
}

func (r *recordingIndex) Health(context.Context) error { return r.failHealth }
func (r *recordingIndex) Close() error                 { return nil }

func TestReplaceAllInsertsInBatches(t *testing.T) {
	idx := &recordingIndex{}
	store := NewStore(idx, Config{Dimension: testDim}, nil)

	records := make([]Record, 250)
	for i := range records {
		records[i] = record(repoA, "big.go", i, i)
	}
	require.NoError(t, store.ReplaceAll(context.Background(), repoA, records))

	assert.Equal(t, []string{repoA}, idx.deleted)
	assert.Equal(t, []int{100, 100, 50}, idx.inserts)
}

func TestReplaceAllStopsWhenDeleteFails(t *testing.T) {
	idx := &recordingIndex{failDelete: errors.New("connection reset")}
	store := NewStore(idx, Config{Dimension: testDim}, nil)

	err := store.ReplaceAll(context.Background(), repoA, []Record{record(repoA, "a.go", 0, 1)})
	require.Error(t, err)
	assert.Empty(t, idx.inserts)
}

func TestSearchUsesCandidatePool(t *testing.T) {
	idx := &recordingIndex{}
	store := NewStore(idx, Config{Dimension: testDim}, nil)

	_, err := store.Search(context.Background(), vec(0), repoA, 10)
	require.NoError(t, err)
	assert.Equal(t, 100, idx.queryLimit)

	store = NewStore(idx, Config{Dimension: testDim, CandidateMultiplier: 3, TopK: 5}, nil)
	_, err = store.Search(context.Background(), vec(0), repoA, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, idx.queryLimit)
}

func TestHealthWrapsBackendError(t *testing.T) {
	store := NewStore(&recordingIndex{failHealth: errors.New("dial tcp: refused")}, Config{}, nil)
	assert.ErrorIs(t, store.Health(context.Background()), ErrStoreUnreachable)

	store = NewStore(&recordingIndex{}, Config{}, nil)
	assert.NoError(t, store.Health(context.Background()))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), BackendConfig{Backend: "cassandra"}, testDim)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	idx, err := Open(context.Background(), BackendConfig{Backend: BackendMemory}, testDim)
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)
}
