package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// MemoryConfig configures the chromem-go backend. With an empty Path the
// index lives only in process memory.
type MemoryConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// MemoryIndex is an in-process Index backed by chromem-go, for local use and tests.
type MemoryIndex struct {
	db         *chromem.DB
	collection *chromem.Collection

	// mu keeps the document count stable between sizing a query and
	// running it.
	mu sync.RWMutex
}

// precomputedOnly rejects any attempt by chromem to embed text on its own;
// every record arrives with its vector.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("memory index only accepts precomputed embeddings")
}

// NewMemoryIndex opens (or creates) the chromem collection.
func NewMemoryIndex(cfg MemoryConfig) (*MemoryIndex, error) {
	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if name == "" {
		name = DefaultCollectionName
	}
	collection, err := db.GetOrCreateCollection(name, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return &MemoryIndex{db: db, collection: collection}, nil
}

// DeleteRepository removes every document of the repository.
func (m *MemoryIndex) DeleteRepository(ctx context.Context, repositoryURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collection.Delete(ctx, map[string]string{fieldRepository: repositoryURL}, nil)
}

// Insert adds records to the collection.
func (m *MemoryIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.PageContent,
			Embedding: r.Vector,
			Metadata: map[string]string{
				fieldRepository:    r.RepositoryURL,
				fieldSource:        r.SourcePath,
				fieldSequenceIndex: strconv.Itoa(r.SequenceIndex),
				fieldHeaderPath:    r.HeaderPath,
			},
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collection.AddDocuments(ctx, docs, 1)
}

// Query returns the nearest documents of the repository by cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, repositoryURL string, limit int) ([]ScoredRecord, error) {
	if limit <= 0 {
		return []ScoredRecord{}, nil
	}

	m.mu.RLock()
	// chromem requires nResults <= doc count
	count := m.collection.Count()
	if count == 0 {
		m.mu.RUnlock()
		return []ScoredRecord{}, nil
	}
	if limit > count {
		limit = count
	}
	results, err := m.collection.QueryEmbedding(ctx, vector, limit, map[string]string{fieldRepository: repositoryURL}, nil)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query chromem collection: %w", err)
	}

	out := make([]ScoredRecord, 0, len(results))
	for _, r := range results {
		seq, _ := strconv.Atoi(r.Metadata[fieldSequenceIndex])
		out = append(out, ScoredRecord{
			Record: Record{
				ID:            r.ID,
				RepositoryURL: r.Metadata[fieldRepository],
				SourcePath:    r.Metadata[fieldSource],
				PageContent:   r.Content,
				SequenceIndex: seq,
				HeaderPath:    r.Metadata[fieldHeaderPath],
			},
			Score: float64(r.Similarity),
		})
	}
	return out, nil
}

// Health always succeeds for the in-process index.
func (m *MemoryIndex) Health(context.Context) error {
	return nil
}

// Count returns the number of stored records across all repositories.
func (m *MemoryIndex) Count() int {
	return m.collection.Count()
}

// Close is a no-op; persistent databases write through on every change.
func (m *MemoryIndex) Close() error {
	return nil
}
