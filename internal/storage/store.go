package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/metrics"
	"github.com/bull/gitglean/internal/telemetry"
)

// Store defaults.
const (
	DefaultTopK                = 10
	DefaultCandidateMultiplier = 10
	DefaultInsertBatchSize     = 100
)

// Index is a vector store backend. Query returns records of one repository
// ordered by score, highest first.
type Index interface {
	DeleteRepository(ctx context.Context, repositoryURL string) error
	Insert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, repositoryURL string, limit int) ([]ScoredRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Config tunes a Store. Zero values fall back to the defaults.
type Config struct {
	Dimension           int
	TopK                int
	CandidateMultiplier int
	InsertBatchSize     int
}

// Store keeps exactly one generation of records per repository on top of an
// Index backend, and turns raw nearest-neighbour hits into one result per file.
type Store struct {
	index  Index
	config Config
	logger *zap.Logger
}

// NewStore wraps index. cfg.Dimension is required; records and query vectors
// of any other length are rejected.
func NewStore(index Index, cfg Config, logger *zap.Logger) *Store {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.InsertBatchSize <= 0 {
		cfg.InsertBatchSize = DefaultInsertBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{index: index, config: cfg, logger: logger}
}

// ReplaceAll deletes every record of repositoryURL and inserts records in its
// place. An empty records slice just clears the repository.
//
// The delete and the insert are separate calls: a search arriving in between
// sees no records for the repository.
func (s *Store) ReplaceAll(ctx context.Context, repositoryURL string, records []Record) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "storage.ReplaceAll",
		attribute.String("repository", repositoryURL),
		attribute.Int("records", len(records)),
	)
	defer func() { telemetry.End(span, err) }()

	if repositoryURL == "" {
		return ErrMissingRepository
	}
	for i := range records {
		if records[i].RepositoryURL != repositoryURL {
			return fmt.Errorf("%w: record %d has %q, want %q",
				ErrRepositoryMismatch, i, records[i].RepositoryURL, repositoryURL)
		}
		if err := s.checkDimension(records[i].Vector); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}

	start := time.Now()
	if err := s.index.DeleteRepository(ctx, repositoryURL); err != nil {
		return fmt.Errorf("delete previous records: %w", err)
	}

	for i := 0; i < len(records); i += s.config.InsertBatchSize {
		end := min(i+s.config.InsertBatchSize, len(records))
		if err := s.index.Insert(ctx, records[i:end]); err != nil {
			return fmt.Errorf("insert records %d-%d: %w", i, end, err)
		}
		metrics.ChunksStored.Add(float64(end - i))
	}

	s.logger.Info("replaced repository records",
		zap.String("repository", repositoryURL),
		zap.Int("records", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Search returns at most topK records of repositoryURL, one per source file,
// best first. A non-positive topK uses the configured default.
func (s *Store) Search(ctx context.Context, vector []float32, repositoryURL string, topK int) (results []ScoredRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "storage.Search",
		attribute.String("repository", repositoryURL),
	)
	defer func() { telemetry.End(span, err) }()

	if repositoryURL == "" {
		return nil, ErrMissingRepository
	}
	if err := s.checkDimension(vector); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	candidates, err := s.index.Query(ctx, vector, repositoryURL, topK*s.config.CandidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results = DedupBySource(candidates, topK)
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("results", len(results)),
	)
	return results, nil
}

// Health reports whether the backend is reachable.
func (s *Store) Health(ctx context.Context) error {
	if err := s.index.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.index.Close()
}

func (s *Store) checkDimension(vector []float32) error {
	if s.config.Dimension > 0 && len(vector) != s.config.Dimension {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.config.Dimension)
	}
	return nil
}

// DedupBySource keeps the first record seen for each source path, preserving
// order, and stops after limit records. A non-positive limit keeps them all.
func DedupBySource(records []ScoredRecord, limit int) []ScoredRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]ScoredRecord, 0, min(len(records), max(limit, 0)))
	for _, r := range records {
		if _, ok := seen[r.SourcePath]; ok {
			continue
		}
		seen[r.SourcePath] = struct{}{}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
