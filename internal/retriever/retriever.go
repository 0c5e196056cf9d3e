// Package retriever answers natural-language questions about an ingested
// repository with the most relevant file excerpts.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/metrics"
	"github.com/bull/gitglean/internal/storage"
	"github.com/bull/gitglean/internal/telemetry"
)

// ErrInvalidQuery is returned when the query text or repository is missing.
var ErrInvalidQuery = errors.New("invalid search query")

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Searcher finds the best record per file of one repository.
type Searcher interface {
	Search(ctx context.Context, vector []float32, repositoryURL string, topK int) ([]storage.ScoredRecord, error)
}

// Result is one matching file: its best chunk and that chunk's score.
type Result struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	PageContent string  `json:"pageContent"`
	Score       float64 `json:"score"`
}

// Retriever embeds queries and looks them up in the store.
type Retriever struct {
	embedder QueryEmbedder
	searcher Searcher
	topK     int
	logger   *zap.Logger
}

// New creates a Retriever returning at most topK files per query.
// A non-positive topK uses storage.DefaultTopK.
func New(embedder QueryEmbedder, searcher Searcher, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = storage.DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK, logger: logger}
}

// Search returns up to topK files of the repository ordered by relevance,
// one result per file. A repository that was never ingested yields no results.
func (r *Retriever) Search(ctx context.Context, query, repositoryURL string) (results []Result, err error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	repositoryURL = strings.TrimSpace(repositoryURL)

	ctx, span := telemetry.StartSpan(ctx, "retriever.Search", attribute.String("repository", repositoryURL))
	defer func() {
		telemetry.End(span, err)
		metrics.SearchesTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if query == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	if repositoryURL == "" {
		return nil, fmt.Errorf("%w: repository url is required", ErrInvalidQuery)
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.searcher.Search(ctx, vector, repositoryURL, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results = make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			ID:          hit.ID,
			Source:      hit.SourcePath,
			PageContent: hit.PageContent,
			Score:       hit.Score,
		}
	}

	r.logger.Debug("search complete",
		zap.String("repository", repositoryURL),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}
