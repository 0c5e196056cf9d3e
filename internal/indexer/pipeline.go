// Package indexer runs the ingestion pipeline: fetch a repository, chunk its
// files, embed the chunks and replace the repository's records in the store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/chunker"
	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/lock"
	"github.com/bull/gitglean/internal/metrics"
	"github.com/bull/gitglean/internal/storage"
	"github.com/bull/gitglean/internal/telemetry"
)

// ErrInvalidRequest is returned for requests without a repository URL.
var ErrInvalidRequest = errors.New("invalid ingestion request")

// Fetcher downloads the eligible files of a repository.
type Fetcher interface {
	Fetch(ctx context.Context, repositoryURL string, creds github.Credentials) (*github.FetchResult, error)
}

// Splitter cuts documents into chunks.
type Splitter interface {
	Split(docs []github.Document) ([]chunker.Chunk, error)
}

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Writer replaces every record of a repository.
type Writer interface {
	ReplaceAll(ctx context.Context, repositoryURL string, records []storage.Record) error
}

// Request asks for one repository to be (re)ingested.
type Request struct {
	RepositoryURL string
	Credentials   github.Credentials
}

// Result contains statistics about a completed ingestion.
type Result struct {
	Repository    string        `json:"repository"`
	RepositoryURL string        `json:"repositoryUrl"`
	DefaultBranch string        `json:"defaultBranch"`
	Files         int           `json:"files"`
	Chunks        int           `json:"chunks"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"durationMs"`
}

// Pipeline orchestrates the full ingestion process from fetching to storage.
type Pipeline struct {
	fetcher  Fetcher
	splitter Splitter
	embedder Embedder
	writer   Writer
	locker   lock.Locker
	logger   *zap.Logger
}

// NewPipeline creates a new ingestion pipeline with the given components.
// A nil locker serializes ingestions within this process only.
func NewPipeline(
	fetcher Fetcher,
	splitter Splitter,
	embedder Embedder,
	writer Writer,
	locker lock.Locker,
	logger *zap.Logger,
) *Pipeline {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:  fetcher,
		splitter: splitter,
		embedder: embedder,
		writer:   writer,
		locker:   locker,
		logger:   logger,
	}
}

// Ingest fetches, chunks and embeds the repository, then replaces its records
// in the store. The store is only written once every vector is computed; any
// earlier failure leaves the previous records untouched. Concurrent ingestions
// of the same repository run one after the other.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	repositoryURL := strings.TrimSpace(req.RepositoryURL)

	ctx, span := telemetry.StartSpan(ctx, "indexer.Ingest", attribute.String("repository", repositoryURL))
	defer func() {
		telemetry.End(span, err)
		metrics.IngestionsTotal.WithLabelValues(metrics.Result(err)).Inc()
		metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	}()

	if repositoryURL == "" {
		return nil, fmt.Errorf("%w: repository url is required", ErrInvalidRequest)
	}

	release, err := p.locker.Lock(ctx, repositoryURL)
	if err != nil {
		return nil, fmt.Errorf("lock repository: %w", err)
	}
	defer release()

	p.logger.Info("starting ingestion", zap.String("repository", repositoryURL))

	fetched, err := p.fetcher.Fetch(ctx, repositoryURL, req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	chunks, err := p.splitter.Split(fetched.Documents)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	p.logger.Info("chunked repository",
		zap.String("repository", repositoryURL),
		zap.Int("files", len(fetched.Documents)),
		zap.Int("chunks", len(chunks)),
	)

	vectors, err := p.embedder.Embed(ctx, chunker.EmbeddingTexts(chunks))
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]storage.Record, len(chunks))
	for i, c := range chunks {
		records[i] = storage.Record{
			RepositoryURL: repositoryURL,
			SourcePath:    c.SourcePath,
			PageContent:   c.PageContent,
			SequenceIndex: c.SequenceIndex,
			HeaderPath:    c.HeaderPath,
			Vector:        vectors[i],
		}
	}

	if err := p.writer.ReplaceAll(ctx, repositoryURL, records); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	result = &Result{
		Repository:    fetched.Repository.FullName(),
		RepositoryURL: repositoryURL,
		DefaultBranch: fetched.Repository.DefaultBranch,
		Files:         len(fetched.Documents),
		Chunks:        len(chunks),
		Duration:      time.Since(start),
	}
	result.DurationMS = result.Duration.Milliseconds()

	span.SetAttributes(
		attribute.Int("files", result.Files),
		attribute.Int("chunks", result.Chunks),
	)
	p.logger.Info("ingestion complete",
		zap.String("repository", repositoryURL),
		zap.String("branch", result.DefaultBranch),
		zap.Int("files", result.Files),
		zap.Int("chunks", result.Chunks),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
