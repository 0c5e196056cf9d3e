package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bull/gitglean/internal/metrics"
)

const (
	// DefaultBatchSize is the number of texts sent per embeddings request.
	DefaultBatchSize = 25

	// DefaultStagger is the window over which batch dispatch is spread.
	DefaultStagger = 2 * time.Second

	// DefaultMaxRetryElapsed bounds the time spent retrying a rate limited batch.
	DefaultMaxRetryElapsed = 30 * time.Second
)

// Config tunes the embedder. Zero values fall back to the defaults.
type Config struct {
	Dimension       int
	BatchSize       int
	Stagger         time.Duration
	InitialBackoff  time.Duration
	MaxRetryElapsed time.Duration
}

// Embedder generates embeddings for text. Every batch of one call is sent
// concurrently, with start times spread evenly over the stagger window, and
// rate limit errors are retried with exponential backoff.
type Embedder struct {
	client *Client
	config Config
	logger *zap.Logger
}

// NewEmbedder creates a new Embedder over client.
func NewEmbedder(client *Client, cfg Config, logger *zap.Logger) *Embedder {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Stagger < 0 {
		cfg.Stagger = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = DefaultMaxRetryElapsed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{client: client, config: cfg, logger: logger}
}

// Dimension returns the length of every vector this embedder produces.
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

// Embed returns one vector per text, in input order. If any batch fails the
// whole call fails with a *BatchError and no vectors are returned.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var batches [][]string
	for i := 0; i < len(texts); i += e.config.BatchSize {
		end := min(i+e.config.BatchSize, len(texts))
		batches = append(batches, texts[i:end])
	}

	e.logger.Info("generating embeddings",
		zap.Int("texts", len(texts)),
		zap.Int("batches", len(batches)),
	)
	start := time.Now()

	// Batch i is dispatched about i*Stagger/len(batches) after the first.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if len(batches) > 1 && e.config.Stagger > 0 {
		limiter = rate.NewLimiter(rate.Every(e.config.Stagger/time.Duration(len(batches))), 1)
	}

	results := make([][][]float32, len(batches))
	g, gctx := errgroup.WithContext(ctx)

	var dispatchErr error
	for i, batch := range batches {
		if err := limiter.Wait(gctx); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			vectors, err := e.embedBatchWithRetry(gctx, batch)
			if err != nil {
				return &BatchError{BatchIndex: i, Err: err}
			}
			results[i] = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("embedding failed", zap.Error(err))
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	out := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		out = append(out, vectors...)
	}

	e.logger.Info("generated embeddings",
		zap.Int("vectors", len(out)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		batchStart := time.Now()
		vectors, err := e.embedBatch(ctx, texts)
		metrics.EmbeddingBatchDuration.Observe(time.Since(batchStart).Seconds())
		if err != nil {
			if isRateLimitError(err) {
				e.logger.Warn("embedding rate limited, backing off", zap.Int("texts", len(texts)))
				return err
			}
			metrics.EmbeddingBatchesTotal.WithLabelValues("error").Inc()
			return backoff.Permanent(err)
		}
		metrics.EmbeddingBatchesTotal.WithLabelValues("success").Inc()
		embeddings = vectors
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.InitialBackoff
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.config.MaxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// embedBatch sends one request and puts the vectors back in input order
// using the index the API reports for each of them.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(e.client.model),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnexpectedResponse, len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) || embeddings[idx] != nil {
			return nil, fmt.Errorf("%w: invalid or duplicate index %d", ErrUnexpectedResponse, data.Index)
		}
		if len(data.Embedding) != e.config.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
				ErrUnexpectedResponse, idx, len(data.Embedding), e.config.Dimension)
		}
		embeddings[idx] = toFloat32(data.Embedding)
	}
	return embeddings, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
