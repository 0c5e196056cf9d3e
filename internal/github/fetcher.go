package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bull/gitglean/internal/filter"
	"github.com/bull/gitglean/internal/metrics"
)

// rawMediaType makes the contents API return the file body instead of JSON.
const rawMediaType = "application/vnd.github.raw"

// Fetcher defaults.
const (
	DefaultConcurrency    = 50
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
)

// Document is the raw content of one repository file.
type Document struct {
	SourcePath    string
	RepositoryURL string
	Content       string
}

// FetchResult is everything pulled from GitHub for one ingestion.
type FetchResult struct {
	Repository  Repository
	TreeEntries int // entries in the tree before filtering
	Documents   []Document
}

// FetcherConfig tunes the fetcher. Zero values fall back to the defaults.
type FetcherConfig struct {
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	Rules          filter.Rules
}

// Fetcher downloads the eligible files of a repository's default branch.
type Fetcher struct {
	client *Client
	config FetcherConfig
	logger *zap.Logger
}

// NewFetcher creates a fetcher. A zero Rules value is replaced by filter.DefaultRules.
func NewFetcher(client *Client, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if len(cfg.Rules.Extensions) == 0 {
		cfg.Rules = filter.DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, config: cfg, logger: logger}
}

// Fetch resolves the repository, lists its default branch tree, filters it and
// downloads every surviving file. The first failed download aborts the whole
// fetch; no partial result is returned. Document order is unspecified.
func (f *Fetcher) Fetch(ctx context.Context, repositoryURL string, creds Credentials) (*FetchResult, error) {
	start := time.Now()

	repo, err := ParseRepositoryURL(repositoryURL)
	if err != nil {
		return nil, err
	}

	gh, err := f.client.For(creds)
	if err != nil {
		return nil, fmt.Errorf("configure github client: %w", err)
	}

	repo.DefaultBranch, err = f.defaultBranch(ctx, gh, repo)
	if err != nil {
		return nil, err
	}

	entries, err := f.tree(ctx, gh, repo)
	if err != nil {
		return nil, err
	}

	eligible := f.config.Rules.Apply(entries)
	f.logger.Info("filtered repository tree",
		zap.String("repository", repo.FullName()),
		zap.Int("entries", len(entries)),
		zap.Int("eligible", len(eligible)),
	)

	docs, err := f.fetchBlobs(ctx, gh, repo, eligible)
	if err != nil {
		return nil, err
	}

	f.logger.Info("fetched repository",
		zap.String("repository", repo.FullName()),
		zap.String("branch", repo.DefaultBranch),
		zap.Int("files", len(docs)),
		zap.Duration("duration", time.Since(start)),
	)

	return &FetchResult{
		Repository:  repo,
		TreeEntries: len(entries),
		Documents:   docs,
	}, nil
}

// defaultBranch looks up the repository's default branch.
func (f *Fetcher) defaultBranch(ctx context.Context, gh *github.Client, repo Repository) (string, error) {
	info, resp, err := gh.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		if status := statusCode(resp); status != 0 {
			return "", fmt.Errorf("%w: %s (status %d): %v", ErrRepositoryNotFound, repo.FullName(), status, err)
		}
		return "", fmt.Errorf("get repository %s: %w", repo.FullName(), err)
	}

	branch := info.GetDefaultBranch()
	if branch == "" {
		return "", fmt.Errorf("%w: %s reports no default branch", ErrRepositoryNotFound, repo.FullName())
	}
	return branch, nil
}

// tree lists every entry of the default branch recursively.
func (f *Fetcher) tree(ctx context.Context, gh *github.Client, repo Repository) ([]filter.TreeEntry, error) {
	tree, resp, err := gh.Git.GetTree(ctx, repo.Owner, repo.Name, repo.DefaultBranch, true)
	if err != nil {
		if status := statusCode(resp); status != 0 {
			return nil, fmt.Errorf("%w: %s@%s (status %d): %v", ErrTreeFetchFailed, repo.FullName(), repo.DefaultBranch, status, err)
		}
		return nil, fmt.Errorf("%w: %s@%s: %v", ErrTreeFetchFailed, repo.FullName(), repo.DefaultBranch, err)
	}

	if tree.GetTruncated() {
		f.logger.Warn("repository tree truncated by GitHub, some files will be missing",
			zap.String("repository", repo.FullName()),
			zap.Int("entries", len(tree.Entries)),
		)
	}

	entries := make([]filter.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entry := filter.TreeEntry{
			Path: e.GetPath(),
			Kind: e.GetType(),
			SHA:  e.GetSHA(),
		}
		if e.Size != nil {
			size := int64(*e.Size)
			entry.Size = &size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// fetchBlobs downloads entries with at most Concurrency requests in flight.
func (f *Fetcher) fetchBlobs(ctx context.Context, gh *github.Client, repo Repository, entries []filter.TreeEntry) ([]Document, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.Concurrency)

	var mu sync.Mutex
	docs := make([]Document, 0, len(entries))

	for _, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			content, err := f.fetchBlobWithRetry(gctx, gh, repo, entry.Path)
			if err != nil {
				return err
			}
			mu.Lock()
			docs = append(docs, Document{
				SourcePath:    entry.Path,
				RepositoryURL: repo.URL,
				Content:       content,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// fetchBlobWithRetry retries transient failures (transport errors, 5xx, 429)
// with exponential backoff. Any other status fails immediately.
func (f *Fetcher) fetchBlobWithRetry(ctx context.Context, gh *github.Client, repo Repository, path string) (string, error) {
	var content string
	var lastStatus int

	operation := func() error {
		body, status, err := f.fetchBlob(ctx, gh, repo, path)
		lastStatus = status
		if err == nil {
			content = body
			metrics.BlobFetchesTotal.WithLabelValues("success").Inc()
			return nil
		}
		if ctx.Err() != nil || !isTransient(status) {
			return backoff.Permanent(err)
		}
		metrics.BlobFetchesTotal.WithLabelValues("retry").Inc()
		f.logger.Debug("retrying blob fetch",
			zap.String("path", path),
			zap.Int("status", status),
			zap.Error(err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.config.InitialBackoff
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by attempt count instead

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.config.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		metrics.BlobFetchesTotal.WithLabelValues("error").Inc()
		return "", &BlobFetchError{Path: path, StatusCode: lastStatus, Err: err}
	}
	return content, nil
}

// fetchBlob performs a single raw contents request.
func (f *Fetcher) fetchBlob(ctx context.Context, gh *github.Client, repo Repository, path string) (string, int, error) {
	metrics.BlobFetchesInFlight.Inc()
	defer metrics.BlobFetchesInFlight.Dec()

	u := fmt.Sprintf("repos/%s/%s/contents/%s", url.PathEscape(repo.Owner), url.PathEscape(repo.Name), escapePath(path))
	req, err := gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Accept", rawMediaType)

	var buf bytes.Buffer
	resp, err := gh.Do(ctx, req, &buf)
	if err != nil {
		return "", statusCode(resp), err
	}
	return buf.String(), resp.StatusCode, nil
}

// isTransient reports whether a failed request is worth retrying.
// Status 0 means the request failed before a response arrived.
func isTransient(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// escapePath escapes each segment of a repository path, keeping the slashes.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// IsPermanent reports whether err is a fetch failure that retrying the whole
// ingestion will not fix (bad URL, missing repository, 4xx on a blob).
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidRepositoryURL) || errors.Is(err, ErrRepositoryNotFound) {
		return true
	}
	var blobErr *BlobFetchError
	if errors.As(err, &blobErr) {
		return blobErr.StatusCode != 0 && !isTransient(blobErr.StatusCode)
	}
	return false
}
