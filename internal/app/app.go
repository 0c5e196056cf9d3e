// Package app wires the gitglean components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/chunker"
	"github.com/bull/gitglean/internal/config"
	"github.com/bull/gitglean/internal/embedding"
	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/indexer"
	"github.com/bull/gitglean/internal/lock"
	mcpserver "github.com/bull/gitglean/internal/mcp"
	"github.com/bull/gitglean/internal/retriever"
	"github.com/bull/gitglean/internal/server"
	"github.com/bull/gitglean/internal/storage"
)

// App holds the long-lived components shared by the HTTP server and the CLI.
type App struct {
	Config    *config.Config
	Pipeline  *indexer.Pipeline
	Retriever *retriever.Retriever
	Store     *storage.Store

	redis  *redis.Client
	logger *zap.Logger
}

// New connects to the vector store (and Redis, when configured) and builds
// the ingestion and search components.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ghClient, err := github.NewClient(cfg.GitHub.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := github.NewFetcher(ghClient, cfg.FetcherConfig(), logger.Named("github"))

	embeddingClient, err := embedding.NewClient(cfg.EmbeddingClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.EmbedderConfig(), logger.Named("embedding"))

	splitter := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap,
		chunker.WithMarkdownSections(cfg.Chunker.MarkdownSections))

	index, err := storage.Open(ctx, cfg.BackendConfig(), cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	store := storage.NewStore(index, cfg.StoreConfig(), logger.Named("storage"))

	a := &App{
		Config: cfg,
		Store:  store,
		logger: logger,
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.Pipeline = indexer.NewPipeline(fetcher, splitter, embedder, store, locker, logger.Named("indexer"))
	a.Retriever = retriever.New(embedder, store, cfg.Storage.TopK, logger.Named("retriever"))

	logger.Info("components ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("lock", cfg.Lock.Backend),
		zap.String("embedding_model", embeddingClient.Model()),
		zap.Int("dimension", embedder.Dimension()),
	)
	return a, nil
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Lock.Backend != config.LockRedis {
		return lock.NewLocal(), nil
	}

	rc := a.Config.Lock.Redis
	a.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	locker := lock.NewRedis(a.redis, rc.TTL, rc.RetryDelay, a.logger.Named("lock"))
	if err := locker.Ping(ctx); err != nil {
		_ = a.redis.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", rc.Addr, err)
	}
	return locker, nil
}

// MCPServer builds the MCP tool server over the app's components.
func (a *App) MCPServer(version string) *mcpserver.Server {
	return mcpserver.NewServer(&mcpserver.Config{
		Ingester: a.Pipeline,
		Searcher: a.Retriever,
		Version:  version,
	})
}

// HTTPServer builds the HTTP API, with the MCP endpoint mounted at /mcp.
func (a *App) HTTPServer(version string) (*server.Server, error) {
	mcpHandler := mcpserver.NewHTTPHandler(a.MCPServer(version), &mcpserver.HTTPHandlerOptions{
		Stateless: a.Config.Server.MCPStateless,
	})
	return server.New(server.Config{
		Addr:     a.Config.Server.Addr,
		Ingester: a.Pipeline,
		Searcher: a.Retriever,
		Health:   a.Store,
		MCP:      mcpHandler,
	}, a.logger.Named("http"))
}

// Serve runs the HTTP API until ctx is cancelled, then shuts it down within
// the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, version string) error {
	srv, err := a.HTTPServer(version)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Close releases the store and Redis connections.
func (a *App) Close() error {
	var errs []error
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
