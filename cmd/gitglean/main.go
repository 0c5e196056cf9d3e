// Package main provides the gitglean CLI for ingesting and searching repositories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/app"
	"github.com/bull/gitglean/internal/config"
	"github.com/bull/gitglean/internal/logging"
	"github.com/bull/gitglean/internal/storage"
	"github.com/bull/gitglean/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gitglean",
		Short: "Semantic search over GitHub repositories",
		Long: `gitglean ingests the source files of a GitHub repository into a vector
store and answers natural-language questions with the most relevant files.

Configuration is read from the YAML file given with --config and from
GITGLEAN_* environment variables (GITGLEAN_EMBEDDING__API_KEY, ...).
GITHUB_TOKEN and OPENAI_API_KEY / TOGETHER_API_KEY are honoured as well.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GITGLEAN_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(newIngestCmd(), newSearchCmd(), newServeCmd(), newMCPCmd())
	return rootCmd
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// environment is everything a subcommand needs, built from the flags.
type environment struct {
	app     *app.App
	logger  *zap.Logger
	cleanup func()
}

// setup loads configuration and wires the components. Log output goes to
// stderr so that command output on stdout stays machine readable.
func setup(ctx context.Context, logFormat string) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat == "" {
		logFormat = cfg.Log.Format
	}

	logger, err := logging.New(cfg.Log.Level, logFormat)
	if err != nil {
		return nil, err
	}

	if cacheDir, err := os.UserCacheDir(); err == nil && persistMemoryIndex(cfg, cacheDir) {
		logger.Debug("using persistent memory index", zap.String("path", cfg.Storage.Memory.Path))
	} else if isEphemeral(cfg) {
		logger.Warn("memory index is not persisted; ingested records are lost when the command exits",
			zap.String("hint", "set storage.memory.path or GITGLEAN_STORAGE__MEMORY__PATH"))
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	return &environment{
		app:    a,
		logger: logger,
		cleanup: func() {
			if err := a.Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
			_ = logger.Sync()
		},
	}, nil
}

func isEphemeral(cfg *config.Config) bool {
	return cfg.Storage.Backend == storage.BackendMemory && cfg.Storage.Memory.Path == ""
}

// persistMemoryIndex points an unpersisted memory backend at cacheDir so that
// one invocation can search what an earlier one ingested.
func persistMemoryIndex(cfg *config.Config, cacheDir string) bool {
	if !isEphemeral(cfg) || cacheDir == "" {
		return false
	}
	cfg.Storage.Memory.Path = filepath.Join(cacheDir, "gitglean", "index")
	return true
}
