// Package config provides configuration for the gitglean binaries.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/bull/gitglean/internal/chunker"
	"github.com/bull/gitglean/internal/embedding"
	"github.com/bull/gitglean/internal/filter"
	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/lock"
	"github.com/bull/gitglean/internal/storage"
	"github.com/bull/gitglean/internal/telemetry"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the complete gitglean configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	GitHub    GitHubConfig     `koanf:"github"`
	Embedding EmbeddingConfig  `koanf:"embedding"`
	Chunker   ChunkerConfig    `koanf:"chunker"`
	Storage   StorageConfig    `koanf:"storage"`
	Lock      LockConfig       `koanf:"lock"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Log       LogConfig        `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MCPStateless disables MCP session tracking on /mcp.
	MCPStateless bool `koanf:"mcp_stateless"`
}

// GitHubConfig holds the repository fetcher settings. Token is the default
// credential used when a request brings none of its own.
type GitHubConfig struct {
	Token          string        `koanf:"token"`
	Concurrency    int           `koanf:"concurrency"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	Extensions     []string      `koanf:"extensions"`
	IgnoredDirs    []string      `koanf:"ignored_dirs"`
	MaxFileSize    int64         `koanf:"max_file_size"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	Model           string        `koanf:"model"`
	Dimension       int           `koanf:"dimension"`
	BatchSize       int           `koanf:"batch_size"`
	Stagger         time.Duration `koanf:"stagger"`
	MaxRetryElapsed time.Duration `koanf:"max_retry_elapsed"`
}

// ChunkerConfig holds the text splitting settings.
type ChunkerConfig struct {
	Size             int  `koanf:"size"`
	Overlap          int  `koanf:"overlap"`
	MarkdownSections bool `koanf:"markdown_sections"`
}

// StorageConfig selects the vector store and tunes search.
type StorageConfig struct {
	Backend             string               `koanf:"backend"`
	Qdrant              storage.QdrantConfig `koanf:"qdrant"`
	Mongo               storage.MongoConfig  `koanf:"mongodb"`
	Memory              storage.MemoryConfig `koanf:"memory"`
	TopK                int                  `koanf:"top_k"`
	CandidateMultiplier int                  `koanf:"candidate_multiplier"`
	InsertBatchSize     int                  `koanf:"insert_batch_size"`
}

// LockConfig selects how concurrent ingestions of one repository are serialized.
type LockConfig struct {
	Backend string           `koanf:"backend"`
	Redis   lock.RedisConfig `koanf:"redis"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	rules := filter.DefaultRules()
	return Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		GitHub: GitHubConfig{
			Concurrency:    github.DefaultConcurrency,
			MaxAttempts:    github.DefaultMaxAttempts,
			InitialBackoff: github.DefaultInitialBackoff,
			Extensions:     rules.Extensions,
			IgnoredDirs:    rules.IgnoredDirs,
			MaxFileSize:    rules.MaxFileSize,
		},
		Embedding: EmbeddingConfig{
			BaseURL:         embedding.DefaultBaseURL,
			Model:           embedding.DefaultModel,
			Dimension:       embedding.DefaultDimension,
			BatchSize:       embedding.DefaultBatchSize,
			Stagger:         embedding.DefaultStagger,
			MaxRetryElapsed: embedding.DefaultMaxRetryElapsed,
		},
		Chunker: ChunkerConfig{
			Size:             chunker.DefaultChunkSize,
			Overlap:          chunker.DefaultChunkOverlap,
			MarkdownSections: true,
		},
		Storage: StorageConfig{
			Backend: storage.BackendMemory,
			Qdrant: storage.QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: storage.DefaultCollectionName,
			},
			Mongo: storage.MongoConfig{
				Database:    storage.DefaultMongoDatabase,
				Collection:  storage.DefaultCollectionName,
				SearchIndex: storage.DefaultMongoSearchIndex,
			},
			TopK:                storage.DefaultTopK,
			CandidateMultiplier: storage.DefaultCandidateMultiplier,
			InsertBatchSize:     storage.DefaultInsertBatchSize,
		},
		Lock: LockConfig{
			Backend: LockLocal,
			Redis: lock.RedisConfig{
				Addr:       "localhost:6379",
				TTL:        lock.DefaultTTL,
				RetryDelay: lock.DefaultRetryDelay,
			},
		},
		Telemetry: telemetry.Config{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "gitglean",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.GitHub.Concurrency <= 0 {
		add("github.concurrency must be positive, got %d", c.GitHub.Concurrency)
	}
	if c.GitHub.MaxAttempts <= 0 {
		add("github.max_attempts must be positive, got %d", c.GitHub.MaxAttempts)
	}
	if len(c.GitHub.Extensions) == 0 {
		add("github.extensions must not be empty")
	}
	if c.Embedding.APIKey == "" {
		add("embedding.api_key is required (or set OPENAI_API_KEY / TOGETHER_API_KEY)")
	}
	if c.Embedding.Dimension <= 0 {
		add("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		add("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Chunker.Size <= 0 {
		add("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		add("chunker.overlap must be in [0, size), got %d", c.Chunker.Overlap)
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendQdrant:
		if c.Storage.Qdrant.Host == "" {
			add("storage.qdrant.host is required")
		}
	case storage.BackendMongo:
		if c.Storage.Mongo.URI == "" {
			add("storage.mongodb.uri is required")
		}
	default:
		add("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.TopK <= 0 {
		add("storage.top_k must be positive, got %d", c.Storage.TopK)
	}

	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if c.Lock.Redis.Addr == "" {
			add("lock.redis.addr is required")
		}
	default:
		add("unknown lock.backend %q", c.Lock.Backend)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate must be in [0, 1], got %v", c.Telemetry.SampleRate)
	}

	return errors.Join(errs...)
}

// FetcherConfig converts the GitHub section for github.NewFetcher.
func (c *Config) FetcherConfig() github.FetcherConfig {
	return github.FetcherConfig{
		Concurrency:    c.GitHub.Concurrency,
		MaxAttempts:    c.GitHub.MaxAttempts,
		InitialBackoff: c.GitHub.InitialBackoff,
		Rules: filter.Rules{
			Extensions:  c.GitHub.Extensions,
			IgnoredDirs: c.GitHub.IgnoredDirs,
			MaxFileSize: c.GitHub.MaxFileSize,
		},
	}
}

// EmbeddingClientConfig converts the embedding section for embedding.NewClient.
func (c *Config) EmbeddingClientConfig() embedding.ClientConfig {
	return embedding.ClientConfig{
		BaseURL: c.Embedding.BaseURL,
		APIKey:  c.Embedding.APIKey,
		Model:   c.Embedding.Model,
	}
}

// EmbedderConfig converts the embedding section for embedding.NewEmbedder.
func (c *Config) EmbedderConfig() embedding.Config {
	return embedding.Config{
		Dimension:       c.Embedding.Dimension,
		BatchSize:       c.Embedding.BatchSize,
		Stagger:         c.Embedding.Stagger,
		MaxRetryElapsed: c.Embedding.MaxRetryElapsed,
	}
}

// BackendConfig converts the storage section for storage.Open.
func (c *Config) BackendConfig() storage.BackendConfig {
	return storage.BackendConfig{
		Backend: c.Storage.Backend,
		Qdrant:  c.Storage.Qdrant,
		Mongo:   c.Storage.Mongo,
		Memory:  c.Storage.Memory,
	}
}

// StoreConfig converts the storage section for storage.NewStore.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Dimension:           c.Embedding.Dimension,
		TopK:                c.Storage.TopK,
		CandidateMultiplier: c.Storage.CandidateMultiplier,
		InsertBatchSize:     c.Storage.InsertBatchSize,
	}
}
