package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/gitglean/internal/storage"
)

// clearEnv blanks the conventional variables so the host environment does
// not leak into the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GITHUB_TOKEN", "OPENAI_API_KEY", "TOGETHER_API_KEY", "PORT"} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.GitHub.Concurrency)
	assert.Equal(t, 256, cfg.Chunker.Size)
	assert.Equal(t, 32, cfg.Chunker.Overlap)
	assert.Equal(t, 25, cfg.Embedding.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Embedding.Stagger)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Storage.TopK)
	assert.Equal(t, LockLocal, cfg.Lock.Backend)
	assert.Contains(t, cfg.GitHub.Extensions, ".go")
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9000
embedding:
  api_key: from-file
  batch_size: 10
  stagger: 500ms
storage:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
lock:
  backend: redis
  redis:
    addr: redis.internal:6379
`)
	t.Setenv("GITGLEAN_EMBEDDING__BATCH_SIZE", "5")
	t.Setenv("GITGLEAN_STORAGE__QDRANT__API_KEY", "qdrant-key")
	t.Setenv("GITGLEAN_GITHUB__EXTENSIONS", ".go, .md")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "from-file", cfg.Embedding.APIKey)
	assert.Equal(t, 5, cfg.Embedding.BatchSize, "environment overrides the file")
	assert.Equal(t, 500*time.Millisecond, cfg.Embedding.Stagger)
	assert.Equal(t, storage.BackendQdrant, cfg.Storage.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Storage.Qdrant.Host)
	assert.Equal(t, "qdrant-key", cfg.Storage.Qdrant.APIKey)
	assert.Equal(t, storage.DefaultCollectionName, cfg.Storage.Qdrant.Collection, "unset keys keep defaults")
	assert.Equal(t, []string{".go", ".md"}, cfg.GitHub.Extensions)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Lock.Redis.Addr)
}

func TestLoadConventionalEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_abc")
	t.Setenv("TOGETHER_API_KEY", "together-key")
	t.Setenv("PORT", "3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", cfg.GitHub.Token)
	assert.Equal(t, "together-key", cfg.Embedding.APIKey)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)

	t.Setenv("GITGLEAN_EMBEDDING__API_KEY", "explicit")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Embedding.APIKey, "prefixed variables win")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "embedding.api_key")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with key", func(*Config) {}, ""},
		{"overlap not below size", func(c *Config) { c.Chunker.Overlap = c.Chunker.Size }, "chunker.overlap"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "pinecone" }, "storage.backend"},
		{"mongo without uri", func(c *Config) { c.Storage.Backend = storage.BackendMongo }, "storage.mongodb.uri"},
		{"unknown lock", func(c *Config) { c.Lock.Backend = "etcd" }, "lock.backend"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero concurrency", func(c *Config) { c.GitHub.Concurrency = 0 }, "github.concurrency"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Embedding.APIKey = "k"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "nope"
	cfg.Lock.Backend = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key")
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "lock.backend")
}

func TestConversions(t *testing.T) {
	cfg := Defaults()
	cfg.GitHub.Concurrency = 7
	cfg.Embedding.Dimension = 1024

	fc := cfg.FetcherConfig()
	assert.Equal(t, 7, fc.Concurrency)
	assert.Equal(t, cfg.GitHub.Extensions, fc.Rules.Extensions)

	sc := cfg.StoreConfig()
	assert.Equal(t, 1024, sc.Dimension)
	assert.Equal(t, 10, sc.TopK)

	assert.Equal(t, 1024, cfg.EmbedderConfig().Dimension)
	assert.Equal(t, storage.BackendMemory, cfg.BackendConfig().Backend)
}
