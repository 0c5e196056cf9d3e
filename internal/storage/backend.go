package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
	BackendMongo  = "mongodb"
)

// BackendConfig selects and configures the vector store backend.
type BackendConfig struct {
	Backend string       `koanf:"backend"`
	Qdrant  QdrantConfig `koanf:"qdrant"`
	Mongo   MongoConfig  `koanf:"mongodb"`
	Memory  MemoryConfig `koanf:"memory"`
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg BackendConfig, dimension int) (Index, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryIndex(cfg.Memory)
	case BackendQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, dimension)
	case BackendMongo:
		return NewMongoIndex(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
