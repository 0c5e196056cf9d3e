package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "gitglean:lock:"

// Redis defaults.
const (
	DefaultTTL        = 10 * time.Minute
	DefaultRetryDelay = 250 * time.Millisecond
)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	TTL        time.Duration `koanf:"ttl"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// Redis implements Locker with Redis SETNX and a TTL, so that several server
// instances sharing one vector store also share ingestion locks. The TTL is
// extended in the background while the lock is held; a crashed holder's lock
// expires on its own.
type Redis struct {
	client     *redis.Client
	ownerID    string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client *redis.Client, ttl, retryDelay time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:     client,
		ownerID:    generateOwnerID(),
		ttl:        ttl,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// generateOwnerID creates a unique identifier for this lock holder.
// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), randomHex())
}

func randomHex() string {
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return hex.EncodeToString(randomBytes)
}

// OwnerID returns the unique identifier for this locker instance.
func (l *Redis) OwnerID() string {
	return l.ownerID
}

// Lock polls SETNX until the lock is acquired or ctx is done.
func (l *Redis) Lock(ctx context.Context, name string) (func(), error) {
	key := keyPrefix + name
	// Each acquisition gets its own token so a release can never drop a lock
	// that expired and was re-acquired in the meantime.
	token := l.ownerID + ":" + randomHex()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.release(releaseCtx, key, token); err != nil {
				l.logger.Warn("failed to release lock", zap.String("lock", name), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive extends the TTL every third of its length until stop is closed.
func (l *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := l.extend(ctx, key, token)
			cancel()
			if err != nil {
				l.logger.Warn("failed to extend lock", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

// releaseScript is a Lua script for safe lock release.
// It only deletes the lock if the current owner matches, preventing
// accidental release of locks held by other instances.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *Redis) release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// extendScript is a Lua script for safe lock TTL extension.
// It only extends the TTL if the current owner matches.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *Redis) extend(ctx context.Context, key, token string) error {
	result, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", key, err)
	}
	if result == 0 {
		return fmt.Errorf("lock %s no longer held", key)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Redis) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
