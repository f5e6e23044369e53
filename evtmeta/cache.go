package evtmeta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache stores raw helper output per provider name.
type Cache interface {
	Get(ctx context.Context, provider string) ([]byte, bool, error)
	Put(ctx context.Context, provider string, raw []byte) error
}

// FileCache keeps one <provider>.xml per provider in Dir, the layout the
// helper uses for its own metadata folder.
type FileCache struct {
	Dir string
}

func (c *FileCache) path(provider string) string {
	return filepath.Join(c.Dir, provider+".xml")
}

func (c *FileCache) Get(_ context.Context, provider string) ([]byte, bool, error) {
	b, err := os.ReadFile(c.path(provider))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *FileCache) Put(_ context.Context, provider string, raw []byte) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(provider), raw, 0o644)
}

// RedisConfig configures the Redis-backed cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL of cached entries, zero keeps them forever.
	TTL time.Duration
}

// RedisCache shares helper output between hosts dumping the same build.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates the cache. The connection is established lazily; use
// Ping to check it.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "etwmeta:evtmeta"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), ttl: cfg.TTL}
}

func (c *RedisCache) key(provider string) string {
	return c.prefix + ":" + provider
}

// Ping checks that the server answers.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis evtmeta cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, provider string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.key(provider)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Put(ctx context.Context, provider string, raw []byte) error {
	return c.client.Set(ctx, c.key(provider), raw, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
