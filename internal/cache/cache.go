package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yishak-cs/storefront-recs/internal/logger"
)

// IDCache stores short-lived ranked product id lists
type IDCache interface {
	// GetIDs returns the cached list and whether it was present
	GetIDs(ctx context.Context, key string) ([]uint, bool, error)
	SetIDs(ctx context.Context, key string, ids []uint) error
}

// Config holds the Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisCache is an IDCache backed by Redis string keys with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg Config, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Connected to Redis", "addr", cfg.Addr)
	return newRedisCache(client, cfg), nil
}

func newRedisCache(client *redis.Client, cfg Config) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "recs:"
	}
	return &RedisCache{client: client, ttl: cfg.TTL, prefix: prefix}
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetIDs reads a cached id list. The bool is false on a miss.
func (c *RedisCache) GetIDs(ctx context.Context, key string) ([]uint, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	ids, err := DecodeIDs(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return ids, true, nil
}

// SetIDs stores an id list under key with the configured TTL
func (c *RedisCache) SetIDs(ctx context.Context, key string, ids []uint) error {
	if err := c.client.Set(ctx, c.prefix+key, EncodeIDs(ids), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Noop never stores anything. It stands in when Redis is not configured.
type Noop struct{}

// GetIDs always misses
func (Noop) GetIDs(context.Context, string) ([]uint, bool, error) { return nil, false, nil }

// SetIDs discards the list
func (Noop) SetIDs(context.Context, string, []uint) error { return nil }

// EncodeIDs renders ids as a comma separated list
func EncodeIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// DecodeIDs parses a list written by EncodeIDs
func DecodeIDs(raw string) ([]uint, error) {
	if raw == "" {
		return []uint{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids[i] = uint(v)
	}
	return ids, nil
}
