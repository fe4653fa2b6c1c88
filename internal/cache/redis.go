package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/underpines/pines/pkg/config"
	"github.com/underpines/pines/pkg/logging"
)

const keyPrefix = "pines:"

// UnreadTTL bounds how stale a cached unread count may be
const UnreadTTL = 30 * time.Second

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
	// ErrMiss is returned when a key is absent
	ErrMiss = errors.New("cache miss")
)

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
}

// New creates a new Redis cache client. It returns a nil *Cache when Redis is disabled;
// every method treats a nil receiver as disabled.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// HashKey derives a fixed-length key from arbitrary parts
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	return keyPrefix + key
}

func (c *Cache) disabled() bool {
	return c == nil || c.client == nil
}

// Get retrieves a value from cache
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c.disabled() {
		return "", ErrCacheDisabled
	}
	val, err := c.client.Get(ctx, c.namespaceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set sets a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.disabled() {
		return ErrCacheDisabled
	}
	return c.client.Set(ctx, c.namespaceKey(key), value, ttl).Err()
}

// Delete removes a key from cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.disabled() {
		return ErrCacheDisabled
	}
	return c.client.Del(ctx, c.namespaceKey(key)).Err()
}

// GetJSON decodes a cached JSON value into dest
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON stores value as JSON
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.disabled() {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

func unreadKey(userID string) string {
	return "unread:" + userID
}

// GetUnread returns a cached unread notification count
func (c *Cache) GetUnread(ctx context.Context, userID string) (int64, error) {
	raw, err := c.Get(ctx, unreadKey(userID))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// SetUnread caches an unread notification count for UnreadTTL
func (c *Cache) SetUnread(ctx context.Context, userID string, n int64) error {
	return c.Set(ctx, unreadKey(userID), n, UnreadTTL)
}

// InvalidateUnread drops the cached count so the next read goes to the store
func (c *Cache) InvalidateUnread(ctx context.Context, userID string) error {
	return c.Delete(ctx, unreadKey(userID))
}

// PreviewKey is the cache key of a link preview
func PreviewKey(url string) string {
	return "preview:" + HashKey(url)
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.disabled() {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c.disabled() {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
