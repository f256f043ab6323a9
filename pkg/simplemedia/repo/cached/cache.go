package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Cache stores media file records by digest. Only records that exist are
// cached.
type Cache interface {
	Get(ctx context.Context, id string) (*simplemedia.MediaFile, bool, error)
	Set(ctx context.Context, file *simplemedia.MediaFile) error
}

// LRU is a per-process cache with a bounded size and per-entry TTL.
type LRU struct {
	cache *expirable.LRU[string, simplemedia.MediaFile]
}

// NewLRU creates an LRU cache holding at most size records for ttl each.
// A zero ttl keeps entries until they are evicted.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{cache: expirable.NewLRU[string, simplemedia.MediaFile](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, id string) (*simplemedia.MediaFile, bool, error) {
	file, ok := c.cache.Get(id)
	if !ok {
		return nil, false, nil
	}
	return &file, true, nil
}

func (c *LRU) Set(_ context.Context, file *simplemedia.MediaFile) error {
	c.cache.Add(file.ID, *file)
	return nil
}

// Len returns the number of cached records
func (c *LRU) Len() int {
	return c.cache.Len()
}

// Redis shares cached records between processes. Records are stored as JSON
// under <prefix><digest>.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. A zero ttl stores keys without
// expiry.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "simplemedia:media_file:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, id string) (*simplemedia.MediaFile, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis cache get failed: %w", err)
	}

	var file simplemedia.MediaFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, false, fmt.Errorf("redis cache decode failed: %w", err)
	}
	return &file, true, nil
}

func (c *Redis) Set(ctx context.Context, file *simplemedia.MediaFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("redis cache encode failed: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+file.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set failed: %w", err)
	}
	return nil
}

// Default timeouts for Redis operations.
const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// NewRedisClient parses a Redis URL and returns a client that answered a
// ping.
func NewRedisClient(ctx context.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	if logger != nil {
		logger.Info("redis client connected", "addr", options.Addr)
	}
	return client, nil
}
