package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/cached"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
		FilesBucket:       "mediafiles",
		ObjectKeyStrategy: objectkey.StrategyDate,
		CacheURL:          "none",
		UploadRateLimit:   0,
		UploadBurst:       10,
		MaxUploadBytes:    512 << 20,
	}
}

// ServerConfig represents server configuration for the simple-media service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: public)
	AutoMigrate  bool   // Apply embedded migrations when building the service

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig
	FilesBucket           string // Bucket general files are written to
	ObjectKeyStrategy     string // "date", "sharded", "flat"

	// Lookup cache: "none", "lru://?size=1024&ttl=10m" or "redis://host:6379/0?ttl=1h"
	CacheURL string

	// HTTP adapter
	JWTSecret       string  // Enables JWT tenant auth when set
	UploadRateLimit float64 // Uploads per second, 0 disables limiting
	UploadBurst     int
	MaxUploadBytes  int64
	UploadTmpDir    string // Spool directory for multipart uploads, OS default when empty

	TracingEnabled bool

	// Not loaded from the environment
	Logger            *slog.Logger
	MetricsRegisterer prometheus.Registerer
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if strings.TrimSpace(c.FilesBucket) == "" {
		return errors.New("files bucket is required")
	}

	if _, err := objectkey.NewGenerator(c.ObjectKeyStrategy); err != nil {
		return err
	}

	if _, err := parseCacheURL(c.CacheURL); err != nil {
		return err
	}

	if c.UploadRateLimit < 0 {
		return errors.New("upload rate limit cannot be negative")
	}
	if c.UploadRateLimit > 0 && c.UploadBurst <= 0 {
		return errors.New("upload burst must be positive when rate limiting is enabled")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}

	if _, ok := c.defaultBackend(); !ok {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	return nil
}

func (c *ServerConfig) defaultBackend() (StorageBackendConfig, bool) {
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			return backend, true
		}
	}
	return StorageBackendConfig{}, false
}

func (c *ServerConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// BuildService creates a Service instance from the server configuration. The
// returned cleanup func releases database and cache connections.
func (c *ServerConfig) BuildService(ctx context.Context) (simplemedia.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	closers = append(closers, closeRepo)

	repo, closeCache, err := c.wrapCache(ctx, repo)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build cache: %w", err)
	}
	closers = append(closers, closeCache)

	backend, _ := c.defaultBackend()
	store, err := c.buildStorageBackend(backend)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", backend.Name, err)
	}

	keyGenerator, err := objectkey.NewGenerator(c.ObjectKeyStrategy)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	options := []simplemedia.Option{
		simplemedia.WithRepository(repo),
		simplemedia.WithBlobStore(store),
		simplemedia.WithFilesBucket(c.FilesBucket),
		simplemedia.WithKeyGenerator(keyGenerator),
		simplemedia.WithLogger(c.logger().With("component", "simplemedia")),
	}
	if c.MetricsRegisterer != nil {
		options = append(options, simplemedia.WithMetrics(simplemedia.NewMetrics(c.MetricsRegisterer)))
	}

	svc, err := simplemedia.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplemedia.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		if c.AutoMigrate {
			if err := c.migrate(ctx); err != nil {
				return nil, nil, err
			}
		}
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// migrate creates the schema when missing and applies the embedded migrations
// inside it.
func (c *ServerConfig) migrate(ctx context.Context) error {
	migrationURL := c.DatabaseURL
	if c.DBSchema != "" {
		pool, err := newPool(ctx, c.DatabaseURL, "")
		if err != nil {
			return err
		}
		_, err = pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{c.DBSchema}.Sanitize())
		pool.Close()
		if err != nil {
			return fmt.Errorf("failed to create schema %s: %w", c.DBSchema, err)
		}

		migrationURL, err = withSearchPath(c.DatabaseURL, c.DBSchema)
		if err != nil {
			return err
		}
	}
	return repopg.Migrate(migrationURL, c.logger())
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		searchPath := "SET search_path TO " + pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, searchPath)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

func withSearchPath(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// cacheSpec is the parsed form of CacheURL
type cacheSpec struct {
	kind     string // "none", "lru", "redis"
	size     int
	ttl      time.Duration
	prefix   string
	redisURL string
}

func parseCacheURL(raw string) (cacheSpec, error) {
	if raw == "" || raw == "none" {
		return cacheSpec{kind: "none"}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return cacheSpec{}, fmt.Errorf("invalid cache URL: %w", err)
	}

	q := u.Query()
	spec := cacheSpec{kind: u.Scheme}
	if v := q.Get("ttl"); v != "" {
		if spec.ttl, err = time.ParseDuration(v); err != nil {
			return cacheSpec{}, fmt.Errorf("invalid cache ttl %q: %w", v, err)
		}
	}

	switch u.Scheme {
	case "lru":
		spec.size = 1024
		if v := q.Get("size"); v != "" {
			if spec.size, err = strconv.Atoi(v); err != nil || spec.size <= 0 {
				return cacheSpec{}, fmt.Errorf("invalid cache size %q", v)
			}
		}
	case "redis", "rediss":
		spec.prefix = q.Get("prefix")
		// go-redis rejects query options it does not know
		q.Del("ttl")
		q.Del("prefix")
		u.RawQuery = q.Encode()
		spec.kind = "redis"
		spec.redisURL = u.String()
	default:
		return cacheSpec{}, fmt.Errorf("unsupported cache URL: %s (use 'none', 'lru://...' or 'redis://...')", raw)
	}
	return spec, nil
}

// wrapCache decorates repo with the configured lookup cache
func (c *ServerConfig) wrapCache(ctx context.Context, repo simplemedia.Repository) (simplemedia.Repository, func(), error) {
	spec, err := parseCacheURL(c.CacheURL)
	if err != nil {
		return nil, nil, err
	}

	switch spec.kind {
	case "lru":
		return cached.New(repo, cached.NewLRU(spec.size, spec.ttl), c.logger()), func() {}, nil
	case "redis":
		client, err := cached.NewRedisClient(ctx, spec.redisURL, c.logger())
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() { _ = client.Close() }
		return cached.New(repo, cached.NewRedis(client, spec.prefix, spec.ttl), c.logger()), closeClient, nil
	default:
		return repo, func() {}, nil
	}
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (simplemedia.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", c.FilesBucket),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", ""),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok && str != "" {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
