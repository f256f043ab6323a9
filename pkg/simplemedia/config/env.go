package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig is the environment surface read by WithEnv.
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-default:"development" env-description:"development, production or testing"`

	DatabaseURL string `env:"DATABASE_URL" env-default:"memory" env-description:"'memory' or a postgres:// connection string"`
	DBSchema    string `env:"MEDIA_DB_SCHEMA" env-description:"Postgres schema holding media_files"`
	AutoMigrate bool   `env:"MEDIA_AUTO_MIGRATE" env-default:"false" env-description:"apply embedded migrations on startup"`

	StorageURL        string `env:"STORAGE_URL" env-default:"memory://" env-description:"memory://, file:///path or s3://bucket?region=..."`
	FilesBucket       string `env:"MEDIA_BUCKET_FILES" env-description:"bucket for general files (default mediafiles)"`
	ObjectKeyStrategy string `env:"MEDIA_OBJECT_KEY_STRATEGY" env-default:"date" env-description:"date, sharded or flat"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
	S3Endpoint         string `env:"S3_ENDPOINT" env-description:"custom endpoint for MinIO and other S3-compatible services"`
	S3UsePathStyle     bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket     bool   `env:"S3_CREATE_BUCKET" env-default:"false"`

	CacheURL string `env:"MEDIA_CACHE_URL" env-default:"none" env-description:"none, lru://?size=&ttl= or redis://host:port/db?ttl="`

	JWTSecret       string  `env:"MEDIA_JWT_SECRET" env-description:"HS256 secret; tenant header auth is used when empty"`
	UploadRateLimit float64 `env:"MEDIA_UPLOAD_RATE_LIMIT" env-default:"0" env-description:"uploads per second, 0 disables"`
	UploadBurst     int     `env:"MEDIA_UPLOAD_BURST" env-default:"10"`
	MaxUploadBytes  int64   `env:"MEDIA_MAX_UPLOAD_BYTES" env-default:"536870912"`
	UploadTmpDir    string  `env:"MEDIA_UPLOAD_TMP_DIR"`

	TracingEnabled bool `env:"MEDIA_TRACING_ENABLED" env-default:"false"`
}

// WithEnv reads the environment through cleanenv and applies it. Every field
// it covers is replaced, so programmatic options meant to win must come after
// it.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env EnvConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return applyEnv(env, c)
	}
}

// EnvUsage returns a description of every environment variable WithEnv reads
func EnvUsage() string {
	var env EnvConfig
	usage, err := cleanenv.GetDescription(&env, nil)
	if err != nil {
		return ""
	}
	return usage
}

func applyEnv(env EnvConfig, c *ServerConfig) error {
	c.Port = env.Port
	c.Environment = env.Environment
	c.DBSchema = env.DBSchema
	c.AutoMigrate = env.AutoMigrate
	c.ObjectKeyStrategy = env.ObjectKeyStrategy
	c.CacheURL = env.CacheURL
	c.JWTSecret = env.JWTSecret
	c.UploadRateLimit = env.UploadRateLimit
	c.UploadBurst = env.UploadBurst
	c.MaxUploadBytes = env.MaxUploadBytes
	c.UploadTmpDir = env.UploadTmpDir
	c.TracingEnabled = env.TracingEnabled
	if env.FilesBucket != "" {
		c.FilesBucket = env.FilesBucket
	}

	if err := applyDatabaseEnv(env.DatabaseURL, c); err != nil {
		return err
	}
	return applyStorageEnv(env, c)
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(dbURL string, c *ServerConfig) error {
	if dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}

	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(env EnvConfig, c *ServerConfig) error {
	storageURL := env.StorageURL

	switch {
	case storageURL == "" || storageURL == "memory" || storageURL == "memory://":
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "memory",
			Type: "memory",
		})
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		return applyFilesystemStorage(storageURL, c)
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, env, c)
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from URL
// Format: file:///path/to/data
func applyFilesystemStorage(storageURL string, c *ServerConfig) error {
	path := strings.TrimPrefix(storageURL, "file://")
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
		Name: "fs",
		Type: "fs",
		Config: map[string]interface{}{
			"base_dir": path,
		},
	})
	return nil
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true
//
// The bucket in the URL becomes the files bucket unless MEDIA_BUCKET_FILES is
// set. The backend bucket always follows the files bucket so S3_CREATE_BUCKET
// creates the bucket uploads are written to.
func applyS3Storage(storageURL string, env EnvConfig, c *ServerConfig) error {
	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	bucket := u.Host
	if bucket == "" {
		bucket = c.FilesBucket
	}
	if bucket == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}
	if env.FilesBucket == "" {
		c.FilesBucket = bucket
	}
	bucket = c.FilesBucket

	q := u.Query()
	backend := StorageBackendConfig{
		Name: "s3",
		Type: "s3",
		Config: map[string]interface{}{
			"bucket":                     bucket,
			"region":                     firstNonEmpty(q.Get("region"), env.AWSRegion, "us-east-1"),
			"use_path_style":             env.S3UsePathStyle,
			"create_bucket_if_not_exist": env.S3CreateBucket,
		},
	}

	if endpoint := firstNonEmpty(q.Get("endpoint"), env.S3Endpoint); endpoint != "" {
		backend.Config["endpoint"] = endpoint
	}
	if v := q.Get("path_style"); v != "" {
		backend.Config["use_path_style"] = v
	}
	if env.AWSAccessKeyID != "" {
		backend.Config["access_key_id"] = env.AWSAccessKeyID
	}
	if env.AWSSecretAccessKey != "" {
		backend.Config["secret_access_key"] = env.AWSSecretAccessKey
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
