package config

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate applies the embedded migrations when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithFilesBucket sets the bucket general files are written to
func WithFilesBucket(bucket string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("files bucket cannot be empty")
		}
		c.FilesBucket = bucket
		return nil
	}
}

// WithStorageURL selects the blob store from a STORAGE_URL style value:
// memory://, file:///path or s3://bucket?region=... An s3 URL also sets the
// files bucket.
func WithStorageURL(storageURL string) Option {
	return func(c *ServerConfig) error {
		return applyStorageEnv(EnvConfig{StorageURL: storageURL}, c)
	}
}

// WithMemoryStorage selects in-memory blob storage (for testing)
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "memory",
			Type: "memory",
		})
		c.DefaultStorageBackend = "memory"
		return nil
	}
}

// WithFilesystemStorage selects filesystem blob storage rooted at baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name:   "fs",
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": baseDir},
		})
		c.DefaultStorageBackend = "fs"
		return nil
	}
}

// WithS3Storage selects S3 blob storage. Empty region defaults to us-east-1.
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "s3",
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		})
		c.DefaultStorageBackend = "s3"
		return nil
	}
}

// WithS3Credentials sets static AWS credentials on the configured S3 backend
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		return c.updateBackend("s3", map[string]interface{}{
			"access_key_id":     accessKeyID,
			"secret_access_key": secretAccessKey,
		})
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		return c.updateBackend("s3", map[string]interface{}{
			"endpoint":       endpoint,
			"use_path_style": usePathStyle,
		})
	}
}

// WithObjectKeyStrategy sets the object key layout: "date", "sharded" or "flat"
func WithObjectKeyStrategy(strategy string) Option {
	return func(c *ServerConfig) error {
		c.ObjectKeyStrategy = strategy
		return nil
	}
}

// WithCache sets the lookup cache URL
func WithCache(cacheURL string) Option {
	return func(c *ServerConfig) error {
		if _, err := parseCacheURL(cacheURL); err != nil {
			return err
		}
		c.CacheURL = cacheURL
		return nil
	}
}

// WithJWTSecret enables JWT tenant authentication on the HTTP adapter
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithUploadRateLimit limits uploads to perSecond with the given burst
func WithUploadRateLimit(perSecond float64, burst int) Option {
	return func(c *ServerConfig) error {
		c.UploadRateLimit = perSecond
		c.UploadBurst = burst
		return nil
	}
}

// WithLogger sets the logger handed to the service and its components
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}

// WithMetricsRegisterer enables Prometheus metrics registered with reg
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *ServerConfig) error {
		c.MetricsRegisterer = reg
		return nil
	}
}

func (c *ServerConfig) updateBackend(name string, values map[string]interface{}) error {
	for i := range c.StorageBackends {
		if c.StorageBackends[i].Name == name {
			if c.StorageBackends[i].Config == nil {
				c.StorageBackends[i].Config = map[string]interface{}{}
			}
			for k, v := range values {
				c.StorageBackends[i].Config[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("storage backend %s is not configured", name)
}
