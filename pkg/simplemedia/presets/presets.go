// Package presets provides ready-made service configurations for common use
// cases: local development, tests and production from the environment.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	memoryrepo "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory metadata (instant startup, no setup required)
//   - Filesystem blob storage at ./dev-data/
//   - Files bucket "mediafiles"
//
// The returned cleanup function removes the storage directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simplemedia.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		bucket:     "mediafiles",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := simplemedia.New(
		simplemedia.WithRepository(memoryrepo.New()),
		simplemedia.WithBlobStore(fsBackend),
		simplemedia.WithFilesBucket(cfg.bucket),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates a service backed entirely by memory, isolated per test.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t)
//	    // ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) simplemedia.Service {
	t.Helper()

	cfg := &testConfig{bucket: "files"}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simplemedia.Option{
		simplemedia.WithRepository(memoryrepo.New()),
		simplemedia.WithBlobStore(memorystorage.New()),
		simplemedia.WithFilesBucket(cfg.bucket),
	}
	if cfg.clock != nil {
		options = append(options, simplemedia.WithClock(cfg.clock))
	}

	svc, err := simplemedia.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction builds a service from the environment (see config.WithEnv)
// and refuses the in-memory metadata and blob backends.
func NewProduction(ctx context.Context, opts ...config.Option) (simplemedia.Service, func(), error) {
	cfg, err := config.Load(append([]config.Option{config.WithEnv()}, opts...)...)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DatabaseType == "memory" {
		return nil, nil, fmt.Errorf("production preset requires DATABASE_URL=postgres://... (memory not allowed in production)")
	}
	if cfg.DefaultStorageBackend == "memory" {
		return nil, nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}

	return cfg.BuildService(ctx)
}

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	bucket     string
}

// testConfig holds testing preset configuration
type testConfig struct {
	bucket string
	clock  func() time.Time
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevBucket sets the files bucket
func WithDevBucket(bucket string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.bucket = bucket
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestBucket sets the files bucket
func WithTestBucket(bucket string) TestingOption {
	return func(cfg *testConfig) {
		cfg.bucket = bucket
	}
}

// WithTestClock fixes the time source, which makes object keys predictable
func WithTestClock(clock func() time.Time) TestingOption {
	return func(cfg *testConfig) {
		cfg.clock = clock
	}
}

// TestService is an alias for NewTesting with no options
func TestService(t testing.TB) simplemedia.Service {
	t.Helper()
	return NewTesting(t)
}
