package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Backend is a filesystem implementation of the simplemedia.BlobStore
// interface. Objects live at <BaseDir>/<bucket>/<objectKey>.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// objectPath resolves bucket/objectKey under the base directory, rejecting
// keys that would escape it.
func (b *Backend) objectPath(bucket, objectKey string) (string, error) {
	rel := filepath.Join(bucket, filepath.FromSlash(objectKey))
	if bucket == "" || objectKey == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object path %q/%q", bucket, objectKey)
	}
	return filepath.Join(b.baseDir, rel), nil
}

// UploadWithParams writes the reader to a temporary file next to the target
// and renames it into place, so readers never observe a partial object.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplemedia.UploadParams) error {
	storageErr := func(err error) error {
		return &simplemedia.StorageError{Backend: "fs", Bucket: params.Bucket, Key: params.ObjectKey, Op: "upload", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return storageErr(err)
	}

	filePath, err := b.objectPath(params.Bucket, params.ObjectKey)
	if err != nil {
		return storageErr(err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storageErr(fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return storageErr(fmt.Errorf("failed to create file: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return storageErr(fmt.Errorf("failed to write file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return storageErr(fmt.Errorf("failed to close file: %w", err))
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return storageErr(fmt.Errorf("failed to move file into place: %w", err))
	}
	return nil
}

// Download opens the object at bucket/objectKey
func (b *Backend) Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.objectPath(bucket, objectKey)
	if err != nil {
		return nil, &simplemedia.StorageError{Backend: "fs", Bucket: bucket, Key: objectKey, Op: "download", Err: err}
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, &simplemedia.StorageError{Backend: "fs", Bucket: bucket, Key: objectKey, Op: "download", Err: simplemedia.ErrObjectNotFound}
	} else if err != nil {
		return nil, &simplemedia.StorageError{Backend: "fs", Bucket: bucket, Key: objectKey, Op: "download", Err: fmt.Errorf("failed to open file: %w", err)}
	}

	return file, nil
}
