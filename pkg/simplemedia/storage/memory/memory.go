package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

type object struct {
	data     []byte
	mimeType string
}

// Backend is an in-memory implementation of the simplemedia.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	writes  int
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

func objectPath(bucket, objectKey string) string {
	return bucket + "/" + objectKey
}

// UploadWithParams stores the reader's content at params.Bucket/params.ObjectKey
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplemedia.UploadParams) error {
	if err := ctx.Err(); err != nil {
		return &simplemedia.StorageError{Backend: "memory", Bucket: params.Bucket, Key: params.ObjectKey, Op: "upload", Err: err}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return &simplemedia.StorageError{Backend: "memory", Bucket: params.Bucket, Key: params.ObjectKey, Op: "upload", Err: err}
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = simplemedia.DefaultMimeType
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectPath(params.Bucket, params.ObjectKey)] = object{data: data, mimeType: mimeType}
	b.writes++
	return nil
}

// Download returns the content stored at bucket/objectKey
func (b *Backend) Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &simplemedia.StorageError{Backend: "memory", Bucket: bucket, Key: objectKey, Op: "download", Err: err}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectPath(bucket, objectKey)]
	if !exists {
		return nil, &simplemedia.StorageError{Backend: "memory", Bucket: bucket, Key: objectKey, Op: "download", Err: simplemedia.ErrObjectNotFound}
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// MimeType reports the MIME type an object was stored with
func (b *Backend) MimeType(bucket, objectKey string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectPath(bucket, objectKey)]
	return obj.mimeType, exists
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Writes returns the number of successful UploadWithParams calls
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
