package simplemedia

import (
	"context"
	"io"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// UploadWithParams writes the reader to params.Bucket/params.ObjectKey.
	// Writing the same bytes to the same key twice must be harmless.
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the object at bucket/objectKey for reading
	Download(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	Bucket    string
	ObjectKey string
	MimeType  string
	// Size is the content length in bytes, or -1 when unknown
	Size int64
}

// MediaFileStore is the set of metadata operations available both on a
// repository and on a transaction-scoped handle.
type MediaFileStore interface {
	// GetMediaFile returns ErrMediaFileNotFound when no record exists for id
	GetMediaFile(ctx context.Context, id string) (*MediaFile, error)

	// InsertMediaFileIfAbsent inserts file unless a record with the same ID
	// exists. It is atomic with respect to concurrent callers: exactly one
	// caller gets inserted == true, the others get the winning record.
	InsertMediaFileIfAbsent(ctx context.Context, file *MediaFile) (stored *MediaFile, inserted bool, err error)

	// ListMediaFiles returns records registered by filters.CompanyID, newest first
	ListMediaFiles(ctx context.Context, filters MediaFileListFilters) ([]*MediaFile, error)
}

// Repository defines the interface for media file persistence
type Repository interface {
	MediaFileStore

	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx MediaFileStore) error) error
}

// EventSink defines the interface for event handling
type EventSink interface {
	// MediaFileCreated is fired when an upload registers new content
	MediaFileCreated(ctx context.Context, file *MediaFile) error

	// MediaFileDeduplicated is fired when an upload resolves to existing content
	MediaFileDeduplicated(ctx context.Context, file *MediaFile, companyID string) error
}
