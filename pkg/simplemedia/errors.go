package simplemedia

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrInvalidUpload indicates the declared metadata was rejected before any I/O
	ErrInvalidUpload = errors.New("invalid upload request")

	// ErrInvalidRequest indicates a read request was rejected before reaching a store
	ErrInvalidRequest = errors.New("invalid request")

	// ErrLocalFileNotFound indicates the local file is missing or cannot be opened
	ErrLocalFileNotFound = errors.New("local file not found")

	// ErrReadFailed indicates the local file could not be read completely
	ErrReadFailed = errors.New("failed to read local file")

	// ErrBlobStoreFailed indicates the blob store rejected or failed a write
	ErrBlobStoreFailed = errors.New("blob store operation failed")

	// ErrMetadataStoreFailed indicates an infrastructure failure in the metadata store
	ErrMetadataStoreFailed = errors.New("metadata store operation failed")

	// ErrMediaFileNotFound indicates no record exists for a digest
	ErrMediaFileNotFound = errors.New("media file not found")

	// ErrObjectNotFound indicates the blob store holds no object at a key
	ErrObjectNotFound = errors.New("object not found")
)

// UploadError describes a failed upload together with the state reached
// before the failure.
type UploadError struct {
	Op        string
	CompanyID string
	Digest    string
	ObjectKey string
	Err       error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upload %s failed for company %s", e.Op, e.CompanyID)
	if e.Digest != "" {
		fmt.Fprintf(&b, " digest %s", e.Digest)
	}
	if e.ObjectKey != "" {
		fmt.Fprintf(&b, " key %s", e.ObjectKey)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Bucket  string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s/%s on backend %s: %v", e.Op, e.Bucket, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a failure the caller may retry as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBlobStoreFailed) || errors.Is(err, ErrMetadataStoreFailed)
}
