package simplemedia

import (
	"context"
	"io"
)

// Service is the main interface of the media library.
type Service interface {
	// UploadFile registers the local file at localFilePath on behalf of
	// companyID. Content already known by digest resolves to the existing
	// record without a second blob write.
	UploadFile(ctx context.Context, companyID string, params UploadFileParams, localFilePath string) (*UploadFileResult, error)

	GetMediaFile(ctx context.Context, id string) (*MediaFile, error)
	ListMediaFiles(ctx context.Context, filters MediaFileListFilters) ([]*MediaFile, error)

	// DownloadMediaFile opens the stored content of a record. The caller
	// closes the reader.
	DownloadMediaFile(ctx context.Context, id string) (io.ReadCloser, *MediaFile, error)
}
