package simplemedia

import "time"

// Initial lifecycle codes written on creation. They are persisted verbatim and
// shared with the course-authoring side, so the values must not change.
const (
	AuditStatusPending = "002003"
	StatusEnabled      = "1"
)

// MediaFile is the metadata record of one unique piece of content.
//
// ID and FileID both hold the hex content digest.
type MediaFile struct {
	ID          string    `json:"id"`
	FileID      string    `json:"file_id"`
	CompanyID   string    `json:"company_id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type,omitempty"`
	Tags        string    `json:"tags,omitempty"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	Bucket      string    `json:"bucket"`
	FilePath    string    `json:"file_path"`
	URL         string    `json:"url"`
	AuditStatus string    `json:"audit_status"`
	Status      string    `json:"status"`
	CreateDate  time.Time `json:"create_date"`
}

// UploadFileParams is the metadata declared by the caller for an upload.
type UploadFileParams struct {
	Filename string
	FileType string
	Tags     string
}

// UploadFileResult is returned by UploadFile for both new and deduplicated
// content.
type UploadFileResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Bucket   string `json:"bucket"`
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// MediaFileListFilters selects media files registered by a company.
type MediaFileListFilters struct {
	CompanyID string
	Limit     int
	Offset    int
}

// Paging bounds applied by ListMediaFiles.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Bounds of declared metadata, in characters. The company id and file type
// match the media_files column widths.
const (
	MaxCompanyIDLength = 64
	MaxFileTypeLength  = 64
	MaxFilenameLength  = 255
	MaxTagsLength      = 1024
)

// ObjectURL returns the URL recorded for an object at bucket/key.
func ObjectURL(bucket, objectKey string) string {
	return "/" + bucket + "/" + objectKey
}

// resultFromMediaFile projects a record into the caller-facing result shape.
func resultFromMediaFile(f *MediaFile) *UploadFileResult {
	return &UploadFileResult{
		ID:       f.ID,
		URL:      f.URL,
		Bucket:   f.Bucket,
		FilePath: f.FilePath,
		Filename: f.Filename,
		FileSize: f.FileSize,
		MimeType: f.MimeType,
	}
}
