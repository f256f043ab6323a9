package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

const tracerName = "github.com/tendant/simple-media/pkg/simplemedia"

// Failure reasons recorded on simplemedia_upload_failures_total.
const (
	reasonValidation    = "validation"
	reasonNotFound      = "not_found"
	reasonIO            = "io"
	reasonBlobStore     = "blob_store"
	reasonMetadataStore = "metadata_store"
	reasonCanceled      = "canceled"
)

// service implements the Service interface
type service struct {
	repository   Repository
	blobStore    BlobStore
	filesBucket  string
	keyGenerator objectkey.Generator
	clock        func() time.Time
	logger       *slog.Logger
	eventSink    EventSink
	metrics      *Metrics
	tracer       trace.Tracer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithFilesBucket sets the bucket general files are written to
func WithFilesBucket(bucket string) Option {
	return func(s *service) {
		s.filesBucket = bucket
	}
}

// WithKeyGenerator sets the object key generator. The default groups objects
// by upload date.
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = gen
	}
}

// WithClock overrides the time source used for creation dates and keys
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if strings.TrimSpace(s.filesBucket) == "" {
		return nil, fmt.Errorf("files bucket is required")
	}

	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewRecommendedGenerator()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}

	return s, nil
}

// upload carries the state of one UploadFile call across stages.
type upload struct {
	started   time.Time
	companyID string
	digest    string
	objectKey string
	logger    *slog.Logger
	span      trace.Span
}

func (s *service) UploadFile(ctx context.Context, companyID string, params UploadFileParams, localFilePath string) (*UploadFileResult, error) {
	ctx, span := s.tracer.Start(ctx, "simplemedia.UploadFile")
	defer span.End()

	u := &upload{
		started:   time.Now(),
		companyID: strings.TrimSpace(companyID),
		span:      span,
	}
	attemptID := uuid.NewString()
	u.logger = s.logger.With("attempt_id", attemptID, "company_id", u.companyID)
	span.SetAttributes(
		attribute.String("simplemedia.attempt_id", attemptID),
		attribute.String("simplemedia.company_id", u.companyID),
	)

	// Received
	filename := norm.NFC.String(strings.TrimSpace(params.Filename))
	if u.companyID == "" {
		return nil, s.fail(u, "validate", reasonValidation, fmt.Errorf("%w: company id is required", ErrInvalidUpload))
	}
	if filename == "" {
		return nil, s.fail(u, "validate", reasonValidation, fmt.Errorf("%w: filename is required", ErrInvalidUpload))
	}
	if err := validateDeclared(u.companyID, filename, params); err != nil {
		return nil, s.fail(u, "validate", reasonValidation, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail(u, "open", reasonCanceled, err)
	}

	file, err := openLocalFile(localFilePath)
	if err != nil {
		return nil, s.fail(u, "open", reasonNotFound, err)
	}
	defer file.Close()

	// Unblocks reads on pollable files (pipes, FIFOs) once ctx is done.
	// Regular files do not support deadlines and are covered by the
	// per-read check in DigestReaderContext.
	stop := context.AfterFunc(ctx, func() {
		_ = file.SetReadDeadline(time.Now())
	})
	defer stop()

	digest, size, err := DigestReaderContext(ctx, file)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.fail(u, "hash", reasonCanceled, ctxErr)
		}
		return nil, s.fail(u, "hash", reasonIO, err)
	}
	u.digest = digest
	u.logger = u.logger.With("digest", digest)
	span.AddEvent("hashed", trace.WithAttributes(
		attribute.String("simplemedia.digest", digest),
		attribute.Int64("simplemedia.size", size),
	))
	u.logger.Debug("content hashed", "size", size)

	extension := filepath.Ext(filename)
	mimeType := MimeTypeByExtension(extension)

	if err := ctx.Err(); err != nil {
		return nil, s.fail(u, "precheck", reasonCanceled, err)
	}

	existing, err := s.repository.GetMediaFile(ctx, digest)
	switch {
	case err == nil:
		span.AddEvent("dedup_hit")
		return s.deduplicated(ctx, u, existing), nil
	case !errors.Is(err, ErrMediaFileNotFound):
		return nil, s.fail(u, "precheck", reasonMetadataStore, fmt.Errorf("%w: %w", ErrMetadataStoreFailed, err))
	}

	now := s.clock().UTC()
	u.objectKey = s.keyGenerator.GenerateKey(digest, extension, now)
	u.logger = u.logger.With("object_key", u.objectKey)
	span.AddEvent("path_built", trace.WithAttributes(attribute.String("simplemedia.object_key", u.objectKey)))

	if err := ctx.Err(); err != nil {
		return nil, s.fail(u, "upload", reasonCanceled, err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, s.fail(u, "upload", reasonIO, fmt.Errorf("%w: rewind: %w", ErrReadFailed, err))
	}

	u.logger.Debug("uploading content", "bucket", s.filesBucket, "mime_type", mimeType)
	err = s.blobStore.UploadWithParams(ctx, file, UploadParams{
		Bucket:    s.filesBucket,
		ObjectKey: u.objectKey,
		MimeType:  mimeType,
		Size:      size,
	})
	if err != nil {
		return nil, s.fail(u, "upload", reasonBlobStore, fmt.Errorf("%w: %w", ErrBlobStoreFailed, err))
	}
	s.metrics.observeBlobWrite(size)
	span.AddEvent("uploaded")

	if err := ctx.Err(); err != nil {
		s.logOrphan(u, err)
		return nil, s.fail(u, "commit", reasonCanceled, err)
	}

	record := &MediaFile{
		ID:          digest,
		FileID:      digest,
		CompanyID:   u.companyID,
		Filename:    filename,
		FileType:    params.FileType,
		Tags:        params.Tags,
		FileSize:    size,
		MimeType:    mimeType,
		Bucket:      s.filesBucket,
		FilePath:    u.objectKey,
		URL:         ObjectURL(s.filesBucket, u.objectKey),
		AuditStatus: AuditStatusPending,
		Status:      StatusEnabled,
		CreateDate:  now,
	}

	stored, inserted, err := s.commit(context.WithoutCancel(ctx), record)
	if err != nil {
		s.logOrphan(u, err)
		return nil, s.fail(u, "commit", reasonMetadataStore, fmt.Errorf("%w: %w", ErrMetadataStoreFailed, err))
	}
	if !inserted {
		span.AddEvent("dedup_race_lost")
		return s.deduplicated(ctx, u, stored), nil
	}

	span.AddEvent("metadata_committed")
	s.metrics.observeResult(resultCreated, u.started)
	u.logger.Info("media file created", "size", size, "mime_type", mimeType)

	if err := s.eventSink.MediaFileCreated(ctx, stored); err != nil {
		u.logger.Error("event sink failed", "event", "media_file_created", "err", err)
	}

	return resultFromMediaFile(stored), nil
}

// commit re-checks the digest inside one transaction and inserts record when
// it is still absent. The transaction-scoped store is the dedup authority.
func (s *service) commit(ctx context.Context, record *MediaFile) (*MediaFile, bool, error) {
	var (
		stored   *MediaFile
		inserted bool
	)
	err := s.repository.WithTx(ctx, func(tx MediaFileStore) error {
		existing, err := tx.GetMediaFile(ctx, record.ID)
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, ErrMediaFileNotFound) {
			return err
		}

		stored, inserted, err = tx.InsertMediaFileIfAbsent(ctx, record)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, inserted, nil
}

func (s *service) deduplicated(ctx context.Context, u *upload, existing *MediaFile) *UploadFileResult {
	s.metrics.observeResult(resultDeduplicated, u.started)
	u.logger.Info("media file deduplicated", "owner_company_id", existing.CompanyID, "file_path", existing.FilePath)

	if err := s.eventSink.MediaFileDeduplicated(ctx, existing, u.companyID); err != nil {
		u.logger.Error("event sink failed", "event", "media_file_deduplicated", "err", err)
	}
	return resultFromMediaFile(existing)
}

// logOrphan reports a blob left without a metadata record. The blob is never
// removed: a concurrent upload of the same content may own the key.
func (s *service) logOrphan(u *upload, cause error) {
	u.logger.Warn("blob written without metadata record", "bucket", s.filesBucket, "err", cause)
}

func (s *service) fail(u *upload, op, reason string, err error) error {
	s.metrics.observeFailure(reason, u.started)
	u.span.RecordError(err)
	u.span.SetStatus(codes.Error, op)

	uerr := &UploadError{
		Op:        op,
		CompanyID: u.companyID,
		Digest:    u.digest,
		ObjectKey: u.objectKey,
		Err:       err,
	}
	u.logger.Error("upload failed", "op", op, "reason", reason, "err", err)
	return uerr
}

// validateDeclared rejects declared metadata the metadata store cannot hold,
// so it fails before any I/O instead of after the blob write.
func validateDeclared(companyID, filename string, params UploadFileParams) error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"company id", companyID, MaxCompanyIDLength},
		{"filename", filename, MaxFilenameLength},
		{"file type", params.FileType, MaxFileTypeLength},
		{"tags", params.Tags, MaxTagsLength},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) || strings.ContainsRune(f.value, 0) {
			return fmt.Errorf("%w: %s is not valid UTF-8 text", ErrInvalidUpload, f.name)
		}
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return fmt.Errorf("%w: %s is %d characters, at most %d allowed", ErrInvalidUpload, f.name, n, f.max)
		}
	}
	return nil
}

// openLocalFile opens path for hashing and upload. Missing, unreadable and
// directory paths all report ErrLocalFileNotFound.
func openLocalFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrLocalFileNotFound)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocalFileNotFound, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrLocalFileNotFound, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrLocalFileNotFound, path)
	}
	return file, nil
}

// Read operations

func (s *service) GetMediaFile(ctx context.Context, id string) (*MediaFile, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrMediaFileNotFound
	}

	file, err := s.repository.GetMediaFile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMediaFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMetadataStoreFailed, err)
	}
	return file, nil
}

func (s *service) ListMediaFiles(ctx context.Context, filters MediaFileListFilters) ([]*MediaFile, error) {
	filters.CompanyID = strings.TrimSpace(filters.CompanyID)
	if filters.CompanyID == "" {
		return nil, fmt.Errorf("%w: company id is required to list media files", ErrInvalidRequest)
	}
	filters = normalizeListFilters(filters)

	files, err := s.repository.ListMediaFiles(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataStoreFailed, err)
	}
	return files, nil
}

func (s *service) DownloadMediaFile(ctx context.Context, id string) (io.ReadCloser, *MediaFile, error) {
	file, err := s.GetMediaFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.blobStore.Download(ctx, file.Bucket, file.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBlobStoreFailed, err)
	}
	return reader, file, nil
}

// normalizeListFilters applies the default and maximum page sizes.
func normalizeListFilters(filters MediaFileListFilters) MediaFileListFilters {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}
	if filters.Limit > MaxListLimit {
		filters.Limit = MaxListLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return filters
}
