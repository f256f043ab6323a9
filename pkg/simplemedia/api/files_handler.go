package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DefaultMaxUploadBytes bounds a multipart upload body when no limit is configured.
const DefaultMaxUploadBytes int64 = 512 << 20

// maxFieldBytes bounds the text fields of an upload form.
const maxFieldBytes = 4 << 10

// FilesHandler exposes the media service over HTTP. Every route expects a
// tenant middleware (see Tenant) in front of it.
type FilesHandler struct {
	service        simplemedia.Service
	logger         *slog.Logger
	maxUploadBytes int64
	tmpDir         string
	uploadLimiter  *rate.Limiter
}

// HandlerOption configures a FilesHandler.
type HandlerOption func(*FilesHandler)

// WithMaxUploadBytes bounds the request body of an upload.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *FilesHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithTmpDir sets the directory uploads are spooled to.
func WithTmpDir(dir string) HandlerOption {
	return func(h *FilesHandler) { h.tmpDir = dir }
}

// WithUploadLimiter rate limits the upload route.
func WithUploadLimiter(limiter *rate.Limiter) HandlerOption {
	return func(h *FilesHandler) { h.uploadLimiter = limiter }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *FilesHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewFilesHandler(service simplemedia.Service, opts ...HandlerOption) *FilesHandler {
	h := &FilesHandler{
		service:        service,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for files endpoints
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(RateLimit(h.uploadLimiter)).Post("/", h.UploadFile)
	r.Get("/", h.ListFiles)
	r.Get("/{id}", h.GetFile)
	r.Get("/{id}/content", h.DownloadFile)
	return r
}

// ListFilesResponse is the body of GET /.
type ListFilesResponse struct {
	Items  []*simplemedia.MediaFile `json:"items"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// UploadFile accepts a multipart form with a "file" part and optional
// "filename", "file_type" and "tags" fields.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	companyID := CompanyIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "expected a multipart/form-data body")
		return
	}

	spooled, params, err := h.readUploadForm(mr)
	if spooled != "" {
		defer func() {
			if err := os.Remove(spooled); err != nil {
				h.logger.Warn("Failed to remove spooled upload", "path", spooled, "err", err)
			}
		}()
	}
	if err != nil {
		h.logger.Info("Rejected upload form", "company_id", companyID, "err", err)
		if status, code := statusForError(err); status == http.StatusRequestEntityTooLarge {
			writeError(w, r, status, code, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.UploadFile(r.Context(), companyID, params, spooled)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// readUploadForm spools the file part to a temp file and collects the text
// fields. The returned path, when non-empty, is owned by the caller.
func (h *FilesHandler) readUploadForm(mr *multipart.Reader) (string, simplemedia.UploadFileParams, error) {
	var (
		params       simplemedia.UploadFileParams
		spooled      string
		partFilename string
	)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return spooled, params, fmt.Errorf("read multipart body: %w", err)
		}

		switch part.FormName() {
		case "file":
			if spooled != "" {
				part.Close()
				return spooled, params, errors.New("only one file part is allowed")
			}
			partFilename = part.FileName()
			spooled, err = h.spool(part)
			part.Close()
			if err != nil {
				return spooled, params, err
			}
		case "filename":
			params.Filename, err = readField(part)
		case "file_type":
			params.FileType, err = readField(part)
		case "tags":
			params.Tags, err = readField(part)
		default:
			_, err = io.Copy(io.Discard, part)
			part.Close()
		}
		if err != nil {
			return spooled, params, err
		}
	}

	if spooled == "" {
		return "", params, errors.New("missing file part")
	}
	if params.Filename == "" {
		params.Filename = partFilename
	}
	return spooled, params, nil
}

func (h *FilesHandler) spool(part *multipart.Part) (string, error) {
	tmp, err := os.CreateTemp(h.tmpDir, "simplemedia-upload-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	name := tmp.Name()

	if _, err := io.Copy(tmp, part); err != nil {
		tmp.Close()
		return name, fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return name, fmt.Errorf("close spool file: %w", err)
	}
	return name, nil
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("read field %s: %w", part.FormName(), err)
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("field %s is too long", part.FormName())
	}
	return string(b), nil
}

// ListFiles lists the media files registered by the caller's company.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	filters := simplemedia.MediaFileListFilters{CompanyID: CompanyIDFromContext(r.Context())}

	var err error
	if filters.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if filters.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	files, err := h.service.ListMediaFiles(r.Context(), filters)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if files == nil {
		files = []*simplemedia.MediaFile{}
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = simplemedia.DefaultListLimit
	}
	render.JSON(w, r, ListFilesResponse{
		Items:  files,
		Limit:  min(limit, simplemedia.MaxListLimit),
		Offset: max(filters.Offset, 0),
	})
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// GetFile returns the metadata record for a digest.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.GetMediaFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	render.JSON(w, r, file)
}

// DownloadFile streams the stored content for a digest.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	rc, file, err := h.service.DownloadMediaFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.FileSize, 10))
	w.Header().Set("ETag", `"`+file.ID+`"`)
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Failed to stream media file", "id", file.ID, "err", err)
	}
}
