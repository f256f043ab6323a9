package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// statusForError maps service errors onto HTTP status codes and error codes.
func statusForError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, simplemedia.ErrInvalidUpload), errors.Is(err, simplemedia.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, simplemedia.ErrMediaFileNotFound), errors.Is(err, simplemedia.ErrObjectNotFound):
		return http.StatusNotFound, "not_found"
	case simplemedia.IsRetryable(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An internal server error occurred"
	}
	writeError(w, r, status, code, message)
}
