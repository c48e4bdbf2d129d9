// Package handler holds the HTTP handlers of the SPI API. Each constructor
// returns an http.HandlerFunc closed over the dependencies it needs.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/solarperformanceinsight/spi/internal/api/middleware"
	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/internal/upload"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// writeError maps domain errors onto HTTP status codes. Anything it does not
// recognise is logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *models.ValidationError
		tsErr   *timeseries.ValidationError
		decErr  *tableio.DecodeError
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", verr.Fields)
	case errors.As(err, &tsErr):
		response.Error(w, http.StatusBadRequest, "INVALID_DATA", tsErr.Msg, nil)
	case errors.As(err, &decErr):
		response.Error(w, http.StatusBadRequest, "INVALID_DATA", decErr.Msg, nil)
	case errors.As(err, &sizeErr):
		response.Error(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Request body is too large", nil)
	case errors.Is(err, upload.ErrUnsupportedMediaType):
		response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", "A resource with that name already exists", nil)
	case errors.Is(err, store.ErrJobNotMutable):
		response.Error(w, http.StatusConflict, "JOB_NOT_MUTABLE", "Job inputs can no longer be modified", nil)
	case errors.Is(err, store.ErrJobTerminal):
		response.Error(w, http.StatusConflict, "JOB_FINISHED", "Job has already finished", nil)
	case errors.Is(err, store.ErrAlreadyComplete), errors.Is(err, store.ErrIntegrity):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, store.ErrJobIncomplete):
		response.Error(w, http.StatusBadRequest, "JOB_INCOMPLETE", "Job is missing required data", nil)
	case errors.Is(err, store.ErrInvalidStatus):
		response.Error(w, http.StatusBadRequest, "INVALID_STATUS", err.Error(), nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := mw.GetUser(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return user, ok
}

// pathID parses a UUID URL parameter. Malformed ids are reported as 404,
// the same as ids that do not exist.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}
