package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// Uploader validates and stores one uploaded table.
type Uploader interface {
	Upload(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, contentType string, body []byte) (*timeseries.Stats, error)
}

// negotiate picks the representation for stored Arrow bytes from the Accept
// header. It returns the media type or "" when nothing acceptable is offered.
func negotiate(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return tableio.MediaArrow
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mt {
		case "*/*", tableio.MediaArrow:
			return tableio.MediaArrow
		case tableio.MediaCSV, "text/*":
			return tableio.MediaCSV
		}
	}
	return ""
}

func notAcceptable(w http.ResponseWriter) {
	response.Error(w, http.StatusNotAcceptable, "NOT_ACCEPTABLE",
		"Supported types are "+tableio.MediaCSV+" and "+tableio.MediaArrow, nil)
}

// NewGetDataHandler returns an http.HandlerFunc for
// GET /jobs/{jobID}/data/{dataID}. A slot without uploaded data answers 204.
func NewGetDataHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		dataID, ok := pathID(w, r, "dataID")
		if !ok {
			return
		}
		mt := negotiate(r.Header.Get("Accept"))
		if mt == "" {
			notAcceptable(w)
			return
		}
		data, err := s.GetJobData(r.Context(), user, jobID, dataID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !data.Definition.Present {
			response.NoContent(w)
			return
		}
		if mt == tableio.MediaArrow {
			response.Raw(w, tableio.MediaArrow, data.Data)
			return
		}
		csv, err := tableio.ArrowToCSV(data.Data)
		if err != nil {
			storedTableError(w, r, err)
			return
		}
		response.Raw(w, tableio.MediaCSV, csv)
	}
}

// storedTableError reports bytes we wrote ourselves that no longer decode.
func storedTableError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("convert stored table", "path", r.URL.Path, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to convert stored data", nil)
}

// NewPostDataHandler returns an http.HandlerFunc for
// POST /jobs/{jobID}/data/{dataID}. The table arrives as the "file" part of
// a multipart form; the part's Content-Type selects the decoder.
func NewPostDataHandler(s store.Store, up Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		dataID, ok := pathID(w, r, "dataID")
		if !ok {
			return
		}
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart/form-data body", nil)
			return
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				var sizeErr *http.MaxBytesError
				if errors.As(err, &sizeErr) {
					writeError(w, r, err)
					return
				}
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed multipart body", nil)
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}
			body, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				writeError(w, r, err)
				return
			}
			stats, err := up.Upload(r.Context(), user, jobID, dataID, part.FileName(), part.Header.Get("Content-Type"), body)
			if err != nil {
				writeError(w, r, err)
				return
			}
			response.JSON(w, stats)
			return
		}
		v := &models.ValidationError{}
		v.Add("file", "field required")
		writeError(w, r, v)
	}
}
