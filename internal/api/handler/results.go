package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/cache"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// resultCSVTTL bounds how long a converted result stays cached. Results are
// immutable, so this only limits memory.
const resultCSVTTL = time.Hour

// NewListResultsHandler returns an http.HandlerFunc for GET /jobs/{jobID}/results.
func NewListResultsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		results, err := s.ListJobResults(r.Context(), user, jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, results)
	}
}

// NewGetResultHandler returns an http.HandlerFunc for
// GET /jobs/{jobID}/results/{resultID}. CSV conversions are cached when c is
// non-nil.
func NewGetResultHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		resultID, ok := pathID(w, r, "resultID")
		if !ok {
			return
		}
		res, err := s.GetJobResult(r.Context(), user, jobID, resultID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Definition.DataFormat == models.FormatJSON {
			response.Raw(w, models.FormatJSON, res.Data)
			return
		}

		mt := negotiate(r.Header.Get("Accept"))
		switch mt {
		case "":
			notAcceptable(w)
			return
		case tableio.MediaArrow:
			response.Raw(w, tableio.MediaArrow, res.Data)
			return
		}

		key := cache.ResultCSVKey(resultID)
		if c != nil {
			b, hit, err := c.Get(r.Context(), key)
			if err != nil {
				slog.Warn("result cache read failed", "result_id", resultID, "error", err)
			} else if hit {
				response.Raw(w, tableio.MediaCSV, b)
				return
			}
		}
		csv, err := tableio.ArrowToCSV(res.Data)
		if err != nil {
			storedTableError(w, r, err)
			return
		}
		if c != nil {
			if err := c.Set(r.Context(), key, csv, resultCSVTTL); err != nil {
				slog.Warn("result cache write failed", "result_id", resultID, "error", err)
			}
		}
		response.Raw(w, tableio.MediaCSV, csv)
	}
}
