// Package upload turns an uploaded file into the canonical Arrow payload of
// a job data slot.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/slots"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// ErrUnsupportedMediaType is returned for content types that are neither CSV
// nor Arrow.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Upload outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeUnsupported = "unsupported"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)

// Recorder receives one outcome per upload.
type Recorder interface {
	RecordUpload(outcome string)
}

// Pipeline decodes, validates and normalizes uploads and stores the result.
type Pipeline struct {
	store    store.Store
	recorder Recorder
	log      *slog.Logger
}

// New creates a pipeline. recorder may be nil.
func New(s store.Store, recorder Recorder) *Pipeline {
	return &Pipeline{
		store:    s,
		recorder: recorder,
		log:      slog.Default().With("component", "upload"),
	}
}

// Upload stores body as the data of slot dataID of job jobID and returns how
// the table was reshaped onto the job's time index.
func (p *Pipeline) Upload(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, contentType string, body []byte) (*timeseries.Stats, error) {
	stats, err := p.upload(ctx, user, jobID, dataID, filename, contentType, body)
	outcome := classify(err)
	if p.recorder != nil {
		p.recorder.RecordUpload(outcome)
	}
	if outcome == OutcomeError {
		p.log.Error("upload failed", "job_id", jobID, "data_id", dataID, "user", user, "error", err)
	}
	return stats, err
}

func (p *Pipeline) upload(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, contentType string, body []byte) (*timeseries.Stats, error) {
	var (
		tbl *timeseries.Table
		err error
	)
	switch tableio.FormatFor(contentType) {
	case tableio.FormatCSV:
		tbl, err = tableio.DecodeCSV(bytes.NewReader(body))
	case tableio.FormatArrow:
		tbl, err = tableio.DecodeArrow(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	if err != nil {
		return nil, err
	}

	job, err := p.store.GetJob(ctx, user, jobID)
	if err != nil {
		return nil, err
	}
	slot, ok := findSlot(job, dataID)
	if !ok {
		return nil, store.ErrNotFound
	}

	params := job.Definition.Parameters
	if _, err := timeseries.ValidateColumns(tbl, slots.Columns(params, slot.Type)); err != nil {
		return nil, err
	}

	var (
		out   *timeseries.Table
		stats *timeseries.Stats
	)
	if params.JobType.Monthly() {
		out, err = timeseries.NormalizeMonthly(tbl)
		if err != nil {
			return nil, err
		}
		stats = monthlyStats(out)
	} else {
		if params.TimeParameters == nil {
			return nil, fmt.Errorf("job %s has no time parameters", jobID)
		}
		out, stats, err = timeseries.Normalize(tbl, *params.TimeParameters, slots.AllowTimeShift(slot.Type))
		if err != nil {
			return nil, err
		}
	}

	b, err := tableio.EncodeArrow(out)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if err := p.store.AddJobData(ctx, user, jobID, dataID, filename, models.FormatArrow, b); err != nil {
		return nil, err
	}
	return stats, nil
}

func findSlot(job *models.Job, dataID uuid.UUID) (models.JobDataDefinition, bool) {
	for _, d := range job.DataObjects {
		if d.ObjectID == dataID {
			return d.Definition, true
		}
	}
	return models.JobDataDefinition{}, false
}

func monthlyStats(tbl *timeseries.Table) *timeseries.Stats {
	stats := &timeseries.Stats{
		ExpectedRows:  tbl.Len(),
		MissingTimes:  []time.Time{},
		ExtraTimes:    []time.Time{},
		MissingValues: make(map[string]int),
	}
	for _, c := range tbl.Columns {
		if c.Name != timeseries.MonthColumnName {
			stats.MissingValues[c.Name] = c.NullCount()
		}
	}
	return stats
}

func classify(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var (
		verr *timeseries.ValidationError
		derr *tableio.DecodeError
	)
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return OutcomeUnsupported
	case errors.As(err, &verr), errors.As(err, &derr),
		errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrJobNotMutable):
		return OutcomeInvalid
	}
	return OutcomeError
}
