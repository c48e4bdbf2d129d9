package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/solarperformanceinsight/spi/internal/api/response"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/slots"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// JobRecorder counts job lifecycle events.
type JobRecorder interface {
	RecordJobCreated()
	RecordJobQueued()
}

type jobPlan struct {
	Definition  models.JobDefinition  `json:"definition"`
	DataObjects []models.DataSlotSpec `json:"data_objects"`
}

// planJob validates parameters against the referenced system and derives the
// job's data slots.
func planJob(ctx context.Context, s store.Queries, user string, params models.JobParameters) (*jobPlan, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sys, err := s.GetSystem(ctx, user, params.SystemID)
	if err != nil {
		return nil, err
	}
	specs, err := slots.Derive(sys.Definition, params)
	if err != nil {
		v := &models.ValidationError{}
		v.Add("parameters", err.Error())
		return nil, v
	}
	return &jobPlan{
		Definition:  models.JobDefinition{SystemDefinition: sys.Definition, Parameters: params},
		DataObjects: specs,
	}, nil
}

// NewCheckJobHandler returns an http.HandlerFunc for POST /jobs/check. It
// reports the data a job would need without creating it.
func NewCheckJobHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var params models.JobParameters
		if !decodeBody(w, r, &params) {
			return
		}
		plan, err := planJob(r.Context(), s, user, params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, plan)
	}
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /jobs/.
func NewCreateJobHandler(s store.Store, rec JobRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var params models.JobParameters
		if !decodeBody(w, r, &params) {
			return
		}

		var job *models.Job
		err := s.WithTx(r.Context(), func(q store.Queries) error {
			plan, err := planJob(r.Context(), q, user, params)
			if err != nil {
				return err
			}
			job, err = q.CreateJob(r.Context(), user, params.SystemID, plan.Definition, plan.DataObjects)
			return err
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rec != nil {
			rec.RecordJobCreated()
		}
		w.Header().Set("Location", "/jobs/"+job.ObjectID.String())
		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /jobs/.
func NewListJobsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		jobs, err := s.ListJobs(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /jobs/{jobID}.
func NewGetJobHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		job, err := s.GetJob(r.Context(), user, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /jobs/{jobID}.
// The queue entry is removed after the job, which also signals a worker
// running it to stop.
func NewDeleteJobHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		if err := s.DeleteJob(r.Context(), user, id); err != nil {
			writeError(w, r, err)
			return
		}
		if err := q.Remove(r.Context(), id); err != nil {
			// the reconciler drops entries of deleted jobs
			slog.Warn("remove queue entry", "job_id", id, "error", err)
		}
		response.NoContent(w)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /jobs/{jobID}/status.
// A queued job whose queue entry has been picked up reports as running.
func NewJobStatusHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		status, err := s.GetJobStatus(r.Context(), user, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if status.Status == models.JobStatusQueued {
			entry, err := q.Status(r.Context(), id)
			switch {
			case err != nil:
				slog.Warn("read queue entry", "job_id", id, "error", err)
			case entry != nil && entry.State == queue.StateStarted:
				status = &models.JobStatus{Status: models.JobStatusRunning, LastChange: entry.StartedAt}
			}
		}
		response.JSON(w, status)
	}
}

// NewComputeHandler returns an http.HandlerFunc for POST /jobs/{jobID}/compute.
// The status change is authoritative; if the enqueue fails the reconciler
// picks the job up on its next pass.
func NewComputeHandler(s store.Store, q queue.Queue, rec JobRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "jobID")
		if !ok {
			return
		}
		var status *models.JobStatus
		err := s.WithTx(r.Context(), func(tx store.Queries) error {
			if err := tx.QueueJob(r.Context(), user, id); err != nil {
				return err
			}
			var err error
			status, err = tx.GetJobStatus(r.Context(), user, id)
			return err
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rec != nil {
			rec.RecordJobQueued()
		}
		if err := q.Enqueue(r.Context(), id, user); err != nil {
			slog.Warn("enqueue job", "job_id", id, "error", err)
		}
		response.Accepted(w, status)
	}
}
