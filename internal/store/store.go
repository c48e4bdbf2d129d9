package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrDuplicateKey    = errors.New("duplicate key violation")
	ErrJobNotMutable   = errors.New("job inputs can no longer be modified")
	ErrJobIncomplete   = errors.New("job is missing required data")
	ErrJobTerminal     = errors.New("job has already finished")
	ErrAlreadyComplete = errors.New("job result already exists")
	ErrInvalidStatus   = errors.New("invalid completion status")
	ErrIntegrity       = errors.New("integrity violation")
)

// UncaughtErrorMessage is recorded for jobs whose queue entry failed outside
// the worker's own error handling.
const UncaughtErrorMessage = "Uncaught error during job execution. Framework administrators have been notified."

// Queries are the data operations. Every user-scoped call takes the caller's
// identity; objects owned by someone else are reported as ErrNotFound.
type Queries interface {
	CreateUserIfNotExists(ctx context.Context, user string) (uuid.UUID, error)
	GetUser(ctx context.Context, user string) (*models.User, error)

	ListSystems(ctx context.Context, user string) ([]*models.System, error)
	GetSystem(ctx context.Context, user string, id uuid.UUID) (*models.System, error)
	CreateSystem(ctx context.Context, user string, def models.PVSystem) (*models.System, error)
	UpdateSystem(ctx context.Context, user string, id uuid.UUID, def models.PVSystem) (*models.System, error)
	DeleteSystem(ctx context.Context, user string, id uuid.UUID) error

	CreateJob(ctx context.Context, user string, systemID uuid.UUID, def models.JobDefinition, slots []models.DataSlotSpec) (*models.Job, error)
	ListJobs(ctx context.Context, user string) ([]*models.Job, error)
	GetJob(ctx context.Context, user string, id uuid.UUID) (*models.Job, error)
	DeleteJob(ctx context.Context, user string, id uuid.UUID) error
	GetJobStatus(ctx context.Context, user string, id uuid.UUID) (*models.JobStatus, error)
	QueueJob(ctx context.Context, user string, id uuid.UUID) error

	GetJobData(ctx context.Context, user string, jobID, dataID uuid.UUID) (*models.JobData, error)
	AddJobData(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, format string, data []byte) error

	AddJobResult(ctx context.Context, user string, jobID uuid.UUID, schemaPath, resultType, format string, data []byte) (uuid.UUID, error)
	ListJobResults(ctx context.Context, user string, jobID uuid.UUID) ([]*models.JobResultMeta, error)
	GetJobResult(ctx context.Context, user string, jobID, resultID uuid.UUID) (*models.JobResult, error)
	SetJobCompletion(ctx context.Context, user string, jobID uuid.UUID, status string) error

	// Administrative operations used by the reconciler. They are not scoped
	// to a user.
	ListStatusOfJobs(ctx context.Context) (map[uuid.UUID]string, error)
	ListQueuedJobs(ctx context.Context) (map[uuid.UUID]string, error)
	ReportJobFailure(ctx context.Context, jobID uuid.UUID, message string) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Queries
	Ping(ctx context.Context) error
	// WithTx runs fn in a single transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
