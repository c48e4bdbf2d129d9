package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solarperformanceinsight/spi/internal/jobstate"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements the Store interface using pgx/v5. Multi-statement
// operations run in their own transaction, or in a savepoint when the store
// was handed out by WithTx.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, db: tx})
	})
}

func (s *PostgresStore) tx(ctx context.Context, fn func(q querier) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// --- Users ---

func (s *PostgresStore) CreateUserIfNotExists(ctx context.Context, user string) (uuid.UUID, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, identity) VALUES ($1, $2) ON CONFLICT (identity) DO NOTHING`,
		uuid.New(), user)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return userID(ctx, s.db, user)
}

func (s *PostgresStore) GetUser(ctx context.Context, user string) (*models.User, error) {
	u := models.User{ObjectType: models.ObjectTypeUser, Identity: user}
	err := s.db.QueryRow(ctx, `SELECT id, created_at FROM users WHERE identity = $1`, user).
		Scan(&u.ObjectID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func userID(ctx context.Context, q querier, user string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM users WHERE identity = $1`, user).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get user: %w", err)
	}
	return id, nil
}

// --- Systems ---

const systemColumns = `s.id, s.definition, s.created_at, s.modified_at`

func scanSystem(row pgx.Row) (*models.System, error) {
	var (
		sys models.System
		raw []byte
	)
	if err := row.Scan(&sys.ObjectID, &raw, &sys.CreatedAt, &sys.ModifiedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &sys.Definition); err != nil {
		return nil, fmt.Errorf("decode system definition: %w", err)
	}
	sys.ObjectType = models.ObjectTypeSystem
	return &sys, nil
}

func (s *PostgresStore) ListSystems(ctx context.Context, user string) ([]*models.System, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+systemColumns+` FROM systems s JOIN users u ON u.id = s.owner_id
		 WHERE u.identity = $1 ORDER BY s.created_at, s.name`, user)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	systems := []*models.System{}
	for rows.Next() {
		sys, err := scanSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan system: %w", err)
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

func (s *PostgresStore) GetSystem(ctx context.Context, user string, id uuid.UUID) (*models.System, error) {
	sys, err := scanSystem(s.db.QueryRow(ctx,
		`SELECT `+systemColumns+` FROM systems s JOIN users u ON u.id = s.owner_id
		 WHERE s.id = $1 AND u.identity = $2`, id, user))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system: %w", err)
	}
	return sys, nil
}

func (s *PostgresStore) CreateSystem(ctx context.Context, user string, def models.PVSystem) (*models.System, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode system definition: %w", err)
	}
	var sys *models.System
	err = s.tx(ctx, func(q querier) error {
		owner, err := userID(ctx, q, user)
		if err != nil {
			return err
		}
		sys, err = scanSystem(q.QueryRow(ctx,
			`INSERT INTO systems AS s (id, owner_id, name, definition) VALUES ($1, $2, $3, $4)
			 RETURNING `+systemColumns,
			uuid.New(), owner, def.Name, raw))
		return err
	})
	if err != nil {
		return nil, mapWriteError("create system", err)
	}
	return sys, nil
}

func (s *PostgresStore) UpdateSystem(ctx context.Context, user string, id uuid.UUID, def models.PVSystem) (*models.System, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode system definition: %w", err)
	}
	sys, err := scanSystem(s.db.QueryRow(ctx,
		`UPDATE systems AS s SET name = $3, definition = $4, modified_at = NOW()
		 FROM users u WHERE u.id = s.owner_id AND s.id = $1 AND u.identity = $2
		 RETURNING `+systemColumns,
		id, user, def.Name, raw))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapWriteError("update system", err)
	}
	return sys, nil
}

func (s *PostgresStore) DeleteSystem(ctx context.Context, user string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM systems s USING users u
		 WHERE u.id = s.owner_id AND s.id = $1 AND u.identity = $2`, id, user)
	if err != nil {
		return fmt.Errorf("delete system: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

type jobRow struct {
	job        models.Job
	status     string
	lastChange time.Time
}

const jobColumns = `j.id, j.definition, j.status, j.status_last_change, j.created_at, j.modified_at`

func scanJobRow(row pgx.Row) (*jobRow, error) {
	var (
		r   jobRow
		raw []byte
	)
	if err := row.Scan(&r.job.ObjectID, &raw, &r.status, &r.lastChange, &r.job.CreatedAt, &r.job.ModifiedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.job.Definition); err != nil {
		return nil, fmt.Errorf("decode job definition: %w", err)
	}
	r.job.ObjectType = models.ObjectTypeJob
	return &r, nil
}

// finish derives the reported status from the persisted one and the data
// slots. The last change is the later of the status change and any upload.
func (r *jobRow) finish(data []models.JobDataMeta) *models.Job {
	allPresent := true
	last := r.lastChange
	for _, d := range data {
		allPresent = allPresent && d.Definition.Present
		if d.ModifiedAt.After(last) {
			last = d.ModifiedAt
		}
	}
	if data == nil {
		data = []models.JobDataMeta{}
	}
	r.job.DataObjects = data
	r.job.Status = models.JobStatus{
		Status:     jobstate.Report(r.status, allPresent),
		LastChange: last.UTC(),
	}
	return &r.job
}

const dataMetaColumns = `d.id, d.job_id, d.schema_path, d.type, d.present,
	COALESCE(d.filename, ''), COALESCE(d.format, ''), d.created_at, d.modified_at`

func scanDataMeta(row pgx.Row) (uuid.UUID, models.JobDataMeta, error) {
	var (
		m     models.JobDataMeta
		jobID uuid.UUID
	)
	err := row.Scan(&m.ObjectID, &jobID, &m.Definition.SchemaPath, &m.Definition.Type, &m.Definition.Present,
		&m.Definition.Filename, &m.Definition.DataFormat, &m.CreatedAt, &m.ModifiedAt)
	m.ObjectType = models.ObjectTypeJobData
	return jobID, m, err
}

func dataMetaFor(ctx context.Context, q querier, jobIDs []uuid.UUID) (map[uuid.UUID][]models.JobDataMeta, error) {
	rows, err := q.Query(ctx,
		`SELECT `+dataMetaColumns+` FROM job_data d WHERE d.job_id = ANY($1)
		 ORDER BY d.job_id, d.ordinal`, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("list job data: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.JobDataMeta, len(jobIDs))
	for rows.Next() {
		jobID, m, err := scanDataMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job data: %w", err)
		}
		out[jobID] = append(out[jobID], m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateJob(ctx context.Context, user string, systemID uuid.UUID, def models.JobDefinition, slots []models.DataSlotSpec) (*models.Job, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode job definition: %w", err)
	}
	jobID := uuid.New()
	err = s.tx(ctx, func(q querier) error {
		owner, err := userID(ctx, q, user)
		if err != nil {
			return err
		}
		var one int
		err = q.QueryRow(ctx, `SELECT 1 FROM systems WHERE id = $1 AND owner_id = $2`, systemID, owner).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check system: %w", err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO jobs (id, owner_id, system_id, definition) VALUES ($1, $2, $3, $4)`,
			jobID, owner, systemID, raw); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, slot := range slots {
			batch.Queue(`INSERT INTO job_data (id, job_id, schema_path, type, ordinal) VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), jobID, slot.SchemaPath, slot.Type, i)
		}
		return q.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, mapWriteError("create job", err)
	}
	return s.GetJob(ctx, user, jobID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, user string) ([]*models.Job, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs j JOIN users u ON u.id = j.owner_id
		 WHERE u.identity = $1 ORDER BY j.created_at`, user)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var (
		jobRows []*jobRow
		ids     []uuid.UUID
	)
	for rows.Next() {
		r, err := scanJobRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobRows = append(jobRows, r)
		ids = append(ids, r.job.ObjectID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(jobRows))
	if len(ids) == 0 {
		return jobs, nil
	}
	data, err := dataMetaFor(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range jobRows {
		jobs = append(jobs, r.finish(data[r.job.ObjectID]))
	}
	return jobs, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, user string, id uuid.UUID) (*models.Job, error) {
	r, err := getJobRow(ctx, s.db, user, id, "")
	if err != nil {
		return nil, err
	}
	data, err := dataMetaFor(ctx, s.db, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return r.finish(data[id]), nil
}

// getJobRow loads a job owned by user. lock is appended to the query, e.g.
// "FOR UPDATE OF j".
func getJobRow(ctx context.Context, q querier, user string, id uuid.UUID, lock string) (*jobRow, error) {
	r, err := scanJobRow(q.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs j JOIN users u ON u.id = j.owner_id
		 WHERE j.id = $1 AND u.identity = $2 `+lock, id, user))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, user string, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM jobs j USING users u
		 WHERE u.id = j.owner_id AND j.id = $1 AND u.identity = $2`, id, user)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJobStatus(ctx context.Context, user string, id uuid.UUID) (*models.JobStatus, error) {
	job, err := s.GetJob(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return &job.Status, nil
}

func (s *PostgresStore) QueueJob(ctx context.Context, user string, id uuid.UUID) error {
	return s.tx(ctx, func(q querier) error {
		r, err := getJobRow(ctx, q, user, id, "FOR UPDATE OF j")
		if err != nil {
			return err
		}
		switch {
		case r.status == models.JobStatusQueued:
			return nil
		case jobstate.Terminal(r.status):
			return ErrJobTerminal
		}
		var missing int
		if err := q.QueryRow(ctx,
			`SELECT COUNT(*) FROM job_data WHERE job_id = $1 AND NOT present`, id).Scan(&missing); err != nil {
			return fmt.Errorf("count missing data: %w", err)
		}
		if missing > 0 {
			return ErrJobIncomplete
		}
		if _, err := q.Exec(ctx,
			`UPDATE jobs SET status = $2, status_last_change = NOW(), modified_at = NOW() WHERE id = $1`,
			id, models.JobStatusQueued); err != nil {
			return fmt.Errorf("queue job: %w", err)
		}
		return nil
	})
}

// --- Job data ---

func (s *PostgresStore) GetJobData(ctx context.Context, user string, jobID, dataID uuid.UUID) (*models.JobData, error) {
	var d models.JobData
	row := s.db.QueryRow(ctx,
		`SELECT `+dataMetaColumns+`, d.data
		 FROM job_data d JOIN jobs j ON j.id = d.job_id JOIN users u ON u.id = j.owner_id
		 WHERE d.id = $1 AND d.job_id = $2 AND u.identity = $3`, dataID, jobID, user)
	var jid uuid.UUID
	err := row.Scan(&d.ObjectID, &jid, &d.Definition.SchemaPath, &d.Definition.Type, &d.Definition.Present,
		&d.Definition.Filename, &d.Definition.DataFormat, &d.CreatedAt, &d.ModifiedAt, &d.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job data: %w", err)
	}
	d.ObjectType = models.ObjectTypeJobData
	return &d, nil
}

func (s *PostgresStore) AddJobData(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, format string, data []byte) error {
	return s.tx(ctx, func(q querier) error {
		r, err := getJobRow(ctx, q, user, jobID, "FOR UPDATE OF j")
		if err != nil {
			return err
		}
		if !jobstate.InputsMutable(r.status) {
			return ErrJobNotMutable
		}
		tag, err := q.Exec(ctx,
			`UPDATE job_data SET present = TRUE, filename = $3, format = $4, data = $5, modified_at = NOW()
			 WHERE id = $1 AND job_id = $2`, dataID, jobID, filename, format, data)
		if err != nil {
			return fmt.Errorf("add job data: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := q.Exec(ctx,
			`UPDATE jobs SET status_last_change = NOW(), modified_at = NOW() WHERE id = $1`, jobID); err != nil {
			return fmt.Errorf("touch job: %w", err)
		}
		return nil
	})
}

// --- Job results ---

const resultMetaColumns = `r.id, r.schema_path, r.type, r.format, r.created_at, r.modified_at`

func scanResultMeta(row pgx.Row, extra ...any) (*models.JobResultMeta, error) {
	var m models.JobResultMeta
	dest := append([]any{&m.ObjectID, &m.Definition.SchemaPath, &m.Definition.Type,
		&m.Definition.DataFormat, &m.CreatedAt, &m.ModifiedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.ObjectType = models.ObjectTypeJobResult
	return &m, nil
}

func (s *PostgresStore) AddJobResult(ctx context.Context, user string, jobID uuid.UUID, schemaPath, resultType, format string, data []byte) (uuid.UUID, error) {
	id := uuid.New()
	err := s.tx(ctx, func(q querier) error {
		r, err := getJobRow(ctx, q, user, jobID, "")
		if err != nil {
			return err
		}
		if jobstate.Terminal(r.status) {
			return ErrAlreadyComplete
		}
		return insertResult(ctx, q, id, jobID, schemaPath, resultType, format, data)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return uuid.Nil, ErrAlreadyComplete
		}
		return uuid.Nil, mapWriteError("add job result", err)
	}
	return id, nil
}

func insertResult(ctx context.Context, q querier, id, jobID uuid.UUID, schemaPath, resultType, format string, data []byte) error {
	_, err := q.Exec(ctx,
		`INSERT INTO job_results (id, job_id, schema_path, type, format, data) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, jobID, schemaPath, resultType, format, data)
	return err
}

func (s *PostgresStore) ListJobResults(ctx context.Context, user string, jobID uuid.UUID) ([]*models.JobResultMeta, error) {
	if _, err := getJobRow(ctx, s.db, user, jobID, ""); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+resultMetaColumns+` FROM job_results r WHERE r.job_id = $1
		 ORDER BY r.schema_path, r.type`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	defer rows.Close()

	results := []*models.JobResultMeta{}
	for rows.Next() {
		m, err := scanResultMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *PostgresStore) GetJobResult(ctx context.Context, user string, jobID, resultID uuid.UUID) (*models.JobResult, error) {
	var data []byte
	m, err := scanResultMeta(s.db.QueryRow(ctx,
		`SELECT `+resultMetaColumns+`, r.data
		 FROM job_results r JOIN jobs j ON j.id = r.job_id JOIN users u ON u.id = j.owner_id
		 WHERE r.id = $1 AND r.job_id = $2 AND u.identity = $3`, resultID, jobID, user), &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}
	return &models.JobResult{JobResultMeta: *m, Data: data}, nil
}

func (s *PostgresStore) SetJobCompletion(ctx context.Context, user string, jobID uuid.UUID, status string) error {
	if !jobstate.Completion(status) {
		return ErrInvalidStatus
	}
	return s.tx(ctx, func(q querier) error {
		r, err := getJobRow(ctx, q, user, jobID, "FOR UPDATE OF j")
		if err != nil {
			return err
		}
		if err := jobstate.Transition(r.status, status); err != nil {
			return fmt.Errorf("%w: %v", ErrJobTerminal, err)
		}
		return setStatus(ctx, q, jobID, status)
	})
}

func setStatus(ctx context.Context, q querier, jobID uuid.UUID, status string) error {
	if _, err := q.Exec(ctx,
		`UPDATE jobs SET status = $2, status_last_change = NOW(), modified_at = NOW() WHERE id = $1`,
		jobID, status); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// --- Administrative ---

func (s *PostgresStore) ListStatusOfJobs(ctx context.Context) (map[uuid.UUID]string, error) {
	return s.collectPairs(ctx, "list status of jobs", `SELECT id, status FROM jobs`)
}

func (s *PostgresStore) ListQueuedJobs(ctx context.Context) (map[uuid.UUID]string, error) {
	return s.collectPairs(ctx, "list queued jobs",
		`SELECT j.id, u.identity FROM jobs j JOIN users u ON u.id = j.owner_id WHERE j.status = 'queued'`)
}

func (s *PostgresStore) collectPairs(ctx context.Context, op, sql string) (map[uuid.UUID]string, error) {
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string)
	for rows.Next() {
		var (
			id uuid.UUID
			v  string
		)
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[id] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReportJobFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	return s.tx(ctx, func(q querier) error {
		var status string
		err := q.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job status: %w", err)
		}
		if jobstate.Terminal(status) {
			return ErrJobTerminal
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO job_results (id, job_id, schema_path, type, format, data)
			 VALUES ($1, $2, '/', $3, $4, $5)
			 ON CONFLICT (job_id, schema_path, type) DO NOTHING`,
			uuid.New(), jobID, models.ResultErrorMessage, models.FormatJSON, models.NewErrorMessage(message)); err != nil {
			return fmt.Errorf("add failure result: %w", err)
		}
		return setStatus(ctx, q, jobID, models.JobStatusError)
	})
}

// mapWriteError converts constraint violations to sentinels and wraps
// everything else with the operation name.
func mapWriteError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyComplete):
		return err
	case isDuplicateKeyError(err):
		return ErrDuplicateKey
	case isForeignKeyError(err):
		return ErrIntegrity
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
