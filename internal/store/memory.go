package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/jobstate"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

type memSystem struct {
	seq   int64
	owner string
	sys   models.System
}

type memJob struct {
	seq        int64
	owner      string
	systemID   uuid.UUID
	job        models.Job
	status     string
	lastChange time.Time
}

type memData struct {
	seq   int64
	jobID uuid.UUID
	meta  models.JobDataMeta
	data  []byte
}

type memResult struct {
	seq   int64
	jobID uuid.UUID
	meta  models.JobResultMeta
	data  []byte
}

type memState struct {
	seq     int64
	users   map[string]models.User
	systems map[uuid.UUID]memSystem
	jobs    map[uuid.UUID]memJob
	data    map[uuid.UUID]memData
	results map[uuid.UUID]memResult
}

func newMemState() *memState {
	return &memState{
		users:   make(map[string]models.User),
		systems: make(map[uuid.UUID]memSystem),
		jobs:    make(map[uuid.UUID]memJob),
		data:    make(map[uuid.UUID]memData),
		results: make(map[uuid.UUID]memResult),
	}
}

// clone copies the maps. Records are values and byte slices are never
// modified in place, so a shallow copy is enough.
func (st *memState) clone() *memState {
	c := &memState{
		seq:     st.seq,
		users:   make(map[string]models.User, len(st.users)),
		systems: make(map[uuid.UUID]memSystem, len(st.systems)),
		jobs:    make(map[uuid.UUID]memJob, len(st.jobs)),
		data:    make(map[uuid.UUID]memData, len(st.data)),
		results: make(map[uuid.UUID]memResult, len(st.results)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.systems {
		c.systems[k] = v
	}
	for k, v := range st.jobs {
		c.jobs[k] = v
	}
	for k, v := range st.data {
		c.data[k] = v
	}
	for k, v := range st.results {
		c.results[k] = v
	}
	return c
}

func (st *memState) next() int64 {
	st.seq++
	return st.seq
}

// MemoryStore is an in-process Store with the same semantics as
// PostgresStore. Transactions are serialised: WithTx holds the store for the
// duration of fn and swaps in the new state on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	child := &MemoryStore{state: s.state.clone(), now: s.now}
	if err := fn(child); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = child.state
	return nil
}

func (s *MemoryStore) read(fn func(st *memState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *MemoryStore) update(fn func(st *memState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	if err := fn(st); err != nil {
		return err
	}
	s.state = st
	return nil
}

func (s *MemoryStore) CreateUserIfNotExists(ctx context.Context, user string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.update(func(st *memState) error {
		if existing, ok := st.users[user]; ok {
			id = existing.ObjectID
			return nil
		}
		id = uuid.New()
		st.users[user] = models.User{
			ObjectID:   id,
			ObjectType: models.ObjectTypeUser,
			CreatedAt:  s.now(),
			Identity:   user,
		}
		return nil
	})
	return id, err
}

func (s *MemoryStore) GetUser(ctx context.Context, user string) (*models.User, error) {
	var u models.User
	err := s.read(func(st *memState) error {
		existing, ok := st.users[user]
		if !ok {
			return ErrNotFound
		}
		u = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- Systems ---

func (s *MemoryStore) ListSystems(ctx context.Context, user string) ([]*models.System, error) {
	out := []*models.System{}
	err := s.read(func(st *memState) error {
		var recs []memSystem
		for _, r := range st.systems {
			if r.owner == user {
				recs = append(recs, r)
			}
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
		for _, r := range recs {
			sys := r.sys
			out = append(out, &sys)
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetSystem(ctx context.Context, user string, id uuid.UUID) (*models.System, error) {
	var sys models.System
	err := s.read(func(st *memState) error {
		r, ok := st.systems[id]
		if !ok || r.owner != user {
			return ErrNotFound
		}
		sys = r.sys
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

func nameTaken(st *memState, user, name string, except uuid.UUID) bool {
	for id, r := range st.systems {
		if id != except && r.owner == user && r.sys.Definition.Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateSystem(ctx context.Context, user string, def models.PVSystem) (*models.System, error) {
	var sys models.System
	err := s.update(func(st *memState) error {
		if _, ok := st.users[user]; !ok {
			return ErrNotFound
		}
		if nameTaken(st, user, def.Name, uuid.Nil) {
			return ErrDuplicateKey
		}
		now := s.now()
		sys = models.System{
			ObjectID:   uuid.New(),
			ObjectType: models.ObjectTypeSystem,
			CreatedAt:  now,
			ModifiedAt: now,
			Definition: def,
		}
		st.systems[sys.ObjectID] = memSystem{seq: st.next(), owner: user, sys: sys}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

func (s *MemoryStore) UpdateSystem(ctx context.Context, user string, id uuid.UUID, def models.PVSystem) (*models.System, error) {
	var sys models.System
	err := s.update(func(st *memState) error {
		r, ok := st.systems[id]
		if !ok || r.owner != user {
			return ErrNotFound
		}
		if nameTaken(st, user, def.Name, id) {
			return ErrDuplicateKey
		}
		r.sys.Definition = def
		r.sys.ModifiedAt = s.now()
		st.systems[id] = r
		sys = r.sys
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

func (s *MemoryStore) DeleteSystem(ctx context.Context, user string, id uuid.UUID) error {
	return s.update(func(st *memState) error {
		r, ok := st.systems[id]
		if !ok || r.owner != user {
			return ErrNotFound
		}
		delete(st.systems, id)
		for jobID, j := range st.jobs {
			if j.systemID == id {
				deleteJob(st, jobID)
			}
		}
		return nil
	})
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(ctx context.Context, user string, systemID uuid.UUID, def models.JobDefinition, slots []models.DataSlotSpec) (*models.Job, error) {
	var job *models.Job
	err := s.update(func(st *memState) error {
		sys, ok := st.systems[systemID]
		if !ok || sys.owner != user {
			return ErrNotFound
		}
		now := s.now()
		j := memJob{
			seq:      st.next(),
			owner:    user,
			systemID: systemID,
			job: models.Job{
				ObjectID:   uuid.New(),
				ObjectType: models.ObjectTypeJob,
				CreatedAt:  now,
				ModifiedAt: now,
				Definition: def,
			},
			status:     models.JobStatusCreated,
			lastChange: now,
		}
		seen := make(map[models.DataSlotSpec]bool, len(slots))
		for _, slot := range slots {
			if seen[slot] {
				return ErrDuplicateKey
			}
			seen[slot] = true
			id := uuid.New()
			st.data[id] = memData{
				seq:   st.next(),
				jobID: j.job.ObjectID,
				meta: models.JobDataMeta{
					ObjectID:   id,
					ObjectType: models.ObjectTypeJobData,
					CreatedAt:  now,
					ModifiedAt: now,
					Definition: models.JobDataDefinition{SchemaPath: slot.SchemaPath, Type: slot.Type},
				},
			}
		}
		st.jobs[j.job.ObjectID] = j
		job = assemble(st, j)
		return nil
	})
	return job, err
}

func jobData(st *memState, jobID uuid.UUID) []models.JobDataMeta {
	var recs []memData
	for _, d := range st.data {
		if d.jobID == jobID {
			recs = append(recs, d)
		}
	}
	// slots keep the order they were derived in
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]models.JobDataMeta, len(recs))
	for i, r := range recs {
		out[i] = r.meta
	}
	return out
}

func assemble(st *memState, j memJob) *models.Job {
	r := jobRow{job: j.job, status: j.status, lastChange: j.lastChange}
	return r.finish(jobData(st, j.job.ObjectID))
}

func ownedJob(st *memState, user string, id uuid.UUID) (memJob, error) {
	j, ok := st.jobs[id]
	if !ok || j.owner != user {
		return memJob{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, user string) ([]*models.Job, error) {
	out := []*models.Job{}
	err := s.read(func(st *memState) error {
		var recs []memJob
		for _, j := range st.jobs {
			if j.owner == user {
				recs = append(recs, j)
			}
		}
		sort.Slice(recs, func(a, b int) bool { return recs[a].seq < recs[b].seq })
		for _, j := range recs {
			out = append(out, assemble(st, j))
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetJob(ctx context.Context, user string, id uuid.UUID) (*models.Job, error) {
	var job *models.Job
	err := s.read(func(st *memState) error {
		j, err := ownedJob(st, user, id)
		if err != nil {
			return err
		}
		job = assemble(st, j)
		return nil
	})
	return job, err
}

func deleteJob(st *memState, id uuid.UUID) {
	delete(st.jobs, id)
	for k, d := range st.data {
		if d.jobID == id {
			delete(st.data, k)
		}
	}
	for k, r := range st.results {
		if r.jobID == id {
			delete(st.results, k)
		}
	}
}

func (s *MemoryStore) DeleteJob(ctx context.Context, user string, id uuid.UUID) error {
	return s.update(func(st *memState) error {
		if _, err := ownedJob(st, user, id); err != nil {
			return err
		}
		deleteJob(st, id)
		return nil
	})
}

func (s *MemoryStore) GetJobStatus(ctx context.Context, user string, id uuid.UUID) (*models.JobStatus, error) {
	job, err := s.GetJob(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return &job.Status, nil
}

func (s *MemoryStore) QueueJob(ctx context.Context, user string, id uuid.UUID) error {
	return s.update(func(st *memState) error {
		j, err := ownedJob(st, user, id)
		if err != nil {
			return err
		}
		switch {
		case j.status == models.JobStatusQueued:
			return nil
		case jobstate.Terminal(j.status):
			return ErrJobTerminal
		}
		for _, d := range jobData(st, id) {
			if !d.Definition.Present {
				return ErrJobIncomplete
			}
		}
		now := s.now()
		j.status = models.JobStatusQueued
		j.lastChange = now
		j.job.ModifiedAt = now
		st.jobs[id] = j
		return nil
	})
}

// --- Job data ---

func (s *MemoryStore) GetJobData(ctx context.Context, user string, jobID, dataID uuid.UUID) (*models.JobData, error) {
	var out models.JobData
	err := s.read(func(st *memState) error {
		if _, err := ownedJob(st, user, jobID); err != nil {
			return err
		}
		d, ok := st.data[dataID]
		if !ok || d.jobID != jobID {
			return ErrNotFound
		}
		out = models.JobData{JobDataMeta: d.meta, Data: d.data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) AddJobData(ctx context.Context, user string, jobID, dataID uuid.UUID, filename, format string, data []byte) error {
	return s.update(func(st *memState) error {
		j, err := ownedJob(st, user, jobID)
		if err != nil {
			return err
		}
		if !jobstate.InputsMutable(j.status) {
			return ErrJobNotMutable
		}
		d, ok := st.data[dataID]
		if !ok || d.jobID != jobID {
			return ErrNotFound
		}
		now := s.now()
		d.meta.Definition.Present = true
		d.meta.Definition.Filename = filename
		d.meta.Definition.DataFormat = format
		d.meta.ModifiedAt = now
		d.data = data
		st.data[dataID] = d

		j.lastChange = now
		j.job.ModifiedAt = now
		st.jobs[jobID] = j
		return nil
	})
}

// --- Job results ---

func resultTaken(st *memState, jobID uuid.UUID, schemaPath, resultType string) bool {
	for _, r := range st.results {
		if r.jobID == jobID && r.meta.Definition.SchemaPath == schemaPath && r.meta.Definition.Type == resultType {
			return true
		}
	}
	return false
}

func addResult(st *memState, now time.Time, jobID uuid.UUID, schemaPath, resultType, format string, data []byte) uuid.UUID {
	id := uuid.New()
	st.results[id] = memResult{
		seq:   st.next(),
		jobID: jobID,
		meta: models.JobResultMeta{
			ObjectID:   id,
			ObjectType: models.ObjectTypeJobResult,
			CreatedAt:  now,
			ModifiedAt: now,
			Definition: models.JobResultDefinition{SchemaPath: schemaPath, Type: resultType, DataFormat: format},
		},
		data: data,
	}
	return id
}

func (s *MemoryStore) AddJobResult(ctx context.Context, user string, jobID uuid.UUID, schemaPath, resultType, format string, data []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.update(func(st *memState) error {
		j, err := ownedJob(st, user, jobID)
		if err != nil {
			return err
		}
		if jobstate.Terminal(j.status) || resultTaken(st, jobID, schemaPath, resultType) {
			return ErrAlreadyComplete
		}
		id = addResult(st, s.now(), jobID, schemaPath, resultType, format, data)
		return nil
	})
	return id, err
}

func (s *MemoryStore) ListJobResults(ctx context.Context, user string, jobID uuid.UUID) ([]*models.JobResultMeta, error) {
	out := []*models.JobResultMeta{}
	err := s.read(func(st *memState) error {
		if _, err := ownedJob(st, user, jobID); err != nil {
			return err
		}
		var recs []memResult
		for _, r := range st.results {
			if r.jobID == jobID {
				recs = append(recs, r)
			}
		}
		sort.Slice(recs, func(i, j int) bool {
			a, b := recs[i].meta.Definition, recs[j].meta.Definition
			if a.SchemaPath != b.SchemaPath {
				return a.SchemaPath < b.SchemaPath
			}
			return a.Type < b.Type
		})
		for _, r := range recs {
			m := r.meta
			out = append(out, &m)
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetJobResult(ctx context.Context, user string, jobID, resultID uuid.UUID) (*models.JobResult, error) {
	var out models.JobResult
	err := s.read(func(st *memState) error {
		if _, err := ownedJob(st, user, jobID); err != nil {
			return err
		}
		r, ok := st.results[resultID]
		if !ok || r.jobID != jobID {
			return ErrNotFound
		}
		out = models.JobResult{JobResultMeta: r.meta, Data: r.data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func setMemStatus(st *memState, j memJob, status string, now time.Time) {
	j.status = status
	j.lastChange = now
	j.job.ModifiedAt = now
	st.jobs[j.job.ObjectID] = j
}

func (s *MemoryStore) SetJobCompletion(ctx context.Context, user string, jobID uuid.UUID, status string) error {
	if !jobstate.Completion(status) {
		return ErrInvalidStatus
	}
	return s.update(func(st *memState) error {
		j, err := ownedJob(st, user, jobID)
		if err != nil {
			return err
		}
		if !jobstate.CanTransition(j.status, status) {
			return ErrJobTerminal
		}
		setMemStatus(st, j, status, s.now())
		return nil
	})
}

// --- Administrative ---

func (s *MemoryStore) ListStatusOfJobs(ctx context.Context) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	err := s.read(func(st *memState) error {
		for id, j := range st.jobs {
			out[id] = j.status
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListQueuedJobs(ctx context.Context) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	err := s.read(func(st *memState) error {
		for id, j := range st.jobs {
			if j.status == models.JobStatusQueued {
				out[id] = j.owner
			}
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) ReportJobFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	return s.update(func(st *memState) error {
		j, ok := st.jobs[jobID]
		if !ok {
			return ErrNotFound
		}
		if jobstate.Terminal(j.status) {
			return ErrJobTerminal
		}
		now := s.now()
		if !resultTaken(st, jobID, "/", models.ResultErrorMessage) {
			addResult(st, now, jobID, "/", models.ResultErrorMessage, models.FormatJSON, models.NewErrorMessage(message))
		}
		setMemStatus(st, j, models.JobStatusError, now)
		return nil
	})
}
