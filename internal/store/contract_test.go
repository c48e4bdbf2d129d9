package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/slots"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "auth0|alice"
	bob   = "auth0|bob"
)

func testSystem(name string) models.PVSystem {
	return models.PVSystem{
		Name:      name,
		Latitude:  33.98,
		Longitude: -115.323,
		Inverters: []models.Inverter{{
			Name:   "inv",
			Arrays: []models.PVArray{{Name: "arr", ModulesPerString: 10, Strings: 2}},
		}},
	}
}

var twoSlots = []models.DataSlotSpec{
	{SchemaPath: "/", Type: models.DataActualWeather},
	{SchemaPath: "/", Type: models.DataActualPerformance},
}

// seedJob creates both users, a system for alice and a job with two slots.
func seedJob(t *testing.T, s store.Store) *models.Job {
	t.Helper()
	ctx := context.Background()
	for _, u := range []string{alice, bob} {
		_, err := s.CreateUserIfNotExists(ctx, u)
		require.NoError(t, err)
	}
	sys, err := s.CreateSystem(ctx, alice, testSystem("plant-"+uuid.NewString()[:8]))
	require.NoError(t, err)

	def := models.JobDefinition{
		SystemDefinition: sys.Definition,
		Parameters: models.JobParameters{
			SystemID:               sys.ObjectID,
			JobType:                models.JobCompareExpectedActual,
			WeatherGranularity:     models.GranularitySystem,
			PerformanceGranularity: models.GranularitySystem,
			IrradianceType:         models.IrradiancePOA,
			TemperatureType:        models.TemperatureCell,
		},
	}
	job, err := s.CreateJob(ctx, alice, sys.ObjectID, def, twoSlots)
	require.NoError(t, err)
	return job
}

func uploadAll(t *testing.T, s store.Store, job *models.Job) {
	t.Helper()
	for _, d := range job.DataObjects {
		require.NoError(t, s.AddJobData(context.Background(), alice, job.ObjectID, d.ObjectID,
			"data.arrow", models.FormatArrow, []byte("bytes")))
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("UsersAreIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id1, err := s.CreateUserIfNotExists(ctx, alice)
		require.NoError(t, err)
		id2, err := s.CreateUserIfNotExists(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		u, err := s.GetUser(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, id1, u.ObjectID)
		assert.Equal(t, alice, u.Identity)
		assert.Equal(t, models.ObjectTypeUser, u.ObjectType)
		assert.False(t, u.CreatedAt.IsZero())

		_, err = s.GetUser(ctx, bob)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SystemCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.CreateUserIfNotExists(ctx, alice)
		require.NoError(t, err)
		_, err = s.CreateUserIfNotExists(ctx, bob)
		require.NoError(t, err)

		sys, err := s.CreateSystem(ctx, alice, testSystem("one"))
		require.NoError(t, err)
		assert.Equal(t, models.ObjectTypeSystem, sys.ObjectType)
		assert.Equal(t, "one", sys.Definition.Name)

		_, err = s.CreateSystem(ctx, alice, testSystem("one"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
		_, err = s.CreateSystem(ctx, bob, testSystem("one"))
		assert.NoError(t, err, "names are unique per user")

		_, err = s.GetSystem(ctx, bob, sys.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		two, err := s.CreateSystem(ctx, alice, testSystem("two"))
		require.NoError(t, err)
		_, err = s.UpdateSystem(ctx, alice, two.ObjectID, testSystem("one"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)

		updated, err := s.UpdateSystem(ctx, alice, two.ObjectID, testSystem("three"))
		require.NoError(t, err)
		assert.Equal(t, "three", updated.Definition.Name)
		_, err = s.UpdateSystem(ctx, bob, two.ObjectID, testSystem("four"))
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, err := s.ListSystems(ctx, alice)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "one", list[0].Definition.Name)

		assert.ErrorIs(t, s.DeleteSystem(ctx, bob, sys.ObjectID), store.ErrNotFound)
		require.NoError(t, s.DeleteSystem(ctx, alice, sys.ObjectID))
		_, err = s.GetSystem(ctx, alice, sys.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CreateJobRequiresOwnedSystem", func(t *testing.T) {
		s := newStore(t)
		job := seedJob(t, s)
		_, err := s.CreateJob(context.Background(), bob, job.Definition.Parameters.SystemID, job.Definition, twoSlots)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DataSlotsKeepDerivedOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.CreateUserIfNotExists(ctx, alice)
		require.NoError(t, err)

		def := testSystem("eleven")
		for len(def.Inverters) < 11 {
			def.Inverters = append(def.Inverters, def.Inverters[0])
		}
		sys, err := s.CreateSystem(ctx, alice, def)
		require.NoError(t, err)

		params := models.JobParameters{
			SystemID:               sys.ObjectID,
			JobType:                models.JobComparePredictedActual,
			WeatherGranularity:     models.GranularityInverter,
			PerformanceGranularity: models.GranularityInverter,
			IrradianceType:         models.IrradiancePOA,
			TemperatureType:        models.TemperatureCell,
		}
		specs, err := slots.Derive(sys.Definition, params)
		require.NoError(t, err)
		require.Len(t, specs, 33)

		job, err := s.CreateJob(ctx, alice, sys.ObjectID,
			models.JobDefinition{SystemDefinition: sys.Definition, Parameters: params}, specs)
		require.NoError(t, err)
		assert.True(t, slots.Equal(job.DataObjects, specs), "created job data out of order")

		got, err := s.GetJob(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.True(t, slots.Equal(got.DataObjects, specs), "stored job data out of order")
		assert.Equal(t, "/inverters/2", got.DataObjects[2].Definition.SchemaPath)
		assert.Equal(t, "/inverters/10", got.DataObjects[10].Definition.SchemaPath)

		listed, err := s.ListJobs(ctx, alice)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.True(t, slots.Equal(listed[0].DataObjects, specs), "listed job data out of order")
	})

	t.Run("JobLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		assert.Equal(t, models.JobStatusCreated, job.Status.Status)
		require.Len(t, job.DataObjects, 2)
		for _, d := range job.DataObjects {
			assert.False(t, d.Definition.Present)
		}

		assert.ErrorIs(t, s.QueueJob(ctx, alice, job.ObjectID), store.ErrJobIncomplete)

		first := job.DataObjects[0]
		require.NoError(t, s.AddJobData(ctx, alice, job.ObjectID, first.ObjectID, "w.csv", models.FormatArrow, []byte("w")))
		st, err := s.GetJobStatus(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCreated, st.Status)
		assert.False(t, st.LastChange.Before(job.Status.LastChange))

		data, err := s.GetJobData(ctx, alice, job.ObjectID, first.ObjectID)
		require.NoError(t, err)
		assert.True(t, data.Definition.Present)
		assert.Equal(t, "w.csv", data.Definition.Filename)
		assert.Equal(t, []byte("w"), data.Data)

		uploadAll(t, s, job)
		st, err = s.GetJobStatus(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPrepared, st.Status)

		require.NoError(t, s.QueueJob(ctx, alice, job.ObjectID))
		require.NoError(t, s.QueueJob(ctx, alice, job.ObjectID), "queueing twice is a no-op")
		st, err = s.GetJobStatus(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, st.Status)

		err = s.AddJobData(ctx, alice, job.ObjectID, first.ObjectID, "w.csv", models.FormatArrow, []byte("x"))
		assert.ErrorIs(t, err, store.ErrJobNotMutable)

		rid, err := s.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultActualVsModeled, models.FormatArrow, []byte("r"))
		require.NoError(t, err)
		_, err = s.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultActualVsModeled, models.FormatArrow, []byte("r"))
		assert.ErrorIs(t, err, store.ErrAlreadyComplete)

		assert.ErrorIs(t, s.SetJobCompletion(ctx, alice, job.ObjectID, models.JobStatusQueued), store.ErrInvalidStatus)
		require.NoError(t, s.SetJobCompletion(ctx, alice, job.ObjectID, models.JobStatusComplete))
		assert.ErrorIs(t, s.SetJobCompletion(ctx, alice, job.ObjectID, models.JobStatusError), store.ErrJobTerminal)
		assert.ErrorIs(t, s.QueueJob(ctx, alice, job.ObjectID), store.ErrJobTerminal)

		_, err = s.AddJobResult(ctx, alice, job.ObjectID, "/inverters/0", models.ResultPerformanceData, models.FormatArrow, []byte("r"))
		assert.ErrorIs(t, err, store.ErrAlreadyComplete)

		results, err := s.ListJobResults(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, rid, results[0].ObjectID)

		res, err := s.GetJobResult(ctx, alice, job.ObjectID, rid)
		require.NoError(t, err)
		assert.Equal(t, []byte("r"), res.Data)
		assert.Equal(t, models.FormatArrow, res.Definition.DataFormat)
	})

	t.Run("OwnershipLooksLikeNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		d := job.DataObjects[0]

		_, err := s.GetJob(ctx, bob, job.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetJobStatus(ctx, bob, job.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetJobData(ctx, bob, job.ObjectID, d.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.AddJobData(ctx, bob, job.ObjectID, d.ObjectID, "f", models.FormatArrow, nil), store.ErrNotFound)
		assert.ErrorIs(t, s.QueueJob(ctx, bob, job.ObjectID), store.ErrNotFound)
		_, err = s.ListJobResults(ctx, bob, job.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteJob(ctx, bob, job.ObjectID), store.ErrNotFound)

		_, err = s.GetJobData(ctx, alice, job.ObjectID, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		jobs, err := s.ListJobs(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, jobs)
		jobs, err = s.ListJobs(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("DeleteJobCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		uploadAll(t, s, job)

		require.NoError(t, s.DeleteJob(ctx, alice, job.ObjectID))
		_, err := s.GetJob(ctx, alice, job.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetJobData(ctx, alice, job.ObjectID, job.DataObjects[0].ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteJob(ctx, alice, job.ObjectID), store.ErrNotFound)
	})

	t.Run("DeleteSystemCascadesToJobs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		require.NoError(t, s.DeleteSystem(ctx, alice, job.Definition.Parameters.SystemID))
		_, err := s.GetJob(ctx, alice, job.ObjectID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("WithTxRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		uploadAll(t, s, job)
		require.NoError(t, s.QueueJob(ctx, alice, job.ObjectID))

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(q store.Queries) error {
			if _, err := q.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultPerformanceData, models.FormatArrow, []byte("p")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		results, err := s.ListJobResults(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.Empty(t, results)

		err = s.WithTx(ctx, func(q store.Queries) error {
			if _, err := q.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultPerformanceData, models.FormatArrow, []byte("p")); err != nil {
				return err
			}
			// A conflicting write inside the transaction must not poison it.
			_, err := q.AddJobResult(ctx, alice, job.ObjectID, "/", models.ResultPerformanceData, models.FormatArrow, []byte("p"))
			if !errors.Is(err, store.ErrAlreadyComplete) {
				return errors.New("expected ErrAlreadyComplete")
			}
			return q.SetJobCompletion(ctx, alice, job.ObjectID, models.JobStatusComplete)
		})
		require.NoError(t, err)
		st, err := s.GetJobStatus(ctx, alice, job.ObjectID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusComplete, st.Status)
	})

	t.Run("AdministrativeQueries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		queued := seedJob(t, s)
		uploadAll(t, s, queued)
		require.NoError(t, s.QueueJob(ctx, alice, queued.ObjectID))
		created := seedJob(t, s)

		statuses, err := s.ListStatusOfJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusQueued, statuses[queued.ObjectID])
		assert.Equal(t, models.JobStatusCreated, statuses[created.ObjectID])

		q, err := s.ListQueuedJobs(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]string{queued.ObjectID: alice}, q)

		require.NoError(t, s.ReportJobFailure(ctx, queued.ObjectID, store.UncaughtErrorMessage))
		st, err := s.GetJobStatus(ctx, alice, queued.ObjectID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusError, st.Status)

		results, err := s.ListJobResults(ctx, alice, queued.ObjectID)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, models.ResultErrorMessage, results[0].Definition.Type)
		res, err := s.GetJobResult(ctx, alice, queued.ObjectID, results[0].ObjectID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":{"details":"`+store.UncaughtErrorMessage+`"}}`, string(res.Data))

		assert.ErrorIs(t, s.ReportJobFailure(ctx, queued.ObjectID, "again"), store.ErrJobTerminal)
		assert.ErrorIs(t, s.ReportJobFailure(ctx, uuid.New(), "gone"), store.ErrNotFound)
	})
}
