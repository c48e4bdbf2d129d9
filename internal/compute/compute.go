// Package compute holds the job computations run by workers. Each job type
// maps to a Func that reads the job's uploaded tables through a store handle
// and writes its results back with AddJobResult.
package compute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// ErrNotImplemented is returned by Lookup for job types without a strategy.
var ErrNotImplemented = errors.New("job computation not implemented")

// Func computes a job. Results are written through q; the caller owns the
// transaction and the job's final status.
type Func func(ctx context.Context, job *models.Job, q store.Queries, user string) error

type strategy func(r *run) error

type strategyKey struct {
	jobType     models.JobType
	granularity models.Granularity
}

// Registry maps job type and performance granularity to a Func.
type Registry struct {
	model Model
	funcs map[strategyKey]Func
}

// NewRegistry returns a registry with every job type wired to model.
func NewRegistry(model Model) *Registry {
	r := &Registry{model: model, funcs: make(map[strategyKey]Func)}

	r.register(models.JobCalculatePredicted, "", calculate(models.DataOriginalWeather))
	r.register(models.JobCalculateExpected, "", calculate(models.DataActualWeather))
	r.register(models.JobCompareExpectedActual, "", compareExpectedActual)
	r.register(models.JobWeatherAdjustedPR, "", weatherAdjustedPR)
	r.register(models.JobComparePredictedActual, "", comparePredictedActual)
	r.register(models.JobComparePredictedExpected, models.GranularitySystem, comparePredictedExpected(models.GranularitySystem))
	r.register(models.JobComparePredictedExpected, models.GranularityInverter, comparePredictedExpected(models.GranularityInverter))
	r.register(models.JobCompareMonthlyPredictedAct, "", compareMonthly)
	return r
}

func (r *Registry) register(jt models.JobType, g models.Granularity, s strategy) {
	r.Register(jt, g, func(ctx context.Context, job *models.Job, q store.Queries, user string) error {
		run, err := newRun(ctx, q, user, job, r.model)
		if err != nil {
			return err
		}
		return s(run)
	})
}

// Register sets the Func for a job type. An empty granularity matches any
// performance granularity without a more specific entry.
func (r *Registry) Register(jt models.JobType, g models.Granularity, f Func) {
	r.funcs[strategyKey{jt, g}] = f
}

// Lookup selects the Func for a job's parameters.
func (r *Registry) Lookup(p models.JobParameters) (Func, error) {
	if f, ok := r.funcs[strategyKey{p.JobType, p.PerformanceGranularity}]; ok {
		return f, nil
	}
	if f, ok := r.funcs[strategyKey{p.JobType, ""}]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotImplemented, p.JobType)
}

// run carries the state of one computation.
type run struct {
	ctx    context.Context
	q      store.Queries
	user   string
	job    *models.Job
	params models.JobParameters
	model  Model
	times  []time.Time
	data   *jobData
}

func newRun(ctx context.Context, q store.Queries, user string, job *models.Job, model Model) (*run, error) {
	r := &run{
		ctx:    ctx,
		q:      q,
		user:   user,
		job:    job,
		params: job.Definition.Parameters,
		model:  model,
	}
	if !r.params.JobType.Monthly() {
		if r.params.TimeParameters == nil {
			return nil, errors.New("job has no time parameters")
		}
		times, _, err := timeseries.Index(*r.params.TimeParameters)
		if err != nil {
			return nil, fmt.Errorf("build time index: %w", err)
		}
		r.times = times
	}
	r.data = newJobData(ctx, q, user, job, len(r.times))
	return r, nil
}

func (r *run) system() models.PVSystem { return r.job.Definition.SystemDefinition }

// emit stores tbl as an Arrow result.
func (r *run) emit(path, typ string, tbl *timeseries.Table) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	b, err := tableio.EncodeArrow(tbl)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	if _, err := r.q.AddJobResult(r.ctx, r.user, r.job.ObjectID, path, typ, models.FormatArrow, b); err != nil {
		return fmt.Errorf("add %s result at %s: %w", typ, path, err)
	}
	return nil
}

// series builds a result table with the job's time column.
func (r *run) series(cols ...*timeseries.Column) *timeseries.Table {
	return timeseries.NewTable(append([]*timeseries.Column{timeseries.TimeColumn("time", r.times, false)}, cols...)...)
}

// modelInverters runs the model for every inverter on the given weather.
func (r *run) modelInverters(weatherType string) ([]*InverterOutput, [][]*timeseries.Table, error) {
	weather, err := r.data.weather(weatherType, r.params.WeatherGranularity)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*InverterOutput, len(r.system().Inverters))
	for i, inv := range r.system().Inverters {
		if err := r.ctx.Err(); err != nil {
			return nil, nil, err
		}
		o, err := r.model.Run(inv, Input{
			Irradiance:  r.params.IrradianceType,
			Temperature: r.params.TemperatureType,
			Weather:     weather[i],
		})
		if err != nil {
			return nil, nil, err
		}
		out[i] = o
	}
	return out, weather, nil
}

func flatten(tables [][]*timeseries.Table) []*timeseries.Table {
	var out []*timeseries.Table
	for _, inv := range tables {
		out = append(out, inv...)
	}
	return out
}
