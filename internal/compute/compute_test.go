package compute_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solarperformanceinsight/spi/internal/compute"
	"github.com/solarperformanceinsight/spi/internal/slots"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "auth0|owner"

var jan1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func plant() models.PVSystem {
	fixed := func(v float64) *float64 { return &v }
	return models.PVSystem{
		Name:      "plant",
		Latitude:  33.98,
		Longitude: -115.3,
		Inverters: []models.Inverter{{
			Name:               "inv",
			InverterParameters: map[string]float64{"pdc0": 5000, "eta_inv_nom": 0.96},
			Arrays: []models.PVArray{{
				Name:             "arr",
				ModuleParameters: map[string]float64{"pdc0": 250, "gamma_pdc": 0},
				Tracking:         models.Tracking{Type: models.TrackingFixed, Tilt: fixed(20), Azimuth: fixed(180)},
				ModulesPerString: 10,
				Strings:          2,
			}},
		}},
	}
}

type fixture struct {
	store *store.MemoryStore
	job   *models.Job
}

func newFixture(t *testing.T, system models.PVSystem, params models.JobParameters) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := s.CreateUserIfNotExists(ctx, owner)
	require.NoError(t, err)
	sys, err := s.CreateSystem(ctx, owner, system)
	require.NoError(t, err)

	params.SystemID = sys.ObjectID
	if !params.JobType.Monthly() {
		params.TimeParameters = &models.TimeParameters{
			Start:    models.Timestamp{Time: jan1},
			End:      models.Timestamp{Time: jan1.Add(2 * time.Hour)},
			Step:     models.Step(time.Hour),
			Timezone: "UTC",
		}
	}
	specs, err := slots.Derive(sys.Definition, params)
	require.NoError(t, err)
	job, err := s.CreateJob(ctx, owner, sys.ObjectID, models.JobDefinition{
		SystemDefinition: sys.Definition,
		Parameters:       params,
	}, specs)
	require.NoError(t, err)
	return &fixture{store: s, job: job}
}

func (f *fixture) upload(t *testing.T, typ string, tbl *timeseries.Table) {
	t.Helper()
	b, err := tableio.EncodeArrow(tbl)
	require.NoError(t, err)
	for _, d := range f.job.DataObjects {
		if d.Definition.Type == typ {
			require.NoError(t, f.store.AddJobData(context.Background(), owner, f.job.ObjectID, d.ObjectID,
				"upload.arrow", models.FormatArrow, b))
		}
	}
}

func (f *fixture) run(t *testing.T) error {
	t.Helper()
	fn, err := compute.NewRegistry(compute.PVWatts{}).Lookup(f.job.Definition.Parameters)
	require.NoError(t, err)
	return f.store.WithTx(context.Background(), func(q store.Queries) error {
		return fn(context.Background(), f.job, q, owner)
	})
}

// result decodes the single result of the given path and type.
func (f *fixture) result(t *testing.T, path, typ string) *timeseries.Table {
	t.Helper()
	ctx := context.Background()
	metas, err := f.store.ListJobResults(ctx, owner, f.job.ObjectID)
	require.NoError(t, err)
	for _, m := range metas {
		if m.Definition.SchemaPath == path && m.Definition.Type == typ {
			res, err := f.store.GetJobResult(ctx, owner, f.job.ObjectID, m.ObjectID)
			require.NoError(t, err)
			tbl, err := tableio.DecodeArrow(res.Data)
			require.NoError(t, err)
			return tbl
		}
	}
	t.Fatalf("no %s result at %s", typ, path)
	return nil
}

func twoHours() []time.Time {
	return []time.Time{jan1, jan1.Add(time.Hour)}
}

func poaWeather(poa ...float64) *timeseries.Table {
	return timeseries.NewTable(
		timeseries.TimeColumn("time", twoHours(), false),
		timeseries.FloatColumn("poa_global", poa),
		timeseries.FloatColumn("poa_direct", poa),
		timeseries.FloatColumn("poa_diffuse", []float64{0, 0}),
		timeseries.FloatColumn("cell_temperature", []float64{25, 25}),
	)
}

func performance(vals ...float64) *timeseries.Table {
	return timeseries.NewTable(
		timeseries.TimeColumn("time", twoHours(), false),
		timeseries.FloatColumn("performance", vals),
	)
}

func timeSeriesParams(jt models.JobType, perf models.Granularity) models.JobParameters {
	return models.JobParameters{
		JobType:                jt,
		WeatherGranularity:     models.GranularitySystem,
		PerformanceGranularity: perf,
		IrradianceType:         models.IrradiancePOA,
		TemperatureType:        models.TemperatureCell,
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := compute.NewRegistry(compute.PVWatts{})
	for _, p := range []models.JobParameters{
		{JobType: models.JobCalculatePredicted},
		{JobType: models.JobCalculateExpected},
		{JobType: models.JobComparePredictedActual, PerformanceGranularity: models.GranularityInverter},
		{JobType: models.JobComparePredictedExpected, PerformanceGranularity: models.GranularitySystem},
		{JobType: models.JobComparePredictedExpected, PerformanceGranularity: models.GranularityInverter},
		{JobType: models.JobCompareExpectedActual, PerformanceGranularity: models.GranularitySystem},
		{JobType: models.JobWeatherAdjustedPR, PerformanceGranularity: models.GranularitySystem},
		{JobType: models.JobCompareMonthlyPredictedAct},
	} {
		f, err := reg.Lookup(p)
		require.NoError(t, err, p.JobType)
		assert.NotNil(t, f)
	}

	_, err := reg.Lookup(models.JobParameters{JobType: "forecast"})
	assert.ErrorIs(t, err, compute.ErrNotImplemented)

	_, err = reg.Lookup(models.JobParameters{JobType: models.JobComparePredictedExpected, PerformanceGranularity: models.GranularityArray})
	assert.ErrorIs(t, err, compute.ErrNotImplemented)
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	reg := compute.NewRegistry(compute.PVWatts{})
	boom := errors.New("boom")
	reg.Register(models.JobCalculatePredicted, "", func(context.Context, *models.Job, store.Queries, string) error {
		return boom
	})
	f, err := reg.Lookup(models.JobParameters{JobType: models.JobCalculatePredicted})
	require.NoError(t, err)
	assert.ErrorIs(t, f(context.Background(), nil, nil, owner), boom)
}

func TestCalculateExpectedPerformance(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobCalculateExpected, ""))
	f.upload(t, models.DataActualWeather, poaWeather(1000, 500))

	require.NoError(t, f.run(t))

	total := f.result(t, "/", models.ResultPerformanceData)
	assert.InDeltaSlice(t, []float64{4800, 2400}, total.Column("performance").FloatValues(), 1e-3)
	assert.Equal(t, twoHours()[0].Unix(), total.Column("time").Times[0].Unix())

	inv := f.result(t, "/inverters/0", models.ResultPerformanceData)
	assert.InDeltaSlice(t, []float64{4800, 2400}, inv.Column("performance").FloatValues(), 1e-3)

	weather := f.result(t, "/inverters/0/arrays/0", models.ResultWeatherData)
	assert.InDeltaSlice(t, []float64{1000, 500}, weather.Column("poa_global").FloatValues(), 1e-3)

	summary := f.result(t, "/", models.ResultMonthlySummary)
	assert.Equal(t, []string{"January"}, summary.Column("month").Strings)
	assert.InDelta(t, 7200, summary.Column("total_energy").Float(0), 1e-3)
	assert.InDelta(t, 1500, summary.Column("plane_of_array_insolation").Float(0), 1e-3)
	assert.InDelta(t, 25, summary.Column("average_daytime_cell_temperature").Float(0), 1e-3)

	flag := f.result(t, "/", models.ResultDaytimeFlag)
	assert.Equal(t, []bool{true, true}, flag.Column("daytime_flag").Bools)
}

func TestCompareExpectedAndActual(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobCompareExpectedActual, models.GranularitySystem))
	f.upload(t, models.DataActualWeather, poaWeather(1000, 500))
	f.upload(t, models.DataActualPerformance, performance(4000, 2400))

	require.NoError(t, f.run(t))

	cmp := f.result(t, "/", models.ResultActualVsModeled)
	assert.Equal(t, []string{"month", "actual_energy", "modeled_energy", "difference", "ratio"}, cmp.Names())
	assert.InDelta(t, 6400, cmp.Column("actual_energy").Float(0), 1e-3)
	assert.InDelta(t, 7200, cmp.Column("modeled_energy").Float(0), 1e-3)
	assert.InDelta(t, -800, cmp.Column("difference").Float(0), 1e-3)
	assert.InDelta(t, 6400.0/7200.0, cmp.Column("ratio").Float(0), 1e-6)
}

func TestWeatherAdjustedPerformanceRatio(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobWeatherAdjustedPR, models.GranularitySystem))
	f.upload(t, models.DataActualWeather, poaWeather(1000, 500))
	f.upload(t, models.DataActualPerformance, performance(3600, 1800))

	require.NoError(t, f.run(t))

	pr := f.result(t, "/", models.ResultPerformanceRatio)
	assert.Equal(t, []string{"month", "actual_energy", "expected_energy", "performance_ratio"}, pr.Names())
	assert.InDelta(t, 0.75, pr.Column("performance_ratio").Float(0), 1e-6)
}

func TestComparePredictedAndExpected_SystemLevel(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobComparePredictedExpected, models.GranularitySystem))
	f.upload(t, models.DataOriginalWeather, poaWeather(1000, 500))
	f.upload(t, models.DataActualWeather, poaWeather(1000, 500))
	f.upload(t, models.DataPredictedPerformance, performance(4000, 6000))

	require.NoError(t, f.run(t))

	adjusted := f.result(t, "/", models.ResultWeatherAdjusted)
	// Identical weather gives a factor of 1; the second hour clips at pac0.
	assert.InDeltaSlice(t, []float64{4000, 4800}, adjusted.Column("performance").FloatValues(), 1e-3)

	cmp := f.result(t, "/", models.ResultPredictedVsExpected)
	assert.InDelta(t, 7200, cmp.Column("expected_energy").Float(0), 1e-3)
	assert.InDelta(t, 8800, cmp.Column("predicted_energy").Float(0), 1e-3)
}

func TestComparePredictedAndActual_AdjustsToActualWeather(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobComparePredictedActual, models.GranularitySystem))
	f.upload(t, models.DataOriginalWeather, poaWeather(1000, 500))
	f.upload(t, models.DataActualWeather, poaWeather(500, 500))
	f.upload(t, models.DataActualPerformance, performance(2000, 2000))

	require.NoError(t, f.run(t))

	adjusted := f.result(t, "/inverters/0", models.ResultWeatherAdjusted)
	// DC reference 5000 and 2500 scaled by 0.5 and 1, then converted to AC.
	assert.InDeltaSlice(t, []float64{2500 * 0.985, 2500 * 0.985}, adjusted.Column("performance").FloatValues(), 1e-2)

	cmp := f.result(t, "/", models.ResultActualVsAdjustedPred)
	assert.InDelta(t, 4000, cmp.Column("actual_energy").Float(0), 1e-3)
	assert.InDelta(t, 5000*0.985, cmp.Column("weather_adjusted_energy").Float(0), 1e-2)
}

func TestCompareMonthly(t *testing.T) {
	sys := plant()
	sys.Inverters[0].InverterParameters = map[string]float64{"Paco": 1000}
	sys.Inverters[0].Arrays[0].ModuleParameters["gamma_pdc"] = -0.004
	f := newFixture(t, sys, models.JobParameters{JobType: models.JobCompareMonthlyPredictedAct})

	names := make([]string, 12)
	cols := map[string][]float64{}
	for i := range names {
		names[i] = time.Month(i + 1).String()
	}
	fill := func(v float64) []float64 {
		out := make([]float64, 12)
		for i := range out {
			out[i] = v
		}
		return out
	}
	cols["predicted_total_poa_insolation"] = fill(100)
	cols["predicted_average_daytime_cell_temperature"] = fill(30)
	cols["predicted_total_energy"] = fill(50)
	cols["actual_total_poa_insolation"] = fill(110)
	cols["actual_average_daytime_cell_temperature"] = fill(35)
	cols["actual_total_energy"] = fill(52)

	tbl := timeseries.NewTable(timeseries.StringColumn("month", names))
	for _, name := range slots.MonthlyColumns {
		tbl.Columns = append(tbl.Columns, timeseries.FloatColumn(name, cols[name]))
	}
	f.upload(t, models.DataMonthly, tbl)

	require.NoError(t, f.run(t))

	cmp := f.result(t, "/", models.ResultActualVsAdjustedPred)
	assert.Equal(t, names, cmp.Column("month").Strings)
	// poa_rat = 1.1, temp_loss = 1 * 1.1 * -0.004 * 5 = -0.022
	assert.InDelta(t, 54.978, cmp.Column("weather_adjusted_energy").Float(11), 1e-3)
	assert.InDelta(t, -2.978, cmp.Column("difference").Float(0), 1e-3)
	assert.InDelta(t, 52/54.978, cmp.Column("ratio").Float(5), 1e-5)
}

func TestStandardIrradianceFailsWithoutResults(t *testing.T) {
	params := timeSeriesParams(models.JobCalculatePredicted, "")
	params.IrradianceType = models.IrradianceStandard
	f := newFixture(t, plant(), params)
	f.upload(t, models.DataOriginalWeather, timeseries.NewTable(
		timeseries.TimeColumn("time", twoHours(), false),
		timeseries.FloatColumn("ghi", []float64{1, 1}),
		timeseries.FloatColumn("dni", []float64{1, 1}),
		timeseries.FloatColumn("dhi", []float64{1, 1}),
		timeseries.FloatColumn("cell_temperature", []float64{25, 25}),
	))

	err := f.run(t)
	assert.ErrorIs(t, err, compute.ErrStandardIrradiance)

	results, err := f.store.ListJobResults(context.Background(), owner, f.job.ObjectID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMissingUploadFails(t *testing.T) {
	f := newFixture(t, plant(), timeSeriesParams(models.JobCalculateExpected, ""))
	assert.ErrorContains(t, f.run(t), "has not been uploaded")
}
