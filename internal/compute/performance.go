package compute

import (
	"fmt"
	"math"
	"time"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// modeled is the outcome of running the model over the whole system.
type modeled struct {
	inverters []*InverterOutput
	weather   [][]*timeseries.Table
	total     []float64
}

// calculatePerformance models every inverter on weatherType and stores
// per-array weather, per-inverter and total AC performance, a daytime flag
// and a monthly summary.
func (r *run) calculatePerformance(weatherType string) (*modeled, error) {
	outs, weather, err := r.modelInverters(weatherType)
	if err != nil {
		return nil, err
	}
	n := len(r.times)
	total := make([]float64, n)
	poa := make([]float64, n)
	cell := make([]float64, n)

	for i, out := range outs {
		invPOA := make([]float64, n)
		invCell := make([]float64, n)
		for j, a := range out.Arrays {
			path := fmt.Sprintf("/inverters/%d/arrays/%d", i, j)
			tbl := r.series(
				timeseries.FloatColumn("poa_global", a.POA),
				timeseries.FloatColumn("cell_temperature", a.CellTemperature),
			)
			if err := r.emit(path, models.ResultWeatherData, tbl); err != nil {
				return nil, err
			}
			addInto(invPOA, a.POA)
			addInto(invCell, a.CellTemperature)
		}
		arrays := float64(len(out.Arrays))
		for k := 0; k < n; k++ {
			poa[k] += invPOA[k] / arrays
			cell[k] += invCell[k] / arrays
		}

		path := fmt.Sprintf("/inverters/%d", i)
		if err := r.emit(path, models.ResultPerformanceData, r.series(timeseries.FloatColumn("performance", out.AC))); err != nil {
			return nil, err
		}
		addInto(total, out.AC)
	}

	inverters := float64(len(outs))
	daytime := make([]bool, n)
	for k := 0; k < n; k++ {
		poa[k] /= inverters
		cell[k] /= inverters
		daytime[k] = poa[k] > 0
	}

	months := timeseries.Months(r.times)
	summary := monthlyTable(months,
		monthlyColumn{"total_energy", timeseries.MonthlyEnergy(r.times, total)},
		monthlyColumn{"plane_of_array_insolation", timeseries.MonthlyEnergy(r.times, poa)},
		monthlyColumn{"average_daytime_cell_temperature", daytimeMean(r.times, cell, daytime)},
	)
	if err := r.emit("/", models.ResultMonthlySummary, summary); err != nil {
		return nil, err
	}
	if err := r.emit("/", models.ResultDaytimeFlag, r.series(timeseries.BoolColumn("daytime_flag", daytime))); err != nil {
		return nil, err
	}
	if err := r.emit("/", models.ResultPerformanceData, r.series(timeseries.FloatColumn("performance", total))); err != nil {
		return nil, err
	}
	return &modeled{inverters: outs, weather: weather, total: total}, nil
}

func calculate(weatherType string) strategy {
	return func(r *run) error {
		_, err := r.calculatePerformance(weatherType)
		return err
	}
}

// actualMonthlyEnergy sums the uploaded actual performance and converts it
// to monthly energy, ignoring the rows in skip.
func (r *run) actualMonthlyEnergy(skip map[int]bool) (map[time.Month]float64, error) {
	total, err := r.data.totalPerformance(models.DataActualPerformance)
	if err != nil {
		return nil, err
	}
	return r.monthlyEnergy(total, skip), nil
}

func (r *run) monthlyEnergy(power []float64, skip map[int]bool) map[time.Month]float64 {
	if len(skip) == 0 {
		return timeseries.MonthlyEnergy(r.times, power)
	}
	kept := make([]float64, len(power))
	copy(kept, power)
	for i := range skip {
		kept[i] = math.NaN()
	}
	return timeseries.MonthlyEnergy(r.times, kept)
}

func compareExpectedActual(r *run) error {
	m, err := r.calculatePerformance(models.DataActualWeather)
	if err != nil {
		return err
	}
	actual, err := r.actualMonthlyEnergy(nil)
	if err != nil {
		return err
	}
	modeledEnergy := timeseries.MonthlyEnergy(r.times, m.total)
	months := timeseries.Months(r.times)
	return r.emit("/", models.ResultActualVsModeled, comparisonTable(months,
		"actual_energy", actual, "modeled_energy", modeledEnergy))
}

func weatherAdjustedPR(r *run) error {
	m, err := r.calculatePerformance(models.DataActualWeather)
	if err != nil {
		return err
	}
	actual, err := r.actualMonthlyEnergy(nil)
	if err != nil {
		return err
	}
	expected := timeseries.MonthlyEnergy(r.times, m.total)
	months := timeseries.Months(r.times)
	ratio := make(map[time.Month]float64, len(months))
	for _, mo := range months {
		ratio[mo] = monthValue(actual, mo) / monthValue(expected, mo)
	}
	return r.emit("/", models.ResultPerformanceRatio, monthlyTable(months,
		monthlyColumn{"actual_energy", actual},
		monthlyColumn{"expected_energy", expected},
		monthlyColumn{"performance_ratio", ratio},
	))
}

// daytimeMean averages vals per month over daytime rows.
func daytimeMean(times []time.Time, vals []float64, daytime []bool) map[time.Month]float64 {
	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for i, t := range times {
		if !daytime[i] || math.IsNaN(vals[i]) {
			continue
		}
		sums[t.Month()] += vals[i]
		counts[t.Month()]++
	}
	out := make(map[time.Month]float64, len(sums))
	for mo, s := range sums {
		out[mo] = s / float64(counts[mo])
	}
	return out
}

type monthlyColumn struct {
	name string
	vals map[time.Month]float64
}

// monthlyTable builds a table with one row per month, named in full.
// Months without a value are missing.
func monthlyTable(months []time.Month, cols ...monthlyColumn) *timeseries.Table {
	names := make([]string, len(months))
	for i, mo := range months {
		names[i] = mo.String()
	}
	out := []*timeseries.Column{timeseries.StringColumn("month", names)}
	for _, c := range cols {
		vals := make([]float64, len(months))
		for i, mo := range months {
			vals[i] = monthValue(c.vals, mo)
		}
		out = append(out, timeseries.FloatColumn(c.name, vals))
	}
	return timeseries.NewTable(out...)
}

// comparisonTable lays out a measured and a reference energy with their
// difference (measured - reference) and ratio (measured / reference).
func comparisonTable(months []time.Month, measuredName string, measured map[time.Month]float64, refName string, ref map[time.Month]float64) *timeseries.Table {
	diff := make(map[time.Month]float64, len(months))
	ratio := make(map[time.Month]float64, len(months))
	for _, mo := range months {
		a, b := monthValue(measured, mo), monthValue(ref, mo)
		diff[mo] = a - b
		ratio[mo] = a / b
	}
	return monthlyTable(months,
		monthlyColumn{measuredName, measured},
		monthlyColumn{refName, ref},
		monthlyColumn{"difference", diff},
		monthlyColumn{"ratio", ratio},
	)
}

func monthValue(m map[time.Month]float64, mo time.Month) float64 {
	if v, ok := m[mo]; ok {
		return v
	}
	return math.NaN()
}
