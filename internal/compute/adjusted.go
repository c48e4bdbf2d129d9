package compute

import (
	"fmt"
	"math"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// dcToAC approximates inverter losses when a DC reference is adjusted.
const dcToAC = 0.985

// zeroDiv divides a by b, treating 0/0 as 0.
func zeroDiv(a, b float64) float64 {
	out := a / b
	if math.IsNaN(out) && math.Abs(a) < 1e-16 {
		return 0
	}
	return out
}

// infMul multiplies a by b, treating 0*Inf as 0.
func infMul(a, b float64) float64 {
	out := a * b
	if math.IsNaN(out) && math.Abs(a) < 1e-16 {
		return 0
	}
	return out
}

func tempFactor(gamma, tRef, tActual float64) float64 {
	const t0 = 25.0
	return zeroDiv(1+gamma*(tActual-t0), 1+gamma*(tRef-t0))
}

// adjustmentFactor is, per time step, the mean over an inverter's arrays of
// the plane of array irradiance ratio times the temperature factor between
// the reference and the actual weather.
func adjustmentFactor(inv models.Inverter, ref, actual *InverterOutput) []float64 {
	n := len(ref.DC)
	out := make([]float64, n)
	for j, arr := range inv.Arrays {
		gamma := arr.Gamma()
		ra, aa := ref.Arrays[j], actual.Arrays[j]
		for i := 0; i < n; i++ {
			out[i] += zeroDiv(aa.POA[i], ra.POA[i]) * tempFactor(gamma, ra.CellTemperature[i], aa.CellTemperature[i])
		}
	}
	arrays := float64(len(inv.Arrays))
	for i := range out {
		out[i] /= arrays
	}
	return out
}

// adjust scales a reference power series by factor and clips it at pac0.
// DC references are converted to AC first.
func adjust(ref, factor []float64, pac0 float64, dc bool) []float64 {
	out := make([]float64, len(ref))
	for i := range ref {
		v := infMul(ref[i], factor[i])
		if dc {
			v *= dcToAC
		}
		out[i] = math.Min(v, pac0)
	}
	return out
}

// comparePredictedActual models the system on the original weather, adjusts
// the modeled DC output to the actual weather and compares it with the
// uploaded actual performance.
func comparePredictedActual(r *run) error {
	ref, err := r.calculatePerformance(models.DataOriginalWeather)
	if err != nil {
		return err
	}
	actual, _, err := r.modelInverters(models.DataActualWeather)
	if err != nil {
		return err
	}

	total := make([]float64, len(r.times))
	for i, inv := range r.system().Inverters {
		factor := adjustmentFactor(inv, ref.inverters[i], actual[i])
		pac := adjust(ref.inverters[i].DC, factor, inv.Pac0(), true)
		path := fmt.Sprintf("/inverters/%d", i)
		if err := r.emit(path, models.ResultWeatherAdjusted, r.series(timeseries.FloatColumn("performance", pac))); err != nil {
			return err
		}
		addInto(total, pac)
	}

	skip := missingLeapDays(r.times, flatten(ref.weather))
	actualEnergy, err := r.actualMonthlyEnergy(skip)
	if err != nil {
		return err
	}
	months := timeseries.Months(r.times)
	return r.emit("/", models.ResultActualVsAdjustedPred, comparisonTable(months,
		"actual_energy", actualEnergy,
		"weather_adjusted_energy", r.monthlyEnergy(total, skip)))
}

// comparePredictedExpected adjusts the uploaded predicted performance to the
// actual weather and compares it with the model run on the actual weather.
// System level uploads are adjusted with the mean factor of all inverters
// and clipped at the combined AC limit.
func comparePredictedExpected(g models.Granularity) strategy {
	return func(r *run) error {
		expected, err := r.calculatePerformance(models.DataActualWeather)
		if err != nil {
			return err
		}
		ref, refWeather, err := r.modelInverters(models.DataOriginalWeather)
		if err != nil {
			return err
		}

		dc := r.params.PredictedDataIncludeDC
		typ, column := models.DataPredictedPerformance, "performance"
		if dc {
			typ, column = models.DataPredictedPerformanceDC, "performance_dc"
		}
		predicted, err := r.data.performance(typ, column)
		if err != nil {
			return err
		}

		system := r.system()
		factors := make([][]float64, len(system.Inverters))
		for i, inv := range system.Inverters {
			factors[i] = adjustmentFactor(inv, ref[i], expected.inverters[i])
		}

		n := len(r.times)
		total := make([]float64, n)
		switch g {
		case models.GranularityInverter:
			for i, inv := range system.Inverters {
				path := fmt.Sprintf("/inverters/%d", i)
				vals, ok := predicted[path]
				if !ok {
					return fmt.Errorf("job has no %s at %s", typ, path)
				}
				pac := adjust(vals, factors[i], inv.Pac0(), dc)
				if err := r.emit(path, models.ResultWeatherAdjusted, r.series(timeseries.FloatColumn("performance", pac))); err != nil {
					return err
				}
				addInto(total, pac)
			}
		case models.GranularitySystem:
			vals, ok := predicted["/"]
			if !ok {
				return fmt.Errorf("job has no %s at /", typ)
			}
			mean := make([]float64, n)
			pac0 := 0.0
			for i, inv := range system.Inverters {
				addInto(mean, factors[i])
				pac0 += inv.Pac0()
			}
			for k := range mean {
				mean[k] /= float64(len(system.Inverters))
			}
			total = adjust(vals, mean, pac0, dc)
			if err := r.emit("/", models.ResultWeatherAdjusted, r.series(timeseries.FloatColumn("performance", total))); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown performance granularity %q", g)
		}

		skip := missingLeapDays(r.times, flatten(refWeather))
		months := timeseries.Months(r.times)
		return r.emit("/", models.ResultPredictedVsExpected, comparisonTable(months,
			"expected_energy", r.monthlyEnergy(expected.total, skip),
			"predicted_energy", r.monthlyEnergy(total, skip)))
	}
}
