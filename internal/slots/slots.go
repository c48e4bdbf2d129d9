// Package slots derives the input data a job needs from its system snapshot
// and parameters.
package slots

import (
	"fmt"

	"github.com/solarperformanceinsight/spi/pkg/models"
)

const (
	TimeColumn  = "time"
	MonthColumn = "month"
)

var irradianceColumns = map[models.IrradianceType][]string{
	models.IrradianceStandard:  {"ghi", "dni", "dhi"},
	models.IrradiancePOA:       {"poa_global", "poa_direct", "poa_diffuse"},
	models.IrradianceEffective: {"effective_irradiance"},
}

var temperatureColumns = map[models.TemperatureType][]string{
	models.TemperatureAir:    {"temp_air", "wind_speed"},
	models.TemperatureModule: {"module_temperature"},
	models.TemperatureCell:   {"cell_temperature"},
}

// MonthlyColumns are the numeric columns of the single monthly upload.
var MonthlyColumns = []string{
	"predicted_total_poa_insolation",
	"predicted_average_daytime_cell_temperature",
	"predicted_total_energy",
	"actual_total_poa_insolation",
	"actual_average_daytime_cell_temperature",
	"actual_total_energy",
}

type plan struct {
	weather     []string
	performance string
}

func planFor(p models.JobParameters) (plan, error) {
	switch p.JobType {
	case models.JobCalculatePredicted:
		return plan{weather: []string{models.DataOriginalWeather}}, nil
	case models.JobCalculateExpected:
		return plan{weather: []string{models.DataActualWeather}}, nil
	case models.JobComparePredictedActual:
		return plan{
			weather:     []string{models.DataOriginalWeather, models.DataActualWeather},
			performance: models.DataActualPerformance,
		}, nil
	case models.JobComparePredictedExpected:
		perf := models.DataPredictedPerformance
		if p.PredictedDataIncludeDC {
			perf = models.DataPredictedPerformanceDC
		}
		return plan{
			weather:     []string{models.DataOriginalWeather, models.DataActualWeather},
			performance: perf,
		}, nil
	case models.JobCompareExpectedActual, models.JobWeatherAdjustedPR:
		return plan{
			weather:     []string{models.DataActualWeather},
			performance: models.DataActualPerformance,
		}, nil
	}
	return plan{}, fmt.Errorf("unknown job type %q", p.JobType)
}

// Derive returns the ordered data slots for a job: weather slots first, in
// the order their types are listed for the job type, then performance slots.
func Derive(system models.PVSystem, p models.JobParameters) ([]models.DataSlotSpec, error) {
	if p.JobType.Monthly() {
		return []models.DataSlotSpec{{SchemaPath: "/", Type: models.DataMonthly}}, nil
	}
	pl, err := planFor(p)
	if err != nil {
		return nil, err
	}

	var out []models.DataSlotSpec
	for _, typ := range pl.weather {
		paths, err := expand(system, p.WeatherGranularity)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			out = append(out, models.DataSlotSpec{SchemaPath: path, Type: typ})
		}
	}
	if pl.performance != "" {
		if p.PerformanceGranularity == models.GranularityArray {
			return nil, fmt.Errorf("performance granularity must be system or inverter")
		}
		paths, err := expand(system, p.PerformanceGranularity)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			out = append(out, models.DataSlotSpec{SchemaPath: path, Type: pl.performance})
		}
	}
	return out, nil
}

func expand(system models.PVSystem, g models.Granularity) ([]string, error) {
	switch g {
	case models.GranularitySystem:
		return []string{"/"}, nil
	case models.GranularityInverter:
		paths := make([]string, 0, len(system.Inverters))
		for i := range system.Inverters {
			paths = append(paths, fmt.Sprintf("/inverters/%d", i))
		}
		return paths, nil
	case models.GranularityArray:
		var paths []string
		for i, inv := range system.Inverters {
			for j := range inv.Arrays {
				paths = append(paths, fmt.Sprintf("/inverters/%d/arrays/%d", i, j))
			}
		}
		return paths, nil
	}
	return nil, fmt.Errorf("unknown granularity %q", g)
}

// Columns lists the required columns of a slot type for the given job.
func Columns(p models.JobParameters, dataType string) []string {
	switch dataType {
	case models.DataOriginalWeather, models.DataActualWeather:
		cols := []string{TimeColumn}
		cols = append(cols, irradianceColumns[p.IrradianceType]...)
		return append(cols, temperatureColumns[p.TemperatureType]...)
	case models.DataActualPerformance, models.DataPredictedPerformance:
		return []string{TimeColumn, "performance"}
	case models.DataPredictedPerformanceDC:
		return []string{TimeColumn, "performance", "performance_dc"}
	case models.DataMonthly:
		return append([]string{MonthColumn}, MonthlyColumns...)
	}
	return nil
}

// AllowTimeShift reports whether uploads of this type may be moved to the
// job's year.
func AllowTimeShift(dataType string) bool {
	switch dataType {
	case models.DataOriginalWeather, models.DataPredictedPerformance, models.DataPredictedPerformanceDC:
		return true
	}
	return false
}

// Equal reports whether a job's stored data objects match a derived slot list.
func Equal(objects []models.JobDataMeta, specs []models.DataSlotSpec) bool {
	if len(objects) != len(specs) {
		return false
	}
	for i := range objects {
		if objects[i].Definition.SchemaPath != specs[i].SchemaPath || objects[i].Definition.Type != specs[i].Type {
			return false
		}
	}
	return true
}
