package compute

import (
	"errors"
	"fmt"
	"math"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// ErrStandardIrradiance is returned for weather given as GHI/DNI/DHI, which
// needs a transposition to the plane of array that PVWatts does not do.
var ErrStandardIrradiance = errors.New(
	"standard irradiance (ghi, dni, dhi) requires a transposition model; upload plane of array or effective irradiance instead")

// Input is the weather for one inverter, one table per array, on the job's
// time index.
type Input struct {
	Irradiance  models.IrradianceType
	Temperature models.TemperatureType
	Weather     []*timeseries.Table
}

// ArrayOutput holds the modeled per-array quantities.
type ArrayOutput struct {
	POA             []float64
	CellTemperature []float64
	DC              []float64
}

// InverterOutput holds the modeled output of one inverter.
type InverterOutput struct {
	Arrays []ArrayOutput
	DC     []float64
	AC     []float64
}

// Model turns weather into power for one inverter.
type Model interface {
	Run(inv models.Inverter, in Input) (*InverterOutput, error)
}

// SAPM open rack glass/glass coefficients, used when an array has no
// temperature model parameters.
const (
	defaultSAPMA      = -3.47
	defaultSAPMB      = -0.0594
	defaultSAPMDeltaT = 3.0
)

// PVWatts is the default Model: a linear DC model with a temperature
// coefficient and an inverter with constant efficiency clipped at pac0.
type PVWatts struct{}

var _ Model = PVWatts{}

func (PVWatts) Run(inv models.Inverter, in Input) (*InverterOutput, error) {
	if len(in.Weather) != len(inv.Arrays) {
		return nil, fmt.Errorf("inverter %q has %d arrays but %d weather tables were given",
			inv.Name, len(inv.Arrays), len(in.Weather))
	}
	pac0 := inv.Pac0()
	if pac0 <= 0 {
		return nil, fmt.Errorf("inverter %q: inverter_parameters must define Paco or pdc0", inv.Name)
	}

	out := &InverterOutput{Arrays: make([]ArrayOutput, len(inv.Arrays))}
	for j, arr := range inv.Arrays {
		a, err := runArray(arr, in.Irradiance, in.Temperature, in.Weather[j])
		if err != nil {
			return nil, fmt.Errorf("inverter %q array %q: %w", inv.Name, arr.Name, err)
		}
		out.Arrays[j] = *a
		if out.DC == nil {
			out.DC = make([]float64, len(a.DC))
		}
		for i, v := range a.DC {
			out.DC[i] += v
		}
	}

	eta := inv.Efficiency()
	out.AC = make([]float64, len(out.DC))
	for i, dc := range out.DC {
		out.AC[i] = math.Min(dc*eta, pac0)
	}
	return out, nil
}

func runArray(arr models.PVArray, irr models.IrradianceType, temp models.TemperatureType, w *timeseries.Table) (*ArrayOutput, error) {
	pdc0 := arr.Pdc0()
	if pdc0 <= 0 {
		return nil, fmt.Errorf("module_parameters.pdc0 must be positive")
	}

	var poa []float64
	switch irr {
	case models.IrradiancePOA:
		c, err := weatherColumn(w, "poa_global")
		if err != nil {
			return nil, err
		}
		poa = c
	case models.IrradianceEffective:
		c, err := weatherColumn(w, "effective_irradiance")
		if err != nil {
			return nil, err
		}
		poa = c
	case models.IrradianceStandard:
		return nil, ErrStandardIrradiance
	default:
		return nil, fmt.Errorf("unknown irradiance type %q", irr)
	}

	tc, err := cellTemperature(arr, temp, w, poa)
	if err != nil {
		return nil, err
	}

	gamma := arr.Gamma()
	dc := make([]float64, len(poa))
	for i := range poa {
		dc[i] = pdc0 * poa[i] / 1000 * (1 + gamma*(tc[i]-25))
	}
	return &ArrayOutput{POA: poa, CellTemperature: tc, DC: dc}, nil
}

func cellTemperature(arr models.PVArray, temp models.TemperatureType, w *timeseries.Table, poa []float64) ([]float64, error) {
	a, b, deltaT := sapmParameters(arr)
	switch temp {
	case models.TemperatureCell:
		return weatherColumn(w, "cell_temperature")
	case models.TemperatureModule:
		tm, err := weatherColumn(w, "module_temperature")
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(tm))
		for i := range tm {
			out[i] = tm[i] + poa[i]/1000*deltaT
		}
		return out, nil
	case models.TemperatureAir:
		ta, err := weatherColumn(w, "temp_air")
		if err != nil {
			return nil, err
		}
		ws, err := weatherColumn(w, "wind_speed")
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ta))
		for i := range ta {
			tm := poa[i]*math.Exp(a+b*ws[i]) + ta[i]
			out[i] = tm + poa[i]/1000*deltaT
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown temperature type %q", temp)
}

func sapmParameters(arr models.PVArray) (a, b, deltaT float64) {
	a, b, deltaT = defaultSAPMA, defaultSAPMB, defaultSAPMDeltaT
	p := arr.TemperatureModelParameters
	if v, ok := p["a"]; ok {
		a = v
	}
	if v, ok := p["b"]; ok {
		b = v
	}
	if v, ok := p["deltaT"]; ok {
		deltaT = v
	}
	return a, b, deltaT
}

func weatherColumn(w *timeseries.Table, name string) ([]float64, error) {
	c := w.Column(name)
	if c == nil {
		return nil, fmt.Errorf("weather data is missing column %q", name)
	}
	return c.FloatValues(), nil
}
