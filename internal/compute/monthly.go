package compute

import (
	"fmt"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

// g0 is the reference irradiance in W/m^2.
const g0 = 1000.0

// compareMonthly adjusts the predicted monthly energy to the actual monthly
// insolation and cell temperature and compares it with the actual energy:
//
//	poa_rat   = actual insolation / predicted insolation
//	temp_loss = pac0 / G0 * poa_rat * mean(gamma) * (T_actual - T_predicted)
//	E_adj     = E_predicted * poa_rat + temp_loss
func compareMonthly(r *run) error {
	tbl, err := r.data.table("/", models.DataMonthly)
	if err != nil {
		return err
	}
	month := tbl.Column(timeseries.MonthColumnName)
	if month == nil || month.Kind != timeseries.KindString {
		return fmt.Errorf("monthly data has no month names")
	}
	col := func(name string) ([]float64, error) {
		c := tbl.Column(name)
		if c == nil {
			return nil, fmt.Errorf("monthly data is missing column %q", name)
		}
		return c.FloatValues(), nil
	}
	predInsol, err := col("predicted_total_poa_insolation")
	if err != nil {
		return err
	}
	predTemp, err := col("predicted_average_daytime_cell_temperature")
	if err != nil {
		return err
	}
	predEnergy, err := col("predicted_total_energy")
	if err != nil {
		return err
	}
	actInsol, err := col("actual_total_poa_insolation")
	if err != nil {
		return err
	}
	actTemp, err := col("actual_average_daytime_cell_temperature")
	if err != nil {
		return err
	}
	actEnergy, err := col("actual_total_energy")
	if err != nil {
		return err
	}

	system := r.system()
	pac0 := 0.0
	gammaSum := 0.0
	for _, inv := range system.Inverters {
		pac0 += inv.Pac0()
		g := 0.0
		for _, arr := range inv.Arrays {
			g += arr.Gamma()
		}
		gammaSum += g / float64(len(inv.Arrays))
	}
	gamma := gammaSum / float64(len(system.Inverters))

	n := tbl.Len()
	adjusted := make([]float64, n)
	diff := make([]float64, n)
	ratio := make([]float64, n)
	for i := 0; i < n; i++ {
		poaRat := actInsol[i] / predInsol[i]
		tempLoss := pac0 / g0 * poaRat * gamma * (actTemp[i] - predTemp[i])
		adjusted[i] = predEnergy[i]*poaRat + tempLoss
		diff[i] = actEnergy[i] - adjusted[i]
		ratio[i] = actEnergy[i] / adjusted[i]
	}

	names := make([]string, n)
	copy(names, month.Strings)
	return r.emit("/", models.ResultActualVsAdjustedPred, timeseries.NewTable(
		timeseries.StringColumn("month", names),
		timeseries.FloatColumn("actual_energy", actEnergy),
		timeseries.FloatColumn("weather_adjusted_energy", adjusted),
		timeseries.FloatColumn("difference", diff),
		timeseries.FloatColumn("ratio", ratio),
	))
}
