package timeseries

import (
	"math"
	"sort"
	"time"
)

// HourlyMean averages vals into wall-clock hours of their own zone. NaN values
// are skipped and hours with no valid value are omitted.
func HourlyMean(times []time.Time, vals []float64) ([]time.Time, []float64) {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*acc)
	starts := make(map[int64]time.Time)
	for i, t := range times {
		if math.IsNaN(vals[i]) {
			continue
		}
		h := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
		key := h.Unix()
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
			starts[key] = h
		}
		a.sum += vals[i]
		a.n++
	}
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	outT := make([]time.Time, len(keys))
	outV := make([]float64, len(keys))
	for i, k := range keys {
		outT[i] = starts[k]
		outV[i] = buckets[k].sum / float64(buckets[k].n)
	}
	return outT, outV
}

// MonthlySum totals vals by calendar month, skipping NaN.
func MonthlySum(times []time.Time, vals []float64) map[time.Month]float64 {
	out := make(map[time.Month]float64)
	for i, t := range times {
		if math.IsNaN(vals[i]) {
			continue
		}
		out[t.Month()] += vals[i]
	}
	return out
}

// MonthlyEnergy converts a power series in W to monthly energy in Wh by
// averaging to hours and summing the hours of each month.
func MonthlyEnergy(times []time.Time, power []float64) map[time.Month]float64 {
	ht, hv := HourlyMean(times, power)
	return MonthlySum(ht, hv)
}
