package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/solarperformanceinsight/spi/pkg/models"
)

// Localize interprets the wall clock held in naive's UTC fields in loc.
// Ambiguous wall times resolve to the earliest instant; wall times skipped by
// a DST transition report ok=false.
func Localize(naive time.Time, loc *time.Location) (time.Time, bool) {
	wall := naive.UTC()
	var best time.Time
	found := false
	seen := make(map[int]bool, 3)
	for _, probe := range []time.Duration{-36 * time.Hour, -14 * time.Hour, 0, 14 * time.Hour, 36 * time.Hour} {
		_, offset := wall.Add(probe).In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true
		cand := wall.Add(-time.Duration(offset) * time.Second)
		if !sameWall(cand.In(loc), wall) {
			continue
		}
		if !found || cand.Before(best) {
			best, found = cand, true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return best.In(loc), true
}

func sameWall(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() &&
		a.Second() == b.Second() && a.Nanosecond() == b.Nanosecond()
}

func resolve(ts models.Timestamp, loc *time.Location) (time.Time, error) {
	if !ts.Naive {
		return ts.Time.In(loc), nil
	}
	t, ok := Localize(ts.Time, loc)
	if !ok {
		return time.Time{}, fmt.Errorf("%s does not exist in %s", ts, loc)
	}
	return t, nil
}

// Index generates the job's target timestamps: start, start+step, ... up to
// but excluding end, expressed in the job's zone.
func Index(tp models.TimeParameters) ([]time.Time, *time.Location, error) {
	loc, err := tp.Location()
	if err != nil {
		return nil, nil, err
	}
	step := tp.Step.Duration()
	if step <= 0 {
		return nil, nil, fmt.Errorf("step must be positive")
	}
	start, err := resolve(tp.Start, loc)
	if err != nil {
		return nil, nil, err
	}
	end, err := resolve(tp.End, loc)
	if err != nil {
		return nil, nil, err
	}
	out := make([]time.Time, 0, int(end.Sub(start)/step))
	for t := start; t.Before(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out, loc, nil
}

// Months returns the distinct calendar months covered by times, in month order.
func Months(times []time.Time) []time.Month {
	seen := make(map[time.Month]bool)
	var out []time.Month
	for _, t := range times {
		if !seen[t.Month()] {
			seen[t.Month()] = true
			out = append(out, t.Month())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
