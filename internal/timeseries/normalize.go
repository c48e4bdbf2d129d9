package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/solarperformanceinsight/spi/pkg/models"
)

const (
	TimeColumnName = "time"

	// maxMissingFraction is the share of target rows an upload may lack.
	maxMissingFraction = 0.1
)

// ValidationError is a client-correctable problem with an uploaded table.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Stats summarises how an upload was reshaped.
type Stats struct {
	ExpectedRows   int            `json:"number_of_expected_rows"`
	MissingRows    int            `json:"number_of_missing_rows"`
	MissingTimes   []time.Time    `json:"missing_times"`
	ExtraRows      int            `json:"number_of_extra_rows"`
	ExtraTimes     []time.Time    `json:"extra_times"`
	MissingValues  map[string]int `json:"number_of_missing_values"`
	DeclaredPeriod float64        `json:"declared_period"`
	InferredPeriod *float64       `json:"inferred_period"`
}

type indexedRow struct {
	t     time.Time
	valid bool
	src   int
}

// Normalize reshapes tbl onto the target index declared by tp. Rows outside
// the index are dropped and reported as extras; index entries without a row
// are filled with missing values. When allowShift is set and the upload
// starts in a different year than the index, every timestamp is moved by the
// year difference keeping its wall time.
func Normalize(tbl *Table, tp models.TimeParameters, allowShift bool) (*Table, *Stats, error) {
	tc := tbl.Column(TimeColumnName)
	if tc == nil {
		return nil, nil, invalid(`"time" column is required`)
	}
	if tc.Kind != KindTime {
		return nil, nil, invalid(`"time" column could not be parsed as timestamps`)
	}
	target, loc, err := Index(tp)
	if err != nil {
		return nil, nil, invalid("invalid time parameters: %s", err)
	}

	rows := make([]indexedRow, tc.Len())
	seen := make(map[int64]bool, tc.Len())
	duplicates := 0
	for i := range rows {
		rows[i].src = i
		if tc.IsNull(i) {
			continue
		}
		rows[i].t = tc.Times[i].Round(time.Second)
		rows[i].valid = true
		key := rows[i].t.Unix()
		if seen[key] {
			duplicates++
		}
		seen[key] = true
	}
	if duplicates > 0 {
		return nil, nil, invalid(`"time" column has %d duplicate entries`, duplicates)
	}
	sortRows(rows)

	for i := range rows {
		if !rows[i].valid {
			continue
		}
		if tc.Naive {
			rows[i].t, rows[i].valid = Localize(rows[i].t, loc)
		} else {
			rows[i].t = rows[i].t.In(loc)
		}
	}

	if allowShift && len(target) > 0 {
		if first, ok := firstValid(rows); ok {
			if delta := target[0].Year() - first.Year(); delta != 0 {
				for i := range rows {
					if rows[i].valid {
						rows[i].t, rows[i].valid = shiftYears(rows[i].t, delta, loc)
					}
				}
			}
		}
	}
	sortRows(rows)

	targetPos := make(map[int64]int, len(target))
	for i, t := range target {
		targetPos[t.Unix()] = i
	}
	src := make([]int, len(target))
	for i := range src {
		src[i] = -1
	}
	stats := &Stats{
		ExpectedRows:   len(target),
		MissingTimes:   []time.Time{},
		ExtraTimes:     []time.Time{},
		MissingValues:  make(map[string]int),
		DeclaredPeriod: tp.Step.Duration().Seconds(),
	}
	kept := make([]time.Time, 0, len(rows))
	placed := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if !r.valid {
			continue
		}
		key := r.t.Unix()
		// DST fall-back and Feb 29 shifts can collapse two rows onto one instant.
		if placed[key] {
			continue
		}
		placed[key] = true
		kept = append(kept, r.t)
		if p, ok := targetPos[key]; ok {
			src[p] = r.src
		} else {
			stats.ExtraTimes = append(stats.ExtraTimes, r.t)
		}
	}
	for i, s := range src {
		if s < 0 {
			stats.MissingTimes = append(stats.MissingTimes, target[i])
		}
	}
	stats.ExtraRows = len(stats.ExtraTimes)
	stats.MissingRows = len(stats.MissingTimes)
	stats.InferredPeriod = inferPeriod(kept)

	if len(target) > 0 && float64(stats.MissingRows)/float64(len(target)) > maxMissingFraction {
		return nil, nil, invalid("too many missing rows: %d of %d expected rows are missing",
			stats.MissingRows, len(target))
	}

	out := &Table{Columns: make([]*Column, 0, len(tbl.Columns))}
	for _, c := range tbl.Columns {
		if c.Name == TimeColumnName {
			out.Columns = append(out.Columns, TimeColumn(TimeColumnName, target, false))
			continue
		}
		col := c.take(src)
		n := 0
		for i, s := range src {
			if s >= 0 && col.IsNull(i) {
				n++
			}
		}
		stats.MissingValues[c.Name] = n
		out.Columns = append(out.Columns, col)
	}
	return out, stats, nil
}

func sortRows(rows []indexedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].valid != rows[j].valid {
			return rows[i].valid
		}
		return rows[i].t.Before(rows[j].t)
	})
}

func firstValid(rows []indexedRow) (time.Time, bool) {
	for _, r := range rows {
		if r.valid {
			return r.t, true
		}
	}
	return time.Time{}, false
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// shiftYears moves t by years keeping its wall time in loc. Feb 29 maps to
// Feb 28 when the destination year is not a leap year.
func shiftYears(t time.Time, years int, loc *time.Location) (time.Time, bool) {
	w := t.In(loc)
	year, day := w.Year()+years, w.Day()
	if w.Month() == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	wall := time.Date(year, w.Month(), day, w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.UTC)
	return Localize(wall, loc)
}

// inferPeriod returns the most common spacing in seconds between sorted
// timestamps, or nil with fewer than two.
func inferPeriod(times []time.Time) *float64 {
	if len(times) < 2 {
		return nil
	}
	counts := make(map[time.Duration]int)
	var best time.Duration
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		counts[d]++
		if counts[d] > counts[best] || (counts[d] == counts[best] && d < best) {
			best = d
		}
	}
	secs := best.Seconds()
	return &secs
}
