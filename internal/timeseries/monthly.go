package timeseries

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const MonthColumnName = "month"

var monthNames = func() map[string]time.Month {
	m := make(map[string]time.Month, 36)
	for mo := time.January; mo <= time.December; mo++ {
		full := strings.ToLower(mo.String())
		m[full] = mo
		m[full[:3]] = mo
	}
	m["sept"] = time.September
	return m
}()

// ParseMonth maps the accepted spellings of a month to its number: names and
// three-letter abbreviations in any case, with or without a trailing period,
// and the numbers 1-12 written as integers or floats.
func ParseMonth(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	if mo, ok := monthNames[s]; ok {
		return mo, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return monthFromFloat(f)
}

func monthFromFloat(f float64) (time.Month, bool) {
	if math.IsNaN(f) || f != math.Trunc(f) || f < 1 || f > 12 {
		return 0, false
	}
	return time.Month(int(f)), true
}

// NormalizeMonthly checks that tbl holds exactly one row per calendar month,
// rewrites the month column to canonical month names and sorts the rows
// January to December.
func NormalizeMonthly(tbl *Table) (*Table, error) {
	mc := tbl.Column(MonthColumnName)
	if mc == nil {
		return nil, invalid(`"month" column is required`)
	}
	if tbl.Len() != 12 {
		return nil, invalid("monthly data must have exactly 12 rows, got %d", tbl.Len())
	}

	months := make([]time.Month, 12)
	for i := 0; i < 12; i++ {
		if mc.IsNull(i) {
			return nil, invalid("month is missing in row %d", i+1)
		}
		var (
			mo time.Month
			ok bool
		)
		switch mc.Kind {
		case KindString:
			mo, ok = ParseMonth(mc.Strings[i])
		case KindInt, KindFloat:
			mo, ok = monthFromFloat(mc.Float(i))
		}
		if !ok {
			return nil, invalid("unrecognized month in row %d", i+1)
		}
		months[i] = mo
	}

	order := make([]int, 12)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return months[order[a]] < months[order[b]] })
	for i, r := range order {
		if months[r] != time.Month(i+1) {
			return nil, invalid("month column must contain each month exactly once")
		}
	}

	out := tbl.take(order)
	names := make([]string, 12)
	for i := range names {
		names[i] = time.Month(i + 1).String()
	}
	for i, c := range out.Columns {
		if c.Name == MonthColumnName {
			out.Columns[i] = StringColumn(MonthColumnName, names)
		}
	}
	return out, nil
}
