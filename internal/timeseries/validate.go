package timeseries

import (
	"sort"
	"strings"
)

// ValidateColumns checks that every required column is present, that "time"
// holds timestamps and that the other required columns are numeric. The
// month column is checked by NormalizeMonthly. It returns the names of
// columns that were not requested.
func ValidateColumns(tbl *Table, required []string) ([]string, error) {
	want := make(map[string]bool, len(required))
	var missing, nonNumeric []string
	for _, name := range required {
		want[name] = true
		c := tbl.Column(name)
		if c == nil {
			missing = append(missing, name)
			continue
		}
		switch name {
		case TimeColumnName:
			if c.Kind != KindTime {
				return nil, invalid(`"time" column could not be parsed as timestamps`)
			}
		case MonthColumnName:
		default:
			if !c.Numeric() && !allNull(c) {
				nonNumeric = append(nonNumeric, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, invalid("data is missing column(s): %s", strings.Join(missing, ", "))
	}
	if len(nonNumeric) > 0 {
		return nil, invalid("column(s) are not numeric: %s", strings.Join(nonNumeric, ", "))
	}
	var extra []string
	for _, c := range tbl.Columns {
		if !want[c.Name] {
			extra = append(extra, c.Name)
		}
	}
	return extra, nil
}

func allNull(c *Column) bool {
	return c.NullCount() == c.Len()
}
