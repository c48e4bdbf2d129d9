// Package timeseries holds the in-memory table used for uploads and results
// and reshapes uploaded tables onto a job's target time index.
package timeseries

import (
	"math"
	"time"
)

// Kind is the element type of a column.
type Kind int

const (
	KindTime Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "timestamp"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	}
	return "unknown"
}

// Column is a named, typed vector. Only the slice matching Kind is populated.
// Null marks missing values; a nil Null means none are missing. Float NaN is
// also treated as missing.
type Column struct {
	Name    string
	Kind    Kind
	Times   []time.Time
	Floats  []float64
	Ints    []int64
	Bools   []bool
	Strings []string
	Null    []bool

	// Naive is set on time columns whose values have no zone; the wall clock
	// is stored in the UTC fields.
	Naive bool
}

func TimeColumn(name string, times []time.Time, naive bool) *Column {
	return &Column{Name: name, Kind: KindTime, Times: times, Naive: naive}
}

func FloatColumn(name string, vals []float64) *Column {
	return &Column{Name: name, Kind: KindFloat, Floats: vals}
}

func IntColumn(name string, vals []int64) *Column {
	return &Column{Name: name, Kind: KindInt, Ints: vals}
}

func BoolColumn(name string, vals []bool) *Column {
	return &Column{Name: name, Kind: KindBool, Bools: vals}
}

func StringColumn(name string, vals []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: vals}
}

func (c *Column) Len() int {
	switch c.Kind {
	case KindTime:
		return len(c.Times)
	case KindFloat:
		return len(c.Floats)
	case KindInt:
		return len(c.Ints)
	case KindBool:
		return len(c.Bools)
	default:
		return len(c.Strings)
	}
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	if c.Null != nil && c.Null[i] {
		return true
	}
	return c.Kind == KindFloat && math.IsNaN(c.Floats[i])
}

// Numeric reports whether the column holds ints or floats.
func (c *Column) Numeric() bool { return c.Kind == KindFloat || c.Kind == KindInt }

// Float returns row i as a float64; missing values are NaN.
func (c *Column) Float(i int) float64 {
	if c.IsNull(i) {
		return math.NaN()
	}
	switch c.Kind {
	case KindFloat:
		return c.Floats[i]
	case KindInt:
		return float64(c.Ints[i])
	}
	return math.NaN()
}

// FloatValues returns the column as float64s with NaN for missing values.
func (c *Column) FloatValues() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}

// NullCount counts missing values.
func (c *Column) NullCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

func (c *Column) setNull(i int) {
	if c.Null == nil {
		c.Null = make([]bool, c.Len())
	}
	c.Null[i] = true
}

// take builds a new column from the given rows; -1 yields a missing value.
// Int and bool columns that gain missing values keep their kind with Null set.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Naive: c.Naive}
	n := len(rows)
	switch c.Kind {
	case KindTime:
		out.Times = make([]time.Time, n)
	case KindFloat:
		out.Floats = make([]float64, n)
	case KindInt:
		out.Ints = make([]int64, n)
	case KindBool:
		out.Bools = make([]bool, n)
	default:
		out.Strings = make([]string, n)
	}
	for i, r := range rows {
		if r < 0 {
			if c.Kind == KindFloat {
				out.Floats[i] = math.NaN()
			}
			out.setNull(i)
			continue
		}
		switch c.Kind {
		case KindTime:
			out.Times[i] = c.Times[r]
		case KindFloat:
			out.Floats[i] = c.Floats[r]
		case KindInt:
			out.Ints[i] = c.Ints[r]
		case KindBool:
			out.Bools[i] = c.Bools[r]
		default:
			out.Strings[i] = c.Strings[r]
		}
		if c.Null != nil && c.Null[r] {
			out.setNull(i)
		}
	}
	return out
}

// Table is an ordered set of equal-length columns.
type Table struct {
	Columns []*Column
}

func NewTable(cols ...*Column) *Table {
	return &Table{Columns: cols}
}

// Len is the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) take(rows []int) *Table {
	out := &Table{Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.take(rows)
	}
	return out
}
