package tableio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

var naTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "#N/A": true, "<NA>": true,
	"NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"null": true, "NULL": true, "None": true,
}

func isNA(s string) bool {
	if naTokens[s] {
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && (f == -999 || f == -9999)
}

// DecodeCSV reads a CSV body with a header row. Lines starting with '#' are
// skipped and NA tokens become missing values. Column types are inferred:
// "time" as timestamps, then int, float, bool and finally string. Int
// columns with missing values are read as floats.
func DecodeCSV(r io.Reader) (*timeseries.Table, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, decodeErr("No columns to parse from file")
	}
	if err != nil {
		return nil, decodeErr("%s", err.Error())
	}
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if h == "" {
			return nil, decodeErr("Empty header for column %d", i)
		}
		if _, err := strconv.ParseFloat(h, 64); err == nil {
			return nil, decodeErr("The header '%s' can be parsed as a float indicating a header row may be missing?", h)
		}
		if seen[h] {
			return nil, decodeErr("Duplicate header '%s'", h)
		}
		seen[h] = true
	}

	raw := make([][]string, len(header))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, decodeErr("%s", err.Error())
		}
		line++
		if len(rec) > len(header) {
			return nil, decodeErr("Expected %d fields in line %d, saw %d", len(header), line, len(rec))
		}
		for i := range header {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			raw[i] = append(raw[i], v)
		}
	}
	if len(raw[0]) == 0 {
		return nil, decodeErr("Empty CSV file")
	}

	tbl := &timeseries.Table{Columns: make([]*timeseries.Column, len(header))}
	for i, name := range header {
		tbl.Columns[i] = inferColumn(name, raw[i])
	}
	return tbl, nil
}

func inferColumn(name string, vals []string) *timeseries.Column {
	null := make([]bool, len(vals))
	anyNull, allNull := false, true
	for i, v := range vals {
		null[i] = isNA(v)
		anyNull = anyNull || null[i]
		allNull = allNull && null[i]
	}
	if !anyNull {
		null = nil
	}
	if allNull {
		return floatColumn(name, vals, null)
	}
	if name == timeseries.TimeColumnName {
		if c := timeColumn(name, vals, null); c != nil {
			return c
		}
	}
	if c := intColumn(name, vals, null); c != nil {
		if anyNull {
			return floatColumn(name, vals, null)
		}
		return c
	}
	if c := floatColumn(name, vals, null); c != nil {
		return c
	}
	if !anyNull {
		if c := boolColumn(name, vals); c != nil {
			return c
		}
	}
	c := timeseries.StringColumn(name, vals)
	c.Null = null
	return c
}

func timeColumn(name string, vals []string, null []bool) *timeseries.Column {
	times := make([]time.Time, len(vals))
	naive, aware := false, false
	for i, v := range vals {
		if null != nil && null[i] {
			continue
		}
		ts, err := models.ParseTimestamp(v)
		if err != nil {
			return nil
		}
		naive = naive || ts.Naive
		aware = aware || !ts.Naive
		times[i] = ts.Time
	}
	if naive && aware {
		return nil
	}
	c := timeseries.TimeColumn(name, times, naive)
	c.Null = null
	return c
}

func intColumn(name string, vals []string, null []bool) *timeseries.Column {
	ints := make([]int64, len(vals))
	for i, v := range vals {
		if null != nil && null[i] {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		ints[i] = n
	}
	c := timeseries.IntColumn(name, ints)
	c.Null = null
	return c
}

func floatColumn(name string, vals []string, null []bool) *timeseries.Column {
	floats := make([]float64, len(vals))
	for i, v := range vals {
		if null != nil && null[i] {
			floats[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		floats[i] = f
	}
	return timeseries.FloatColumn(name, floats)
}

func boolColumn(name string, vals []string) *timeseries.Column {
	bools := make([]bool, len(vals))
	for i, v := range vals {
		switch v {
		case "True", "true", "TRUE":
			bools[i] = true
		case "False", "false", "FALSE":
		default:
			return nil
		}
	}
	return timeseries.BoolColumn(name, bools)
}

const (
	csvAwareLayout = "2006-01-02 15:04:05-07:00"
	csvNaiveLayout = "2006-01-02 15:04:05"
)

// EncodeCSV writes tbl with a header row. Missing values are written as
// empty fields.
func EncodeCSV(w io.Writer, tbl *timeseries.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.Names()); err != nil {
		return err
	}
	rec := make([]string, len(tbl.Columns))
	for r := 0; r < tbl.Len(); r++ {
		for i, c := range tbl.Columns {
			rec[i] = formatCell(c, r)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(c *timeseries.Column, r int) string {
	if c.IsNull(r) {
		return ""
	}
	switch c.Kind {
	case timeseries.KindTime:
		if c.Naive {
			return c.Times[r].UTC().Format(csvNaiveLayout)
		}
		return c.Times[r].Format(csvAwareLayout)
	case timeseries.KindFloat:
		return formatFloat(c.Floats[r])
	case timeseries.KindInt:
		return strconv.FormatInt(c.Ints[r], 10)
	case timeseries.KindBool:
		if c.Bools[r] {
			return "True"
		}
		return "False"
	}
	return c.Strings[r]
}

// formatFloat writes the shortest representation, using float32 precision
// for values that round-trip through float32 storage.
func formatFloat(v float64) string {
	if float64(float32(v)) == v {
		return strconv.FormatFloat(v, 'f', -1, 32)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ArrowToCSV converts a stored Arrow file to CSV.
func ArrowToCSV(b []byte) ([]byte, error) {
	tbl, err := DecodeArrow(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, tbl); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
