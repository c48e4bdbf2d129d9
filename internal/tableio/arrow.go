package tableio

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/solarperformanceinsight/spi/internal/timeseries"
)

// EncodeArrow serialises tbl as a single record batch in the Arrow IPC file
// format. Timestamps are stored with second precision and floats as float32.
func EncodeArrow(tbl *timeseries.Table) ([]byte, error) {
	mem := memory.NewGoAllocator()

	fields := make([]arrow.Field, len(tbl.Columns))
	for i, c := range tbl.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i, c := range tbl.Columns {
		appendColumn(b.Field(i), c)
	}
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("open arrow writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

func arrowType(c *timeseries.Column) arrow.DataType {
	switch c.Kind {
	case timeseries.KindTime:
		tz := ""
		if !c.Naive {
			tz = "UTC"
			if len(c.Times) > 0 {
				tz = zoneName(c.Times[0].Location())
			}
		}
		return &arrow.TimestampType{Unit: arrow.Second, TimeZone: tz}
	case timeseries.KindFloat:
		return arrow.PrimitiveTypes.Float32
	case timeseries.KindInt:
		return arrow.PrimitiveTypes.Int64
	case timeseries.KindBool:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.BinaryTypes.String
}

func appendColumn(fb array.Builder, c *timeseries.Column) {
	for r := 0; r < c.Len(); r++ {
		if c.IsNull(r) {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.TimestampBuilder:
			b.Append(arrow.Timestamp(c.Times[r].Unix()))
		case *array.Float32Builder:
			b.Append(float32(c.Floats[r]))
		case *array.Int64Builder:
			b.Append(c.Ints[r])
		case *array.BooleanBuilder:
			b.Append(c.Bools[r])
		case *array.StringBuilder:
			b.Append(c.Strings[r])
		}
	}
}

// zoneName names loc the way Arrow timestamp metadata expects: an IANA name
// or a fixed "+HH:MM" offset.
func zoneName(loc *time.Location) string {
	name := loc.String()
	if name == "UTC" {
		return name
	}
	if name != "" && name != "Local" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	_, offset := time.Now().In(loc).Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

func loadZone(name string) (*time.Location, error) {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}
	if len(name) == 6 && (name[0] == '+' || name[0] == '-') && name[3] == ':' {
		h, errH := strconv.Atoi(name[1:3])
		m, errM := strconv.Atoi(name[4:6])
		if errH == nil && errM == nil {
			offset := h*3600 + m*60
			if name[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(name, offset), nil
		}
	}
	return nil, fmt.Errorf("unknown timezone %q", name)
}

// DecodeArrow reads every record batch of an Arrow IPC file into one table.
func DecodeArrow(b []byte) (*timeseries.Table, error) {
	mem := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(bytes.NewReader(b), ipc.WithAllocator(mem))
	if err != nil {
		return nil, decodeErr("%s", err.Error())
	}
	defer r.Close()

	schema := r.Schema()
	tbl := &timeseries.Table{Columns: make([]*timeseries.Column, schema.NumFields())}
	for i, f := range schema.Fields() {
		c, err := emptyColumn(f)
		if err != nil {
			return nil, err
		}
		tbl.Columns[i] = c
	}

	for n := 0; n < r.NumRecords(); n++ {
		rec, err := r.Record(n)
		if err != nil {
			return nil, decodeErr("%s", err.Error())
		}
		for i := range tbl.Columns {
			if err := appendArray(tbl.Columns[i], rec.Column(i)); err != nil {
				return nil, err
			}
		}
	}
	if len(tbl.Columns) == 0 {
		return nil, decodeErr("Arrow file has no columns")
	}
	padNulls(tbl)
	return tbl, nil
}

func emptyColumn(f arrow.Field) (*timeseries.Column, error) {
	switch t := f.Type.(type) {
	case *arrow.TimestampType:
		return &timeseries.Column{Name: f.Name, Kind: timeseries.KindTime, Naive: t.TimeZone == ""}, nil
	case *arrow.Float16Type, *arrow.Float32Type, *arrow.Float64Type:
		return &timeseries.Column{Name: f.Name, Kind: timeseries.KindFloat}, nil
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type, *arrow.Int64Type,
		*arrow.Uint8Type, *arrow.Uint16Type, *arrow.Uint32Type:
		return &timeseries.Column{Name: f.Name, Kind: timeseries.KindInt}, nil
	case *arrow.BooleanType:
		return &timeseries.Column{Name: f.Name, Kind: timeseries.KindBool}, nil
	case *arrow.StringType, *arrow.LargeStringType:
		return &timeseries.Column{Name: f.Name, Kind: timeseries.KindString}, nil
	}
	return nil, decodeErr("Unsupported type %s for column '%s'", f.Type, f.Name)
}

func appendArray(c *timeseries.Column, arr arrow.Array) error {
	base := c.Len()
	for i := 0; i < arr.Len(); i++ {
		null := arr.IsNull(i)
		switch a := arr.(type) {
		case *array.Timestamp:
			var t time.Time
			if !null {
				tt := a.DataType().(*arrow.TimestampType)
				t = a.Value(i).ToTime(tt.Unit)
				if tt.TimeZone != "" {
					loc, err := loadZone(tt.TimeZone)
					if err != nil {
						return decodeErr("column '%s': %s", c.Name, err)
					}
					t = t.In(loc)
				}
			}
			c.Times = append(c.Times, t)
		case *array.Float16:
			c.Floats = append(c.Floats, nanIf(null, float64(a.Value(i).Float32())))
		case *array.Float32:
			c.Floats = append(c.Floats, nanIf(null, float64(a.Value(i))))
		case *array.Float64:
			c.Floats = append(c.Floats, nanIf(null, a.Value(i)))
		case *array.Int8:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Int16:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Int32:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Int64:
			c.Ints = append(c.Ints, a.Value(i))
		case *array.Uint8:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Uint16:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Uint32:
			c.Ints = append(c.Ints, int64(a.Value(i)))
		case *array.Boolean:
			c.Bools = append(c.Bools, !null && a.Value(i))
		case *array.String:
			c.Strings = append(c.Strings, a.Value(i))
		case *array.LargeString:
			c.Strings = append(c.Strings, a.Value(i))
		default:
			return decodeErr("Unsupported type %s for column '%s'", arr.DataType(), c.Name)
		}
		if null && c.Kind != timeseries.KindFloat {
			markNull(c, base+i)
		}
	}
	return nil
}

func markNull(c *timeseries.Column, i int) {
	if c.Null == nil {
		c.Null = make([]bool, i+1)
	}
	for len(c.Null) <= i {
		c.Null = append(c.Null, false)
	}
	c.Null[i] = true
}

func nanIf(null bool, v float64) float64 {
	if null {
		return math.NaN()
	}
	return v
}

// padNulls extends Null to the column length after decoding.
func padNulls(tbl *timeseries.Table) {
	for _, c := range tbl.Columns {
		if c.Null == nil {
			continue
		}
		for len(c.Null) < c.Len() {
			c.Null = append(c.Null, false)
		}
	}
}
