package tableio_test

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	assert.Equal(t, tableio.FormatCSV, tableio.FormatFor("text/csv"))
	assert.Equal(t, tableio.FormatCSV, tableio.FormatFor("text/csv; charset=utf-8"))
	assert.Equal(t, tableio.FormatCSV, tableio.FormatFor("application/vnd.ms-excel"))
	assert.Equal(t, tableio.FormatArrow, tableio.FormatFor("application/vnd.apache.arrow.file"))
	assert.Equal(t, tableio.FormatArrow, tableio.FormatFor("application/octet-stream"))
	assert.Equal(t, tableio.FormatUnknown, tableio.FormatFor("application/json"))
	assert.Equal(t, tableio.FormatUnknown, tableio.FormatFor(""))
}

func TestDecodeCSV_InfersTypes(t *testing.T) {
	body := `# exported from the logger
time,ghi,count,flag,note,sparse
2020-01-01T00:00:00-07:00,1.5,1,True,a,1
2020-01-01T01:00:00-07:00,-999,2,False,b,NA

2020-01-01T02:00:00-07:00,3,3,true,c,-9999.0
`
	tbl, err := tableio.DecodeCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())

	tc := tbl.Column("time")
	require.Equal(t, timeseries.KindTime, tc.Kind)
	assert.False(t, tc.Naive)
	assert.True(t, tc.Times[1].Equal(time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)))

	ghi := tbl.Column("ghi")
	assert.Equal(t, timeseries.KindFloat, ghi.Kind)
	assert.Equal(t, 1.5, ghi.Floats[0])
	assert.True(t, math.IsNaN(ghi.Floats[1]))

	assert.Equal(t, timeseries.KindInt, tbl.Column("count").Kind)
	assert.Equal(t, []int64{1, 2, 3}, tbl.Column("count").Ints)
	assert.Equal(t, timeseries.KindBool, tbl.Column("flag").Kind)
	assert.Equal(t, timeseries.KindString, tbl.Column("note").Kind)

	sparse := tbl.Column("sparse")
	assert.Equal(t, timeseries.KindFloat, sparse.Kind, "ints with NA become floats")
	assert.Equal(t, 2, sparse.NullCount())
}

func TestDecodeCSV_NaiveTimes(t *testing.T) {
	tbl, err := tableio.DecodeCSV(strings.NewReader("time,ghi\n2020-01-01 00:00,1\n2020-01-01 01:00,2\n"))
	require.NoError(t, err)
	tc := tbl.Column("time")
	assert.True(t, tc.Naive)
	assert.Equal(t, 1, tc.Times[1].Hour())
}

func TestDecodeCSV_UnparseableTimeIsString(t *testing.T) {
	tbl, err := tableio.DecodeCSV(strings.NewReader("time,ghi\nyesterday,1\n"))
	require.NoError(t, err)
	assert.Equal(t, timeseries.KindString, tbl.Column("time").Kind)
}

func TestDecodeCSV_Errors(t *testing.T) {
	for name, tc := range map[string]struct {
		body string
		msg  string
	}{
		"empty body":     {"", "No columns to parse from file"},
		"header only":    {"time,ghi\n", "Empty CSV file"},
		"numeric header": {"1.0,2.0\n3,4\n", "The header '1.0' can be parsed as a float indicating a header row may be missing?"},
		"empty header":   {"time,,ghi\n1,2,3\n", "Empty header for column 1"},
		"duplicate":      {"ghi,ghi\n1,2\n", "Duplicate header 'ghi'"},
		"too many":       {"a,b\n1,2,3\n", "Expected 2 fields in line 2, saw 3"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tableio.DecodeCSV(strings.NewReader(tc.body))
			var de *tableio.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.msg, de.Msg)
		})
	}
}

func TestDecodeCSV_ShortRowsArePadded(t *testing.T) {
	tbl, err := tableio.DecodeCSV(strings.NewReader("a,b\n1,2\n3\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Column("b").NullCount())
}

func TestArrowRoundTrip(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	times := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, denver),
		time.Date(2020, 1, 1, 1, 0, 0, 0, denver),
		time.Date(2020, 1, 1, 2, 0, 0, 0, denver),
	}
	flags := timeseries.BoolColumn("flag", []bool{true, false, true})
	flags.Null = []bool{false, true, false}
	in := timeseries.NewTable(
		timeseries.TimeColumn("time", times, false),
		timeseries.FloatColumn("ac_power", []float64{1.5, math.NaN(), 3}),
		timeseries.IntColumn("count", []int64{1, 2, 3}),
		flags,
		timeseries.StringColumn("note", []string{"a", "b", "c"}),
	)

	b, err := tableio.EncodeArrow(in)
	require.NoError(t, err)
	out, err := tableio.DecodeArrow(b)
	require.NoError(t, err)

	assert.Equal(t, in.Names(), out.Names())
	tc := out.Column("time")
	assert.False(t, tc.Naive)
	assert.Equal(t, "America/Denver", tc.Times[0].Location().String())
	assert.True(t, tc.Times[2].Equal(times[2]))

	ac := out.Column("ac_power")
	assert.Equal(t, 1.5, ac.Floats[0])
	assert.True(t, ac.IsNull(1))
	assert.Equal(t, []int64{1, 2, 3}, out.Column("count").Ints)
	assert.True(t, out.Column("flag").IsNull(1))
	assert.False(t, out.Column("flag").IsNull(2))
	assert.Equal(t, []string{"a", "b", "c"}, out.Column("note").Strings)
}

func TestArrowRoundTrip_NaiveAndFixedOffset(t *testing.T) {
	naive := timeseries.NewTable(timeseries.TimeColumn("time", []time.Time{time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)}, true))
	b, err := tableio.EncodeArrow(naive)
	require.NoError(t, err)
	out, err := tableio.DecodeArrow(b)
	require.NoError(t, err)
	assert.True(t, out.Column("time").Naive)
	assert.Equal(t, 12, out.Column("time").Times[0].Hour())

	fixed := time.FixedZone("", -7*3600)
	aware := timeseries.NewTable(timeseries.TimeColumn("time", []time.Time{time.Date(2020, 6, 1, 12, 0, 0, 0, fixed)}, false))
	b, err = tableio.EncodeArrow(aware)
	require.NoError(t, err)
	out, err = tableio.DecodeArrow(b)
	require.NoError(t, err)
	_, offset := out.Column("time").Times[0].Zone()
	assert.Equal(t, -7*3600, offset)
	assert.Equal(t, 12, out.Column("time").Times[0].Hour())
}

func TestDecodeArrow_Garbage(t *testing.T) {
	_, err := tableio.DecodeArrow([]byte("not an arrow file"))
	var de *tableio.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestArrowToCSV(t *testing.T) {
	in := timeseries.NewTable(
		timeseries.TimeColumn("time", []time.Time{
			time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC),
		}, false),
		timeseries.FloatColumn("ac_power", []float64{0.1, math.NaN()}),
	)
	b, err := tableio.EncodeArrow(in)
	require.NoError(t, err)

	out, err := tableio.ArrowToCSV(b)
	require.NoError(t, err)
	assert.Equal(t, "time,ac_power\n2020-01-01 00:00:00+00:00,0.1\n2020-01-01 01:00:00+00:00,\n", string(out))
}

func TestEncodeCSV_RoundTripsThroughDecode(t *testing.T) {
	in := timeseries.NewTable(
		timeseries.StringColumn("month", []string{"January", "February"}),
		timeseries.FloatColumn("total_energy", []float64{1200.25, 1300}),
	)
	var buf bytes.Buffer
	require.NoError(t, tableio.EncodeCSV(&buf, in))

	out, err := tableio.DecodeCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"January", "February"}, out.Column("month").Strings)
	assert.Equal(t, []float64{1200.25, 1300}, out.Column("total_energy").Floats)
}
