package compute

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/tableio"
	"github.com/solarperformanceinsight/spi/internal/timeseries"
	"github.com/solarperformanceinsight/spi/pkg/models"
)

type slotKey struct {
	path string
	typ  string
}

// jobData fetches and decodes a job's uploaded tables, caching each by id.
type jobData struct {
	ctx   context.Context
	q     store.Queries
	user  string
	job   *models.Job
	ids   map[slotKey]uuid.UUID
	cache map[uuid.UUID]*timeseries.Table

	// rows is the length of the job's time index; 0 for monthly jobs.
	rows int
}

func newJobData(ctx context.Context, q store.Queries, user string, job *models.Job, rows int) *jobData {
	ids := make(map[slotKey]uuid.UUID, len(job.DataObjects))
	for _, d := range job.DataObjects {
		ids[slotKey{d.Definition.SchemaPath, d.Definition.Type}] = d.ObjectID
	}
	return &jobData{
		ctx:   ctx,
		q:     q,
		user:  user,
		job:   job,
		ids:   ids,
		cache: make(map[uuid.UUID]*timeseries.Table),
		rows:  rows,
	}
}

func (d *jobData) table(path, typ string) (*timeseries.Table, error) {
	id, ok := d.ids[slotKey{path, typ}]
	if !ok {
		return nil, fmt.Errorf("job has no %s at %s", typ, path)
	}
	if tbl, ok := d.cache[id]; ok {
		return tbl, nil
	}
	if err := d.ctx.Err(); err != nil {
		return nil, err
	}

	data, err := d.q.GetJobData(d.ctx, d.user, d.job.ObjectID, id)
	if err != nil {
		return nil, fmt.Errorf("get job data %s: %w", id, err)
	}
	if !data.Definition.Present {
		return nil, fmt.Errorf("data for /jobs/%s/data/%s has not been uploaded", d.job.ObjectID, id)
	}
	if data.Definition.DataFormat != models.FormatArrow {
		return nil, fmt.Errorf("data for /jobs/%s/data/%s not in Apache Arrow format", d.job.ObjectID, id)
	}
	tbl, err := tableio.DecodeArrow(data.Data)
	if err != nil {
		return nil, fmt.Errorf("decode job data %s: %w", id, err)
	}
	if d.rows > 0 && tbl.Len() != d.rows {
		return nil, fmt.Errorf("data for /jobs/%s/data/%s has %d rows, expected %d", d.job.ObjectID, id, tbl.Len(), d.rows)
	}
	d.cache[id] = tbl
	return tbl, nil
}

// weather returns, for every inverter, one table per array of the given
// weather type, resolved according to the granularity it was uploaded at.
func (d *jobData) weather(typ string, g models.Granularity) ([][]*timeseries.Table, error) {
	system := d.job.Definition.SystemDefinition
	out := make([][]*timeseries.Table, len(system.Inverters))
	for i, inv := range system.Inverters {
		out[i] = make([]*timeseries.Table, len(inv.Arrays))
		for j := range inv.Arrays {
			var path string
			switch g {
			case models.GranularitySystem:
				path = "/"
			case models.GranularityInverter:
				path = fmt.Sprintf("/inverters/%d", i)
			case models.GranularityArray:
				path = fmt.Sprintf("/inverters/%d/arrays/%d", i, j)
			default:
				return nil, fmt.Errorf("unknown weather granularity %q", g)
			}
			tbl, err := d.table(path, typ)
			if err != nil {
				return nil, err
			}
			out[i][j] = tbl
		}
	}
	return out, nil
}

// performance returns the "performance" columns of every slot of typ, keyed
// by schema path.
func (d *jobData) performance(typ, column string) (map[string][]float64, error) {
	out := make(map[string][]float64)
	for _, obj := range d.job.DataObjects {
		if obj.Definition.Type != typ {
			continue
		}
		tbl, err := d.table(obj.Definition.SchemaPath, typ)
		if err != nil {
			return nil, err
		}
		c := tbl.Column(column)
		if c == nil {
			return nil, fmt.Errorf("%s at %s is missing column %q", typ, obj.Definition.SchemaPath, column)
		}
		out[obj.Definition.SchemaPath] = c.FloatValues()
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("job has no %s", typ)
	}
	return out, nil
}

// totalPerformance sums every slot of typ. Missing values propagate.
func (d *jobData) totalPerformance(typ string) ([]float64, error) {
	perf, err := d.performance(typ, "performance")
	if err != nil {
		return nil, err
	}
	total := make([]float64, d.rows)
	for _, vals := range perf {
		addInto(total, vals)
	}
	return total, nil
}

// missingLeapDays flags rows on February 29 where every table has nothing
// but missing values for the whole day, which happens when weather from a
// common year was shifted onto a leap year.
func missingLeapDays(times []time.Time, tables []*timeseries.Table) map[int]bool {
	var feb29 []int
	for i, t := range times {
		if t.Month() == time.February && t.Day() == 29 {
			feb29 = append(feb29, i)
		}
	}
	if len(feb29) == 0 || len(tables) == 0 {
		return nil
	}
	for _, tbl := range tables {
		for _, c := range tbl.Columns {
			if c.Kind == timeseries.KindTime {
				continue
			}
			for _, i := range feb29 {
				if !c.IsNull(i) {
					return nil
				}
			}
		}
	}
	out := make(map[int]bool, len(feb29))
	for _, i := range feb29 {
		out[i] = true
	}
	return out
}

func addInto(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
