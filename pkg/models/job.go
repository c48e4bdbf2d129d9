package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusCreated  = "created"
	JobStatusPrepared = "prepared"
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusError    = "error"
)

// JobType discriminates the analysis a job performs.
type JobType string

const (
	JobCalculatePredicted         JobType = "calculate predicted performance"
	JobCalculateExpected          JobType = "calculate expected performance"
	JobComparePredictedActual     JobType = "compare predicted and actual performance"
	JobComparePredictedExpected   JobType = "compare predicted and expected performance"
	JobCompareExpectedActual      JobType = "compare expected and actual performance"
	JobWeatherAdjustedPR          JobType = "weather adjusted performance ratio"
	JobCompareMonthlyPredictedAct JobType = "compare monthly predicted and actual performance"
)

var jobTypes = map[JobType]bool{
	JobCalculatePredicted:         true,
	JobCalculateExpected:          true,
	JobComparePredictedActual:     true,
	JobComparePredictedExpected:   true,
	JobCompareExpectedActual:      true,
	JobWeatherAdjustedPR:          true,
	JobCompareMonthlyPredictedAct: true,
}

// Monthly reports whether the job works on monthly totals instead of time series.
func (t JobType) Monthly() bool { return t == JobCompareMonthlyPredictedAct }

// HasPerformance reports whether the job requires uploaded performance data.
func (t JobType) HasPerformance() bool {
	switch t {
	case JobComparePredictedActual, JobComparePredictedExpected,
		JobCompareExpectedActual, JobWeatherAdjustedPR:
		return true
	}
	return false
}

type Granularity string

const (
	GranularitySystem   Granularity = "system"
	GranularityInverter Granularity = "inverter"
	GranularityArray    Granularity = "array"
)

type IrradianceType string

const (
	IrradianceStandard  IrradianceType = "standard"
	IrradiancePOA       IrradianceType = "poa"
	IrradianceEffective IrradianceType = "effective"
)

type TemperatureType string

const (
	TemperatureAir    TemperatureType = "air"
	TemperatureModule TemperatureType = "module"
	TemperatureCell   TemperatureType = "cell"
)

const maxStep = 24 * time.Hour

// TimeParameters declares the job's target index: [Start, End) every Step,
// interpreted in Timezone.
type TimeParameters struct {
	Start    Timestamp `json:"start"`
	End      Timestamp `json:"end"`
	Step     Step      `json:"step"`
	Timezone string    `json:"timezone,omitempty"`
}

// Location returns the zone the index is expressed in. Aware endpoints
// without a timezone name use the start's fixed offset.
func (p TimeParameters) Location() (*time.Location, error) {
	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", p.Timezone)
		}
		return loc, nil
	}
	if p.Start.Naive {
		return nil, fmt.Errorf("timezone is required for naive start and end")
	}
	name, offset := p.Start.Zone()
	return time.FixedZone(name, offset), nil
}

func (p TimeParameters) validate(v *ValidationError) {
	step := p.Step.Duration()
	if step <= 0 || step > maxStep {
		v.Add("time_parameters/step", "must be positive and at most 24h")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		v.Add("time_parameters", "start and end are required")
		return
	}
	if p.Start.Naive != p.End.Naive {
		v.Add("time_parameters", "start and end must both be naive or both carry an offset")
		return
	}
	if _, err := p.Location(); err != nil {
		v.Add("time_parameters/timezone", err.Error())
	}
	span := p.End.Sub(p.Start.Time)
	if span <= 0 {
		v.Add("time_parameters/end", "must be after start")
		return
	}
	if step > 0 && span%step != 0 {
		v.Add("time_parameters", "end - start must be a multiple of step")
	}
}

// JobParameters is the body of POST /jobs/.
type JobParameters struct {
	SystemID               uuid.UUID       `json:"system_id"`
	JobType                JobType         `json:"job_type"`
	WeatherGranularity     Granularity     `json:"weather_granularity,omitempty"`
	PerformanceGranularity Granularity     `json:"performance_granularity,omitempty"`
	IrradianceType         IrradianceType  `json:"irradiance_type,omitempty"`
	TemperatureType        TemperatureType `json:"temperature_type,omitempty"`
	PredictedDataIncludeDC bool            `json:"predicted_data_includes_dc,omitempty"`
	TimeParameters         *TimeParameters `json:"time_parameters,omitempty"`
}

// Validate checks the parameters independently of the referenced system.
func (p JobParameters) Validate() error {
	var v ValidationError
	if p.SystemID == uuid.Nil {
		v.Add("system_id", "is required")
	}
	if !jobTypes[p.JobType] {
		v.Add("job_type", fmt.Sprintf("unknown job type %q", p.JobType))
		return v.OrNil()
	}
	if p.JobType.Monthly() {
		return v.OrNil()
	}

	switch p.WeatherGranularity {
	case GranularitySystem, GranularityInverter, GranularityArray:
	default:
		v.Add("weather_granularity", "must be one of system, inverter, array")
	}
	switch p.IrradianceType {
	case IrradianceStandard, IrradiancePOA, IrradianceEffective:
	default:
		v.Add("irradiance_type", "must be one of standard, poa, effective")
	}
	switch p.TemperatureType {
	case TemperatureAir, TemperatureModule, TemperatureCell:
	default:
		v.Add("temperature_type", "must be one of air, module, cell")
	}
	if p.JobType.HasPerformance() {
		switch p.PerformanceGranularity {
		case GranularitySystem, GranularityInverter:
		default:
			v.Add("performance_granularity", "must be one of system, inverter")
		}
	} else if p.PerformanceGranularity != "" {
		v.Add("performance_granularity", "not allowed for this job type")
	}
	if p.PredictedDataIncludeDC && p.JobType != JobComparePredictedExpected {
		v.Add("predicted_data_includes_dc", "only allowed when comparing predicted and expected performance")
	}
	if p.TimeParameters == nil {
		v.Add("time_parameters", "is required")
	} else {
		p.TimeParameters.validate(&v)
	}
	return v.OrNil()
}

// JobDefinition freezes the system as it was when the job was created.
type JobDefinition struct {
	SystemDefinition PVSystem      `json:"system_definition"`
	Parameters       JobParameters `json:"parameters"`
}

// JobStatus is the reported state of a job.
type JobStatus struct {
	Status     string    `json:"status"`
	LastChange time.Time `json:"last_change"`
}

// Job is a stored job with its data slot metadata.
type Job struct {
	ObjectID    uuid.UUID     `json:"object_id"`
	ObjectType  string        `json:"object_type"`
	CreatedAt   time.Time     `json:"created_at"`
	ModifiedAt  time.Time     `json:"modified_at"`
	Definition  JobDefinition `json:"definition"`
	Status      JobStatus     `json:"status"`
	DataObjects []JobDataMeta `json:"data_objects"`
}
