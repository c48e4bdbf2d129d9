package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Input data slot types.
const (
	DataOriginalWeather        = "original weather data"
	DataActualWeather          = "actual weather data"
	DataActualPerformance      = "actual performance data"
	DataPredictedPerformance   = "predicted performance data"
	DataPredictedPerformanceDC = "predicted DC performance data"
	DataMonthly                = "monthly data"
)

// Result types.
const (
	ResultPerformanceData      = "performance data"
	ResultWeatherData          = "weather data"
	ResultDaytimeFlag          = "daytime flag"
	ResultWeatherAdjusted      = "weather adjusted performance"
	ResultMonthlySummary       = "monthly summary"
	ResultActualVsModeled      = "actual vs modeled energy"
	ResultPredictedVsExpected  = "predicted vs expected energy"
	ResultPerformanceRatio     = "weather adjusted performance ratio"
	ResultActualVsAdjustedPred = "actual vs weather adjusted reference"
	ResultErrorMessage         = "error message"
)

const (
	FormatArrow = "application/vnd.apache.arrow.file"
	FormatJSON  = "application/json"
	FormatCSV   = "text/csv"
)

const (
	ObjectTypeUser      = "user"
	ObjectTypeSystem    = "system"
	ObjectTypeJob       = "job"
	ObjectTypeJobData   = "job_data"
	ObjectTypeJobResult = "job_result"
)

// DataSlotSpec identifies one required input of a job.
type DataSlotSpec struct {
	SchemaPath string `json:"schema_path"`
	Type       string `json:"type"`
}

type JobDataDefinition struct {
	SchemaPath string `json:"schema_path"`
	Type       string `json:"type"`
	Filename   string `json:"filename,omitempty"`
	DataFormat string `json:"data_format,omitempty"`
	Present    bool   `json:"present"`
}

// JobDataMeta describes a data slot without its bytes.
type JobDataMeta struct {
	ObjectID   uuid.UUID         `json:"object_id"`
	ObjectType string            `json:"object_type"`
	CreatedAt  time.Time         `json:"created_at"`
	ModifiedAt time.Time         `json:"modified_at"`
	Definition JobDataDefinition `json:"definition"`
}

// JobData is a data slot with its stored bytes.
type JobData struct {
	JobDataMeta
	Data []byte `json:"-"`
}

type JobResultDefinition struct {
	SchemaPath string `json:"schema_path"`
	Type       string `json:"type"`
	DataFormat string `json:"data_format"`
}

type JobResultMeta struct {
	ObjectID   uuid.UUID           `json:"object_id"`
	ObjectType string              `json:"object_type"`
	CreatedAt  time.Time           `json:"created_at"`
	ModifiedAt time.Time           `json:"modified_at"`
	Definition JobResultDefinition `json:"definition"`
}

type JobResult struct {
	JobResultMeta
	Data []byte `json:"-"`
}

// ErrorDetails is the JSON payload of an "error message" result.
type ErrorDetails struct {
	Error struct {
		Details string `json:"details"`
	} `json:"error"`
}

// NewErrorMessage encodes details as an "error message" result payload.
func NewErrorMessage(details string) []byte {
	var e ErrorDetails
	e.Error.Details = details
	b, _ := json.Marshal(e)
	return b
}
