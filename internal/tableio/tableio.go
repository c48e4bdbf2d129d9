// Package tableio converts between uploaded or stored bytes and
// timeseries tables. Tables are persisted in the Arrow IPC file format and
// can be read back as CSV.
package tableio

import (
	"fmt"
	"mime"
	"strings"
)

const (
	MediaCSV      = "text/csv"
	MediaExcelCSV = "application/vnd.ms-excel"
	MediaArrow    = "application/vnd.apache.arrow.file"
	MediaOctet    = "application/octet-stream"
	MediaJSON     = "application/json"
)

// Format identifies a supported table encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatArrow
)

// FormatFor maps an upload content type to the format used to decode it.
// Parameters such as charset are ignored.
func FormatFor(contentType string) Format {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case MediaCSV, MediaExcelCSV:
		return FormatCSV
	case MediaArrow, MediaOctet:
		return FormatArrow
	}
	return FormatUnknown
}

// DecodeError reports bytes that could not be read as a table.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return e.Msg }

func decodeErr(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}
