package models

import "strings"

// FieldError describes one invalid field of a request body.
type FieldError struct {
	Loc string `json:"loc"`
	Msg string `json:"msg"`
}

// ValidationError collects field errors; handlers report it as 422.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Add(loc, msg string) {
	v.Fields = append(v.Fields, FieldError{Loc: loc, Msg: msg})
}

// OrNil returns v as an error only when at least one field failed.
func (v *ValidationError) OrNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Loc+": "+f.Msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
