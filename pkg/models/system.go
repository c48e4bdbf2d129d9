// Package models contains the API and storage models shared across the SPI
// codebase: PV systems, jobs, their data slots and results.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TrackingFixed      = "fixed"
	TrackingSingleAxis = "single_axis"
)

// Tracking describes how an array is mounted. Fixed arrays use Tilt and
// Azimuth; single-axis trackers use the Axis* fields, GCR and Backtracking.
type Tracking struct {
	Type         string   `json:"type"`
	Tilt         *float64 `json:"tilt,omitempty"`
	Azimuth      *float64 `json:"azimuth,omitempty"`
	AxisTilt     *float64 `json:"axis_tilt,omitempty"`
	AxisAzimuth  *float64 `json:"axis_azimuth,omitempty"`
	GCR          *float64 `json:"gcr,omitempty"`
	Backtracking *bool    `json:"backtracking,omitempty"`
}

// PVArray is a group of identical modules wired to a single inverter input.
type PVArray struct {
	Name                       string             `json:"name"`
	Make                       string             `json:"make,omitempty"`
	Model                      string             `json:"model,omitempty"`
	ModuleParameters           map[string]float64 `json:"module_parameters"`
	TemperatureModelParameters map[string]float64 `json:"temperature_model_parameters"`
	Tracking                   Tracking           `json:"tracking"`
	ModulesPerString           int                `json:"modules_per_string"`
	Strings                    int                `json:"strings"`
}

// Gamma returns the module power temperature coefficient in 1/°C.
// CEC-style parameters carry gamma_r in %/°C.
func (a PVArray) Gamma() float64 {
	if g, ok := a.ModuleParameters["gamma_pdc"]; ok {
		return g
	}
	if g, ok := a.ModuleParameters["gamma_r"]; ok {
		return g / 100
	}
	return 0
}

// Pdc0 is the nameplate DC power of the whole array in watts.
func (a PVArray) Pdc0() float64 {
	return a.ModuleParameters["pdc0"] * float64(a.ModulesPerString*a.Strings)
}

// Inverter owns an ordered list of arrays.
type Inverter struct {
	Name               string             `json:"name"`
	Make               string             `json:"make,omitempty"`
	Model              string             `json:"model,omitempty"`
	InverterParameters map[string]float64 `json:"inverter_parameters"`
	Arrays             []PVArray          `json:"arrays"`
}

const defaultInverterEfficiency = 0.96

// Efficiency is the nominal DC to AC conversion efficiency.
func (i Inverter) Efficiency() float64 {
	if eta, ok := i.InverterParameters["eta_inv_nom"]; ok && eta > 0 {
		return eta
	}
	paco, pdco := i.InverterParameters["Paco"], i.InverterParameters["Pdco"]
	if paco > 0 && pdco > 0 {
		return paco / pdco
	}
	return defaultInverterEfficiency
}

// Pac0 is the AC power limit of the inverter in watts.
func (i Inverter) Pac0() float64 {
	if paco, ok := i.InverterParameters["Paco"]; ok && paco > 0 {
		return paco
	}
	return i.InverterParameters["pdc0"] * i.Efficiency()
}

// PVSystem is the user-editable definition of a PV plant.
type PVSystem struct {
	Name      string     `json:"name"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Elevation float64    `json:"elevation"`
	Albedo    float64    `json:"albedo"`
	Inverters []Inverter `json:"inverters"`
}

// Validate checks the topology and returns a *ValidationError listing every
// offending field.
func (s PVSystem) Validate() error {
	var v ValidationError
	if s.Name == "" || len(s.Name) > 128 {
		v.Add("name", "must be between 1 and 128 characters")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		v.Add("latitude", "must be between -90 and 90")
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		v.Add("longitude", "must be between -180 and 180")
	}
	if s.Albedo < 0 {
		v.Add("albedo", "must be non-negative")
	}
	if len(s.Inverters) == 0 {
		v.Add("inverters", "at least one inverter is required")
	}
	for i, inv := range s.Inverters {
		loc := fmt.Sprintf("inverters/%d", i)
		if len(inv.Arrays) == 0 {
			v.Add(loc+"/arrays", "at least one array is required")
		}
		for j, arr := range inv.Arrays {
			arrLoc := fmt.Sprintf("%s/arrays/%d", loc, j)
			if arr.ModulesPerString < 1 {
				v.Add(arrLoc+"/modules_per_string", "must be at least 1")
			}
			if arr.Strings < 1 {
				v.Add(arrLoc+"/strings", "must be at least 1")
			}
			arr.Tracking.validate(arrLoc+"/tracking", &v)
		}
	}
	return v.OrNil()
}

func (t Tracking) validate(loc string, v *ValidationError) {
	inRange := func(field string, p *float64, lo, hi float64) {
		if p == nil {
			v.Add(loc+"/"+field, "is required")
			return
		}
		if *p < lo || *p > hi {
			v.Add(loc+"/"+field, fmt.Sprintf("must be between %g and %g", lo, hi))
		}
	}
	switch t.Type {
	case TrackingFixed:
		inRange("tilt", t.Tilt, 0, 90)
		inRange("azimuth", t.Azimuth, 0, 360)
	case TrackingSingleAxis:
		inRange("axis_tilt", t.AxisTilt, 0, 90)
		inRange("axis_azimuth", t.AxisAzimuth, 0, 360)
		if t.GCR == nil || *t.GCR <= 0 {
			v.Add(loc+"/gcr", "must be positive")
		}
		if t.Backtracking == nil {
			v.Add(loc+"/backtracking", "is required")
		}
	default:
		v.Add(loc+"/type", "must be one of fixed, single_axis")
	}
}

// User is the caller as known to storage. Identity is the token subject.
type User struct {
	ObjectID   uuid.UUID `json:"object_id"`
	ObjectType string    `json:"object_type"`
	CreatedAt  time.Time `json:"created_at"`
	Identity   string    `json:"auth0_id"`
}

// System is a stored PVSystem owned by a user.
type System struct {
	ObjectID   uuid.UUID `json:"object_id"`
	ObjectType string    `json:"object_type"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Definition PVSystem  `json:"definition"`
}
