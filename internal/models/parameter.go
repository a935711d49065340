package models

import (
	"fmt"
	"strings"
)

// Kind declares how a column is sanitized and summarized
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Rule selects how a parameter's verdict is produced
type Rule string

const (
	// RuleRange compares the mean against the ideal range
	RuleRange Rule = "range"
	// RuleShare evaluates the percent of samples inside a fixed range
	RuleShare Rule = "share"
	// RuleDescriptive reports statistics only
	RuleDescriptive Rule = "descriptive"
	// RuleFrequency reports a categorical frequency summary
	RuleFrequency Rule = "frequency"
)

// Role tags a parameter that feeds a derived metric
type Role string

const (
	RoleNone         Role = ""
	RoleTime         Role = "time"
	RoleSpeed        Role = "speed"
	RoleRPM          Role = "rpm"
	RoleFuelLevel    Role = "fuel_level"
	RoleTripDistance Role = "trip_distance"
	RoleOdometer     Role = "odometer"
	RoleIdle         Role = "idle"
	RoleOpenLoop     Role = "open_loop"
	RoleLoopState    Role = "loop_state"
	RoleCylinder     Role = "cylinder"
	RoleLambda       Role = "lambda"
	RoleO2Voltage    Role = "o2_voltage"
	RoleMAPVolts     Role = "map_volts"
	RoleMAPPressure  Role = "map_pressure"
	RoleCoolant      Role = "coolant"
	RoleInjector     Role = "injector"
)

// LogicalParameter is one registry entry: a canonical sensor name, the raw
// headers accepted for it in priority order and how it is evaluated.
type LogicalParameter struct {
	Name        string
	Aliases     []string
	Kind        Kind
	Unit        string
	Description string
	Group       string
	Role        Role
	Rule        Rule
	// Expected is the canonical categorical vocabulary
	Expected []string
	// Mixture enables the percent-in-range breakdown
	Mixture bool
	// FixedRange is used by RuleShare when the reference table has nothing
	FixedRange *IdealRange
	BelowHint  string
	AboveHint  string
	// PeakFactor > 0 counts samples above PeakFactor*mean as peaks
	PeakFactor float64
}

// Candidates returns the accepted headers, primary name first
func (p LogicalParameter) Candidates() []string {
	out := make([]string, 0, len(p.Aliases)+1)
	out = append(out, p.Name)
	return append(out, p.Aliases...)
}

// Key is the canonical key used for reference-range lookups
func (p LogicalParameter) Key() string {
	return CanonicalKey(p.Name)
}

// IdealRange is a closed numeric interval or an allowed-value set.
// A non-nil range with neither bound nor allowed values is present but empty.
type IdealRange struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

// NumericRange creates a closed interval
func NumericRange(min, max float64) *IdealRange {
	return &IdealRange{Min: &min, Max: &max}
}

// AllowedSet creates a categorical range
func AllowedSet(values ...string) *IdealRange {
	return &IdealRange{Allowed: values}
}

// IsNumeric reports whether both bounds are set
func (r *IdealRange) IsNumeric() bool {
	return r != nil && r.Min != nil && r.Max != nil
}

// IsEmpty reports a present range that admits nothing
func (r *IdealRange) IsEmpty() bool {
	return r != nil && !r.IsNumeric() && len(r.Allowed) == 0
}

// Contains checks min <= v <= max
func (r *IdealRange) Contains(v float64) bool {
	if !r.IsNumeric() {
		return false
	}
	return v >= *r.Min && v <= *r.Max
}

// Allows checks membership in the allowed set
func (r *IdealRange) Allows(label string) bool {
	if r == nil {
		return false
	}
	for _, a := range r.Allowed {
		if strings.EqualFold(a, label) {
			return true
		}
	}
	return false
}

func (r *IdealRange) String() string {
	switch {
	case r == nil:
		return "none"
	case r.IsNumeric():
		return fmt.Sprintf("[%g, %g]", *r.Min, *r.Max)
	case len(r.Allowed) > 0:
		return "{" + strings.Join(r.Allowed, ", ") + "}"
	}
	return "[]"
}

// SanitizedSeries holds the parsed values of one column. Rows[i] is the
// dataset row Values[i] (or Labels[i]) came from.
type SanitizedSeries struct {
	Column  string    `json:"column"`
	Kind    Kind      `json:"kind"`
	Values  []float64 `json:"values,omitempty"`
	Labels  []string  `json:"labels,omitempty"`
	Rows    []int     `json:"rows,omitempty"`
	Dropped int       `json:"dropped"`
}

// Len returns the number of retained samples
func (s SanitizedSeries) Len() int {
	if s.Kind == KindCategorical {
		return len(s.Labels)
	}
	return len(s.Values)
}
