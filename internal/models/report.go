package models

import "time"

// Verdict is the machine status of a report entry
type Verdict string

const (
	VerdictOK    Verdict = "ok"
	VerdictAlert Verdict = "alert"
	// VerdictError means missing or unusable data, never an out-of-range value
	VerdictError Verdict = "error"
)

// StatSummary holds descriptive statistics of a numeric series. Every field
// is nil for an empty series. StdDev and WinsorizedMean are nil below two samples.
type StatSummary struct {
	Count          int      `json:"count"`
	Mean           *float64 `json:"mean"`
	Min            *float64 `json:"min"`
	Max            *float64 `json:"max"`
	Median         *float64 `json:"median"`
	StdDev         *float64 `json:"std_dev"`
	P25            *float64 `json:"p25"`
	P75            *float64 `json:"p75"`
	WinsorizedMean *float64 `json:"winsorized_mean"`
}

// Empty reports whether the summary was built from no samples
func (s StatSummary) Empty() bool {
	return s.Mean == nil
}

// NumericBucket is one rounded value of a top-k frequency table
type NumericBucket struct {
	Value   float64 `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// FrequencyBucket is one label of a categorical frequency table
type FrequencyBucket struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CategoricalSummary describes a categorical series
type CategoricalSummary struct {
	Count      int                `json:"count"`
	Distinct   int                `json:"distinct"`
	Top        []FrequencyBucket  `json:"top"`
	Shares     map[string]float64 `json:"shares,omitempty"`
	Unexpected []string           `json:"unexpected,omitempty"`
	// UnexpectedTotal counts distinct unexpected labels before the preview cap
	UnexpectedTotal int `json:"unexpected_total"`
}

// Mode returns the most frequent label, or "" for an empty summary
func (c *CategoricalSummary) Mode() string {
	if c == nil || len(c.Top) == 0 {
		return ""
	}
	return c.Top[0].Value
}

// RangeShare is the percent-of-samples breakdown against an ideal range
type RangeShare struct {
	Inside  float64 `json:"inside_pct"`
	Below   float64 `json:"below_pct"`
	Above   float64 `json:"above_pct"`
	Verdict Verdict `json:"verdict"`
}

// ReportEntry is the result for one logical parameter or derived metric
type ReportEntry struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Group        string              `json:"group,omitempty"`
	Kind         Kind                `json:"kind,omitempty"`
	Column       string              `json:"column,omitempty"`
	Unit         string              `json:"unit,omitempty"`
	Stats        *StatSummary        `json:"stats,omitempty"`
	TopValues    []NumericBucket     `json:"top_values,omitempty"`
	Categorical  *CategoricalSummary `json:"categorical,omitempty"`
	Range        *IdealRange         `json:"range,omitempty"`
	InRange      *RangeShare         `json:"in_range,omitempty"`
	Value        *float64            `json:"value,omitempty"`
	Verdict      Verdict             `json:"verdict"`
	Problem      Problem             `json:"problem,omitempty"`
	Explanation  string              `json:"explanation"`
	Observations []string            `json:"observations,omitempty"`
	DroppedRows  int                 `json:"dropped_rows,omitempty"`
	// Hint names the closest header when the column is absent
	Hint string `json:"hint,omitempty"`
	// Derived marks entries produced from several columns
	Derived bool `json:"derived,omitempty"`
}

// Vehicle identifies the reference profile used for a report
type Vehicle struct {
	Model string `json:"model"`
	Fuel  string `json:"fuel"`
}

// TripSummary gives the headline numbers of a trip
type TripSummary struct {
	Rows             int      `json:"rows"`
	EmptyRowsDropped int      `json:"empty_rows_dropped"`
	DurationS        *float64 `json:"duration_s,omitempty"`
	AvgSpeedKMH      *float64 `json:"avg_speed_kmh,omitempty"`
	MaxSpeedKMH      *float64 `json:"max_speed_kmh,omitempty"`
	AvgRPM           *float64 `json:"avg_rpm,omitempty"`
	MaxRPM           *float64 `json:"max_rpm,omitempty"`
	IdlePct          *float64 `json:"idle_pct,omitempty"`
}

// DiagnosticReport is built fresh per analysis and not modified afterwards
type DiagnosticReport struct {
	Vehicle     Vehicle        `json:"vehicle"`
	Source      SourceInfo     `json:"source"`
	Trip        TripSummary    `json:"trip"`
	Status      Verdict        `json:"status"`
	AlertCount  int            `json:"alert_count"`
	ErrorCount  int            `json:"error_count"`
	Entries     []ReportEntry  `json:"entries"`
	Derived     DerivedMetrics `json:"derived"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Entry finds an entry by name
func (r *DiagnosticReport) Entry(name string) (ReportEntry, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return ReportEntry{}, false
}
