package models

// Fuel window selection methods
const (
	FuelWindowIdleRows = "idle_rows"
	FuelWindowTimeSpan = "time_span"
	FuelWindowRowSpan  = "row_span"
)

// FuelConsumption is the fuel-level based consumption estimate
type FuelConsumption struct {
	Column         string  `json:"column"`
	Method         string  `json:"method"`
	InitialPct     float64 `json:"initial_pct"`
	FinalPct       float64 `json:"final_pct"`
	InitialSamples int     `json:"initial_samples"`
	FinalSamples   int     `json:"final_samples"`
	ConsumedPct    float64 `json:"consumed_pct"`
	ConsumedL      float64 `json:"consumed_l"`
	TankCapacityL  float64 `json:"tank_capacity_l"`
	// RefuelSuspected is set when a negative delta was clamped to zero
	RefuelSuspected bool `json:"refuel_suspected"`
}

// Distance is the trip length taken from an odometer-like counter
type Distance struct {
	Column  string  `json:"column"`
	StartKM float64 `json:"start_km"`
	EndKM   float64 `json:"end_km"`
	KM      float64 `json:"km"`
}

// CylinderMean is the mean spark duration of one cylinder
type CylinderMean struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
}

// CylinderBalance compares per-cylinder means
type CylinderBalance struct {
	Cylinders    []CylinderMean `json:"cylinders"`
	DeviationPct float64        `json:"deviation_pct"`
	ThresholdPct float64        `json:"threshold_pct"`
}

// ClosedLoop is the share of samples with mixture feedback active
type ClosedLoop struct {
	Column       string  `json:"column"`
	ClosedPct    float64 `json:"closed_pct"`
	Samples      int     `json:"samples"`
	Unknown      int     `json:"unknown"`
	ThresholdPct float64 `json:"threshold_pct"`
}

// DerivedMetrics groups the cross-column results of a report
type DerivedMetrics struct {
	Fuel       *FuelConsumption `json:"fuel,omitempty"`
	Distance   *Distance        `json:"distance,omitempty"`
	KMPerL     *float64         `json:"km_per_l"`
	Balance    *CylinderBalance `json:"cylinder_balance,omitempty"`
	ClosedLoop *ClosedLoop      `json:"closed_loop,omitempty"`
}
