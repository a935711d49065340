package diagnostics

import (
	"fmt"
	"math"
	"strings"

	"obd-diagnostics/internal/config"
	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/stats"
)

// Derived metric entry names
const (
	MetricFuelConsumption = "fuel_consumption"
	MetricDistance        = "distance"
	MetricEfficiency      = "efficiency"
	MetricCylinderBalance = "cylinder_balance"
	MetricClosedLoop      = "closed_loop_share"
	MetricLambdaWindow    = "lambda_window"
	MetricO2Swing         = "o2_swing"
	MetricMAPConsistency  = "map_consistency"
)

// refuelTolerance absorbs floating point noise in the fuel delta
const refuelTolerance = 1e-9

func derivedEntry(name, group, unit, desc string) models.ReportEntry {
	return models.ReportEntry{Name: name, Group: group, Unit: unit, Description: desc, Derived: true}
}

func fail(e *models.ReportEntry, p models.Problem, format string, args ...interface{}) {
	e.Verdict = models.VerdictError
	e.Problem = p
	e.Explanation = fmt.Sprintf(format, args...)
}

// FuelConsumption estimates consumed fuel from the level gauge. The level
// is winsorized and smoothed, then an initial and a final window are
// averaged: the first/last N samples taken at zero speed, else the
// first/last span percent of elapsed time, else of the rows. A rise in
// level (refuel) is clamped to zero consumption and flagged.
func FuelConsumption(fuel, speed, elapsed *models.SanitizedSeries, cfg config.Config) (models.ReportEntry, *models.FuelConsumption) {
	e := derivedEntry(MetricFuelConsumption, GroupFuel, "L", "Fuel consumed over the trip")
	if fuel == nil {
		fail(&e, models.ProblemColumnAbsent, "fuel level column absent")
		return e, nil
	}
	e.Column = fuel.Column
	if len(fuel.Values) < 2 {
		fail(&e, models.ProblemInsufficientData, "need at least 2 fuel level samples, got %d", len(fuel.Values))
		return e, nil
	}

	smoothed := stats.MovingAverage(stats.Winsorize(fuel.Values, cfg.WinsorLimit), cfg.SmoothingWindow)
	initial, final, method := fuelWindows(fuel, speed, elapsed, cfg)

	fc := &models.FuelConsumption{
		Column:         fuel.Column,
		Method:         method,
		InitialPct:     meanAt(smoothed, initial),
		FinalPct:       meanAt(smoothed, final),
		InitialSamples: len(initial),
		FinalSamples:   len(final),
		TankCapacityL:  cfg.TankCapacityL,
	}
	delta := fc.InitialPct - fc.FinalPct
	if delta < -refuelTolerance {
		fc.RefuelSuspected = true
		delta = 0
	}
	fc.ConsumedPct = math.Max(delta, 0)
	fc.ConsumedL = fc.ConsumedPct / 100 * cfg.TankCapacityL
	e.Value = &fc.ConsumedL

	if fc.RefuelSuspected {
		e.Verdict = models.VerdictError
		e.Problem = models.ProblemInconsistentData
		e.Explanation = fmt.Sprintf("refuel detected, consumption undercounted (level rose from %.1f%% to %.1f%%)",
			fc.InitialPct, fc.FinalPct)
		return e, fc
	}
	e.Verdict = models.VerdictOK
	e.Explanation = fmt.Sprintf("%.2f L consumed (%.1f%% of a %.0f L tank, %s windows)",
		fc.ConsumedL, fc.ConsumedPct, cfg.TankCapacityL, method)
	return e, fc
}

// fuelWindows returns positions into fuel.Values for both windows
func fuelWindows(fuel, speed, elapsed *models.SanitizedSeries, cfg config.Config) (initial, final []int, method string) {
	n := len(fuel.Values)

	if speed != nil {
		speedAt := valueByRow(speed)
		var idle []int
		for i, row := range fuel.Rows {
			if v, ok := speedAt[row]; ok && v == 0 {
				idle = append(idle, i)
			}
		}
		if len(idle) >= 2 {
			k := cfg.FuelWindowRows
			if k > len(idle)/2 {
				k = len(idle) / 2
			}
			return idle[:k], idle[len(idle)-k:], models.FuelWindowIdleRows
		}
	}

	if elapsed != nil {
		timeAt := valueByRow(elapsed)
		var pos []int
		var ts []float64
		for i, row := range fuel.Rows {
			if v, ok := timeAt[row]; ok {
				pos = append(pos, i)
				ts = append(ts, v)
			}
		}
		if span := stats.Span(ts); len(ts) >= 2 && span > 0 {
			lo, hi := ts[0], ts[0]
			for _, t := range ts {
				lo, hi = math.Min(lo, t), math.Max(hi, t)
			}
			edge := span * cfg.FuelWindowSpanPct / 100
			for i, t := range ts {
				if t <= lo+edge {
					initial = append(initial, pos[i])
				}
				if t >= hi-edge {
					final = append(final, pos[i])
				}
			}
			return initial, final, models.FuelWindowTimeSpan
		}
	}

	k := int(math.Ceil(float64(n) * cfg.FuelWindowSpanPct / 100))
	if k < 1 {
		k = 1
	}
	if k > n/2 {
		k = n / 2
	}
	for i := 0; i < k; i++ {
		initial = append(initial, i)
		final = append(final, n-k+i)
	}
	return initial, final, models.FuelWindowRowSpan
}

func valueByRow(s *models.SanitizedSeries) map[int]float64 {
	out := make(map[int]float64, len(s.Values))
	for i, v := range s.Values {
		out[rowAt(s.Rows, i)] = v
	}
	return out
}

func meanAt(values []float64, pos []int) float64 {
	if len(pos) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pos {
		sum += values[p]
	}
	return sum / float64(len(pos))
}

// TripDistance is max-min of the trip counter, or of the lifetime odometer
// when the trip counter is absent or empty. A non-positive result is
// inconsistent data, never a zero distance.
func TripDistance(trip, odometer *models.SanitizedSeries) (models.ReportEntry, *models.Distance) {
	e := derivedEntry(MetricDistance, GroupTrip, "km", "Distance traveled")
	src := trip
	if src == nil || len(src.Values) == 0 {
		if odometer != nil && len(odometer.Values) > 0 {
			src = odometer
		}
	}
	switch {
	case src == nil && odometer == nil:
		fail(&e, models.ProblemColumnAbsent, "no trip distance or odometer column")
		return e, nil
	case src == nil || len(src.Values) == 0:
		fail(&e, models.ProblemInsufficientData, "distance counters hold no valid samples")
		return e, nil
	}
	e.Column = src.Column

	sum := stats.Summarize(src.Values, 0)
	d := &models.Distance{Column: src.Column, StartKM: *sum.Min, EndKM: *sum.Max, KM: *sum.Max - *sum.Min}
	if d.KM <= 0 {
		fail(&e, models.ProblemInconsistentData, "%s did not advance (%.2f km)", src.Column, d.KM)
		return e, nil
	}
	e.Value = &d.KM
	e.Verdict = models.VerdictOK
	e.Explanation = fmt.Sprintf("%.2f km from %s", d.KM, src.Column)
	return e, d
}

// Efficiency is km per liter, defined only when both distance and
// consumption are strictly positive. minKMPerL is optional.
func Efficiency(fc *models.FuelConsumption, d *models.Distance, minKMPerL *float64) (models.ReportEntry, *float64) {
	e := derivedEntry(MetricEfficiency, GroupFuel, "km/L", "Distance per liter")
	switch {
	case d == nil || d.KM <= 0:
		fail(&e, models.ProblemInsufficientData, "efficiency needs a positive distance")
		return e, nil
	case fc == nil || fc.ConsumedL <= 0:
		fail(&e, models.ProblemInsufficientData, "efficiency needs a positive fuel consumption")
		return e, nil
	}
	v := d.KM / fc.ConsumedL
	e.Value = &v
	if minKMPerL != nil {
		e.Range = &models.IdealRange{Min: minKMPerL}
	}
	e.Verdict, e.Problem = EvaluateMinimum(&v, minKMPerL)
	switch e.Verdict {
	case models.VerdictOK:
		e.Explanation = fmt.Sprintf("%.2f km/L, at or above the %.2f km/L minimum", v, *minKMPerL)
	case models.VerdictAlert:
		e.Explanation = fmt.Sprintf("%.2f km/L, below the %.2f km/L minimum", v, *minKMPerL)
	default:
		e.Explanation = fmt.Sprintf("%.2f km/L, no minimum configured", v)
	}
	return e, &v
}

// CylinderBalance compares per-cylinder mean spark durations:
// (max-min)/max*100 above thresholdPct is an imbalance.
func CylinderBalance(cylinders []models.SanitizedSeries, thresholdPct float64) (models.ReportEntry, *models.CylinderBalance) {
	e := derivedEntry(MetricCylinderBalance, GroupIgnition, "%", "Spark duration spread across cylinders")
	if len(cylinders) == 0 {
		fail(&e, models.ProblemColumnAbsent, "no spark duration columns")
		return e, nil
	}
	b := &models.CylinderBalance{ThresholdPct: thresholdPct}
	for _, c := range cylinders {
		if m, ok := stats.Mean(c.Values); ok {
			b.Cylinders = append(b.Cylinders, models.CylinderMean{Column: c.Column, Mean: m})
		}
	}
	if len(b.Cylinders) < 2 {
		fail(&e, models.ProblemInsufficientData, "need spark durations for at least 2 cylinders, got %d", len(b.Cylinders))
		return e, nil
	}
	lo, hi := b.Cylinders[0].Mean, b.Cylinders[0].Mean
	for _, c := range b.Cylinders[1:] {
		lo, hi = math.Min(lo, c.Mean), math.Max(hi, c.Mean)
	}
	if hi <= 0 {
		fail(&e, models.ProblemInconsistentData, "spark durations are not positive")
		return e, nil
	}
	b.DeviationPct = (hi - lo) / hi * 100
	e.Value = &b.DeviationPct
	e.Verdict, e.Problem = EvaluateMaximum(&b.DeviationPct, thresholdPct)
	if e.Verdict == models.VerdictAlert {
		e.Explanation = fmt.Sprintf("%.1f%% spread exceeds %.0f%%: possible misfire or injector imbalance", b.DeviationPct, thresholdPct)
	} else {
		e.Explanation = fmt.Sprintf("%.1f%% spread across %d cylinders", b.DeviationPct, len(b.Cylinders))
	}
	return e, b
}

// ClosedLoopShare is the percent of known samples with the open-loop
// indicator inactive. Labels that are not boolean-like are excluded and counted.
func ClosedLoopShare(indicator *models.SanitizedSeries, minPct float64) (models.ReportEntry, *models.ClosedLoop) {
	e := derivedEntry(MetricClosedLoop, GroupMixture, "%", "Time with oxygen sensor feedback active")
	if indicator == nil {
		fail(&e, models.ProblemColumnAbsent, "open loop indicator absent")
		return e, nil
	}
	e.Column = indicator.Column
	cl := &models.ClosedLoop{Column: indicator.Column, ThresholdPct: minPct}
	closed := 0
	for _, l := range indicator.Labels {
		state, ok := BinaryState(l)
		if !ok {
			cl.Unknown++
			continue
		}
		cl.Samples++
		if state == 0 {
			closed++
		}
	}
	if cl.Samples == 0 {
		fail(&e, models.ProblemInsufficientData, "no boolean-like samples in %s", indicator.Column)
		return e, nil
	}
	cl.ClosedPct = stats.Percent(closed, cl.Samples)
	e.Value = &cl.ClosedPct
	threshold := minPct
	e.Verdict, e.Problem = EvaluateMinimum(&cl.ClosedPct, &threshold)
	if e.Verdict == models.VerdictAlert {
		e.Explanation = fmt.Sprintf("closed loop %.1f%% of the time, below %.0f%%: warm-up issue or O2 sensor fault", cl.ClosedPct, minPct)
	} else {
		e.Explanation = fmt.Sprintf("closed loop %.1f%% of the time", cl.ClosedPct)
	}
	if cl.Unknown > 0 {
		e.Observations = append(e.Observations, fmt.Sprintf("%d samples with unrecognized state excluded", cl.Unknown))
	}
	return e, cl
}

// LambdaWindow checks the mean lambda against the stoichiometric window
func LambdaWindow(lambda *models.SanitizedSeries, window []float64) models.ReportEntry {
	e := derivedEntry(MetricLambdaWindow, GroupMixture, "", "Mean lambda versus stoichiometric window")
	if lambda == nil {
		fail(&e, models.ProblemColumnAbsent, "lambda column absent")
		return e
	}
	e.Column = lambda.Column
	if lambda.Kind == models.KindCategorical {
		fail(&e, models.ProblemInsufficientData, "lambda reported as mixture labels, see %s", lambda.Column)
		return e
	}
	if len(window) != 2 {
		fail(&e, models.ProblemNoReference, "lambda window not configured")
		return e
	}
	r := models.NumericRange(window[0], window[1])
	e.Range = r
	mean, ok := stats.Mean(lambda.Values)
	var mp *float64
	if ok {
		mp = &mean
		e.Value = mp
	}
	e.Verdict, e.Problem = EvaluateRange(mp, r)
	switch e.Verdict {
	case models.VerdictOK:
		e.Explanation = fmt.Sprintf("mean lambda %.3f within %s", mean, r)
	case models.VerdictAlert:
		side := "rich"
		if mean > window[1] {
			side = "lean"
		}
		e.Explanation = fmt.Sprintf("mean lambda %.3f outside %s: mixture running %s", mean, r, side)
	default:
		e.Explanation = "no valid lambda samples"
	}
	return e
}

// O2Swing alerts when the upstream O2 sensor voltage barely moves
func O2Swing(o2 *models.SanitizedSeries, minSwing float64) models.ReportEntry {
	e := derivedEntry(MetricO2Swing, GroupMixture, "V", "Upstream O2 sensor voltage swing")
	if o2 == nil {
		fail(&e, models.ProblemColumnAbsent, "O2 sensor voltage column absent")
		return e
	}
	e.Column = o2.Column
	if len(o2.Values) < 2 {
		fail(&e, models.ProblemInsufficientData, "need at least 2 O2 voltage samples")
		return e
	}
	swing := stats.Span(o2.Values)
	e.Value = &swing
	e.Verdict, e.Problem = EvaluateMinimum(&swing, &minSwing)
	if e.Verdict == models.VerdictAlert {
		e.Explanation = fmt.Sprintf("swing %.3f V below %.2f V: slow or lazy oxygen sensor", swing, minSwing)
	} else {
		e.Explanation = fmt.Sprintf("swing %.3f V", swing)
	}
	return e
}

// MAPConsistency checks each MAP signal for a stuck reading and, when both
// the voltage and the pressure signals exist, their correlation over the
// rows where both parsed.
func MAPConsistency(volts, kpa *models.SanitizedSeries, minSpan, minCorr float64) models.ReportEntry {
	e := derivedEntry(MetricMAPConsistency, GroupAir, "", "Manifold pressure sensor plausibility")
	if volts == nil && kpa == nil {
		fail(&e, models.ProblemColumnAbsent, "no MAP columns")
		return e
	}
	var cols []string
	alert := false
	usable := 0
	for _, s := range []*models.SanitizedSeries{volts, kpa} {
		if s == nil {
			continue
		}
		cols = append(cols, s.Column)
		if len(s.Values) < 2 {
			e.Observations = append(e.Observations, fmt.Sprintf("%s: not enough samples", s.Column))
			continue
		}
		usable++
		if span := stats.Span(s.Values); span < minSpan {
			alert = true
			e.Observations = append(e.Observations, fmt.Sprintf("%s span %.3f below %.2f: sensor possibly stuck", s.Column, span, minSpan))
		}
	}
	e.Column = strings.Join(cols, ", ")
	if usable == 0 {
		fail(&e, models.ProblemInsufficientData, "MAP columns hold no usable samples")
		return e
	}

	if volts != nil && kpa != nil {
		kpaAt := valueByRow(kpa)
		var x, y []float64
		for i, v := range volts.Values {
			if p, ok := kpaAt[rowAt(volts.Rows, i)]; ok {
				x = append(x, v)
				y = append(y, p)
			}
		}
		if c, ok := stats.Correlation(x, y); ok {
			e.Value = &c
			if c < minCorr {
				alert = true
				e.Observations = append(e.Observations, fmt.Sprintf("voltage/pressure correlation %.2f below %.2f", c, minCorr))
			}
		} else {
			e.Observations = append(e.Observations, "voltage/pressure correlation undefined")
		}
	}

	if alert {
		e.Verdict = models.VerdictAlert
		e.Explanation = "MAP sensor readings implausible"
	} else {
		e.Verdict = models.VerdictOK
		e.Explanation = "MAP sensor readings consistent"
	}
	return e
}
