// Package diagnostics turns one trip dataset into a DiagnosticReport:
// column resolution, sanitization, statistics, range evaluation and the
// cross-column derived metrics.
package diagnostics

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"obd-diagnostics/internal/config"
	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/refranges"
	"obd-diagnostics/internal/stats"
)

// Scalar keys read from a reference profile
var (
	minEfficiencyKeys = []string{"MIN_KM_PER_L", "CONSUMO_MINIMO_KML"}
	tankCapacityKeys  = []string{"TANK_CAPACITY_L", "CAPACIDADE_TANQUE_L"}
)

// Engine runs the analysis pipeline. It holds no per-run state, so one
// Engine may serve concurrent Analyze calls on independent datasets.
type Engine struct {
	cfg      config.Config
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
	// tankL overrides both config and profile tank capacity when > 0
	tankL float64
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger attaches a logger; the engine is silent by default
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry replaces the default parameter registry
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithClock sets the time source for GeneratedAt
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTankCapacity pins the tank capacity in litres. It takes precedence
// over a tank capacity found in the vehicle's reference profile.
func WithTankCapacity(l float64) Option {
	return func(e *Engine) {
		if l > 0 {
			e.tankL = l
		}
	}
}

// NewEngine creates an engine for one configuration. Zero or invalid
// fields are replaced by their defaults.
func NewEngine(cfg config.Config, opts ...Option) *Engine {
	cfg.LambdaRange = append([]float64(nil), cfg.LambdaRange...)
	cfg.Normalize()
	e := &Engine{
		cfg:      cfg,
		registry: DefaultRegistry(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the parameter registry in use
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Analyze builds a report covering every registry parameter plus the derived
// metrics. Missing columns, empty series and missing references become
// error entries; the report is always complete.
func (e *Engine) Analyze(ds *models.Dataset, vehicle models.Vehicle, table *refranges.Table) *models.DiagnosticReport {
	vehicle.Model = refranges.NormalizeName(vehicle.Model)
	vehicle.Fuel = refranges.NormalizeName(vehicle.Fuel)
	log := e.logger.With(zap.String("model", vehicle.Model), zap.String("fuel", vehicle.Fuel))

	prof, ok := table.Profile(vehicle.Model, vehicle.Fuel)
	if !ok {
		log.Warn("no reference profile for vehicle")
		prof = refranges.Profile{}
	}
	cfg := e.cfg
	if v, ok := scalarOf(prof, tankCapacityKeys); ok && v > 0 {
		cfg.TankCapacityL = v
	}
	if e.tankL > 0 {
		cfg.TankCapacityL = e.tankL
	}

	report := &models.DiagnosticReport{
		Vehicle:     vehicle,
		GeneratedAt: e.now().UTC(),
	}
	if ds != nil {
		report.Source = ds.Source
	}

	resolver := NewResolver(ds)
	series := make(map[string]*models.SanitizedSeries)
	for _, p := range e.registry.Parameters() {
		entry, s := e.analyzeParameter(ds, resolver, p, prof, cfg)
		if s != nil {
			series[p.Name] = s
		}
		log.Debug("parameter analyzed",
			zap.String("parameter", p.Name),
			zap.String("column", entry.Column),
			zap.String("verdict", string(entry.Verdict)),
			zap.Int("dropped_rows", entry.DroppedRows))
		report.Entries = append(report.Entries, entry)
	}

	report.Entries = append(report.Entries, e.derived(series, prof, cfg, &report.Derived)...)
	report.Trip = e.tripSummary(ds, series)
	summarizeStatus(report)

	log.Info("report assembled",
		zap.String("source", report.Source.Name),
		zap.String("status", string(report.Status)),
		zap.Int("entries", len(report.Entries)),
		zap.Int("alerts", report.AlertCount),
		zap.Int("errors", report.ErrorCount))
	return report
}

func (e *Engine) analyzeParameter(ds *models.Dataset, resolver *Resolver, p models.LogicalParameter, prof refranges.Profile, cfg config.Config) (models.ReportEntry, *models.SanitizedSeries) {
	entry := models.ReportEntry{
		Name:        p.Name,
		Description: p.Description,
		Group:       p.Group,
		Kind:        p.Kind,
		Unit:        p.Unit,
	}
	col, err := resolver.Resolve(p)
	if err != nil {
		entry.Verdict = models.VerdictError
		entry.Problem = models.ProblemOf(err)
		entry.Explanation = "column absent from export"
		if hint := resolver.ClosestHeader(p); hint != "" {
			entry.Hint = hint
			entry.Explanation += fmt.Sprintf(" (closest header: %q)", hint)
		}
		return entry, nil
	}
	entry.Column = col

	s := Sanitize(ds, col, p.Kind)
	if p.Kind == models.KindNumeric && s.Len() == 0 && len(p.Expected) > 0 {
		// some exports log this signal as labels instead of numbers
		if cat := SanitizeCategorical(ds, col); cat.Len() > 0 {
			s = cat
		}
	}
	entry.Kind = s.Kind
	entry.DroppedRows = s.Dropped

	if s.Kind == models.KindCategorical {
		e.categoricalEntry(&entry, p, s, prof, cfg)
	} else {
		e.numericEntry(&entry, p, s, prof, cfg)
	}
	return entry, &s
}

func (e *Engine) numericEntry(entry *models.ReportEntry, p models.LogicalParameter, s models.SanitizedSeries, prof refranges.Profile, cfg config.Config) {
	sum := stats.Summarize(s.Values, cfg.WinsorLimit)
	entry.Stats = &sum
	if len(s.Values) == 0 {
		fail(entry, models.ProblemInsufficientData, "no valid samples (%d rows dropped)", s.Dropped)
		return
	}
	entry.TopValues = stats.TopK(s.Values, cfg.TopK, 2)
	if sum.StdDev != nil && *sum.StdDev < cfg.StuckSensorStdDev {
		entry.Observations = append(entry.Observations, "low variation (sensor possibly stuck)")
	}
	if p.PeakFactor > 0 && *sum.Mean > 0 {
		if n := stats.CountAbove(s.Values, p.PeakFactor*(*sum.Mean)); n > 0 {
			entry.Observations = append(entry.Observations, fmt.Sprintf("%d samples above %gx the mean", n, p.PeakFactor))
		}
	}

	switch p.Rule {
	case models.RuleRange:
		r, _ := prof.Range(p.Name)
		entry.Range = r
		entry.Verdict, entry.Problem = EvaluateRange(sum.Mean, r)
		entry.Explanation = rangeExplanation(p, *sum.Mean, r, entry.Verdict)
		if p.Mixture && r.IsNumeric() {
			inside, below, above := stats.ShareWithin(s.Values, r)
			v, _ := EvaluateShare(&inside, cfg.MixtureInRangeMinPct)
			entry.InRange = &models.RangeShare{Inside: inside, Below: below, Above: above, Verdict: v}
		}
	case models.RuleShare:
		r, ok := prof.Range(p.Name)
		if !ok {
			r = p.FixedRange
		}
		entry.Range = r
		shareVerdict(entry, s.Values, r, cfg)
	default:
		entry.Verdict = models.VerdictOK
		entry.Explanation = fmt.Sprintf("mean %.2f over %d samples", *sum.Mean, sum.Count)
	}
}

func rangeExplanation(p models.LogicalParameter, mean float64, r *models.IdealRange, v models.Verdict) string {
	switch v {
	case models.VerdictOK:
		return fmt.Sprintf("mean %.2f within %s", mean, r)
	case models.VerdictAlert:
		if r.IsEmpty() {
			return fmt.Sprintf("mean %.2f, reference range is empty", mean)
		}
		msg := fmt.Sprintf("mean %.2f outside %s", mean, r)
		hint := p.AboveHint
		if r.IsNumeric() && mean < *r.Min {
			hint = p.BelowHint
		}
		if hint != "" {
			msg += ": " + hint
		}
		return msg
	}
	return "no reference range for this vehicle and fuel"
}

func (e *Engine) categoricalEntry(entry *models.ReportEntry, p models.LogicalParameter, s models.SanitizedSeries, prof refranges.Profile, cfg config.Config) {
	expected := p.Expected
	var allowed *models.IdealRange
	if r, ok := prof.Range(p.Name); ok && len(r.Allowed) > 0 {
		allowed = normalizedSet(r)
		expected = allowed.Allowed
	}
	sum := AnalyzeCategorical(s.Labels, expected, cfg.TopK, cfg.UnexpectedPreview)
	entry.Categorical = &sum
	if sum.Count == 0 {
		fail(entry, models.ProblemInsufficientData, "no valid samples (%d rows dropped)", s.Dropped)
		return
	}
	if sum.UnexpectedTotal > 0 {
		entry.Observations = append(entry.Observations,
			fmt.Sprintf("unexpected values: %s", strings.Join(sum.Unexpected, ", ")))
	}
	top := sum.Top[0]
	if allowed != nil {
		entry.Range = allowed
		entry.Verdict, entry.Problem = EvaluateLabel(top.Value, allowed)
		if entry.Verdict == models.VerdictOK {
			entry.Explanation = fmt.Sprintf("mostly %q (%.1f%%), an allowed state", top.Value, top.Percent)
		} else {
			entry.Explanation = fmt.Sprintf("mostly %q (%.1f%%), outside %s", top.Value, top.Percent, allowed)
		}
		return
	}
	if p.Rule == models.RuleShare {
		if labelShare(entry, p, s.Labels, prof, cfg) {
			return
		}
		entry.Observations = append(entry.Observations, "safety check not applied: labels do not map to an on/off state")
	}
	entry.Verdict = models.VerdictOK
	entry.Explanation = fmt.Sprintf("mostly %q (%.1f%%), %d distinct values", top.Value, top.Percent, sum.Distinct)
}

// shareVerdict evaluates a safety flag by the share of samples inside r
func shareVerdict(entry *models.ReportEntry, values []float64, r *models.IdealRange, cfg config.Config) {
	inside, below, above := stats.ShareWithin(values, r)
	v, problem := EvaluateShare(&inside, cfg.SafetyOKPct)
	entry.InRange = &models.RangeShare{Inside: inside, Below: below, Above: above, Verdict: v}
	entry.Value = &entry.InRange.Inside
	entry.Verdict, entry.Problem = v, problem
	switch {
	case v == models.VerdictOK:
		entry.Explanation = fmt.Sprintf("%.1f%% of samples at the expected state", inside)
	case inside < cfg.SafetyAlertPct:
		entry.Explanation = fmt.Sprintf("critical: only %.1f%% of samples at the expected state", inside)
	default:
		entry.Explanation = fmt.Sprintf("%.1f%% of samples at the expected state", inside)
	}
}

// labelShare runs the safety share on a flag logged as labels. It reports
// false when no label maps to an on/off state.
func labelShare(entry *models.ReportEntry, p models.LogicalParameter, labels []string, prof refranges.Profile, cfg config.Config) bool {
	r, ok := prof.Range(p.Name)
	if !ok || !r.IsNumeric() {
		r = p.FixedRange
	}
	if !r.IsNumeric() {
		return false
	}
	states := make([]float64, 0, len(labels))
	for _, l := range labels {
		if v, ok := SafetyState(l); ok {
			states = append(states, float64(v))
		}
	}
	if len(states) == 0 {
		return false
	}
	entry.Range = r
	shareVerdict(entry, states, r, cfg)
	if unknown := len(labels) - len(states); unknown > 0 {
		entry.Observations = append(entry.Observations, fmt.Sprintf("%d samples with unrecognized state excluded", unknown))
	}
	return true
}

func normalizedSet(r *models.IdealRange) *models.IdealRange {
	out := make([]string, 0, len(r.Allowed))
	for _, a := range r.Allowed {
		if n, ok := NormalizeLabel(a); ok {
			out = append(out, n)
		}
	}
	return models.AllowedSet(out...)
}

func (e *Engine) derived(series map[string]*models.SanitizedSeries, prof refranges.Profile, cfg config.Config, out *models.DerivedMetrics) []models.ReportEntry {
	byRole := func(role models.Role) *models.SanitizedSeries {
		for _, p := range e.registry.ByRole(role) {
			if s, ok := series[p.Name]; ok {
				return s
			}
		}
		return nil
	}
	numericByRole := func(role models.Role) *models.SanitizedSeries {
		if s := byRole(role); s != nil && s.Kind == models.KindNumeric {
			return s
		}
		return nil
	}

	var entries []models.ReportEntry

	fuelEntry, fc := FuelConsumption(numericByRole(models.RoleFuelLevel), numericByRole(models.RoleSpeed), numericByRole(models.RoleTime), cfg)
	out.Fuel = fc
	entries = append(entries, fuelEntry)

	distEntry, dist := TripDistance(numericByRole(models.RoleTripDistance), numericByRole(models.RoleOdometer))
	out.Distance = dist
	entries = append(entries, distEntry)

	var minKMPerL *float64
	if v, ok := scalarOf(prof, minEfficiencyKeys); ok {
		minKMPerL = &v
	}
	effEntry, eff := Efficiency(fc, dist, minKMPerL)
	out.KMPerL = eff
	entries = append(entries, effEntry)

	var cylinders []models.SanitizedSeries
	for _, p := range e.registry.ByRole(models.RoleCylinder) {
		if s, ok := series[p.Name]; ok && s.Kind == models.KindNumeric {
			cylinders = append(cylinders, *s)
		}
	}
	balEntry, bal := CylinderBalance(cylinders, cfg.ImbalanceThresholdPct)
	out.Balance = bal
	entries = append(entries, balEntry)

	loop := byRole(models.RoleOpenLoop)
	if loop == nil {
		loop = byRole(models.RoleLoopState)
	}
	if loop != nil && loop.Kind != models.KindCategorical {
		loop = nil
	}
	loopEntry, cl := ClosedLoopShare(loop, cfg.ClosedLoopMinPct)
	out.ClosedLoop = cl
	entries = append(entries, loopEntry)

	entries = append(entries,
		LambdaWindow(byRole(models.RoleLambda), cfg.LambdaRange),
		O2Swing(numericByRole(models.RoleO2Voltage), cfg.O2MinSwingV),
		MAPConsistency(numericByRole(models.RoleMAPVolts), numericByRole(models.RoleMAPPressure), cfg.MAPMinSpan, cfg.MAPMinCorrelation),
	)
	return entries
}

func (e *Engine) tripSummary(ds *models.Dataset, series map[string]*models.SanitizedSeries) models.TripSummary {
	t := models.TripSummary{Rows: ds.Len()}
	if ds != nil {
		t.EmptyRowsDropped = ds.Source.EmptyRowsDropped
	}
	numeric := func(role models.Role) []float64 {
		for _, p := range e.registry.ByRole(role) {
			if s, ok := series[p.Name]; ok && s.Kind == models.KindNumeric && len(s.Values) > 0 {
				return s.Values
			}
		}
		return nil
	}
	if v := numeric(models.RoleTime); len(v) >= 2 {
		d := stats.Span(v) / 1000
		t.DurationS = &d
	}
	if v := numeric(models.RoleSpeed); len(v) > 0 {
		sum := stats.Summarize(v, 0)
		t.AvgSpeedKMH, t.MaxSpeedKMH = sum.Mean, sum.Max
	}
	if v := numeric(models.RoleRPM); len(v) > 0 {
		sum := stats.Summarize(v, 0)
		t.AvgRPM, t.MaxRPM = sum.Mean, sum.Max
	}
	for _, p := range e.registry.ByRole(models.RoleIdle) {
		s, ok := series[p.Name]
		if !ok || s.Kind != models.KindCategorical {
			continue
		}
		idle, known := 0, 0
		for _, l := range s.Labels {
			if state, ok := BinaryState(l); ok {
				known++
				idle += state
			}
		}
		if known > 0 {
			pct := stats.Percent(idle, known)
			t.IdlePct = &pct
		}
		break
	}
	return t
}

// summarizeStatus sets the trip status. Alerts (including a secondary
// in-range alert) escalate the trip; errors are counted but never escalate.
func summarizeStatus(r *models.DiagnosticReport) {
	r.AlertCount, r.ErrorCount = 0, 0
	for _, e := range r.Entries {
		switch {
		case e.Verdict == models.VerdictAlert:
			r.AlertCount++
		case e.InRange != nil && e.InRange.Verdict == models.VerdictAlert && e.Verdict != models.VerdictError:
			r.AlertCount++
		}
		if e.Verdict == models.VerdictError {
			r.ErrorCount++
		}
	}
	r.Status = models.VerdictOK
	if r.AlertCount > 0 {
		r.Status = models.VerdictAlert
	}
}

// SanitizeAll returns the numeric series of every resolvable registry
// parameter, keyed by the parameter name, in registry order.
func (e *Engine) SanitizeAll(ds *models.Dataset) []models.SanitizedSeries {
	resolver := NewResolver(ds)
	var out []models.SanitizedSeries
	for _, p := range e.registry.Parameters() {
		if p.Kind != models.KindNumeric {
			continue
		}
		col, err := resolver.Resolve(p)
		if err != nil {
			continue
		}
		s := SanitizeNumeric(ds, col)
		if len(s.Values) == 0 {
			continue
		}
		s.Column = p.Name
		out = append(out, s)
	}
	return out
}

func scalarOf(prof refranges.Profile, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := prof.Scalar(k); ok {
			return v, true
		}
	}
	return 0, false
}
