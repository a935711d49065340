package diagnostics

import (
	"fmt"

	"obd-diagnostics/internal/models"
)

// Parameter groups used to order and label report entries
const (
	GroupTrip     = "trip"
	GroupFuel     = "fuel"
	GroupMixture  = "mixture"
	GroupAir      = "air"
	GroupTemp     = "temperature"
	GroupIgnition = "ignition"
	GroupElectric = "electrical"
	GroupSafety   = "safety"
	GroupChassis  = "chassis"
)

var (
	yesNo     = []string{"yes", "no"}
	onOff     = []string{"on", "off"}
	loopState = []string{"aberto", "fechado"}
	levels    = []string{"alto", "medio", "baixo", "high", "medium", "low"}
)

// Registry is the static list of logical parameters the engine analyzes
type Registry struct {
	params []models.LogicalParameter
	byName map[string]int
}

// NewRegistry validates and indexes a parameter list. Names must be unique
// and every parameter needs a kind and a rule.
func NewRegistry(params []models.LogicalParameter) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(params))}
	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter %d has no name", i)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		if p.Kind != models.KindNumeric && p.Kind != models.KindCategorical {
			return nil, fmt.Errorf("parameter %q: unknown kind %q", p.Name, p.Kind)
		}
		switch p.Rule {
		case models.RuleRange, models.RuleDescriptive, models.RuleFrequency:
		case models.RuleShare:
			if p.FixedRange == nil {
				return nil, fmt.Errorf("parameter %q: share rule needs a fixed range", p.Name)
			}
		default:
			return nil, fmt.Errorf("parameter %q: unknown rule %q", p.Name, p.Rule)
		}
		r.byName[p.Name] = i
		r.params = append(r.params, p)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on an invalid list
func MustRegistry(params []models.LogicalParameter) *Registry {
	r, err := NewRegistry(params)
	if err != nil {
		panic(err)
	}
	return r
}

// Parameters returns the registry in declaration order
func (r *Registry) Parameters() []models.LogicalParameter {
	out := make([]models.LogicalParameter, len(r.params))
	copy(out, r.params)
	return out
}

// Lookup finds a parameter by its canonical name
func (r *Registry) Lookup(name string) (models.LogicalParameter, bool) {
	i, ok := r.byName[name]
	if !ok {
		return models.LogicalParameter{}, false
	}
	return r.params[i], true
}

// ByRole returns the parameters tagged with a role, in declaration order
func (r *Registry) ByRole(role models.Role) []models.LogicalParameter {
	var out []models.LogicalParameter
	for _, p := range r.params {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of parameters
func (r *Registry) Len() int {
	return len(r.params)
}

// DefaultRegistry returns the OBD trip parameter set
func DefaultRegistry() *Registry {
	return MustRegistry(defaultParameters())
}

func numeric(name, unit, group, desc string, rule models.Rule, aliases ...string) models.LogicalParameter {
	return models.LogicalParameter{
		Name:        name,
		Aliases:     aliases,
		Kind:        models.KindNumeric,
		Unit:        unit,
		Group:       group,
		Description: desc,
		Rule:        rule,
	}
}

func categorical(name, group, desc string, expected []string, aliases ...string) models.LogicalParameter {
	return models.LogicalParameter{
		Name:        name,
		Aliases:     aliases,
		Kind:        models.KindCategorical,
		Group:       group,
		Description: desc,
		Rule:        models.RuleFrequency,
		Expected:    expected,
	}
}

func withRole(p models.LogicalParameter, role models.Role) models.LogicalParameter {
	p.Role = role
	return p
}

func mixture(p models.LogicalParameter) models.LogicalParameter {
	p.Mixture = true
	return p
}

func hints(p models.LogicalParameter, below, above string) models.LogicalParameter {
	p.BelowHint, p.AboveHint = below, above
	return p
}

func safety(name, desc string, ok float64, expected []string) models.LogicalParameter {
	p := numeric(name, "", GroupSafety, desc, models.RuleShare)
	p.FixedRange = models.NumericRange(ok, ok)
	p.Expected = expected
	return p
}

func defaultParameters() []models.LogicalParameter {
	lambda := withRole(numeric("LAMBDA_1", "", GroupMixture, "Lambda (air/fuel equivalence)", models.RuleRange, "LAMBDA"), models.RoleLambda)
	lambda.Expected = []string{"lean mix", "rich mix", "etc"}

	fuelpw := withRole(numeric("FUELPW(ms)", "ms", GroupFuel, "Injector pulse width", models.RuleRange, "FUEL_PW(ms)"), models.RoleInjector)
	fuelpw.PeakFactor = 2

	return []models.LogicalParameter{
		withRole(numeric("time(ms)", "ms", GroupTrip, "Elapsed time", models.RuleDescriptive, "TIME(ms)", "time", "Time(ms)"), models.RoleTime),
		withRole(numeric("IC_SPDMTR(km/h)", "km/h", GroupTrip, "Vehicle speed", models.RuleDescriptive, "SPEED(km/h)", "VSS(km/h)"), models.RoleSpeed),
		withRole(numeric("RPM(1/min)", "1/min", GroupTrip, "Engine speed", models.RuleDescriptive, "RPM", "ENGINE_RPM(1/min)"), models.RoleRPM),
		withRole(numeric("ODOMETER(km)", "km", GroupTrip, "Lifetime odometer", models.RuleDescriptive, "ODO(km)"), models.RoleOdometer),
		withRole(numeric("TRIP_ODOM(km)", "km", GroupTrip, "Trip distance counter", models.RuleDescriptive, "TRIP(km)"), models.RoleTripDistance),
		withRole(categorical("ENGI_IDLE", GroupTrip, "Engine idle state", yesNo, "IDLE"), models.RoleIdle),
		categorical("ENG_STAB", GroupTrip, "Engine stable", yesNo),

		withRole(numeric("FUELLVL(%)", "%", GroupFuel, "Fuel level", models.RuleRange, "FUEL_LVL(%)", "FUELLEVEL(%)"), models.RoleFuelLevel),
		fuelpw,
		numeric("FUEL_CORR(:1)", ":1", GroupFuel, "Fuel correction factor", models.RuleRange),
		numeric("AF_LEARN", "", GroupFuel, "Adaptive fuel learn", models.RuleRange),

		withRole(categorical("OPENLOOP", GroupMixture, "Open loop active", onOff), models.RoleOpenLoop),
		withRole(categorical("MIXCNT_STAT", GroupMixture, "Mixture control state", loopState), models.RoleLoopState),
		lambda,
		mixture(hints(numeric("SHRTFT1(%)", "%", GroupMixture, "Short term fuel trim bank 1", models.RuleRange, "STFT1(%)"),
			"ECU adding less fuel than expected (rich condition)", "ECU adding fuel (lean condition)")),
		mixture(hints(numeric("LONGFT1(%)", "%", GroupMixture, "Long term fuel trim bank 1", models.RuleRange, "LTFT1(%)"),
			"persistent rich correction", "persistent lean correction (vacuum leak or weak pump)")),
		mixture(numeric("AF_RATIO(:1)", ":1", GroupMixture, "Air/fuel ratio", models.RuleRange, "AFR(:1)")),
		mixture(numeric("LMD_EGO1(:1)", ":1", GroupMixture, "Lambda from O2 sensor 1", models.RuleRange, "EGO(:1)")),
		withRole(numeric("O2S11_V(V)", "V", GroupMixture, "Upstream O2 sensor voltage", models.RuleRange, "O2S11(V)"), models.RoleO2Voltage),

		withRole(numeric("MAP(V)", "V", GroupAir, "Manifold pressure sensor voltage", models.RuleRange), models.RoleMAPVolts),
		withRole(numeric("MAP.OBDII(kPa)", "kPa", GroupAir, "Manifold absolute pressure", models.RuleRange, "MAP(kPa)"), models.RoleMAPPressure),
		numeric("LOAD.OBDII(%)", "%", GroupAir, "Calculated engine load", models.RuleRange, "LOAD(%)"),
		numeric("TP.OBDII(%)", "%", GroupAir, "Throttle position", models.RuleRange, "TPS(%)"),

		withRole(hints(numeric("ECT_GAUGE(°C)", "°C", GroupTemp, "Coolant temperature (gauge)", models.RuleRange, "ECT_GAUGE(Â°C)", "ECT_GAUGE(√Ç¬∞C)"),
			"engine running cold (thermostat stuck open?)", "engine running hot (cooling system)"), models.RoleCoolant),
		withRole(hints(numeric("ECT(°C)", "°C", GroupTemp, "Coolant temperature", models.RuleRange, "ECT(Â°C)", "ECT(√Ç¬∞C)"),
			"engine running cold (thermostat stuck open?)", "engine running hot (cooling system)"), models.RoleCoolant),
		hints(numeric("IAT(°C)", "°C", GroupTemp, "Intake air temperature", models.RuleRange, "IAT(Â°C)", "IAT(√Ç¬∞C)"),
			"", "hot intake air reduces power"),
		categorical("FANLO", GroupTemp, "Radiator fan low speed", onOff),
		categorical("FANHI", GroupTemp, "Radiator fan high speed", onOff),

		withRole(numeric("SPKDUR_1(ms)", "ms", GroupIgnition, "Spark duration cylinder 1", models.RuleRange, "SPKDUR_1"), models.RoleCylinder),
		withRole(numeric("SPKDUR_2(ms)", "ms", GroupIgnition, "Spark duration cylinder 2", models.RuleRange, "SPKDUR_2"), models.RoleCylinder),
		withRole(numeric("SPKDUR_3(ms)", "ms", GroupIgnition, "Spark duration cylinder 3", models.RuleRange, "SPKDUR_3"), models.RoleCylinder),
		withRole(numeric("SPKDUR_4(ms)", "ms", GroupIgnition, "Spark duration cylinder 4", models.RuleRange, "SPKDUR_4"), models.RoleCylinder),

		hints(numeric("VBAT_1(V)", "V", GroupElectric, "Battery voltage", models.RuleRange, "VBAT(V)"),
			"low charging voltage (battery or alternator)", "overcharging (regulator)"),

		safety("BRK_LVL", "Brake fluid level (1 = ok)", 1, levels),
		safety("FUEL_RESER", "Cold start reservoir active", 0, onOff),
		safety("PSP", "Power steering pressure switch", 0, levels),
		safety("ANY_DR_AJ", "Any door ajar", 0, onOff),
		safety("T_AJAR", "Trunk ajar", 0, onOff),

		categorical("BOO_ABS", GroupChassis, "Brake pedal switch", onOff),
		numeric("LF_WSPD(km/h)", "km/h", GroupChassis, "Wheel speed front left", models.RuleDescriptive),
		numeric("RF_WSPD(km/h)", "km/h", GroupChassis, "Wheel speed front right", models.RuleDescriptive),
		numeric("LR_WSPD(km/h)", "km/h", GroupChassis, "Wheel speed rear left", models.RuleDescriptive),
		numeric("RR_WSPD(km/h)", "km/h", GroupChassis, "Wheel speed rear right", models.RuleDescriptive),
	}
}
