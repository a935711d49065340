// Package refranges holds the reference ranges keyed by vehicle model,
// fuel type and canonical parameter key.
package refranges

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"obd-diagnostics/internal/models"
)

// Reference is one configured value: a range or allowed set, or a scalar
// threshold such as a minimum km/L.
type Reference struct {
	Range  *models.IdealRange `json:"range,omitempty"`
	Scalar *float64           `json:"scalar,omitempty"`
}

// Profile maps canonical parameter keys to references for one (model, fuel)
type Profile map[string]Reference

// Range returns the range configured for a parameter name or key
func (p Profile) Range(param string) (*models.IdealRange, bool) {
	ref, ok := p[models.CanonicalKey(param)]
	if !ok || ref.Range == nil {
		return nil, false
	}
	return ref.Range, true
}

// Scalar returns the scalar threshold configured for a parameter name or key
func (p Profile) Scalar(param string) (float64, bool) {
	ref, ok := p[models.CanonicalKey(param)]
	if !ok || ref.Scalar == nil {
		return 0, false
	}
	return *ref.Scalar, true
}

// Table is the full model -> fuel -> parameter mapping
type Table struct {
	profiles map[string]map[string]Profile
}

// New creates an empty table
func New() *Table {
	return &Table{profiles: make(map[string]map[string]Profile)}
}

// NormalizeName lowercases and trims a model or fuel name
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Set stores a reference, replacing any previous one for the same key
func (t *Table) Set(model, fuel, param string, ref Reference) {
	model, fuel = NormalizeName(model), NormalizeName(fuel)
	fuels, ok := t.profiles[model]
	if !ok {
		fuels = make(map[string]Profile)
		t.profiles[model] = fuels
	}
	prof, ok := fuels[fuel]
	if !ok {
		prof = make(Profile)
		fuels[fuel] = prof
	}
	prof[models.CanonicalKey(param)] = ref
}

// Profile returns a copy of the references for (model, fuel)
func (t *Table) Profile(model, fuel string) (Profile, bool) {
	if t == nil {
		return nil, false
	}
	prof, ok := t.profiles[NormalizeName(model)][NormalizeName(fuel)]
	if !ok {
		return nil, false
	}
	out := make(Profile, len(prof))
	for k, v := range prof {
		out[k] = v
	}
	return out, true
}

// Range looks up a range; absence is reported with false, not as an error
func (t *Table) Range(model, fuel, param string) (*models.IdealRange, bool) {
	prof, ok := t.Profile(model, fuel)
	if !ok {
		return nil, false
	}
	return prof.Range(param)
}

// Vehicles lists the configured (model, fuel) pairs in sorted order
func (t *Table) Vehicles() []models.Vehicle {
	if t == nil {
		return nil
	}
	var out []models.Vehicle
	for model, fuels := range t.profiles {
		for fuel := range fuels {
			out = append(out, models.Vehicle{Model: model, Fuel: fuel})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Fuel < out[j].Fuel
	})
	return out
}

// Each visits every reference in sorted order
func (t *Table) Each(fn func(v models.Vehicle, key string, ref Reference)) {
	for _, v := range t.Vehicles() {
		prof := t.profiles[v.Model][v.Fuel]
		keys := make([]string, 0, len(prof))
		for k := range prof {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fn(v, k, prof[k])
		}
	}
}

// Len returns the number of stored references
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, fuels := range t.profiles {
		for _, prof := range fuels {
			n += len(prof)
		}
	}
	return n
}

// LoadFile reads a YAML or JSON table from disk
func LoadFile(path string) (*Table, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranges: %w", err)
	}
	t, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("parse ranges %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a nested model -> fuel -> parameter document. JSON input is
// accepted since it is valid YAML. Parameter values may be:
//
//	[min, max]            closed numeric range
//	[]                    present but empty range
//	12.5                  scalar threshold
//	["on", "off"]         allowed categorical values
//	{min: 1, max: 2}      closed numeric range
//	{allowed: [a, b]}     allowed categorical values
func Parse(data []byte) (*Table, error) {
	var doc map[string]map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	t := New()
	for model, fuels := range doc {
		for fuel, params := range fuels {
			t.ensure(model, fuel)
			for param, raw := range params {
				if raw == nil {
					continue
				}
				ref, err := parseReference(raw)
				if err != nil {
					return nil, fmt.Errorf("%s/%s/%s: %w", model, fuel, param, err)
				}
				t.Set(model, fuel, param, ref)
			}
		}
	}
	return t, nil
}

func (t *Table) ensure(model, fuel string) {
	model, fuel = NormalizeName(model), NormalizeName(fuel)
	if _, ok := t.profiles[model]; !ok {
		t.profiles[model] = make(map[string]Profile)
	}
	if _, ok := t.profiles[model][fuel]; !ok {
		t.profiles[model][fuel] = make(Profile)
	}
}

func parseReference(raw interface{}) (Reference, error) {
	switch v := raw.(type) {
	case []interface{}:
		return parseList(v)
	case map[string]interface{}:
		return parseMap(v)
	case string:
		if f, ok := toFloat(v); ok {
			return Reference{Scalar: &f}, nil
		}
		return Reference{Range: models.AllowedSet(v)}, nil
	default:
		if f, ok := toFloat(v); ok {
			return Reference{Scalar: &f}, nil
		}
	}
	return Reference{}, fmt.Errorf("unsupported value %v", raw)
}

func parseList(items []interface{}) (Reference, error) {
	if len(items) == 0 {
		return Reference{Range: &models.IdealRange{}}, nil
	}
	nums := make([]float64, 0, len(items))
	for _, it := range items {
		f, ok := toFloat(it)
		if !ok {
			break
		}
		nums = append(nums, f)
	}
	if len(nums) == len(items) {
		if len(nums) != 2 {
			return Reference{}, fmt.Errorf("numeric range needs 2 values, got %d", len(nums))
		}
		if nums[0] > nums[1] {
			return Reference{}, fmt.Errorf("range min %g > max %g", nums[0], nums[1])
		}
		return Reference{Range: models.NumericRange(nums[0], nums[1])}, nil
	}
	allowed := make([]string, 0, len(items))
	for _, it := range items {
		allowed = append(allowed, fmt.Sprint(it))
	}
	return Reference{Range: models.AllowedSet(allowed...)}, nil
}

func parseMap(m map[string]interface{}) (Reference, error) {
	if raw, ok := m["allowed"]; ok {
		items, ok := raw.([]interface{})
		if !ok {
			return Reference{}, fmt.Errorf("allowed must be a list")
		}
		allowed := make([]string, 0, len(items))
		for _, it := range items {
			allowed = append(allowed, fmt.Sprint(it))
		}
		return Reference{Range: models.AllowedSet(allowed...)}, nil
	}
	minV, okMin := toFloat(m["min"])
	maxV, okMax := toFloat(m["max"])
	if !okMin || !okMax {
		return Reference{}, fmt.Errorf("range map needs numeric min and max")
	}
	if minV > maxV {
		return Reference{}, fmt.Errorf("range min %g > max %g", minV, maxV)
	}
	return Reference{Range: models.NumericRange(minV, maxV)}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
