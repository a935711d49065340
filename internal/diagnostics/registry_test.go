package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/models"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.Greater(t, r.Len(), 30)

	p, ok := r.Lookup("FUELLVL(%)")
	require.True(t, ok)
	assert.Equal(t, models.RoleFuelLevel, p.Role)
	assert.Equal(t, []string{"FUELLVL(%)", "FUEL_LVL(%)", "FUELLEVEL(%)"}, p.Candidates())

	assert.Len(t, r.ByRole(models.RoleCylinder), 4)
	assert.Len(t, r.ByRole(models.RoleCoolant), 2)

	for _, p := range r.Parameters() {
		if p.Rule == models.RuleShare {
			assert.NotNil(t, p.FixedRange, p.Name)
		}
		if p.Mixture {
			assert.Equal(t, models.RuleRange, p.Rule, p.Name)
		}
	}
}

func TestNewRegistryValidation(t *testing.T) {
	ok := models.LogicalParameter{Name: "A", Kind: models.KindNumeric, Rule: models.RuleRange}
	_, err := NewRegistry([]models.LogicalParameter{ok, ok})
	assert.Error(t, err, "duplicate")

	_, err = NewRegistry([]models.LogicalParameter{{Name: "B", Kind: "blob", Rule: models.RuleRange}})
	assert.Error(t, err)

	_, err = NewRegistry([]models.LogicalParameter{{Name: "C", Kind: models.KindNumeric, Rule: models.RuleShare}})
	assert.Error(t, err, "share without fixed range")

	_, err = NewRegistry([]models.LogicalParameter{{Kind: models.KindNumeric, Rule: models.RuleRange}})
	assert.Error(t, err)

	r, err := NewRegistry([]models.LogicalParameter{ok})
	require.NoError(t, err)
	_, found := r.Lookup("missing")
	assert.False(t, found)
}

func TestEngineWithCustomRegistry(t *testing.T) {
	reg := MustRegistry([]models.LogicalParameter{
		{Name: "X", Kind: models.KindNumeric, Rule: models.RuleDescriptive},
	})
	e := newTestEngine()
	WithRegistry(reg)(e)
	report := e.Analyze(table([]string{"X"}, []string{"1"}, []string{"2"}), models.Vehicle{}, nil)
	assert.Len(t, report.Entries, 1+8)
	x, _ := report.Entry("X")
	assert.Equal(t, models.VerdictOK, x.Verdict)
}
