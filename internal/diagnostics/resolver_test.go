package diagnostics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/models"
)

func fuelParam() models.LogicalParameter {
	return models.LogicalParameter{
		Name:    "FUELLVL(%)",
		Aliases: []string{"FUEL_LVL(%)", "FUELLEVEL(%)"},
		Kind:    models.KindNumeric,
	}
}

func TestResolveAliasPriorityNotColumnOrder(t *testing.T) {
	// both aliases present; the higher priority alias wins even though it comes later
	ds := table([]string{"FUELLEVEL(%)", "FUEL_LVL(%)"})
	col, err := NewResolver(ds).Resolve(fuelParam())
	require.NoError(t, err)
	assert.Equal(t, "FUEL_LVL(%)", col)

	ds = table([]string{"FUELLEVEL(%)", "FUEL_LVL(%)", "FUELLVL(%)"})
	col, err = NewResolver(ds).Resolve(fuelParam())
	require.NoError(t, err)
	assert.Equal(t, "FUELLVL(%)", col)
}

func TestResolveCanonicalFallback(t *testing.T) {
	ds := table([]string{"ECT(Â°C)", "fuellvl"})
	col, err := NewResolver(ds).Resolve(models.LogicalParameter{Name: "ECT(°C)", Kind: models.KindNumeric})
	require.NoError(t, err)
	assert.Equal(t, "ECT(Â°C)", col)

	col, err = NewResolver(ds).Resolve(fuelParam())
	require.NoError(t, err)
	assert.Equal(t, "fuellvl", col)
}

func TestResolveAbsent(t *testing.T) {
	ds := table([]string{"RPM(1/min)", "FUELLV(%)"})
	r := NewResolver(ds)
	_, err := r.Resolve(fuelParam())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrColumnAbsent))
	assert.Equal(t, "FUELLV(%)", r.ClosestHeader(fuelParam()))

	assert.Empty(t, r.ClosestHeader(models.LogicalParameter{Name: "COMPLETELY_DIFFERENT"}))
}

func TestResolveNilDataset(t *testing.T) {
	_, err := NewResolver(nil).Resolve(fuelParam())
	assert.ErrorIs(t, err, models.ErrColumnAbsent)
}
