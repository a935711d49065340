package refranges

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/models"
)

const sampleYAML = `
Corsa:
  Flex:
    "FUELLVL(%)": [5, 100]
    LONGFT1_pct: [-10, 10]
    "ECT(°C)": {min: 85, max: 105}
    "AF_RATIO(:1)": []
    consumo_minimo_kml: 9.5
    OPENLOOP: [on, off]
    MIXCNT_STAT: {allowed: [fechado]}
`

func TestParseYAML(t *testing.T) {
	table, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	prof, ok := table.Profile(" corsa ", "FLEX")
	require.True(t, ok)

	r, ok := prof.Range("FUELLVL(%)")
	require.True(t, ok)
	assert.True(t, r.Contains(50))
	assert.False(t, r.Contains(101))

	r, ok = prof.Range("LONGFT1(%)")
	require.True(t, ok)
	assert.Equal(t, -10.0, *r.Min)

	r, ok = prof.Range("ECT(Â°C)")
	require.True(t, ok, "mojibake header resolves to the same key")
	assert.Equal(t, 105.0, *r.Max)

	r, ok = prof.Range("AF_RATIO(:1)")
	require.True(t, ok)
	assert.True(t, r.IsEmpty())

	v, ok := prof.Scalar("CONSUMO_MINIMO_KML")
	require.True(t, ok)
	assert.Equal(t, 9.5, v)

	r, ok = prof.Range("OPENLOOP")
	require.True(t, ok)
	assert.True(t, r.Allows("OFF"))
	assert.False(t, r.IsNumeric())

	r, ok = prof.Range("MIXCNT_STAT")
	require.True(t, ok)
	assert.Equal(t, []string{"fechado"}, r.Allowed)

	_, ok = prof.Range("RPM(1/min)")
	assert.False(t, ok)
	_, ok = table.Range("gol", "flex", "FUELLVL(%)")
	assert.False(t, ok)
}

func TestParseJSON(t *testing.T) {
	table, err := Parse([]byte(`{"onix": {"gasolina": {"SHRTFT1(%)": [-5, 5]}}}`))
	require.NoError(t, err)
	r, ok := table.Range("Onix", "Gasolina", "SHRTFT1")
	require.True(t, ok)
	assert.Equal(t, "[-5, 5]", r.String())
	assert.Equal(t, []models.Vehicle{{Model: "onix", Fuel: "gasolina"}}, table.Vehicles())
	assert.Equal(t, 1, table.Len())
}

func TestParsePctSuffixedKeys(t *testing.T) {
	table, err := Parse([]byte(`{"corsa": {"flex": {"SHRTFT1pct": [-10, 10], "LOAD_OBDIIpct": [15, 85]}}}`))
	require.NoError(t, err)

	r, ok := table.Range("corsa", "flex", "SHRTFT1(%)")
	require.True(t, ok)
	assert.Equal(t, "[-10, 10]", r.String())

	r, ok = table.Range("corsa", "flex", "LOAD.OBDII(%)")
	require.True(t, ok)
	assert.Equal(t, "[15, 85]", r.String())
}

func TestParseRejectsBadRanges(t *testing.T) {
	for _, doc := range []string{
		`m: {f: {X: [1, 2, 3]}}`,
		`m: {f: {X: [9, 1]}}`,
		`m: {f: {X: {min: 1}}}`,
		`m: {f: {X: true}}`,
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestProfileIsACopy(t *testing.T) {
	table := New()
	table.Set("m", "f", "X", Reference{Range: models.NumericRange(0, 1)})
	prof, _ := table.Profile("m", "f")
	delete(prof, "X")
	_, ok := table.Range("m", "f", "X")
	assert.True(t, ok)
}

func TestEachSorted(t *testing.T) {
	table := New()
	table.Set("b", "f", "Y", Reference{Range: models.NumericRange(0, 1)})
	table.Set("a", "f", "Z", Reference{Range: models.NumericRange(0, 1)})
	table.Set("a", "f", "X", Reference{Range: models.NumericRange(0, 1)})
	var keys []string
	table.Each(func(v models.Vehicle, key string, _ Reference) {
		keys = append(keys, v.Model+"/"+key)
	})
	assert.Equal(t, []string{"a/X", "a/Z", "b/Y"}, keys)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, table.Len())
}
