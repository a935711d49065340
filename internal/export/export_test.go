package export

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/models"
)

func sampleSeries() []models.SanitizedSeries {
	return []models.SanitizedSeries{
		{Column: "RPM", Kind: models.KindNumeric, Values: []float64{800, 1500}, Rows: []int{0, 2}, Dropped: 1},
		{Column: "FUELLVL", Kind: models.KindNumeric, Values: []float64{50, 49.5, 49}, Rows: []int{0, 1, 2}},
	}
}

func TestSeriesRowsKeepDroppedCellsAsInvalid(t *testing.T) {
	rows := seriesRows(sampleSeries(), 3)
	require.Len(t, rows, 6)

	assert.Equal(t, int64(0), rows[0].RowIndex)
	assert.Equal(t, "RPM", rows[0].Parameter)
	assert.Equal(t, 800.0, rows[0].Value)
	assert.True(t, rows[0].Valid)

	// row 1 has no RPM sample
	assert.Equal(t, "RPM", rows[2].Parameter)
	assert.False(t, rows[2].Valid)
	assert.True(t, math.IsNaN(rows[2].Value))

	assert.Equal(t, "FUELLVL", rows[3].Parameter)
	assert.Equal(t, 49.5, rows[3].Value)
}

func TestMarshalSeriesParquet(t *testing.T) {
	data, err := MarshalSeriesParquet(sampleSeries(), 3)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))

	path := filepath.Join(t.TempDir(), "trip.parquet")
	require.NoError(t, WriteParquetFile(path, data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
}

func sampleReport() *models.DiagnosticReport {
	mean := 12.5
	km := 14.2
	return &models.DiagnosticReport{
		Vehicle: models.Vehicle{Model: "corsa", Fuel: "flex"},
		Status:  models.VerdictAlert,
		Entries: []models.ReportEntry{
			{
				Name:    "SHRTFT1",
				Column:  "SHRTFT1(%)",
				Stats:   &models.StatSummary{Count: 40, Mean: &mean},
				InRange: &models.RangeShare{Inside: 70, Above: 30, Verdict: models.VerdictAlert},
				Verdict: models.VerdictAlert,
			},
			{Name: "km_per_l", Value: &km, Verdict: models.VerdictOK, Derived: true},
			{Name: "MAP", Verdict: models.VerdictError, Problem: models.ProblemColumnAbsent},
		},
	}
}

func TestEntryRows(t *testing.T) {
	rows := entryRows(sampleReport())
	require.Len(t, rows, 3)

	assert.Equal(t, int64(40), rows[0].Samples)
	assert.Equal(t, 12.5, rows[0].Mean)
	assert.Equal(t, 70.0, rows[0].InsidePct)
	assert.True(t, math.IsNaN(rows[0].Value))

	assert.True(t, rows[1].Derived)
	assert.Equal(t, 14.2, rows[1].Value)

	assert.Equal(t, "column_absent", rows[2].Problem)
	assert.True(t, math.IsNaN(rows[2].Mean))
}

func TestMarshalEntriesParquet(t *testing.T) {
	data, err := MarshalEntriesParquet(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))
}

func TestWriteReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip.report.json")
	require.NoError(t, WriteReportFile(path, sampleReport()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status": "alert"`)

	var back models.DiagnosticReport
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "corsa", back.Vehicle.Model)
	require.Len(t, back.Entries, 3)
	assert.Equal(t, models.ProblemColumnAbsent, back.Entries[2].Problem)
}

func TestWriteJSONIndents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"rows": 3}))
	assert.Equal(t, "{\n  \"rows\": 3\n}\n", buf.String())
}
