package diagnostics

import (
	"obd-diagnostics/internal/models"
)

// table builds a dataset from a header and positional rows. An empty cell
// is kept as an empty string; use nil rows for missing values.
func table(header []string, rows ...[]string) *models.Dataset {
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		row := make(models.Row, len(header))
		for i, h := range header {
			if i < len(r) {
				row[h] = r[i]
			}
		}
		out = append(out, row)
	}
	return models.NewDataset(header, out)
}

func numericSeries(column string, values ...float64) *models.SanitizedSeries {
	rows := make([]int, len(values))
	for i := range rows {
		rows[i] = i
	}
	return &models.SanitizedSeries{Column: column, Kind: models.KindNumeric, Values: values, Rows: rows}
}

func labelSeries(column string, labels ...string) *models.SanitizedSeries {
	rows := make([]int, len(labels))
	for i := range rows {
		rows[i] = i
	}
	return &models.SanitizedSeries{Column: column, Kind: models.KindCategorical, Labels: labels, Rows: rows}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
