package diagnostics

import (
	"sort"

	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/stats"
)

// AnalyzeCategorical summarizes labels: distinct count, the topK most
// frequent labels and the labels outside expected, capped to preview.
// A nil expected set reports no unexpected values.
func AnalyzeCategorical(labels []string, expected []string, topK, preview int) models.CategoricalSummary {
	counts := stats.LabelCounts(labels)
	sum := models.CategoricalSummary{
		Count:    len(labels),
		Distinct: len(counts),
		Top:      stats.TopLabels(labels, topK),
	}
	if len(labels) > 0 {
		sum.Shares = make(map[string]float64, len(counts))
		for l, c := range counts {
			sum.Shares[l] = stats.Percent(c, len(labels))
		}
	}
	if len(expected) == 0 {
		return sum
	}

	known := make(map[string]bool, len(expected))
	for _, e := range expected {
		if n, ok := NormalizeLabel(e); ok {
			known[n] = true
		}
	}
	var unexpected []string
	for l := range counts {
		if !known[l] {
			unexpected = append(unexpected, l)
		}
	}
	// most frequent first so the preview shows what matters
	sort.Slice(unexpected, func(i, j int) bool {
		ci, cj := counts[unexpected[i]], counts[unexpected[j]]
		if ci != cj {
			return ci > cj
		}
		return unexpected[i] < unexpected[j]
	})
	sum.UnexpectedTotal = len(unexpected)
	if preview > 0 && len(unexpected) > preview {
		unexpected = unexpected[:preview]
	}
	sum.Unexpected = unexpected
	return sum
}
