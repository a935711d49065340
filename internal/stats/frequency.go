package stats

import (
	"sort"

	mstats "github.com/montanaflynn/stats"

	"obd-diagnostics/internal/models"
)

// TopK rounds values to the given decimals and returns the k most frequent
// buckets, by count descending then value ascending.
func TopK(values []float64, k, decimals int) []models.NumericBucket {
	if len(values) == 0 || k <= 0 {
		return nil
	}
	counts := make(map[float64]int)
	for _, v := range values {
		r, err := mstats.Round(v, decimals)
		if err != nil {
			continue
		}
		counts[r]++
	}
	buckets := make([]models.NumericBucket, 0, len(counts))
	for v, c := range counts {
		buckets = append(buckets, models.NumericBucket{
			Value:   v,
			Count:   c,
			Percent: Percent(c, len(values)),
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})
	if len(buckets) > k {
		buckets = buckets[:k]
	}
	return buckets
}

// TopLabels returns the k most frequent labels, by count descending then label
func TopLabels(labels []string, k int) []models.FrequencyBucket {
	if len(labels) == 0 || k <= 0 {
		return nil
	}
	counts := LabelCounts(labels)
	buckets := make([]models.FrequencyBucket, 0, len(counts))
	for v, c := range counts {
		buckets = append(buckets, models.FrequencyBucket{
			Value:   v,
			Count:   c,
			Percent: Percent(c, len(labels)),
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})
	if len(buckets) > k {
		buckets = buckets[:k]
	}
	return buckets
}

// LabelCounts counts occurrences of each label
func LabelCounts(labels []string) map[string]int {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// Percent returns part/total*100 rounded to two decimals, 0 when total is 0
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	p, err := mstats.Round(float64(part)/float64(total)*100, 2)
	if err != nil {
		return 0
	}
	return p
}
