// Package stats implements the descriptive and robust statistics used by the
// diagnostics engine. Functions never mutate their inputs.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"obd-diagnostics/internal/models"
)

// DefaultWinsorLimit clips the lowest and highest 5% of samples.
const DefaultWinsorLimit = 0.05

// Summarize computes a StatSummary. An empty input gives an all-nil summary;
// a single sample gives nil StdDev and WinsorizedMean.
func Summarize(values []float64, winsorLimit float64) models.StatSummary {
	s := models.StatSummary{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	sorted := sortedCopy(values)

	s.Mean = ptr(stat.Mean(values, nil))
	s.Min = ptr(floats.Min(values))
	s.Max = ptr(floats.Max(values))
	s.Median = ptr(Quantile(sorted, 0.5))
	s.P25 = ptr(Quantile(sorted, 0.25))
	s.P75 = ptr(Quantile(sorted, 0.75))
	if len(values) >= 2 {
		s.StdDev = ptr(stat.StdDev(values, nil))
		if wm, ok := WinsorizedMean(values, winsorLimit); ok {
			s.WinsorizedMean = ptr(wm)
		}
	}
	return s
}

// Quantile returns the q-th quantile of an ascending slice using linear
// interpolation between closest ranks (h = (n-1)q).
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Winsorize clips values below the limit quantile and above the 1-limit
// quantile to those quantiles. Order is preserved.
func Winsorize(values []float64, limit float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if len(values) == 0 || limit <= 0 {
		return out
	}
	sorted := sortedCopy(values)
	lo := Quantile(sorted, limit)
	hi := Quantile(sorted, 1-limit)
	for i, v := range out {
		switch {
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		}
	}
	return out
}

// WinsorizedMean averages the winsorized series. It needs at least two samples.
func WinsorizedMean(values []float64, limit float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	return stat.Mean(Winsorize(values, limit), nil), true
}

// Span returns max-min, or 0 for an empty series
func Span(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values) - floats.Min(values)
}

// Mean returns the arithmetic mean and false for an empty series
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

// Correlation is the Pearson coefficient of two aligned series. It is
// undefined below two pairs or when either series is constant.
func Correlation(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	if Span(x) == 0 || Span(y) == 0 {
		return 0, false
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0, false
	}
	return c, true
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func ptr(v float64) *float64 {
	return &v
}
