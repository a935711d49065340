package stats

import (
	"obd-diagnostics/internal/models"
)

// MovingAverage smooths with a centered window. Near the edges the window
// is truncated to the samples that exist.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	half := window / 2
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if window%2 == 0 {
			hi = i + half
		}
		if hi > len(values) {
			hi = len(values)
		}
		if hi <= lo {
			hi = lo + 1
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// ShareWithin returns the percent of samples inside, below and above a
// numeric range. A non-numeric range puts every sample outside, split
// as neither below nor above.
func ShareWithin(values []float64, r *models.IdealRange) (inside, below, above float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	var in, lo, hi int
	for _, v := range values {
		switch {
		case !r.IsNumeric():
		case v < *r.Min:
			lo++
		case v > *r.Max:
			hi++
		default:
			in++
		}
	}
	n := len(values)
	return Percent(in, n), Percent(lo, n), Percent(hi, n)
}

// CountAbove counts samples strictly greater than threshold
func CountAbove(values []float64, threshold float64) int {
	n := 0
	for _, v := range values {
		if v > threshold {
			n++
		}
	}
	return n
}
