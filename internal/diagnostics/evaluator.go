package diagnostics

import (
	"obd-diagnostics/internal/models"
)

// EvaluateRange compares a representative statistic (the mean by
// convention) with an ideal range, bounds inclusive. A nil value is
// insufficient data and a nil range is a missing reference; both are
// errors. A present but empty range admits nothing.
func EvaluateRange(value *float64, r *models.IdealRange) (models.Verdict, models.Problem) {
	if value == nil {
		return models.VerdictError, models.ProblemInsufficientData
	}
	if r == nil {
		return models.VerdictError, models.ProblemNoReference
	}
	if r.Contains(*value) {
		return models.VerdictOK, models.ProblemNone
	}
	return models.VerdictAlert, models.ProblemNone
}

// EvaluateLabel checks a categorical value against an allowed set
func EvaluateLabel(label string, r *models.IdealRange) (models.Verdict, models.Problem) {
	if label == "" {
		return models.VerdictError, models.ProblemInsufficientData
	}
	if r == nil {
		return models.VerdictError, models.ProblemNoReference
	}
	if r.Allows(label) {
		return models.VerdictOK, models.ProblemNone
	}
	return models.VerdictAlert, models.ProblemNone
}

// EvaluateShare grades the percent of samples inside a range: at least
// okPct is ok, anything lower is an alert.
func EvaluateShare(insidePct *float64, okPct float64) (models.Verdict, models.Problem) {
	if insidePct == nil {
		return models.VerdictError, models.ProblemInsufficientData
	}
	if *insidePct >= okPct {
		return models.VerdictOK, models.ProblemNone
	}
	return models.VerdictAlert, models.ProblemNone
}

// EvaluateMinimum alerts when a value falls below a scalar threshold
func EvaluateMinimum(value *float64, min *float64) (models.Verdict, models.Problem) {
	if value == nil {
		return models.VerdictError, models.ProblemInsufficientData
	}
	if min == nil {
		return models.VerdictError, models.ProblemNoReference
	}
	if *value >= *min {
		return models.VerdictOK, models.ProblemNone
	}
	return models.VerdictAlert, models.ProblemNone
}

// EvaluateMaximum alerts when a value exceeds a scalar threshold
func EvaluateMaximum(value *float64, max float64) (models.Verdict, models.Problem) {
	if value == nil {
		return models.VerdictError, models.ProblemInsufficientData
	}
	if *value <= max {
		return models.VerdictOK, models.ProblemNone
	}
	return models.VerdictAlert, models.ProblemNone
}
