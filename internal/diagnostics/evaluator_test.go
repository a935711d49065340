package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"obd-diagnostics/internal/models"
)

func f(v float64) *float64 { return &v }

func TestEvaluateRange(t *testing.T) {
	r := models.NumericRange(80, 100)
	tests := []struct {
		name    string
		value   *float64
		r       *models.IdealRange
		verdict models.Verdict
		problem models.Problem
	}{
		{"inside", f(95), r, models.VerdictOK, models.ProblemNone},
		{"lower bound inclusive", f(80), r, models.VerdictOK, models.ProblemNone},
		{"upper bound inclusive", f(100), r, models.VerdictOK, models.ProblemNone},
		{"above", f(105), r, models.VerdictAlert, models.ProblemNone},
		{"below", f(10), r, models.VerdictAlert, models.ProblemNone},
		{"null statistic", nil, r, models.VerdictError, models.ProblemInsufficientData},
		{"no reference", f(95), nil, models.VerdictError, models.ProblemNoReference},
		{"empty reference", f(95), &models.IdealRange{}, models.VerdictAlert, models.ProblemNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, p := EvaluateRange(tt.value, tt.r)
			assert.Equal(t, tt.verdict, v)
			assert.Equal(t, tt.problem, p)
		})
	}
}

func TestEvaluateLabel(t *testing.T) {
	set := models.AllowedSet("fechado")
	v, _ := EvaluateLabel("fechado", set)
	assert.Equal(t, models.VerdictOK, v)
	v, _ = EvaluateLabel("aberto", set)
	assert.Equal(t, models.VerdictAlert, v)
	v, p := EvaluateLabel("", set)
	assert.Equal(t, models.VerdictError, v)
	assert.Equal(t, models.ProblemInsufficientData, p)
	_, p = EvaluateLabel("x", nil)
	assert.Equal(t, models.ProblemNoReference, p)
}

func TestEvaluateThresholds(t *testing.T) {
	v, _ := EvaluateShare(f(75), 75)
	assert.Equal(t, models.VerdictOK, v)
	v, _ = EvaluateShare(f(74.9), 75)
	assert.Equal(t, models.VerdictAlert, v)

	v, _ = EvaluateMinimum(f(12), f(10))
	assert.Equal(t, models.VerdictOK, v)
	v, _ = EvaluateMinimum(f(8), f(10))
	assert.Equal(t, models.VerdictAlert, v)
	v, p := EvaluateMinimum(f(8), nil)
	assert.Equal(t, models.VerdictError, v)
	assert.Equal(t, models.ProblemNoReference, p)

	v, _ = EvaluateMaximum(f(20), 20)
	assert.Equal(t, models.VerdictOK, v)
	v, _ = EvaluateMaximum(f(20.1), 20)
	assert.Equal(t, models.VerdictAlert, v)
}
