package diagnostics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/config"
	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/refranges"
)

var tripHeader = []string{
	"time(ms)", "IC_SPDMTR(km/h)", "RPM(1/min)", "FUELLVL(%)", "TRIP_ODOM(km)", "ENGI_IDLE",
	"OPENLOOP", "SHRTFT1(%)", "ECT(Â°C)", "LAMBDA_1", "BRK_LVL",
	"SPKDUR_1(ms)", "SPKDUR_2(ms)", "SPKDUR_3(ms)", "SPKDUR_4(ms)",
}

// sampleTrip is 40 rows: idle, 20 rows driving, idle. Fuel drops 50 -> 40
// while driving.
func sampleTrip(spark4 string) *models.Dataset {
	var rows [][]string
	for i := 0; i < 40; i++ {
		speed, idle := "0", "SIM"
		if i >= 10 && i < 30 {
			speed, idle = "60", "NÃO"
		}
		fuel := "50"
		switch {
		case i >= 25:
			fuel = "40"
		case i >= 15:
			fuel = "45"
		}
		openloop := "OFF"
		if i < 4 {
			openloop = "ON"
		}
		trim := "2,5"
		if i%10 == 0 {
			trim = "15"
		}
		rows = append(rows, []string{
			fmt.Sprint(i * 1000), speed, "1500", fuel, fmt.Sprintf("%.1f", float64(i)*0.5), idle,
			openloop, trim, "92", "LEAN MIX", "1",
			"2,1", "2,2", "2,0", spark4,
		})
	}
	return table(tripHeader, rows...)
}

func sampleRanges(t *testing.T) *refranges.Table {
	t.Helper()
	tbl, err := refranges.Parse([]byte(`
corsa:
  flex:
    "FUELLVL(%)": [5, 100]
    "SHRTFT1(%)": [-10, 10]
    "ECT(°C)": [85, 105]
    "SPKDUR_1(ms)": [1.5, 3]
    "RPM(1/min)": [600, 3500]
    consumo_minimo_kml: 3
`))
	require.NoError(t, err)
	return tbl
}

func newTestEngine() *Engine {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewEngine(config.DefaultConfig(), WithClock(func() time.Time { return fixed }))
}

func TestAnalyzeCoversRegistry(t *testing.T) {
	e := newTestEngine()
	report := e.Analyze(sampleTrip("2,15"), models.Vehicle{Model: "Corsa", Fuel: "Flex"}, sampleRanges(t))

	assert.Equal(t, models.Vehicle{Model: "corsa", Fuel: "flex"}, report.Vehicle)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), report.GeneratedAt)
	assert.Len(t, report.Entries, e.Registry().Len()+8)
	for _, p := range e.Registry().Parameters() {
		_, ok := report.Entry(p.Name)
		assert.True(t, ok, p.Name)
	}

	vbat, ok := report.Entry("VBAT_1(V)")
	require.True(t, ok)
	assert.Equal(t, models.VerdictError, vbat.Verdict)
	assert.Equal(t, models.ProblemColumnAbsent, vbat.Problem)
}

func TestAnalyzeEntries(t *testing.T) {
	report := newTestEngine().Analyze(sampleTrip("2,15"), models.Vehicle{Model: "corsa", Fuel: "flex"}, sampleRanges(t))

	ect, _ := report.Entry("ECT(°C)")
	assert.Equal(t, "ECT(Â°C)", ect.Column)
	assert.Equal(t, models.VerdictOK, ect.Verdict)

	stft, _ := report.Entry("SHRTFT1(%)")
	require.NotNil(t, stft.Stats)
	assert.Equal(t, models.VerdictOK, stft.Verdict, "mean stays inside the range")
	require.NotNil(t, stft.InRange)
	assert.Equal(t, 90.0, stft.InRange.Inside)
	assert.Equal(t, 10.0, stft.InRange.Above)
	assert.Equal(t, models.VerdictOK, stft.InRange.Verdict)

	lambda, _ := report.Entry("LAMBDA_1")
	assert.Equal(t, models.KindCategorical, lambda.Kind)
	require.NotNil(t, lambda.Categorical)
	assert.Equal(t, "lean mix", lambda.Categorical.Mode())

	brk, _ := report.Entry("BRK_LVL")
	assert.Equal(t, models.VerdictOK, brk.Verdict)
	assert.Equal(t, 100.0, brk.InRange.Inside)

	rpm, _ := report.Entry("RPM(1/min)")
	assert.Contains(t, rpm.Observations, "low variation (sensor possibly stuck)")

	fuel, _ := report.Entry(MetricFuelConsumption)
	assert.Equal(t, models.VerdictOK, fuel.Verdict)
	require.NotNil(t, report.Derived.Fuel)
	assert.InDelta(t, 5.5, report.Derived.Fuel.ConsumedL, 1e-9)

	require.NotNil(t, report.Derived.Distance)
	assert.InDelta(t, 19.5, report.Derived.Distance.KM, 1e-9)
	require.NotNil(t, report.Derived.KMPerL)
	assert.InDelta(t, 19.5/5.5, *report.Derived.KMPerL, 1e-9)

	require.NotNil(t, report.Derived.ClosedLoop)
	assert.Equal(t, 90.0, report.Derived.ClosedLoop.ClosedPct)

	require.NotNil(t, report.Trip.DurationS)
	assert.Equal(t, 39.0, *report.Trip.DurationS)
	require.NotNil(t, report.Trip.IdlePct)
	assert.Equal(t, 50.0, *report.Trip.IdlePct)

	assert.Equal(t, models.VerdictOK, report.Status)
	assert.Zero(t, report.AlertCount)
	assert.Greater(t, report.ErrorCount, 0, "absent columns are errors")
}

func TestAnalyzeImbalanceEscalatesTrip(t *testing.T) {
	report := newTestEngine().Analyze(sampleTrip("3,0"), models.Vehicle{Model: "corsa", Fuel: "flex"}, sampleRanges(t))
	bal, _ := report.Entry(MetricCylinderBalance)
	assert.Equal(t, models.VerdictAlert, bal.Verdict)
	assert.Equal(t, models.VerdictAlert, report.Status)
	assert.Equal(t, 1, report.AlertCount)
}

func TestAnalyzeWithoutProfile(t *testing.T) {
	report := newTestEngine().Analyze(sampleTrip("2,15"), models.Vehicle{Model: "gol", Fuel: "flex"}, sampleRanges(t))
	fuel, _ := report.Entry("FUELLVL(%)")
	assert.Equal(t, models.VerdictError, fuel.Verdict)
	assert.Equal(t, models.ProblemNoReference, fuel.Problem)
	assert.Equal(t, models.VerdictOK, report.Status, "errors never escalate")
}

func TestAnalyzeEmptyDataset(t *testing.T) {
	e := newTestEngine()
	report := e.Analyze(table([]string{"FUELLVL(%)"}), models.Vehicle{}, nil)
	assert.Len(t, report.Entries, e.Registry().Len()+8)

	fuel, _ := report.Entry("FUELLVL(%)")
	assert.Equal(t, models.ProblemInsufficientData, fuel.Problem)
	require.NotNil(t, fuel.Stats)
	assert.True(t, fuel.Stats.Empty())
	assert.Equal(t, models.VerdictOK, report.Status)
	assert.Equal(t, len(report.Entries), report.ErrorCount)
}

func TestAnalyzeTankCapacityFromProfile(t *testing.T) {
	tbl := sampleRanges(t)
	tbl.Set("corsa", "flex", "tank_capacity_l", refranges.Reference{Scalar: ptrTo(44.0)})
	report := newTestEngine().Analyze(sampleTrip("2,15"), models.Vehicle{Model: "corsa", Fuel: "flex"}, tbl)
	require.NotNil(t, report.Derived.Fuel)
	assert.Equal(t, 44.0, report.Derived.Fuel.TankCapacityL)
	assert.InDelta(t, 4.4, report.Derived.Fuel.ConsumedL, 1e-9)
}

func TestSanitizeAll(t *testing.T) {
	series := newTestEngine().SanitizeAll(sampleTrip("2,15"))
	require.NotEmpty(t, series)
	assert.Equal(t, "time(ms)", series[0].Column)
	for _, s := range series {
		assert.Equal(t, models.KindNumeric, s.Kind)
		assert.NotEqual(t, "LAMBDA_1", s.Column)
	}
}

func TestAnalyzeConcurrent(t *testing.T) {
	e := newTestEngine()
	tbl := sampleRanges(t)
	done := make(chan models.Verdict, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			spark := "2,15"
			if i%2 == 0 {
				spark = "3,0"
			}
			done <- e.Analyze(sampleTrip(spark), models.Vehicle{Model: "corsa", Fuel: "flex"}, tbl).Status
		}(i)
	}
	alerts := 0
	for i := 0; i < 8; i++ {
		if <-done == models.VerdictAlert {
			alerts++
		}
	}
	assert.Equal(t, 4, alerts)
}

func ptrTo(v float64) *float64 { return &v }

func TestAnalyzeZeroConfigUsesDefaults(t *testing.T) {
	e := NewEngine(config.Config{})
	ds := table([]string{"OPENLOOP", "LAMBDA_1", "BRK_LVL"},
		[]string{"ON", "0,98", "1"},
		[]string{"OFF", "1,01", "1"},
		[]string{"OFF", "1,00", "1"},
	)

	var report *models.DiagnosticReport
	require.NotPanics(t, func() {
		report = e.Analyze(ds, models.Vehicle{Model: "corsa", Fuel: "flex"}, nil)
	})
	assert.Len(t, report.Entries, e.Registry().Len()+8)

	loop, _ := report.Entry("OPENLOOP")
	require.NotNil(t, loop.Categorical)
	assert.Len(t, loop.Categorical.Top, 2)

	lambda, _ := report.Entry(MetricLambdaWindow)
	assert.Equal(t, models.VerdictOK, lambda.Verdict)
	assert.Equal(t, "[0.95, 1.05]", lambda.Range.String())
}

func TestLambdaWindowWithoutWindow(t *testing.T) {
	e := LambdaWindow(numericSeries("LAMBDA_1", 1, 1.01), nil)
	assert.Equal(t, models.VerdictError, e.Verdict)
	assert.Equal(t, models.ProblemNoReference, e.Problem)
}

func TestTankCapacityOptionBeatsProfile(t *testing.T) {
	tbl := sampleRanges(t)
	tbl.Set("corsa", "flex", "tank_capacity_l", refranges.Reference{Scalar: ptrTo(44.0)})
	e := NewEngine(config.DefaultConfig(), WithTankCapacity(60))
	report := e.Analyze(sampleTrip("2,15"), models.Vehicle{Model: "corsa", Fuel: "flex"}, tbl)
	require.NotNil(t, report.Derived.Fuel)
	assert.Equal(t, 60.0, report.Derived.Fuel.TankCapacityL)
	assert.InDelta(t, 6.0, report.Derived.Fuel.ConsumedL, 1e-9)
}

func TestSafetyFlagLoggedAsLabels(t *testing.T) {
	rows := [][]string{{"ALTO"}, {"ALTO"}, {"BAIXO"}, {"BAIXO"}, {"MÉDIO"}}
	report := newTestEngine().Analyze(table([]string{"BRK_LVL"}, rows...), models.Vehicle{Model: "corsa", Fuel: "flex"}, sampleRanges(t))

	brk, _ := report.Entry("BRK_LVL")
	assert.Equal(t, models.KindCategorical, brk.Kind)
	require.NotNil(t, brk.InRange)
	assert.Equal(t, 50.0, brk.InRange.Inside)
	assert.Equal(t, 50.0, brk.InRange.Below)
	assert.Equal(t, models.VerdictAlert, brk.Verdict)
	assert.Contains(t, brk.Observations, "1 samples with unrecognized state excluded")
	assert.Equal(t, models.VerdictAlert, report.Status)
}

func TestSafetyFlagWithUnmappedLabels(t *testing.T) {
	report := newTestEngine().Analyze(table([]string{"PSP"}, []string{"MEDIUM"}, []string{"MEDIUM"}), models.Vehicle{}, nil)

	psp, _ := report.Entry("PSP")
	assert.Equal(t, models.VerdictOK, psp.Verdict)
	assert.Nil(t, psp.InRange)
	assert.Contains(t, psp.Observations, "safety check not applied: labels do not map to an on/off state")
}
