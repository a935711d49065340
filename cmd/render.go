package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"obd-diagnostics/internal/models"
)

var verdictMark = map[models.Verdict]string{
	models.VerdictOK:    "✓",
	models.VerdictAlert: "⚠️ ",
	models.VerdictError: "✗",
}

// renderReport prints a report grouped the way the registry orders it
func renderReport(w io.Writer, r *models.DiagnosticReport, elapsed time.Duration) {
	fmt.Fprintf(w, "🚗 %s / %s - %s (%s)\n", r.Vehicle.Model, r.Vehicle.Fuel, r.Source.Name, r.Source.Format)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "  Rows:        %s (%s empty dropped)\n",
		humanize.Comma(int64(r.Trip.Rows)), humanize.Comma(int64(r.Trip.EmptyRowsDropped)))
	if r.Source.Encoding != "" {
		fmt.Fprintf(w, "  Encoding:    %s, delimiter %q\n", r.Source.Encoding, r.Source.Delimiter)
	}
	if d := r.Trip.DurationS; d != nil {
		fmt.Fprintf(w, "  Duration:    %v\n", (time.Duration(*d) * time.Second).Round(time.Second))
	}
	if r.Trip.AvgSpeedKMH != nil {
		fmt.Fprintf(w, "  Speed:       avg %s km/h, max %s km/h\n",
			humanize.FtoaWithDigits(*r.Trip.AvgSpeedKMH, 1), humanize.FtoaWithDigits(*r.Trip.MaxSpeedKMH, 1))
	}
	if r.Trip.AvgRPM != nil {
		fmt.Fprintf(w, "  RPM:         avg %s, max %s\n",
			humanize.Comma(int64(*r.Trip.AvgRPM)), humanize.Comma(int64(*r.Trip.MaxRPM)))
	}
	if r.Trip.IdlePct != nil {
		fmt.Fprintf(w, "  Idle:        %.1f%%\n", *r.Trip.IdlePct)
	}
	renderDerived(w, r.Derived)

	group := ""
	for _, e := range r.Entries {
		g := e.Group
		if e.Derived {
			g = "derived"
		}
		if g != group {
			group = g
			fmt.Fprintf(w, "\n[%s]\n", group)
		}
		fmt.Fprintf(w, "  %s %-22s %-14s %s\n", verdictMark[e.Verdict], e.Name, entryValue(e), e.Explanation)
		if e.InRange != nil {
			fmt.Fprintf(w, "      in range %.1f%% (below %.1f%%, above %.1f%%) %s\n",
				e.InRange.Inside, e.InRange.Below, e.InRange.Above, e.InRange.Verdict)
		}
		if e.Hint != "" {
			fmt.Fprintf(w, "      closest header: %s\n", e.Hint)
		}
		for _, o := range e.Observations {
			fmt.Fprintf(w, "      · %s\n", o)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: %s %s  (%d alerts, %d errors, %s entries, %v)\n",
		verdictMark[r.Status], strings.ToUpper(string(r.Status)), r.AlertCount, r.ErrorCount,
		humanize.Comma(int64(len(r.Entries))), elapsed.Round(time.Millisecond))
}

func renderDerived(w io.Writer, d models.DerivedMetrics) {
	if f := d.Fuel; f != nil {
		fmt.Fprintf(w, "  Fuel:        %.1f%% -> %.1f%% (%s), %s L of %s L",
			f.InitialPct, f.FinalPct, f.Method,
			humanize.FtoaWithDigits(f.ConsumedL, 2), humanize.FtoaWithDigits(f.TankCapacityL, 1))
		if f.RefuelSuspected {
			fmt.Fprint(w, " [refuel suspected]")
		}
		fmt.Fprintln(w)
	}
	if d.Distance != nil {
		fmt.Fprintf(w, "  Distance:    %s km (%s)\n", humanize.FtoaWithDigits(d.Distance.KM, 2), d.Distance.Column)
	}
	if d.KMPerL != nil {
		fmt.Fprintf(w, "  Efficiency:  %s km/L\n", humanize.FtoaWithDigits(*d.KMPerL, 2))
	}
}

func entryValue(e models.ReportEntry) string {
	switch {
	case e.Value != nil:
		return humanize.FtoaWithDigits(*e.Value, 2) + unitSuffix(e.Unit)
	case e.Stats != nil && e.Stats.Mean != nil:
		return "μ " + humanize.FtoaWithDigits(*e.Stats.Mean, 2) + unitSuffix(e.Unit)
	case e.Categorical != nil:
		if m := e.Categorical.Mode(); m != "" {
			return m
		}
	}
	return "-"
}

func unitSuffix(u string) string {
	if u == "" {
		return ""
	}
	return " " + u
}
