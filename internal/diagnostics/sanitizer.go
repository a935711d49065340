package diagnostics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"obd-diagnostics/internal/models"
)

var (
	missingTokens = map[string]bool{
		"":     true,
		"-":    true,
		"--":   true,
		"na":   true,
		"n/a":  true,
		"nan":  true,
		"none": true,
		"nat":  true,
		"null": true,
	}

	yesTokens = map[string]bool{"sim": true, "s": true, "yes": true, "y": true, "true": true, "verdadeiro": true}
	noTokens  = map[string]bool{"nao": true, "n": true, "no": true, "false": true, "falso": true}

	unitTail = regexp.MustCompile(`\s*[a-zA-Z°µ/]+$`)
	spaces   = regexp.MustCompile(`\s+`)
)

// ParseNumber parses one raw cell: whitespace is trimmed, a decimal comma
// becomes a point, percent signs and a trailing unit are stripped and the
// missing-value tokens are rejected. Non-finite results are rejected too.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if missingTokens[strings.ToLower(s)] {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		trimmed := unitTail.ReplaceAllString(s, "")
		if trimmed == s || trimmed == "" {
			return 0, false
		}
		if f, err = strconv.ParseFloat(trimmed, 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeLabel canonicalizes one categorical cell: trimmed, lowercased,
// mojibake repaired, accents removed and yes/no variants mapped to "yes"
// and "no". Missing-value tokens are rejected.
func NormalizeLabel(raw string) (string, bool) {
	s := models.RepairMojibake(strings.TrimSpace(raw))
	s = strings.ToLower(s)
	if stripped, _, err := transform.String(accentStripper(), s); err == nil {
		s = stripped
	}
	s = spaces.ReplaceAllString(s, " ")
	if missingTokens[s] {
		return "", false
	}
	switch {
	case yesTokens[s]:
		return "yes", true
	case noTokens[s]:
		return "no", true
	}
	return s, true
}

func accentStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// SanitizeNumeric parses a dataset column into a numeric series. Missing
// and unparsable cells are dropped and counted, never coerced to zero.
func SanitizeNumeric(ds *models.Dataset, column string) models.SanitizedSeries {
	s := models.SanitizedSeries{Column: column, Kind: models.KindNumeric}
	for i := 0; i < ds.Len(); i++ {
		raw, ok := ds.Cell(i, column)
		if !ok {
			s.Dropped++
			continue
		}
		v, ok := ParseNumber(raw)
		if !ok {
			s.Dropped++
			continue
		}
		s.Values = append(s.Values, v)
		s.Rows = append(s.Rows, i)
	}
	return s
}

// SanitizeCategorical normalizes a dataset column into labels. Labels
// outside any expected vocabulary are kept.
func SanitizeCategorical(ds *models.Dataset, column string) models.SanitizedSeries {
	s := models.SanitizedSeries{Column: column, Kind: models.KindCategorical}
	for i := 0; i < ds.Len(); i++ {
		raw, ok := ds.Cell(i, column)
		if !ok {
			s.Dropped++
			continue
		}
		l, ok := NormalizeLabel(raw)
		if !ok {
			s.Dropped++
			continue
		}
		s.Labels = append(s.Labels, l)
		s.Rows = append(s.Rows, i)
	}
	return s
}

// Sanitize dispatches on kind
func Sanitize(ds *models.Dataset, column string, kind models.Kind) models.SanitizedSeries {
	if kind == models.KindCategorical {
		return SanitizeCategorical(ds, column)
	}
	return SanitizeNumeric(ds, column)
}

// Resanitize runs an already sanitized series through the same cell rules.
// It never loses values: sanitization is idempotent.
func Resanitize(s models.SanitizedSeries) models.SanitizedSeries {
	out := models.SanitizedSeries{Column: s.Column, Kind: s.Kind, Dropped: s.Dropped}
	if s.Kind == models.KindCategorical {
		for i, l := range s.Labels {
			n, ok := NormalizeLabel(l)
			if !ok {
				out.Dropped++
				continue
			}
			out.Labels = append(out.Labels, n)
			out.Rows = append(out.Rows, rowAt(s.Rows, i))
		}
		return out
	}
	for i, v := range s.Values {
		n, ok := ParseNumber(strconv.FormatFloat(v, 'g', -1, 64))
		if !ok {
			out.Dropped++
			continue
		}
		out.Values = append(out.Values, n)
		out.Rows = append(out.Rows, rowAt(s.Rows, i))
	}
	return out
}

func rowAt(rows []int, i int) int {
	if i < len(rows) {
		return rows[i]
	}
	return i
}

// BinaryState maps a normalized label to 1 (active) or 0 (inactive).
// Unknown labels report false.
func BinaryState(label string) (int, bool) {
	switch label {
	case "yes", "on", "1", "1.0", "active", "ativo", "ligado", "aberto", "open":
		return 1, true
	case "no", "off", "0", "0.0", "inactive", "inativo", "desligado", "fechado", "closed":
		return 0, true
	}
	return 0, false
}

// SafetyState extends BinaryState with the level vocabulary of warning
// flags: a high level reads as 1, a low level as 0.
func SafetyState(label string) (int, bool) {
	if v, ok := BinaryState(label); ok {
		return v, true
	}
	switch label {
	case "alto", "high":
		return 1, true
	case "baixo", "low":
		return 0, true
	}
	return 0, false
}
