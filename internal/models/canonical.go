package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	unitSuffix = regexp.MustCompile(`\([^)]*\)`)
	nonAlnum   = regexp.MustCompile(`[^A-Z0-9]+`)

	// lead characters of UTF-8 text mis-decoded as Windows-1252 or Mac Roman
	mojibakeMarkers  = "ÃÂ√¬"
	mojibakeCharsets = []*charmap.Charmap{charmap.Windows1252, charmap.Macintosh}
)

// RepairMojibake undoes UTF-8 text that was decoded as Windows-1252 or Mac
// Roman, possibly more than once: "Â°C" and "√Ç¬∞C" both become "°C".
// Text that does not round-trip to valid UTF-8 is returned unchanged.
func RepairMojibake(s string) string {
	for round := 0; round < 3 && strings.ContainsAny(s, mojibakeMarkers); round++ {
		repaired := false
		for _, cm := range mojibakeCharsets {
			raw, err := cm.NewEncoder().String(s)
			if err != nil || raw == s || !utf8.ValidString(raw) {
				continue
			}
			s = raw
			repaired = true
			break
		}
		if !repaired {
			break
		}
	}
	return s
}

// CanonicalKey normalizes a column header or a reference-table key so both
// sides agree: unit suffixes in parentheses, percent and degree signs and
// ratio notation are dropped, dots become underscores.
//
//	"FUELLVL(%)"     -> "FUELLVL"
//	"MAP.OBDII(kPa)" -> "MAP_OBDII"
//	"ECT(Â°C)"       -> "ECT"
//	"longft1_pct"    -> "LONGFT1"
//	"LOAD_OBDIIpct"  -> "LOAD_OBDII"
func CanonicalKey(name string) string {
	s := RepairMojibake(strings.TrimSpace(name))
	s = unitSuffix.ReplaceAllString(s, "")
	s = strings.ToUpper(s)
	s = strings.NewReplacer("%", "", "°", "", ":1", "", ":", "").Replace(s)
	s = nonAlnum.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	// "(%)" is also written as a "pct" or "_pct" tail
	if len(s) > len("PCT") && strings.HasSuffix(s, "PCT") {
		s = strings.TrimRight(strings.TrimSuffix(s, "PCT"), "_")
	}
	return s
}
