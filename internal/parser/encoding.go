package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Detected text encodings
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF8BOM     = "utf-8-sig"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText returns the export as UTF-8 text together with the detected
// encoding. Byte order marks win; otherwise valid UTF-8 is taken as is and
// anything else is read as Windows-1252, the usual scanner-tool export charset.
func decodeText(data []byte) (string, string, error) {
	var (
		dec  *encoding.Decoder
		name string
	)
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), EncodingUTF8BOM, nil
	case bytes.HasPrefix(data, bomUTF16LE):
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		name = EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		name = EncodingUTF16BE
	case utf8.Valid(data):
		return string(data), EncodingUTF8, nil
	default:
		dec = charmap.Windows1252.NewDecoder()
		name = EncodingWindows1252
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return "", name, fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), name, nil
}

// delimiter candidates in preference order for ties
var delimiters = []rune{';', ',', '\t', '|'}

const sniffLines = 20

// DetectDelimiter picks the candidate that splits the header into the most
// fields while keeping the field count consistent over the first lines.
// Delimiters inside double quotes are ignored. Comma is the fallback.
func DetectDelimiter(text string) rune {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == sniffLines {
			break
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best := ','
	bestConsistent, bestFields := -1, 1
	for _, d := range delimiters {
		fields := countFields(lines[0], d)
		if fields < 2 {
			continue
		}
		consistent := 0
		for _, l := range lines[1:] {
			if countFields(l, d) == fields {
				consistent++
			}
		}
		if consistent > bestConsistent || (consistent == bestConsistent && fields > bestFields) {
			best, bestConsistent, bestFields = d, consistent, fields
		}
	}
	return best
}

func countFields(line string, delim rune) int {
	n := 1
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			n++
		}
	}
	return n
}
