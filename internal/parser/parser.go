package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"obd-diagnostics/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported trip export formats
const (
	FormatAuto = ""
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Parser loads trip exports into a Dataset
type Parser struct {
	format string
	sheet  string
	logger *zap.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithSheet selects the XLSX worksheet; the first sheet is used otherwise
func WithSheet(name string) Option {
	return func(p *Parser) { p.sheet = name }
}

// WithLogger attaches a logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a new parser with the specified format. An empty
// format detects it from the file extension and content.
func NewParser(format string, opts ...Option) *Parser {
	p := &Parser{format: strings.ToLower(strings.TrimSpace(format)), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses a trip export
func (p *Parser) ParseFile(filename string) (*models.Dataset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return p.Parse(filepath.Base(filename), data)
}

// Parse parses an in-memory trip export. name is only used for format
// detection and for the report's source info.
func (p *Parser) Parse(name string, data []byte) (*models.Dataset, error) {
	format := p.format
	if format == FormatAuto {
		format = DetectFormat(name, data)
	}

	var (
		ds  *models.Dataset
		err error
	)
	switch format {
	case FormatCSV:
		ds, err = p.parseCSV(data)
	case FormatXLSX:
		ds, err = p.parseXLSX(data)
	case FormatJSON:
		ds, err = p.parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	ds.Source.Name = name
	ds.Source.Format = format
	ds.Source.Fingerprint = Fingerprint(data)

	p.logger.Debug("dataset loaded",
		zap.String("source", name),
		zap.String("format", format),
		zap.String("encoding", ds.Source.Encoding),
		zap.String("delimiter", ds.Source.Delimiter),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.Len()),
		zap.Int("empty_rows_dropped", ds.Source.EmptyRowsDropped))
	return ds, nil
}

// DetectFormat picks a format from the extension, falling back to content sniffing
func DetectFormat(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".json", ".ndjson":
		return FormatJSON
	case ".csv", ".txt", ".tsv":
		return FormatCSV
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatXLSX
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// Fingerprint returns the xxh3 hash of the raw export
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// parseCSV decodes the text and parses delimited records
func (p *Parser) parseCSV(data []byte) (*models.Dataset, error) {
	text, encoding, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	delim := DetectDelimiter(text)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.LazyQuotes = true

	var records [][]string
	lineNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("error at line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}

	ds, err := buildDataset(records)
	if err != nil {
		return nil, err
	}
	ds.Source.Encoding = encoding
	ds.Source.Delimiter = string(delim)
	return ds, nil
}

// parseXLSX reads the first (or selected) worksheet
func (p *Parser) parseXLSX(data []byte) (*models.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := p.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	ds, err := buildDataset(records)
	if err != nil {
		return nil, err
	}
	ds.Source.Encoding = "utf-8"
	return ds, nil
}

// parseJSON accepts an array of objects or newline-delimited objects
func (p *Parser) parseJSON(data []byte) (*models.Dataset, error) {
	var objects []map[string]interface{}
	if err := json.Unmarshal(data, &objects); err != nil {
		objects, err = parseJSONLines(data)
		if err != nil {
			return nil, err
		}
	}

	var columns []string
	seen := make(map[string]bool)
	rows := make([]models.Row, 0, len(objects))
	dropped := 0
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(models.Row, len(obj))
		blank := true
		for _, k := range keys {
			name := strings.TrimSpace(k)
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
			v, ok := jsonCell(obj[k])
			if !ok {
				continue
			}
			row[name] = v
			if strings.TrimSpace(v) != "" {
				blank = false
			}
		}
		if blank {
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns found")
	}
	ds := models.NewDataset(columns, rows)
	ds.Source.RowsRead = len(objects)
	ds.Source.EmptyRowsDropped = dropped
	ds.Source.Encoding = "utf-8"
	return ds, nil
}

// parseJSONLines parses newline-delimited JSON
func parseJSONLines(data []byte) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		results = append(results, obj)
	}
	return results, scanner.Err()
}

func jsonCell(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// buildDataset turns header + records into a Dataset, dropping fully empty rows
func buildDataset(records [][]string) (*models.Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("failed to read header: empty file")
	}
	header := normalizeHeader(records[0])
	if len(header) == 0 {
		return nil, fmt.Errorf("failed to read header: no columns")
	}

	rows := make([]models.Row, 0, len(records)-1)
	dropped := 0
	for _, record := range records[1:] {
		if blankRecord(record) {
			dropped++
			continue
		}
		row := make(models.Row, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = record[i]
			}
		}
		rows = append(rows, row)
	}

	ds := models.NewDataset(header, rows)
	ds.Source.RowsRead = len(records) - 1
	ds.Source.EmptyRowsDropped = dropped
	return ds, nil
}

// normalizeHeader trims names, names blank headers and suffixes duplicates
// with .1, .2 so every column stays addressable.
func normalizeHeader(raw []string) []string {
	// trailing empty header cells come from trailing delimiters
	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}
	header := make([]string, end)
	seen := make(map[string]int, end)
	for i := 0; i < end; i++ {
		name := strings.TrimSpace(strings.TrimPrefix(raw[i], "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		header[i] = name
	}
	return header
}

func blankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
