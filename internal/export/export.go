// Package export writes diagnostic reports and sanitized trip tables to disk.
package export

import (
	"fmt"
	"io"
	"math"
	"os"

	jsoniter "github.com/json-iterator/go"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"obd-diagnostics/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON encodes v as indented JSON
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReportFile writes the report as indented JSON to path
func WriteReportFile(path string, r *models.DiagnosticReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	return f.Close()
}

// seriesRow is the long layout of a sanitized trip: one row per
// (dataset row, parameter). Dropped cells keep a NaN value and valid=false.
type seriesRow struct {
	RowIndex  int64   `parquet:"name=row_index, type=INT64"`
	Parameter string  `parquet:"name=parameter, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Value     float64 `parquet:"name=value, type=DOUBLE"`
	Valid     bool    `parquet:"name=valid, type=BOOLEAN"`
}

// entryRow flattens one report entry for tabular tools
type entryRow struct {
	Name        string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Group       string  `parquet:"name=group, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Column      string  `parquet:"name=column, type=BYTE_ARRAY, convertedtype=UTF8"`
	Verdict     string  `parquet:"name=verdict, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Problem     string  `parquet:"name=problem, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Samples     int64   `parquet:"name=samples, type=INT64"`
	Mean        float64 `parquet:"name=mean, type=DOUBLE"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
	InsidePct   float64 `parquet:"name=inside_pct, type=DOUBLE"`
	Derived     bool    `parquet:"name=derived, type=BOOLEAN"`
	Explanation string  `parquet:"name=explanation, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func seriesRows(series []models.SanitizedSeries, rows int) []seriesRow {
	byRow := make([]map[int]float64, len(series))
	for i, s := range series {
		m := make(map[int]float64, len(s.Values))
		for j, v := range s.Values {
			if j < len(s.Rows) {
				m[s.Rows[j]] = v
			}
		}
		byRow[i] = m
	}

	out := make([]seriesRow, 0, rows*len(series))
	for r := 0; r < rows; r++ {
		for i, s := range series {
			v, ok := byRow[i][r]
			if !ok {
				v = math.NaN()
			}
			out = append(out, seriesRow{
				RowIndex:  int64(r),
				Parameter: s.Column,
				Value:     v,
				Valid:     ok,
			})
		}
	}
	return out
}

func entryRows(r *models.DiagnosticReport) []entryRow {
	out := make([]entryRow, 0, len(r.Entries))
	for _, e := range r.Entries {
		row := entryRow{
			Name:        e.Name,
			Group:       e.Group,
			Column:      e.Column,
			Verdict:     string(e.Verdict),
			Problem:     string(e.Problem),
			Mean:        math.NaN(),
			Value:       math.NaN(),
			InsidePct:   math.NaN(),
			Derived:     e.Derived,
			Explanation: e.Explanation,
		}
		if e.Stats != nil {
			row.Samples = int64(e.Stats.Count)
			if e.Stats.Mean != nil {
				row.Mean = *e.Stats.Mean
			}
		} else if e.Categorical != nil {
			row.Samples = int64(e.Categorical.Count)
		}
		if e.Value != nil {
			row.Value = *e.Value
		}
		if e.InRange != nil {
			row.InsidePct = e.InRange.Inside
		}
		out = append(out, row)
	}
	return out
}

// MarshalSeriesParquet encodes sanitized numeric series aligned on the
// dataset's row positions.
func MarshalSeriesParquet(series []models.SanitizedSeries, rows int) ([]byte, error) {
	return marshalParquet(new(seriesRow), func(write func(interface{}) error) error {
		for _, row := range seriesRows(series, rows) {
			if err := write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarshalEntriesParquet encodes one row per report entry
func MarshalEntriesParquet(r *models.DiagnosticReport) ([]byte, error) {
	return marshalParquet(new(entryRow), func(write func(interface{}) error) error {
		for _, row := range entryRows(r) {
			if err := write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func marshalParquet(schema interface{}, fill func(func(interface{}) error) error) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	if err := fill(pw.Write); err != nil {
		_ = pw.WriteStop()
		return nil, err
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteParquetFile writes encoded parquet bytes to path
func WriteParquetFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
