package models

// Row is one sample of a trip export keyed by raw column header.
// A header missing from the map is a missing cell.
type Row map[string]string

// SourceInfo describes where a dataset came from and how it was decoded
type SourceInfo struct {
	Name             string `json:"name"`
	Format           string `json:"format"`
	Delimiter        string `json:"delimiter,omitempty"`
	Encoding         string `json:"encoding,omitempty"`
	Fingerprint      string `json:"fingerprint,omitempty"`
	RowsRead         int    `json:"rows_read"`
	EmptyRowsDropped int    `json:"empty_rows_dropped"`
}

// Dataset is an ordered trip table. Row order is the temporal order of the trip.
type Dataset struct {
	Columns []string
	Rows    []Row
	Source  SourceInfo

	index map[string]int
}

// NewDataset creates a dataset over the given header and rows
func NewDataset(columns []string, rows []Row) *Dataset {
	ds := &Dataset{Columns: columns, Rows: rows}
	ds.reindex()
	return ds
}

func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		if _, ok := d.index[c]; !ok {
			d.index[c] = i
		}
	}
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HasColumn reports whether the header contains exactly this name
func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	if d.index == nil {
		d.reindex()
	}
	_, ok := d.index[name]
	return ok
}

// Cell returns the raw value of a cell and whether it is present
func (d *Dataset) Cell(row int, column string) (string, bool) {
	if d == nil || row < 0 || row >= len(d.Rows) {
		return "", false
	}
	v, ok := d.Rows[row][column]
	return v, ok
}
