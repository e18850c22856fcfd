package execution

import (
	"encoding/json"
	"fmt"
	"math"
)

// Dataset is a table with named columns. Cells hold JSON-compatible values.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Shape returns the number of rows and columns.
func (d *Dataset) Shape() (rows, cols int) {
	if d == nil {
		return 0, 0
	}
	return len(d.Rows), len(d.Columns)
}

// Validate checks that every row has one cell per column and that column
// names are unique.
func (d *Dataset) Validate() error {
	if d == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(d.Columns))
	for _, col := range d.Columns {
		if _, dup := seen[col]; dup {
			return fmt.Errorf("dataset: duplicate column %q", col)
		}
		seen[col] = struct{}{}
	}

	for idx, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("dataset: row %d has %d cells, want %d", idx, len(row), len(d.Columns))
		}
	}
	return nil
}

// SampleRows is how many leading rows a DatasetSummary carries.
const SampleRows = 10

// DatasetSummary describes a dataset before it is bound into a script.
type DatasetSummary struct {
	Rows       int               `json:"rows"`
	Columns    []string          `json:"columns"`
	Types      map[string]string `json:"dtypes"`
	NullCounts map[string]int    `json:"null_counts"`
	Sample     [][]any           `json:"sample"`
}

// Summary reports the shape, per-column cell types and null counts, and the
// first SampleRows rows. Column types are int64, float64, bool, object, or
// empty when every cell is null.
func (d *Dataset) Summary() *DatasetSummary {
	if d == nil {
		return nil
	}

	s := &DatasetSummary{
		Rows:       len(d.Rows),
		Columns:    append([]string(nil), d.Columns...),
		Types:      make(map[string]string, len(d.Columns)),
		NullCounts: make(map[string]int, len(d.Columns)),
		Sample:     d.Rows[:min(len(d.Rows), SampleRows)],
	}
	for col, name := range d.Columns {
		kind := ""
		nulls := 0
		for _, row := range d.Rows {
			cell := cellType(row[col])
			if cell == "" {
				nulls++
				continue
			}
			kind = mergeType(kind, cell)
		}
		if kind == "" {
			kind = "empty"
		}
		s.Types[name] = kind
		s.NullCounts[name] = nulls
	}
	return s
}

func cellType(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int64"
	case float32:
		return floatType(float64(v))
	case float64:
		return floatType(v)
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "int64"
		}
		return "float64"
	default:
		return "object"
	}
}

// floatType treats integral floats as integers, since JSON decoding yields
// float64 for every number.
func floatType(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return "int64"
	}
	return "float64"
}

func mergeType(have, cell string) string {
	switch {
	case have == "" || have == cell:
		return cell
	case have == "int64" && cell == "float64", have == "float64" && cell == "int64":
		return "float64"
	default:
		return "object"
	}
}
