package domain

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Timestamp layouts used across formats.
const (
	// OutputLayout is the dateTime format of every produced table (DD/MM/YYYY HH:MM).
	OutputLayout = "02/01/2006 15:04"
	// WindowLayout formats the irradiance time window sent to the weather service.
	WindowLayout = "2006-01-02 15:04"
	// ReportLayout is the combined DATE TIME of positional reports (DDMMYY HHMM).
	ReportLayout = "020106 1504"
)

// Table is an ordered set of named columns with string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	return slices.Index(t.Columns, name)
}

// DropColumns removes the named columns that are present and ignores the rest.
func (t *Table) DropColumns(names ...string) {
	keep := make([]int, 0, len(t.Columns))
	for i, c := range t.Columns {
		if !slices.Contains(names, c) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.Columns) {
		return
	}

	t.Columns = pick(t.Columns, keep)
	for i, row := range t.Rows {
		t.Rows[i] = pick(row, keep)
	}
}

// RenameColumns renames columns found in m; others keep their name.
func (t *Table) RenameColumns(m map[string]string) {
	for i, c := range t.Columns {
		if renamed, ok := m[c]; ok {
			t.Columns[i] = renamed
		}
	}
}

// WriteCSV writes the header followed by every row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Encode renders the table as CSV bytes.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pick(row []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		if j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

// formatFloat renders v without trailing zeros; nil is an empty cell.
func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
