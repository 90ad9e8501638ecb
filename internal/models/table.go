package models

import (
	"fmt"
	"strings"
)

// Table is a tabular record set: ordered column names and ordered rows of
// string cells. Both reference tables and parser output use it.
type Table struct {
	Columns []string   `json:"columns" yaml:"columns"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// NewTable returns a table with copies of the given columns and rows.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, append([]string(nil), r...))
	}
	return t
}

// Validate checks that the table has at least one column, that column
// names are non-blank and unique (case-insensitively), and that every row
// has exactly one cell per column.
func (t *Table) Validate() error {
	if t == nil {
		return fmt.Errorf("table is nil")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}
	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			return fmt.Errorf("column %d has an empty name", i+1)
		}
		if seen[key] {
			return fmt.Errorf("column %q appears more than once", c)
		}
		seen[key] = true
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, expected %d", i+1, len(r), len(t.Columns))
		}
	}
	return nil
}

// ColumnIndex returns the position of the named column (case-insensitive,
// surrounding whitespace ignored), or -1.
func (t *Table) ColumnIndex(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, c := range t.Columns {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i
		}
	}
	return -1
}

// Head returns a copy of the table truncated to the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return NewTable(t.Columns, t.Rows[:n])
}
