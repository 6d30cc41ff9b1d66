// Package table holds the in-memory tabular results that entities are
// materialized into: an ordered column list and rows of values, with nil as null.
package table

import (
	"fmt"
)

// Table is a materialized entity result. Rows are positional and follow Columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New creates a table. Rows shorter than columns are padded with nulls.
func New(columns []string, rows [][]any) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		row := make([]any, len(columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromRecords builds a table from column-keyed records; absent keys become nulls.
func FromRecords(columns []string, records []map[string]any) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, 0, len(records)),
	}
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// MissingColumns returns the names not present in the table, in the given order.
func (t *Table) MissingColumns(names []string) []string {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// ColumnIndexes resolves names to positions; every name must exist.
func (t *Table) ColumnIndexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = t.ColumnIndex(n)
		if idx[i] < 0 {
			return nil, fmt.Errorf("column %q not found", n)
		}
	}
	return idx, nil
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]any, error) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		values[r] = row[i]
	}
	return values, nil
}

// Record returns row i keyed by column name.
func (t *Table) Record(i int) map[string]any {
	rec := make(map[string]any, len(t.Columns))
	for c, name := range t.Columns {
		rec[name] = t.Rows[i][c]
	}
	return rec
}

// Records returns all rows keyed by column name.
func (t *Table) Records() []map[string]any {
	result := make([]map[string]any, len(t.Rows))
	for i := range t.Rows {
		result[i] = t.Record(i)
	}
	return result
}

// Clone returns a deep copy of the table structure (values are shared).
func (t *Table) Clone() *Table {
	return New(t.Columns, t.Rows)
}

// Head returns a copy holding at most n rows. n <= 0 returns all rows.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.Rows) {
		return t.Clone()
	}
	return New(t.Columns, t.Rows[:n])
}

// Select returns a new table with only the named columns, in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	idx, err := t.ColumnIndexes(names)
	if err != nil {
		return nil, err
	}
	out := &Table{
		Columns: append([]string(nil), names...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for r, row := range t.Rows {
		newRow := make([]any, len(idx))
		for i, c := range idx {
			newRow[i] = row[c]
		}
		out.Rows[r] = newRow
	}
	return out, nil
}

// SetColumn replaces the named column's values, or appends a new column.
// values must have one entry per row.
func (t *Table) SetColumn(name string, values []any) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q: got %d values for %d rows", name, len(values), len(t.Rows))
	}
	if i := t.ColumnIndex(name); i >= 0 {
		for r := range t.Rows {
			t.Rows[r][i] = values[r]
		}
		return nil
	}
	t.Columns = append(t.Columns, name)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], values[r])
	}
	return nil
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, append([]any(nil), row...))
		}
	}
	return out
}
