// Package record holds the sparse tabular collection produced by page parsers
// and consumed by stores.
package record

import (
	"encoding/json"
	"fmt"
)

// Cell is one column value of a row. A nil Value is an explicit null.
type Cell struct {
	Column string
	Value  *string
}

// Text builds a non-null cell.
func Text(column, value string) Cell {
	return Cell{Column: column, Value: &value}
}

// Null builds a null cell. The column still counts towards the table schema.
func Null(column string) Cell {
	return Cell{Column: column}
}

// Opt builds a cell that is null when value is nil.
func Opt(column string, value *string) Cell {
	if value == nil {
		return Null(column)
	}
	v := *value
	return Cell{Column: column, Value: &v}
}

// Row is an ordered list of cells where each column appears at most once.
type Row struct {
	cells []Cell
}

// NewRow builds a row; later cells override earlier cells with the same column.
func NewRow(cells ...Cell) Row {
	var r Row
	for _, c := range cells {
		r.Set(c)
	}
	return r
}

// Set replaces the cell for c.Column in place, or appends it.
func (r *Row) Set(c Cell) {
	for i := range r.cells {
		if r.cells[i].Column == c.Column {
			r.cells[i].Value = c.Value
			return
		}
	}
	r.cells = append(r.cells, c)
}

// Get returns the value for column and whether the column is present at all.
func (r Row) Get(column string) (*string, bool) {
	for _, c := range r.cells {
		if c.Column == column {
			return c.Value, true
		}
	}
	return nil, false
}

// Cells returns a copy of the row's cells in order.
func (r Row) Cells() []Cell {
	return append([]Cell(nil), r.cells...)
}

// Len reports the number of columns in the row.
func (r Row) Len() int {
	return len(r.cells)
}

// Table is an ordered, sparse collection of rows. Its column set is the union
// of every column any row ever produced, in first-seen order; cells a row does
// not carry read as null.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: map[string]int{}}
}

// Append adds a copy of r and extends the column set.
func (t *Table) Append(r Row) {
	if t.index == nil {
		t.index = map[string]int{}
	}
	for _, c := range r.cells {
		if _, ok := t.index[c.Column]; !ok {
			t.index[c.Column] = len(t.columns)
			t.columns = append(t.columns, c.Column)
		}
	}
	t.rows = append(t.rows, Row{cells: r.Cells()})
}

// Columns returns the column set in first-seen order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.columns...)
}

// Rows returns copies of the rows in insertion order.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = Row{cells: r.Cells()}
	}
	return out
}

// Len reports the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Value returns the cell at row i for column, nil when null or absent.
func (t *Table) Value(i int, column string) *string {
	if t == nil || i < 0 || i >= len(t.rows) {
		return nil
	}
	v, _ := t.rows[i].Get(column)
	return v
}

// Values returns row i aligned with Columns().
func (t *Table) Values(i int) []*string {
	if t == nil || i < 0 || i >= len(t.rows) {
		return nil
	}
	out := make([]*string, len(t.columns))
	for _, c := range t.rows[i].cells {
		out[t.index[c.Column]] = c.Value
	}
	return out
}

// MarshalJSON encodes the table as a list of objects carrying every column.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := make([]map[string]*string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		obj := make(map[string]*string, len(t.columns))
		for j, v := range t.Values(i) {
			obj[t.columns[j]] = v
		}
		out = append(out, obj)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal table: %w", err)
	}
	return data, nil
}
