// Package table holds the columnar result table passed between query
// executors, the score normalizer, and rerankers. Tables are value-like:
// every transform returns a new Table and leaves the receiver untouched,
// so concurrent executions never share mutable state. Value slices may be
// shared between tables and must be treated as read-only.
package table

import (
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
)

// Reserved column names.
const (
	// ColDistance holds vector search distances, lower is better.
	ColDistance = "_distance"
	// ColScore holds full-text relevance scores, higher is better.
	ColScore = "score"
	// ColRowID holds the stable uint64 row identifier used as the hybrid
	// join key.
	ColRowID = "_rowid"
	// ColRelevance holds the merged score produced by a reranker.
	ColRelevance = "_relevance_score"
)

// Column is a named, ordered sequence of cell values.
type Column struct {
	Name   string
	Values []any
}

// Table is an ordered set of equal-length columns.
type Table struct {
	cols []Column
}

// New builds a table from columns. All columns must have the same length
// and unique names.
func New(cols ...Column) (*Table, error) {
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", domain.ErrValidation, i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate column %q", domain.ErrValidation, c.Name)
		}
		seen[c.Name] = true
		if len(c.Values) != len(cols[0].Values) {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d",
				domain.ErrValidation, c.Name, len(c.Values), len(cols[0].Values))
		}
	}
	return &Table{cols: cols}, nil
}

// Empty returns a zero-row table with the given column names.
func Empty(names ...string) *Table {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return &Table{cols: cols}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnNames returns column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index(name)
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index(name)
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// Value returns the cell at (column, row).
func (t *Table) Value(name string, row int) (any, bool) {
	i, ok := t.index(name)
	if !ok || row < 0 || row >= t.NumRows() {
		return nil, false
	}
	return t.cols[i].Values[row], true
}

// Row materializes a single row as a name→value map.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Float64s returns the named column converted to float64.
// Accepts float64, float32, and integer cells.
func (t *Table) Float64s(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", domain.ErrValidation, name)
	}
	out := make([]float64, len(c.Values))
	for i, v := range c.Values {
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// RowIDs returns the _rowid column as uint64 values.
func (t *Table) RowIDs() ([]uint64, error) {
	c, ok := t.Column(ColRowID)
	if !ok {
		return nil, fmt.Errorf("%w: no %s column", domain.ErrValidation, ColRowID)
	}
	out := make([]uint64, len(c.Values))
	for i, v := range c.Values {
		id, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d is %T, want uint64",
				domain.ErrTypeMismatch, ColRowID, i, v)
		}
		out[i] = id
	}
	return out, nil
}

// SetColumn returns a new table with the named column's values replaced.
// All other columns, the row count, and the order are unchanged.
func (t *Table) SetColumn(name string, values []any) (*Table, error) {
	i, ok := t.index(name)
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", domain.ErrValidation, name)
	}
	if len(values) != t.NumRows() {
		return nil, fmt.Errorf("%w: %d values for %d rows", domain.ErrValidation, len(values), t.NumRows())
	}
	cols := make([]Column, len(t.cols))
	copy(cols, t.cols)
	cols[i] = Column{Name: name, Values: values}
	return &Table{cols: cols}, nil
}

// AppendColumn returns a new table with an extra column appended.
func (t *Table) AppendColumn(name string, values []any) (*Table, error) {
	if _, ok := t.index(name); ok {
		return nil, fmt.Errorf("%w: column %q already exists", domain.ErrValidation, name)
	}
	if len(t.cols) > 0 && len(values) != t.NumRows() {
		return nil, fmt.Errorf("%w: %d values for %d rows", domain.ErrValidation, len(values), t.NumRows())
	}
	cols := make([]Column, len(t.cols), len(t.cols)+1)
	copy(cols, t.cols)
	cols = append(cols, Column{Name: name, Values: values})
	return &Table{cols: cols}, nil
}

// Drop returns a new table without the named columns. Missing names are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	cols := make([]Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	return &Table{cols: cols}
}

// Slice returns a new table with at most n leading rows. A negative n
// returns the table unchanged.
func (t *Table) Slice(n int) *Table {
	if n < 0 || n >= t.NumRows() {
		return t
	}
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = Column{Name: c.Name, Values: c.Values[:n]}
	}
	return &Table{cols: cols}
}

// TakeRows returns a new table with rows reordered per indices.
func (t *Table) TakeRows(indices []int) (*Table, error) {
	for _, ix := range indices {
		if ix < 0 || ix >= t.NumRows() {
			return nil, fmt.Errorf("%w: row index %d out of range", domain.ErrValidation, ix)
		}
	}
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		vals := make([]any, len(indices))
		for j, ix := range indices {
			vals[j] = c.Values[ix]
		}
		cols[i] = Column{Name: c.Name, Values: vals}
	}
	return &Table{cols: cols}, nil
}

func (t *Table) index(name string) (int, bool) {
	for i, c := range t.cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", domain.ErrTypeMismatch, v)
	}
}
