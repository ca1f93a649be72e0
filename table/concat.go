package table

import (
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
)

// Concat vertically stacks tables with identical column sets in order.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return Empty(), nil
	}
	first := tables[0]
	cols := make([]Column, first.NumCols())
	for i, c := range first.cols {
		vals := make([]any, 0, first.NumRows())
		cols[i] = Column{Name: c.Name, Values: vals}
	}
	for _, t := range tables {
		if t.NumCols() != first.NumCols() {
			return nil, fmt.Errorf("%w: concat of mismatched schemas", domain.ErrValidation)
		}
		for i, c := range t.cols {
			if c.Name != cols[i].Name {
				return nil, fmt.Errorf("%w: concat column %q vs %q", domain.ErrValidation, c.Name, cols[i].Name)
			}
			cols[i].Values = append(cols[i].Values, c.Values...)
		}
	}
	return &Table{cols: cols}, nil
}
