package query

import (
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
)

// Entry is one projected output column: a name and the SQL expression
// producing it. For plain column selection the expression equals the name.
type Entry struct {
	Name string
	Expr string
}

// Projection is an ordered, unique-keyed column projection. The zero value
// selects all columns.
type Projection struct {
	entries []Entry
}

// NewProjection builds a plain column-name projection.
func NewProjection(columns []string) (Projection, error) {
	entries := make([]Entry, len(columns))
	for i, c := range columns {
		entries[i] = Entry{Name: c, Expr: c}
	}
	return NewProjectionExprs(entries)
}

// NewProjectionExprs builds a projection from output-name→expression
// entries. Order is preserved; names must be unique and non-empty.
func NewProjectionExprs(entries []Entry) (Projection, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return Projection{}, fmt.Errorf("%w: projection entry has no name", domain.ErrValidation)
		}
		if seen[e.Name] {
			return Projection{}, fmt.Errorf("%w: duplicate projection name %q", domain.ErrValidation, e.Name)
		}
		seen[e.Name] = true
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Projection{entries: cp}, nil
}

// IsEmpty reports whether the projection selects all columns.
func (p Projection) IsEmpty() bool { return len(p.entries) == 0 }

// Entries returns the projection entries in order.
func (p Projection) Entries() []Entry {
	cp := make([]Entry, len(p.entries))
	copy(cp, p.entries)
	return cp
}

// Names returns the output column names in order.
func (p Projection) Names() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.Name
	}
	return names
}
