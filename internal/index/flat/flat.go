// Package flat implements exact nearest-neighbor search by scanning the
// dataset. It is the reference vector index: no partitions, so nprobes
// and refine factor change nothing about the result.
package flat

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

// Scanner is the dataset surface the index reads from. Scan must
// include the row id column.
type Scanner interface {
	Scan(ctx context.Context, projection query.Projection, filter string, limit int) (*table.Table, error)
}

// RowFilter is optionally implemented by scanners that evaluate
// predicates over in-memory tables. Post-filtered vector queries need
// it.
type RowFilter interface {
	FilterRows(ctx context.Context, t *table.Table, predicate string) ([]int, error)
}

// Index searches one vector column of a dataset.
type Index struct {
	scanner Scanner
	column  string
}

// New builds an index over the named vector column.
func New(scanner Scanner, vectorColumn string) (*Index, error) {
	if scanner == nil {
		return nil, fmt.Errorf("%w: flat index requires a dataset scanner", domain.ErrConfiguration)
	}
	if vectorColumn == "" {
		return nil, fmt.Errorf("%w: flat index requires a vector column name", domain.ErrConfiguration)
	}
	return &Index{scanner: scanner, column: vectorColumn}, nil
}

// Search scans every row, ranks by distance, and returns the top rows
// with _distance and _rowid columns. A pre-filter narrows the scan; a
// post-filter prunes ranked candidates.
func (ix *Index) Search(ctx context.Context, req query.VectorSearchRequest) (*table.Table, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrValidation)
	}
	if !req.Metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown distance metric %q", domain.ErrValidation, req.Metric)
	}

	scanFilter := ""
	if req.Prefilter && req.Filter != "" {
		scanFilter = req.Filter
	}
	scanned, err := ix.scanner.Scan(ctx, query.Projection{}, scanFilter, 0)
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}

	col, ok := scanned.Column(ix.column)
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no vector column %q", domain.ErrConfiguration, ix.column)
	}

	dist := make([]float64, scanned.NumRows())
	for i, cell := range col.Values {
		vec, ok := cell.([]float32)
		if !ok {
			return nil, fmt.Errorf("%w: cell %d of column %q is %T, want []float32",
				domain.ErrTypeMismatch, i, ix.column, cell)
		}
		if len(vec) != len(req.Vector) {
			return nil, fmt.Errorf("%w: query vector has %d dimensions, column %q has %d",
				domain.ErrValidation, len(req.Vector), ix.column, len(vec))
		}
		dist[i] = distance(req.Metric, req.Vector, vec)
	}

	order := make([]int, len(dist))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	// Candidate pool mirrors refine semantics even though the exact
	// scan cannot improve on it.
	if req.Limit > 0 {
		pool := req.Limit
		if req.RefineFactor > 1 {
			pool *= req.RefineFactor
		}
		if pool < len(order) {
			order = order[:pool]
		}
	}

	distVals := make([]any, len(order))
	for i, row := range order {
		distVals[i] = dist[row]
	}
	out, err := scanned.TakeRows(order)
	if err != nil {
		return nil, err
	}
	out, err = out.AppendColumn(table.ColDistance, distVals)
	if err != nil {
		return nil, err
	}

	if !req.Prefilter && req.Filter != "" {
		rf, ok := ix.scanner.(RowFilter)
		if !ok {
			return nil, fmt.Errorf("%w: dataset engine cannot post-filter vector results",
				domain.ErrConfiguration)
		}
		keep, err := rf.FilterRows(ctx, out, req.Filter)
		if err != nil {
			return nil, err
		}
		out, err = out.TakeRows(keep)
		if err != nil {
			return nil, err
		}
	}

	if req.Limit > 0 {
		out = out.Slice(req.Limit)
	}
	return project(out, req.Columns)
}

// project keeps the requested columns plus _distance and _rowid.
func project(t *table.Table, p query.Projection) (*table.Table, error) {
	if p.IsEmpty() {
		return t, nil
	}
	cols := make([]table.Column, 0, len(p.Entries())+2)
	for _, e := range p.Entries() {
		src := e.Expr
		if src == "" {
			src = e.Name
		}
		c, ok := t.Column(src)
		if !ok {
			return nil, fmt.Errorf("%w: projection references unknown column %q",
				domain.ErrValidation, src)
		}
		cols = append(cols, table.Column{Name: e.Name, Values: c.Values})
	}
	for _, name := range []string{table.ColDistance, table.ColRowID} {
		if c, ok := t.Column(name); ok {
			cols = append(cols, c)
		}
	}
	return table.New(cols...)
}

// distance converts the metric to a distance where smaller is closer.
// l2 is squared euclidean, cosine is 1 minus cosine similarity, dot is
// the negated inner product.
func distance(m query.Metric, a, b []float32) float64 {
	switch m {
	case query.MetricCosine:
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	case query.MetricDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum
	}
}
