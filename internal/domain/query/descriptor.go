// Package query holds the immutable query descriptor handed to the
// executors. Builders assemble a Params value and validate it once via
// New; the resulting Descriptor is never mutated afterwards.
package query

import (
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
)

// Metric is a vector distance metric.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// IsValid reports whether m is a known metric.
func (m Metric) IsValid() bool {
	switch m {
	case MetricL2, MetricCosine, MetricDot:
		return true
	}
	return false
}

// Defaults applied by New when a parameter is left zero.
const (
	DefaultLimit   = 10
	DefaultNProbes = 20
)

// Params carries the raw builder state validated by New.
type Params struct {
	Vectors      [][]float32
	Filter       string
	Prefilter    bool
	Limit        int // <= 0 means unbounded
	Metric       Metric
	Columns      Projection
	NProbes      int
	RefineFactor int // 0 means unset
	WithRowID    bool
	VectorColumn string
}

// Descriptor is a validated, immutable description of one query execution.
type Descriptor struct {
	vectors      [][]float32
	filter       string
	prefilter    bool
	limit        int
	metric       Metric
	columns      Projection
	nprobes      int
	refineFactor int
	withRowID    bool
	vectorColumn string
}

// New validates and normalizes query parameters.
// Defaults: metric=l2, nprobes=20. Limit <= 0 means unbounded.
func New(p Params) (Descriptor, error) {
	if p.Metric == "" {
		p.Metric = MetricL2
	}
	if !p.Metric.IsValid() {
		return Descriptor{}, fmt.Errorf("%w: unknown metric %q", domain.ErrValidation, p.Metric)
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.NProbes <= 0 {
		p.NProbes = DefaultNProbes
	}
	if p.RefineFactor < 0 {
		return Descriptor{}, fmt.Errorf("%w: refine factor must be >= 1", domain.ErrValidation)
	}
	for i, v := range p.Vectors {
		if len(v) == 0 {
			return Descriptor{}, fmt.Errorf("%w: query vector %d is empty", domain.ErrValidation, i)
		}
		if len(v) != len(p.Vectors[0]) {
			return Descriptor{}, fmt.Errorf("%w: query vectors have mixed dimensions", domain.ErrValidation)
		}
	}
	return Descriptor{
		vectors:      p.Vectors,
		filter:       p.Filter,
		prefilter:    p.Prefilter,
		limit:        p.Limit,
		metric:       p.Metric,
		columns:      p.Columns,
		nprobes:      p.NProbes,
		refineFactor: p.RefineFactor,
		withRowID:    p.WithRowID,
		vectorColumn: p.VectorColumn,
	}, nil
}

// Vectors returns the query vectors (nil for non-vector queries).
func (d Descriptor) Vectors() [][]float32 { return d.vectors }

// Filter returns the predicate string passed through to storage.
func (d Descriptor) Filter() string { return d.filter }

// Prefilter reports whether the predicate applies before similarity search.
func (d Descriptor) Prefilter() bool { return d.prefilter }

// Limit returns the result cap. Zero means unbounded.
func (d Descriptor) Limit() int { return d.limit }

// Metric returns the distance metric.
func (d Descriptor) Metric() Metric { return d.metric }

// Columns returns the output projection.
func (d Descriptor) Columns() Projection { return d.columns }

// NProbes returns the number of index partitions to probe.
func (d Descriptor) NProbes() int { return d.nprobes }

// RefineFactor returns the oversampling multiplier, 0 when unset.
func (d Descriptor) RefineFactor() int { return d.refineFactor }

// WithRowID reports whether the row-id column is kept in the output.
func (d Descriptor) WithRowID() bool { return d.withRowID }

// VectorColumn returns the vector column name to search against.
func (d Descriptor) VectorColumn() string { return d.vectorColumn }

// WithVectors returns a copy of d carrying the given query vectors.
// Used by the resolver once a text query has been embedded.
func (d Descriptor) WithVectors(vectors [][]float32) Descriptor {
	d.vectors = vectors
	return d
}

// RequireRowID returns a copy of d that always fetches row ids. The hybrid
// orchestrator forces this on both sub-queries since the row id is the
// join key; the caller's preference is honored at finalize time.
func (d Descriptor) RequireRowID() Descriptor {
	d.withRowID = true
	return d
}
