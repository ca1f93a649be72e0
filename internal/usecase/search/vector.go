package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/rerank"
	"github.com/datalith-io/lakeq/table"
)

// ExecuteVector runs similarity search for the descriptor's query
// vectors. Batch queries union the per-vector results, re-sorted by
// distance. queryText is the original text when the vector came from an
// embedding; it is forwarded to the optional reranker.
func (s *Service) ExecuteVector(
	ctx context.Context, d query.Descriptor, queryText string, rr rerank.Reranker,
) (*table.Table, error) {
	vectors := d.Vectors()
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: vector query without a query vector", domain.ErrValidation)
	}

	parts := make([]*table.Table, 0, len(vectors))
	for _, vec := range vectors {
		t, err := s.vindex.Search(ctx, query.VectorSearchRequest{
			Vector:       vec,
			Metric:       d.Metric(),
			NProbes:      d.NProbes(),
			RefineFactor: d.RefineFactor(),
			Filter:       d.Filter(),
			Prefilter:    d.Prefilter(),
			Limit:        d.Limit(),
			Columns:      d.Columns(),
			WithRowID:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		parts = append(parts, t)
	}

	out := parts[0]
	if len(parts) > 1 {
		joined, err := table.Concat(parts...)
		if err != nil {
			return nil, err
		}
		out, err = sortByDistance(joined)
		if err != nil {
			return nil, err
		}
		if d.Limit() > 0 {
			out = out.Slice(d.Limit())
		}
	}

	if rr != nil {
		out, err := rr.RerankVector(queryText, out)
		if err != nil {
			return nil, fmt.Errorf("rerank vector results: %w", err)
		}
		if out == nil {
			return nil, fmt.Errorf("%w: reranker returned no table", domain.ErrTypeMismatch)
		}
		if !d.WithRowID() {
			out = out.Drop(table.ColRowID)
		}
		return out, nil
	}

	if !d.WithRowID() {
		out = out.Drop(table.ColRowID)
	}
	return out, nil
}

func sortByDistance(t *table.Table) (*table.Table, error) {
	dist, err := t.Float64s(table.ColDistance)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(dist))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dist[order[a]] < dist[order[b]]
	})
	return t.TakeRows(order)
}
