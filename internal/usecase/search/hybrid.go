package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/rerank"
	"github.com/datalith-io/lakeq/table"
)

// HybridOptions configure the hybrid orchestration.
type HybridOptions struct {
	Normalize NormalizeMode   // default NormalizeScore
	Reranker  rerank.Reranker // default linear combination
}

// ExecuteHybrid runs the vector and full-text sub-queries concurrently,
// normalizes both score columns, merges them through the reranker, and
// applies the final limit. Either sub-query failing aborts the whole
// execution; no partial hybrid result is ever returned.
func (s *Service) ExecuteHybrid(
	ctx context.Context, d query.Descriptor, vectors [][]float32, text string, opts HybridOptions,
) (*table.Table, error) {
	if s.fts == nil || !s.fts.Exists(ctx) {
		return nil, fmt.Errorf(
			"%w: full-text index not built; create one before running hybrid queries",
			domain.ErrPreconditionFailed)
	}
	norm := opts.Normalize
	if norm == "" {
		norm = NormalizeScore
	}
	if !norm.IsValid() {
		return nil, fmt.Errorf("%w: normalize mode must be score or rank: %q", domain.ErrValidation, norm)
	}
	rr := opts.Reranker
	if rr == nil {
		rr = rerank.DefaultLinearCombination()
	}

	// Both sub-queries fetch row ids regardless of the caller's
	// preference: the row id is the join key.
	sub := d.RequireRowID()

	var vecRes, ftsRes *table.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.ExecuteVector(gctx, sub.WithVectors(vectors), "", nil)
		if err != nil {
			return err
		}
		vecRes = t
		return nil
	})
	g.Go(func() error {
		t, err := s.ExecuteFTS(gctx, sub, text, false, nil)
		if err != nil {
			return err
		}
		ftsRes = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var err error
	if norm == NormalizeRank {
		if vecRes, err = Normalize(vecRes, table.ColDistance, NormalizeRank); err != nil {
			return nil, err
		}
		if ftsRes, err = Normalize(ftsRes, table.ColScore, NormalizeRank); err != nil {
			return nil, err
		}
	}
	if vecRes, err = Normalize(vecRes, table.ColDistance, NormalizeScore); err != nil {
		return nil, err
	}
	// FTS scores keep their polarity here (1 = best); the reranker flips
	// them at merge time so strategies still see per-source magnitudes.
	if ftsRes, err = Normalize(ftsRes, table.ColScore, NormalizeScore); err != nil {
		return nil, err
	}

	out, err := rr.RerankHybrid(text, vecRes, ftsRes)
	if err != nil {
		return nil, fmt.Errorf("rerank hybrid results: %w", err)
	}
	if out == nil || !out.HasColumn(table.ColRelevance) || !out.HasColumn(table.ColRowID) {
		return nil, fmt.Errorf(
			"%w: rerank_hybrid must return a table with %s and %s columns",
			domain.ErrTypeMismatch, table.ColRelevance, table.ColRowID)
	}

	limit := d.Limit()
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	out = out.Slice(limit)

	if !d.WithRowID() {
		out = out.Drop(table.ColRowID)
	}
	return out, nil
}
