// Package search is the query execution core: it resolves raw query
// values into a concrete mode, runs the single-modal executors against
// the storage and index collaborators, and orchestrates hybrid queries
// through normalization and reranking.
package search

import (
	"context"
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/internal/domain/query/mode"
	"github.com/datalith-io/lakeq/rerank"
	"github.com/datalith-io/lakeq/table"
)

// Service executes queries against one dataset. It holds no per-query
// state: every execution owns its descriptor and intermediate tables.
type Service struct {
	storage  Storage
	vindex   VectorIndex
	fts      FTSIndex
	registry EmbeddingRegistry
}

// New creates a query service. fts and registry may be nil when the
// dataset has no full-text index or embedding functions.
func New(storage Storage, vindex VectorIndex, fts FTSIndex, registry EmbeddingRegistry) *Service {
	return &Service{storage: storage, vindex: vindex, fts: fts, registry: registry}
}

// Options tune a single execution.
type Options struct {
	// Normalize selects the hybrid score normalization, default "score".
	Normalize NormalizeMode
	// Reranker overrides the merge strategy; hybrid queries default to
	// the linear-combination reranker.
	Reranker rerank.Reranker
	// Phrase wraps a full-text query in phrase semantics.
	Phrase bool
}

// Execute resolves raw against the requested mode and dispatches to the
// matching executor. A nil raw runs a plain filter scan.
func (s *Service) Execute(
	ctx context.Context, raw any, m mode.Mode, d query.Descriptor, opts Options,
) (*table.Table, error) {
	if raw == nil {
		return s.ExecuteScan(ctx, d)
	}
	res, err := s.Resolve(ctx, raw, m, d.VectorColumn())
	if err != nil {
		return nil, err
	}
	switch res.Mode {
	case mode.Vector:
		return s.ExecuteVector(ctx, d.WithVectors(res.Vectors), res.Text, opts.Reranker)
	case mode.FTS:
		return s.ExecuteFTS(ctx, d, res.Text, opts.Phrase, opts.Reranker)
	case mode.Hybrid:
		return s.ExecuteHybrid(ctx, d, res.Vectors, res.Text, HybridOptions{
			Normalize: opts.Normalize,
			Reranker:  opts.Reranker,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported query mode %q", domain.ErrValidation, res.Mode)
	}
}

// ExecuteScan runs a plain storage scan with projection, filter, and
// limit. No ranking is applied.
func (s *Service) ExecuteScan(ctx context.Context, d query.Descriptor) (*table.Table, error) {
	t, err := s.storage.Scan(ctx, d.Columns(), d.Filter(), d.Limit())
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if !d.WithRowID() {
		t = t.Drop(table.ColRowID)
	}
	return t, nil
}
