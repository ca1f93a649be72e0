// Package rerank defines the pluggable result-reranking strategy used to
// merge vector and full-text result sets, plus the built-in
// linear-combination implementation.
package rerank

import "github.com/datalith-io/lakeq/table"

// Reranker merges or reorders result tables. Hybrid inputs arrive with
// scores already normalized onto [0,1]: _distance with 0 best, score with
// 1 best. The score column is not inverted, so strategies that need the
// raw per-source magnitude still have it. Both hybrid inputs carry
// _rowid, the join key.
type Reranker interface {
	// RerankVector reorders a vector-only result set.
	RerankVector(query string, vectorResults *table.Table) (*table.Table, error)
	// RerankFTS reorders a full-text-only result set.
	RerankFTS(query string, ftsResults *table.Table) (*table.Table, error)
	// RerankHybrid merges the two result sets into one ranked table with
	// a single _relevance_score column.
	RerankHybrid(query string, vectorResults, ftsResults *table.Table) (*table.Table, error)
}

// PassThrough provides identity single-modal reranking. Strategies that
// only care about the hybrid merge embed it so the single-modal paths can
// share the hybrid call sites.
type PassThrough struct{}

func (PassThrough) RerankVector(_ string, t *table.Table) (*table.Table, error) { return t, nil }

func (PassThrough) RerankFTS(_ string, t *table.Table) (*table.Table, error) { return t, nil }
