package search

import (
	"context"

	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

// Storage defines the dataset engine contract. Scan and Take always
// include a _rowid column of stable uint64 identifiers, valid across
// separate calls within a session.
type Storage interface {
	Scan(ctx context.Context, projection query.Projection, filter string, limit int) (*table.Table, error)
	Take(ctx context.Context, rowIDs []uint64, projection query.Projection) (*table.Table, error)
	Write(ctx context.Context, t *table.Table, dest string) error
}

// RelationalFilter is optionally implemented by storage engines that can
// evaluate a predicate over an in-memory table. It returns the indices of
// rows satisfying the predicate, in original order. This is the primary
// post-filter path for full-text results.
type RelationalFilter interface {
	FilterRows(ctx context.Context, t *table.Table, predicate string) ([]int, error)
}

// DatasetOpener is optionally implemented by storage engines that can
// reopen a written destination as a scannable dataset. Together with
// Write it powers the degraded post-filter path used when the engine has
// no in-memory predicate evaluation.
type DatasetOpener interface {
	OpenDataset(ctx context.Context, dest string) (Storage, error)
}

// VectorIndex runs nearest-neighbor search for one query vector and
// returns the projected columns plus _distance and _rowid.
type VectorIndex interface {
	Search(ctx context.Context, req query.VectorSearchRequest) (*table.Table, error)
}

// FTSIndex locates the top matches for a query string. Exists reports
// whether an index has been built; fts and hybrid queries fail before
// dispatch when it has not.
type FTSIndex interface {
	Exists(ctx context.Context) bool
	Search(ctx context.Context, queryText string, limit int) (rowIDs []uint64, scores []float32, err error)
}

// EmbeddingFunction vectorizes query text. Implementations own their
// rate-limit retry behavior; only the first vector is used for a scalar
// query.
type EmbeddingFunction interface {
	ComputeQueryEmbeddings(ctx context.Context, queryText string) ([][]float32, error)
}

// EmbeddingRegistry is the read-only lookup from vector column name to
// the embedding function bound to it.
type EmbeddingRegistry interface {
	Get(vectorColumn string) (EmbeddingFunction, bool)
}
