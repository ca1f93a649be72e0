package lakeq

import (
	"context"

	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/internal/domain/query/mode"
	"github.com/datalith-io/lakeq/internal/usecase/search"
	"github.com/datalith-io/lakeq/rerank"
	"github.com/datalith-io/lakeq/table"
)

// Mode selects how a query value is interpreted.
type Mode string

const (
	// ModeAuto infers the mode from the query value.
	ModeAuto Mode = "auto"
	// ModeVector forces similarity search.
	ModeVector Mode = "vector"
	// ModeFTS forces full-text search.
	ModeFTS Mode = "fts"
	// ModeHybrid runs vector and full-text search and merges the results.
	ModeHybrid Mode = "hybrid"
)

// Distance metrics for vector search.
const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
	MetricDot    = "dot"
)

// Hybrid score normalization strategies.
const (
	NormalizeScore = "score"
	NormalizeRank  = "rank"
)

// QueryBuilder assembles a query. Builders are values: every method
// returns a modified copy, so partial queries can be reused safely.
type QueryBuilder struct {
	client       *Client
	raw          any
	mode         Mode
	limit        int
	filter       string
	prefilter    bool
	columns      []query.Entry
	metric       string
	nprobes      int
	refineFactor int
	withRowID    bool
	phrase       bool
	normalize    string
	reranker     rerank.Reranker
	vectorColumn string
}

func newQueryBuilder(c *Client, q any) QueryBuilder {
	return QueryBuilder{
		client:       c,
		raw:          q,
		mode:         ModeAuto,
		limit:        query.DefaultLimit,
		vectorColumn: c.vectorColumn,
	}
}

// Mode forces the query interpretation.
func (b QueryBuilder) Mode(m Mode) QueryBuilder {
	b.mode = m
	return b
}

// Limit caps the number of results, default 10. Zero removes the cap
// for scans and plain searches.
func (b QueryBuilder) Limit(n int) QueryBuilder {
	b.limit = n
	return b
}

// Where filters results with a predicate such as `price > 10 AND
// region = 'eu'`. Vector queries filter ranked candidates unless
// Prefilter is set; full-text queries always filter after matching.
func (b QueryBuilder) Where(expr string) QueryBuilder {
	b.filter = expr
	return b
}

// Prefilter applies the Where predicate before ranking instead of
// after.
func (b QueryBuilder) Prefilter(on bool) QueryBuilder {
	b.prefilter = on
	return b
}

// Select keeps only the named columns in the result.
func (b QueryBuilder) Select(cols ...string) QueryBuilder {
	entries := make([]query.Entry, len(cols))
	for i, c := range cols {
		entries[i] = query.Entry{Name: c}
	}
	b.columns = entries
	return b
}

// SelectExpr adds an output column computed from a source column,
// keeping previous selections.
func (b QueryBuilder) SelectExpr(name, expr string) QueryBuilder {
	b.columns = append(b.columns[:len(b.columns):len(b.columns)], query.Entry{Name: name, Expr: expr})
	return b
}

// Metric sets the vector distance metric, default l2.
func (b QueryBuilder) Metric(m string) QueryBuilder {
	b.metric = m
	return b
}

// NProbes sets the partition probe count for partitioned indexes.
func (b QueryBuilder) NProbes(n int) QueryBuilder {
	b.nprobes = n
	return b
}

// RefineFactor widens the candidate pool before final ranking.
func (b QueryBuilder) RefineFactor(n int) QueryBuilder {
	b.refineFactor = n
	return b
}

// WithRowID keeps the _rowid column in the result.
func (b QueryBuilder) WithRowID() QueryBuilder {
	b.withRowID = true
	return b
}

// PhraseQuery matches the full-text query as an exact phrase.
func (b QueryBuilder) PhraseQuery() QueryBuilder {
	b.phrase = true
	return b
}

// Normalize selects the hybrid score normalization, default score.
func (b QueryBuilder) Normalize(strategy string) QueryBuilder {
	b.normalize = strategy
	return b
}

// Rerank overrides the result merge strategy.
func (b QueryBuilder) Rerank(r rerank.Reranker) QueryBuilder {
	b.reranker = r
	return b
}

// VectorColumn targets a vector column other than the client default.
func (b QueryBuilder) VectorColumn(name string) QueryBuilder {
	b.vectorColumn = name
	return b
}

// Execute runs the query.
func (b QueryBuilder) Execute(ctx context.Context) (*table.Table, error) {
	columns, err := query.NewProjectionExprs(b.columns)
	if err != nil {
		return nil, err
	}
	d, err := query.New(query.Params{
		Filter:       b.filter,
		Prefilter:    b.prefilter,
		Limit:        b.limit,
		Metric:       query.Metric(b.metric),
		Columns:      columns,
		NProbes:      b.nprobes,
		RefineFactor: b.refineFactor,
		WithRowID:    b.withRowID,
		VectorColumn: b.vectorColumn,
	})
	if err != nil {
		return nil, err
	}
	return b.client.svc.Execute(ctx, b.raw, mode.Mode(b.mode), d, search.Options{
		Normalize: search.NormalizeMode(b.normalize),
		Reranker:  b.reranker,
		Phrase:    b.phrase,
	})
}
