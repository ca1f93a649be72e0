package lakeq

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/datalith-io/lakeq/internal/db/parquet"
	"github.com/datalith-io/lakeq/internal/index/flat"
	"github.com/datalith-io/lakeq/internal/index/memfts"
	"github.com/datalith-io/lakeq/internal/registry"
	"github.com/datalith-io/lakeq/internal/usecase/search"
	"github.com/datalith-io/lakeq/table"
)

// Table is the columnar result type returned by queries.
type Table = table.Table

// EmbeddingFunction vectorizes query text for a vector column.
type EmbeddingFunction interface {
	ComputeQueryEmbeddings(ctx context.Context, queryText string) ([][]float32, error)
}

// Client queries one dataset directory.
type Client struct {
	svc          *search.Service
	registry     *registry.Registry
	logger       *zap.Logger
	vectorColumn string
	textColumn   string
	embeddings   map[string]EmbeddingFunction
}

// Option configures a Client before the dataset is opened.
type Option func(*Client)

// WithLogger sets the logger; default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithVectorColumn names the vector column, default "vector".
func WithVectorColumn(name string) Option {
	return func(c *Client) { c.vectorColumn = name }
}

// WithTextColumn names the column the full-text index is built from,
// default "text". If the dataset has no such column, full-text and
// hybrid queries fail until an index exists.
func WithTextColumn(name string) Option {
	return func(c *Client) { c.textColumn = name }
}

// WithEmbeddingFunction binds an embedding function to a vector column,
// enabling text queries in vector and hybrid modes.
func WithEmbeddingFunction(column string, fn EmbeddingFunction) Option {
	return func(c *Client) { c.embeddings[column] = fn }
}

// Open connects to a parquet dataset directory. The full-text index is
// built in memory from the text column when the dataset has one.
func Open(ctx context.Context, dir string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:       zap.NewNop(),
		vectorColumn: "vector",
		textColumn:   "text",
		embeddings:   map[string]EmbeddingFunction{},
		registry:     registry.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	ds, err := parquet.Open(dir, parquet.WithVectorColumns(c.vectorColumn))
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	vindex, err := flat.New(ds, c.vectorColumn)
	if err != nil {
		return nil, err
	}

	var fts search.FTSIndex
	names, err := ds.ColumnNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if name != c.textColumn {
			continue
		}
		ix, err := memfts.FromScanner(ctx, ds, c.textColumn)
		if err != nil {
			return nil, fmt.Errorf("build full-text index: %w", err)
		}
		fts = ix
		c.logger.Info("full-text index built", zap.String("column", c.textColumn))
		break
	}

	for column, fn := range c.embeddings {
		if err := c.registry.Register(column, fn); err != nil {
			return nil, err
		}
	}

	c.svc = search.New(ds, vindex, fts, registryAdapter{c.registry})
	return c, nil
}

// Search starts a query. q accepts a string, a []float32 or []float64
// vector, a [][]float32 or [][]float64 batch, or a two-element []any of
// vector and text for explicit hybrid input.
func (c *Client) Search(q any) QueryBuilder {
	return newQueryBuilder(c, q)
}

// Scan starts a plain filter scan with no ranking.
func (c *Client) Scan() QueryBuilder {
	return newQueryBuilder(c, nil)
}

// registryAdapter exposes the registry through the query service's
// lookup contract.
type registryAdapter struct {
	r *registry.Registry
}

func (a registryAdapter) Get(vectorColumn string) (search.EmbeddingFunction, bool) {
	fn, ok := a.r.Get(vectorColumn)
	if !ok {
		return nil, false
	}
	return fn, true
}
