// Package registry maps vector column names to the embedding functions
// that vectorize query text for them. The registry is assembled during
// client construction and read-only at query time.
package registry

import (
	"context"
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
)

// EmbeddingFunction computes query embeddings for text. Implementations
// own their rate-limit retry behavior.
type EmbeddingFunction interface {
	ComputeQueryEmbeddings(ctx context.Context, queryText string) ([][]float32, error)
}

// Registry is the per-dataset embedding function lookup.
type Registry struct {
	funcs map[string]EmbeddingFunction
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]EmbeddingFunction)}
}

// Register binds fn to a vector column. Rebinding a column is an error.
func (r *Registry) Register(vectorColumn string, fn EmbeddingFunction) error {
	if vectorColumn == "" {
		return fmt.Errorf("%w: vector column name is required", domain.ErrValidation)
	}
	if fn == nil {
		return fmt.Errorf("%w: embedding function is required", domain.ErrValidation)
	}
	if _, ok := r.funcs[vectorColumn]; ok {
		return fmt.Errorf("%w: column %q already has an embedding function",
			domain.ErrConfiguration, vectorColumn)
	}
	r.funcs[vectorColumn] = fn
	return nil
}

// Get returns the function bound to a vector column.
func (r *Registry) Get(vectorColumn string) (EmbeddingFunction, bool) {
	fn, ok := r.funcs[vectorColumn]
	return fn, ok
}
