package search

import (
	"context"
	"fmt"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query/mode"
)

// Resolved is the outcome of query type resolution: a concrete mode with
// the disambiguated query material. Downstream executors never re-inspect
// the raw value.
type Resolved struct {
	Mode    mode.Mode
	Vectors [][]float32 // vector and hybrid modes
	Text    string      // fts and hybrid modes; kept for reranking on vector mode
}

// Resolve decides the concrete query type for a raw value of unknown
// shape. Supported shapes: string, []float32, []float64, [][]float32,
// [][]float64, and a two-element []any of (vector-like, string) for
// hybrid. May invoke the embedding function bound to vectorColumn.
func (s *Service) Resolve(
	ctx context.Context, raw any, m mode.Mode, vectorColumn string,
) (Resolved, error) {
	if !m.IsValid() {
		return Resolved{}, fmt.Errorf("%w: query mode must be auto, vector, fts, or hybrid: %q",
			domain.ErrValidation, m)
	}
	switch m {
	case mode.FTS:
		text, ok := raw.(string)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: fts queries must be a string, got %T",
				domain.ErrTypeMismatch, raw)
		}
		return Resolved{Mode: mode.FTS, Text: text}, nil

	case mode.Vector:
		if vecs, ok := asVectors(raw); ok {
			return Resolved{Mode: mode.Vector, Vectors: vecs}, nil
		}
		text, ok := raw.(string)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: vector queries must be a vector or a string, got %T",
				domain.ErrTypeMismatch, raw)
		}
		vec, err := s.embedQuery(ctx, text, vectorColumn)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Mode: mode.Vector, Vectors: [][]float32{vec}, Text: text}, nil

	case mode.Hybrid:
		return s.resolveHybrid(ctx, raw, vectorColumn)

	default: // mode.Auto
		if vecs, ok := asVectors(raw); ok {
			return Resolved{Mode: mode.Vector, Vectors: vecs}, nil
		}
		if _, ok := raw.([]any); ok {
			return s.resolveHybrid(ctx, raw, vectorColumn)
		}
		text, ok := raw.(string)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: unsupported query shape %T", domain.ErrValidation, raw)
		}
		if s.registry != nil {
			if _, bound := s.registry.Get(vectorColumn); bound {
				vec, err := s.embedQuery(ctx, text, vectorColumn)
				if err != nil {
					return Resolved{}, err
				}
				return Resolved{Mode: mode.Vector, Vectors: [][]float32{vec}, Text: text}, nil
			}
		}
		return Resolved{Mode: mode.FTS, Text: text}, nil
	}
}

// resolveHybrid accepts a bare string, used for both sub-queries, or a
// (vector, text) pair.
func (s *Service) resolveHybrid(ctx context.Context, raw any, vectorColumn string) (Resolved, error) {
	switch q := raw.(type) {
	case string:
		vec, err := s.embedQuery(ctx, q, vectorColumn)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Mode: mode.Hybrid, Vectors: [][]float32{vec}, Text: q}, nil
	case []any:
		if len(q) != 2 {
			return Resolved{}, fmt.Errorf("%w: hybrid query must be a (vector, text) pair, got %d elements",
				domain.ErrValidation, len(q))
		}
		vecs, ok := asVectors(q[0])
		if !ok {
			return Resolved{}, fmt.Errorf("%w: hybrid vector element must be a float vector, got %T",
				domain.ErrValidation, q[0])
		}
		text, ok := q[1].(string)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: hybrid text element must be a string, got %T",
				domain.ErrValidation, q[1])
		}
		return Resolved{Mode: mode.Hybrid, Vectors: vecs, Text: text}, nil
	default:
		return Resolved{}, fmt.Errorf("%w: hybrid query must be a string or a (vector, text) pair, got %T",
			domain.ErrValidation, raw)
	}
}

// embedQuery computes a single query embedding through the function bound
// to vectorColumn. The function's own retry contract covers rate limits.
func (s *Service) embedQuery(ctx context.Context, text, vectorColumn string) ([]float32, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: no embedding function registry configured", domain.ErrConfiguration)
	}
	fn, ok := s.registry.Get(vectorColumn)
	if !ok {
		return nil, fmt.Errorf("%w: no embedding function for column %q",
			domain.ErrConfiguration, vectorColumn)
	}
	vecs, err := fn.ComputeQueryEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("compute query embedding: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: embedding function returned no vectors", domain.ErrUpstream)
	}
	return vecs[0], nil
}

// asVectors recognizes the supported vector-like shapes, including a
// batch of query vectors.
func asVectors(raw any) ([][]float32, bool) {
	switch v := raw.(type) {
	case []float32:
		return [][]float32{v}, true
	case []float64:
		return [][]float32{toFloat32(v)}, true
	case [][]float32:
		return v, true
	case [][]float64:
		out := make([][]float32, len(v))
		for i, row := range v {
			out[i] = toFloat32(row)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
