package search

import (
	"context"
	"errors"
	"testing"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query/mode"
)

func newResolveService(reg EmbeddingRegistry) *Service {
	return New(&mockStorage{}, &mockVectorIndex{}, nil, reg)
}

func TestResolve_AutoVectorLike(t *testing.T) {
	s := newResolveService(nil)

	res, err := s.Resolve(context.Background(), []float32{0.1, 0.2, 0.3}, mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Vector {
		t.Errorf("mode = %q, want vector", res.Mode)
	}
	if len(res.Vectors) != 1 || len(res.Vectors[0]) != 3 {
		t.Errorf("vectors = %v, want one 3-dim vector", res.Vectors)
	}
}

func TestResolve_AutoFloat64Batch(t *testing.T) {
	s := newResolveService(nil)

	raw := [][]float64{{1, 2}, {3, 4}}
	res, err := s.Resolve(context.Background(), raw, mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Vector {
		t.Errorf("mode = %q, want vector", res.Mode)
	}
	if len(res.Vectors) != 2 || res.Vectors[1][0] != 3.0 {
		t.Errorf("vectors = %v, want converted batch", res.Vectors)
	}
}

func TestResolve_AutoStringWithoutRegistryIsFTS(t *testing.T) {
	s := newResolveService(nil)

	res, err := s.Resolve(context.Background(), "hello world", mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.FTS {
		t.Errorf("mode = %q, want fts", res.Mode)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestResolve_AutoStringWithBoundFunctionIsVector(t *testing.T) {
	fn := &mockEmbedFn{vecs: [][]float32{{0.5, 0.6}}}
	s := newResolveService(&mockRegistry{funcs: map[string]EmbeddingFunction{"vector": fn}})

	res, err := s.Resolve(context.Background(), "hello", mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Vector {
		t.Errorf("mode = %q, want vector", res.Mode)
	}
	if fn.calls != 1 || fn.lastText != "hello" {
		t.Errorf("embedding calls = %d text = %q", fn.calls, fn.lastText)
	}
	if len(res.Vectors) != 1 || res.Vectors[0][0] != 0.5 {
		t.Errorf("vectors = %v", res.Vectors)
	}
	if res.Text != "hello" {
		t.Errorf("text = %q, want original query kept for reranking", res.Text)
	}
}

func TestResolve_AutoStringUnboundColumnIsFTS(t *testing.T) {
	fn := &mockEmbedFn{vecs: [][]float32{{1}}}
	s := newResolveService(&mockRegistry{funcs: map[string]EmbeddingFunction{"other": fn}})

	res, err := s.Resolve(context.Background(), "hello", mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.FTS {
		t.Errorf("mode = %q, want fts when no function is bound to the column", res.Mode)
	}
	if fn.calls != 0 {
		t.Errorf("embedding function called %d times, want 0", fn.calls)
	}
}

func TestResolve_AutoUnsupportedShape(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), 42, mode.Auto, "vector")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestResolve_InvalidMode(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), "hello", mode.Mode("fuzzy"), "vector")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestResolve_FTSRejectsNonString(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), []float32{1, 2}, mode.FTS, "vector")
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestResolve_VectorStringWithoutRegistry(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), "hello", mode.Vector, "vector")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestResolve_VectorRejectsOtherShapes(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), map[string]any{}, mode.Vector, "vector")
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestResolve_HybridPair(t *testing.T) {
	s := newResolveService(nil)

	raw := []any{[]float32{0.1, 0.2}, "flat datasets"}
	res, err := s.Resolve(context.Background(), raw, mode.Hybrid, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Hybrid {
		t.Errorf("mode = %q, want hybrid", res.Mode)
	}
	if res.Text != "flat datasets" || len(res.Vectors) != 1 {
		t.Errorf("resolved = %+v", res)
	}
}

func TestResolve_HybridPairWrongArity(t *testing.T) {
	s := newResolveService(nil)

	_, err := s.Resolve(context.Background(), []any{"just text"}, mode.Hybrid, "vector")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestResolve_HybridPairBadElements(t *testing.T) {
	s := newResolveService(nil)

	if _, err := s.Resolve(context.Background(), []any{"not a vector", "text"}, mode.Hybrid, "vector"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("non-vector first element: err = %v, want ErrValidation", err)
	}
	if _, err := s.Resolve(context.Background(), []any{[]float32{1}, 7}, mode.Hybrid, "vector"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("non-string second element: err = %v, want ErrValidation", err)
	}
}

func TestResolve_HybridStringEmbeds(t *testing.T) {
	fn := &mockEmbedFn{vecs: [][]float32{{0.9, 0.8}}}
	s := newResolveService(&mockRegistry{funcs: map[string]EmbeddingFunction{"vector": fn}})

	res, err := s.Resolve(context.Background(), "query text", mode.Hybrid, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Hybrid || res.Text != "query text" {
		t.Errorf("resolved = %+v", res)
	}
	if len(res.Vectors) != 1 || res.Vectors[0][0] != 0.9 {
		t.Errorf("vectors = %v", res.Vectors)
	}
}

func TestResolve_AutoPairIsHybrid(t *testing.T) {
	s := newResolveService(nil)

	res, err := s.Resolve(context.Background(), []any{[]float64{1, 2}, "text"}, mode.Auto, "vector")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != mode.Hybrid {
		t.Errorf("mode = %q, want hybrid", res.Mode)
	}
}

func TestResolve_EmbeddingReturnsNothing(t *testing.T) {
	fn := &mockEmbedFn{vecs: nil}
	s := newResolveService(&mockRegistry{funcs: map[string]EmbeddingFunction{"vector": fn}})

	_, err := s.Resolve(context.Background(), "hello", mode.Vector, "vector")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestResolve_EmbeddingErrorIsWrapped(t *testing.T) {
	fn := &mockEmbedFn{err: domain.ErrRateLimited}
	s := newResolveService(&mockRegistry{funcs: map[string]EmbeddingFunction{"vector": fn}})

	_, err := s.Resolve(context.Background(), "hello", mode.Vector, "vector")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want wrapped ErrRateLimited", err)
	}
}
