package search

import (
	"context"
	"errors"
	"testing"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

func ftsDataset(t *testing.T) *table.Table {
	t.Helper()
	return mustTable(t,
		table.Column{Name: "text", Values: []any{"alpha", "beta", "gamma"}},
		table.Column{Name: "price", Values: anyFloats(10, 20, 30)},
		table.Column{Name: table.ColRowID, Values: anyIDs(0, 1, 2)},
	)
}

func TestExecuteFTS_Basic(t *testing.T) {
	storage := &mockStorage{data: ftsDataset(t)}
	fts := &mockFTS{exists: true, ids: []uint64{2, 0}, scores: []float32{1.5, 0.5}}
	s := New(storage, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{Limit: 10})

	out, err := s.ExecuteFTS(context.Background(), d, "gamma", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fts.lastQuery != "gamma" || fts.lastLimit != 10 {
		t.Errorf("fts query = %q limit = %d", fts.lastQuery, fts.lastLimit)
	}
	if out.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", out.NumRows())
	}
	scores, err := out.Float64s(table.ColScore)
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if scores[0] != 1.5 || scores[1] != 0.5 {
		t.Errorf("scores = %v", scores)
	}
	if v, _ := out.Value("text", 0); v != "gamma" {
		t.Errorf("first row text = %v, want gamma", v)
	}
	if out.HasColumn(table.ColRowID) {
		t.Error("_rowid kept without being requested")
	}
}

func TestExecuteFTS_MissingIndex(t *testing.T) {
	for _, fts := range []FTSIndex{nil, &mockFTS{exists: false}} {
		s := New(&mockStorage{data: ftsDataset(t)}, &mockVectorIndex{}, fts, nil)
		d := mustDescriptor(t, query.Params{})

		_, err := s.ExecuteFTS(context.Background(), d, "q", false, nil)
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Errorf("err = %v, want ErrPreconditionFailed", err)
		}
	}
}

func TestExecuteFTS_PhraseWrapsAndEscapesQuotes(t *testing.T) {
	fts := &mockFTS{exists: true}
	s := New(&mockStorage{data: ftsDataset(t)}, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{})

	if _, err := s.ExecuteFTS(context.Background(), d, `say "hi" twice`, true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `"say 'hi' twice"`
	if fts.lastQuery != want {
		t.Errorf("fts query = %q, want %q", fts.lastQuery, want)
	}
}

func TestExecuteFTS_NoMatches(t *testing.T) {
	fts := &mockFTS{exists: true}
	s := New(&mockStorage{data: ftsDataset(t)}, &mockVectorIndex{}, fts, nil)

	out, err := s.ExecuteFTS(context.Background(),
		mustDescriptor(t, query.Params{}), "nothing", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.NumRows() != 0 || !out.HasColumn(table.ColScore) {
		t.Errorf("empty result shape: rows=%d cols=%v", out.NumRows(), out.ColumnNames())
	}
	if out.HasColumn(table.ColRowID) {
		t.Error("_rowid kept without being requested")
	}

	out, err = s.ExecuteFTS(context.Background(),
		mustDescriptor(t, query.Params{WithRowID: true}), "nothing", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HasColumn(table.ColRowID) {
		t.Error("empty result lacks _rowid when requested")
	}
}

func TestExecuteFTS_PostFilterRelational(t *testing.T) {
	storage := &mockFilterStorage{
		mockStorage: mockStorage{data: ftsDataset(t)},
		keep:        []int{1},
	}
	fts := &mockFTS{exists: true, ids: []uint64{0, 1, 2}, scores: []float32{3, 2, 1}}
	s := New(storage, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{Filter: "price > 15", WithRowID: true})

	out, err := s.ExecuteFTS(context.Background(), d, "q", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.filtered != "price > 15" {
		t.Errorf("predicate = %q", storage.filtered)
	}
	ids, err := out.RowIDs()
	if err != nil {
		t.Fatalf("RowIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("ids = %v, want [1]", ids)
	}
}

func TestExecuteFTS_PostFilterViaDataset(t *testing.T) {
	storage := &mockOpenerStorage{
		mockStorage: mockStorage{data: ftsDataset(t)},
		keep:        []int{0, 2},
	}
	fts := &mockFTS{exists: true, ids: []uint64{0, 1, 2}, scores: []float32{3, 2, 1}}
	s := New(storage, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{Filter: "price != 20", WithRowID: true})

	out, err := s.ExecuteFTS(context.Background(), d, "q", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.written == nil {
		t.Fatal("no temporary dataset written")
	}
	if storage.written.HasColumn(table.ColRowID) {
		t.Error("temporary dataset still carries _rowid")
	}
	ids, err := out.RowIDs()
	if err != nil {
		t.Fatalf("RowIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("ids = %v, want [0 2]", ids)
	}
}

func TestExecuteFTS_PostFilterUnsupportedEngine(t *testing.T) {
	storage := &mockStorage{data: ftsDataset(t)}
	fts := &mockFTS{exists: true, ids: []uint64{0}, scores: []float32{1}}
	s := New(storage, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{Filter: "price > 0"})

	_, err := s.ExecuteFTS(context.Background(), d, "q", false, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestExecuteFTS_RerankerNilTable(t *testing.T) {
	storage := &mockStorage{data: ftsDataset(t)}
	fts := &mockFTS{exists: true, ids: []uint64{0}, scores: []float32{1}}
	s := New(storage, &mockVectorIndex{}, fts, nil)
	d := mustDescriptor(t, query.Params{})

	_, err := s.ExecuteFTS(context.Background(), d, "q", false, &mockReranker{})
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
}
