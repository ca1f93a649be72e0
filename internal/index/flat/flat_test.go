package flat

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

// --- Mocks ---

// memScanner serves a fixed table and records the filter it was given.
type memScanner struct {
	data *table.Table

	lastFilter string
}

func (m *memScanner) Scan(
	_ context.Context, _ query.Projection, filter string, _ int,
) (*table.Table, error) {
	m.lastFilter = filter
	if filter != "" {
		// Prefilter tests hardwire one predicate.
		if filter != "price > 10" {
			return nil, errors.New("unexpected filter")
		}
		keep := []int{}
		prices, err := m.data.Float64s("price")
		if err != nil {
			return nil, err
		}
		for i, p := range prices {
			if p > 10 {
				keep = append(keep, i)
			}
		}
		return m.data.TakeRows(keep)
	}
	return m.data, nil
}

// filterScanner adds in-memory post-filtering over the price column.
type filterScanner struct {
	memScanner
}

func (f *filterScanner) FilterRows(
	_ context.Context, t *table.Table, predicate string,
) ([]int, error) {
	if predicate != "price > 10" {
		return nil, errors.New("unexpected predicate")
	}
	prices, err := t.Float64s("price")
	if err != nil {
		return nil, err
	}
	var keep []int
	for i, p := range prices {
		if p > 10 {
			keep = append(keep, i)
		}
	}
	return keep, nil
}

// --- Helpers ---

func dataset(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.Column{Name: "text", Values: []any{"a", "b", "c", "d"}},
		table.Column{Name: "price", Values: []any{float64(5), float64(20), float64(15), float64(8)}},
		table.Column{Name: "vec", Values: []any{
			[]float32{1, 0}, []float32{0, 1}, []float32{0.6, 0.8}, []float32{-1, 0},
		}},
		table.Column{Name: table.ColRowID, Values: []any{uint64(0), uint64(1), uint64(2), uint64(3)}},
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tbl
}

func mustIndex(t *testing.T, s Scanner) *Index {
	t.Helper()
	ix, err := New(s, "vec")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix
}

func resultIDs(t *testing.T, tbl *table.Table) []uint64 {
	t.Helper()
	ids, err := tbl.RowIDs()
	if err != nil {
		t.Fatalf("RowIDs: %v", err)
	}
	return ids
}

// --- Tests ---

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, "vec"); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("nil scanner: err = %v, want ErrConfiguration", err)
	}
	if _, err := New(&memScanner{}, ""); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("empty column: err = %v, want ErrConfiguration", err)
	}
}

func TestSearch_L2Order(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricL2,
		Limit:  4,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Squared distances from (1,0): 0, 2, 0.8, 4.
	want := []uint64{0, 2, 1, 3}
	ids := resultIDs(t, out)
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	dist, err := out.Float64s(table.ColDistance)
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if dist[0] != 0 || math.Abs(dist[1]-0.8) > 1e-9 {
		t.Errorf("distances = %v", dist)
	}
}

func TestSearch_CosineOrder(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricCosine,
		Limit:  4,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Cosine distances: 0, 1, 0.4, 2.
	want := []uint64{0, 2, 1, 3}
	ids := resultIDs(t, out)
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSearch_DotOrder(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricDot,
		Limit:  4,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Negated dot products: -1, 0, -0.6, 1.
	want := []uint64{0, 2, 1, 3}
	ids := resultIDs(t, out)
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSearch_LimitTruncates(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricL2,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.NumRows() != 2 {
		t.Errorf("rows = %d, want 2", out.NumRows())
	}
}

func TestSearch_Prefilter(t *testing.T) {
	scanner := &memScanner{data: dataset(t)}
	ix := mustIndex(t, scanner)

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector:    []float32{1, 0},
		Metric:    query.MetricL2,
		Filter:    "price > 10",
		Prefilter: true,
		Limit:     4,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if scanner.lastFilter != "price > 10" {
		t.Errorf("scan filter = %q, want the predicate pushed down", scanner.lastFilter)
	}
	want := []uint64{2, 1}
	ids := resultIDs(t, out)
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSearch_Postfilter(t *testing.T) {
	scanner := &filterScanner{memScanner{data: dataset(t)}}
	ix := mustIndex(t, scanner)

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricL2,
		Filter: "price > 10",
		Limit:  4,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if scanner.lastFilter != "" {
		t.Errorf("scan filter = %q, want the scan unfiltered", scanner.lastFilter)
	}
	want := []uint64{2, 1}
	ids := resultIDs(t, out)
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestSearch_PostfilterUnsupported(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	_, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricL2,
		Filter: "price > 10",
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestSearch_RefineWidensPool(t *testing.T) {
	scanner := &filterScanner{memScanner{data: dataset(t)}}
	ix := mustIndex(t, scanner)

	// Pool of 1 drops row 2 before the post-filter; refine factor 3
	// keeps it in the candidate set.
	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0},
		Metric: query.MetricL2,
		Filter: "price > 10",
		Limit:  1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.NumRows() != 0 {
		t.Fatalf("rows = %d, want 0 without refinement", out.NumRows())
	}

	out, err = ix.Search(context.Background(), query.VectorSearchRequest{
		Vector:       []float32{1, 0},
		Metric:       query.MetricL2,
		Filter:       "price > 10",
		Limit:        1,
		RefineFactor: 3,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	ids := resultIDs(t, out)
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("ids = %v, want [2]", ids)
	}
}

func TestSearch_Projection(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})
	proj, err := query.NewProjection([]string{"text"})
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}

	out, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector:  []float32{1, 0},
		Metric:  query.MetricL2,
		Limit:   2,
		Columns: proj,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"text", table.ColDistance, table.ColRowID}
	got := out.ColumnNames()
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestSearch_Validation(t *testing.T) {
	ix := mustIndex(t, &memScanner{data: dataset(t)})

	if _, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Metric: query.MetricL2,
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty vector: err = %v, want ErrValidation", err)
	}

	if _, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1},
		Metric: query.Metric("hamming"),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown metric: err = %v, want ErrValidation", err)
	}

	if _, err := ix.Search(context.Background(), query.VectorSearchRequest{
		Vector: []float32{1, 0, 0},
		Metric: query.MetricL2,
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("dimension mismatch: err = %v, want ErrValidation", err)
	}
}
