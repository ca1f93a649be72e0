package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

// --- Mocks ---

// mockStorage serves a fixed in-memory table that must carry _rowid.
type mockStorage struct {
	data *table.Table

	scanFilter string
	scanLimit  int
	takeIDs    []uint64
	written    *table.Table
	writtenTo  string
}

func (m *mockStorage) Scan(
	_ context.Context, projection query.Projection, filter string, limit int,
) (*table.Table, error) {
	m.scanFilter = filter
	m.scanLimit = limit
	out := project(m.data, projection)
	if limit > 0 {
		out = out.Slice(limit)
	}
	return out, nil
}

func (m *mockStorage) Take(
	_ context.Context, rowIDs []uint64, projection query.Projection,
) (*table.Table, error) {
	m.takeIDs = append([]uint64(nil), rowIDs...)
	ids, err := m.data.RowIDs()
	if err != nil {
		return nil, err
	}
	pos := make(map[uint64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	indices := make([]int, 0, len(rowIDs))
	for _, id := range rowIDs {
		ix, ok := pos[id]
		if !ok {
			return nil, fmt.Errorf("%w: row id %d not in dataset", domain.ErrValidation, id)
		}
		indices = append(indices, ix)
	}
	out, err := m.data.TakeRows(indices)
	if err != nil {
		return nil, err
	}
	return project(out, projection), nil
}

func (m *mockStorage) Write(_ context.Context, t *table.Table, dest string) error {
	m.written = t
	m.writtenTo = dest
	return nil
}

func project(t *table.Table, projection query.Projection) *table.Table {
	if projection.IsEmpty() {
		return t
	}
	keep := map[string]bool{table.ColRowID: true}
	for _, n := range projection.Names() {
		keep[n] = true
	}
	var drop []string
	for _, n := range t.ColumnNames() {
		if !keep[n] {
			drop = append(drop, n)
		}
	}
	return t.Drop(drop...)
}

// mockFilterStorage adds in-memory predicate evaluation over fixed keep
// indices.
type mockFilterStorage struct {
	mockStorage
	keep      []int
	filterErr error

	filtered string
}

func (m *mockFilterStorage) FilterRows(
	_ context.Context, _ *table.Table, predicate string,
) ([]int, error) {
	m.filtered = predicate
	if m.filterErr != nil {
		return nil, m.filterErr
	}
	return m.keep, nil
}

// mockOpenerStorage has no relational filtering but can reopen what it
// wrote, with the predicate applied as a keep-indices whitelist.
type mockOpenerStorage struct {
	mockStorage
	keep []int
}

func (m *mockOpenerStorage) OpenDataset(_ context.Context, _ string) (Storage, error) {
	if m.written == nil {
		return nil, fmt.Errorf("nothing written")
	}
	filtered, err := m.written.TakeRows(m.keep)
	if err != nil {
		return nil, err
	}
	return &scanOnlyStorage{data: filtered}, nil
}

// scanOnlyStorage returns its table as-is from Scan.
type scanOnlyStorage struct {
	data *table.Table
}

func (s *scanOnlyStorage) Scan(
	_ context.Context, _ query.Projection, _ string, _ int,
) (*table.Table, error) {
	return s.data, nil
}

func (s *scanOnlyStorage) Take(
	_ context.Context, _ []uint64, _ query.Projection,
) (*table.Table, error) {
	return nil, fmt.Errorf("not supported")
}

func (s *scanOnlyStorage) Write(_ context.Context, _ *table.Table, _ string) error {
	return fmt.Errorf("not supported")
}

// mockVectorIndex replays canned result tables, one per Search call.
type mockVectorIndex struct {
	results []*table.Table
	err     error

	calls []query.VectorSearchRequest
}

func (m *mockVectorIndex) Search(
	_ context.Context, req query.VectorSearchRequest,
) (*table.Table, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	ix := len(m.calls) - 1
	if ix >= len(m.results) {
		ix = len(m.results) - 1
	}
	return m.results[ix], nil
}

// mockFTS returns fixed matches and records the query it was given.
type mockFTS struct {
	exists bool
	ids    []uint64
	scores []float32
	err    error

	lastQuery string
	lastLimit int
}

func (m *mockFTS) Exists(_ context.Context) bool { return m.exists }

func (m *mockFTS) Search(_ context.Context, queryText string, limit int) ([]uint64, []float32, error) {
	m.lastQuery = queryText
	m.lastLimit = limit
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.ids, m.scores, nil
}

// mockEmbedFn returns fixed embeddings and counts invocations.
type mockEmbedFn struct {
	vecs [][]float32
	err  error

	calls    int
	lastText string
}

func (m *mockEmbedFn) ComputeQueryEmbeddings(_ context.Context, queryText string) ([][]float32, error) {
	m.calls++
	m.lastText = queryText
	if m.err != nil {
		return nil, m.err
	}
	return m.vecs, nil
}

type mockRegistry struct {
	funcs map[string]EmbeddingFunction
}

func (m *mockRegistry) Get(vectorColumn string) (EmbeddingFunction, bool) {
	fn, ok := m.funcs[vectorColumn]
	return fn, ok
}

// mockReranker returns a fixed table regardless of input.
type mockReranker struct {
	out *table.Table
	err error

	lastQuery string
}

func (m *mockReranker) RerankVector(q string, _ *table.Table) (*table.Table, error) {
	m.lastQuery = q
	return m.out, m.err
}

func (m *mockReranker) RerankFTS(q string, _ *table.Table) (*table.Table, error) {
	m.lastQuery = q
	return m.out, m.err
}

func (m *mockReranker) RerankHybrid(q string, _, _ *table.Table) (*table.Table, error) {
	m.lastQuery = q
	return m.out, m.err
}

// --- Helpers ---

func mustTable(t *testing.T, cols ...table.Column) *table.Table {
	t.Helper()
	tbl, err := table.New(cols...)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tbl
}

func mustDescriptor(t *testing.T, p query.Params) query.Descriptor {
	t.Helper()
	d, err := query.New(p)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return d
}

func anyIDs(ids ...uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func anyFloats(vals ...float64) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
