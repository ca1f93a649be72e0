package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/rerank"
	"github.com/datalith-io/lakeq/table"
)

// indexerColumn tags original row positions while a post-filter predicate
// is evaluated out of line.
const indexerColumn = "__lakeq_indexer"

// ExecuteFTS runs full-text search: top matches from the text index,
// column data taken from storage, optional post-hoc predicate filtering.
func (s *Service) ExecuteFTS(
	ctx context.Context, d query.Descriptor, queryText string, phrase bool, rr rerank.Reranker,
) (*table.Table, error) {
	if s.fts == nil || !s.fts.Exists(ctx) {
		return nil, fmt.Errorf(
			"%w: full-text index not built; create one before running fts or hybrid queries",
			domain.ErrPreconditionFailed)
	}

	q := queryText
	if phrase {
		q = `"` + strings.ReplaceAll(q, `"`, `'`) + `"`
	}

	rowIDs, scores, err := s.fts.Search(ctx, q, d.Limit())
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	if len(rowIDs) == 0 {
		out := table.Empty(table.ColScore, table.ColRowID)
		if !d.WithRowID() {
			out = out.Drop(table.ColRowID)
		}
		return out, nil
	}

	out, err := s.storage.Take(ctx, rowIDs, d.Columns())
	if err != nil {
		return nil, fmt.Errorf("take fts matches: %w", err)
	}
	scoreVals := make([]any, len(scores))
	for i, sc := range scores {
		scoreVals[i] = float64(sc)
	}
	out, err = out.AppendColumn(table.ColScore, scoreVals)
	if err != nil {
		return nil, err
	}

	if d.Filter() != "" {
		keep, err := s.postFilter(ctx, out, d.Filter())
		if err != nil {
			return nil, err
		}
		out, err = out.TakeRows(keep)
		if err != nil {
			return nil, err
		}
	}

	if rr != nil {
		out, err = rr.RerankFTS(queryText, out)
		if err != nil {
			return nil, fmt.Errorf("rerank fts results: %w", err)
		}
		if out == nil {
			return nil, fmt.Errorf("%w: reranker returned no table", domain.ErrTypeMismatch)
		}
	}

	if !d.WithRowID() {
		out = out.Drop(table.ColRowID)
	}
	return out, nil
}

// postFilter returns the indices of rows satisfying the predicate.
// Engines with relational filtering evaluate it in memory; otherwise the
// rows are written to a temporary dataset and rescanned with the
// predicate, which is slower but not an error.
func (s *Service) postFilter(ctx context.Context, t *table.Table, predicate string) ([]int, error) {
	if rf, ok := s.storage.(RelationalFilter); ok {
		keep, err := rf.FilterRows(ctx, t, predicate)
		if err != nil {
			return nil, fmt.Errorf("post-filter: %w", err)
		}
		return keep, nil
	}
	opener, ok := s.storage.(DatasetOpener)
	if !ok {
		return nil, fmt.Errorf("%w: storage engine cannot evaluate post-filter predicates",
			domain.ErrConfiguration)
	}
	return s.postFilterViaDataset(ctx, opener, t, predicate)
}

func (s *Service) postFilterViaDataset(
	ctx context.Context, opener DatasetOpener, t *table.Table, predicate string,
) ([]int, error) {
	indexer := make([]any, t.NumRows())
	for i := range indexer {
		indexer[i] = int64(i)
	}
	tmp, err := t.Drop(table.ColRowID).AppendColumn(indexerColumn, indexer)
	if err != nil {
		return nil, err
	}

	dest, err := os.MkdirTemp("", "lakeq-postfilter-")
	if err != nil {
		return nil, fmt.Errorf("post-filter tempdir: %w", err)
	}
	defer os.RemoveAll(dest)

	if err := s.storage.Write(ctx, tmp, filepath.Join(dest, "part-0.parquet")); err != nil {
		return nil, fmt.Errorf("write post-filter dataset: %w", err)
	}
	ds, err := opener.OpenDataset(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("open post-filter dataset: %w", err)
	}
	filtered, err := ds.Scan(ctx, query.Projection{}, predicate, 0)
	if err != nil {
		return nil, fmt.Errorf("post-filter scan: %w", err)
	}

	col, ok := filtered.Column(indexerColumn)
	if !ok {
		return nil, fmt.Errorf("%w: post-filter scan lost the indexer column", domain.ErrUpstream)
	}
	keep := make([]int, len(col.Values))
	for i, v := range col.Values {
		ix, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: indexer cell is %T", domain.ErrTypeMismatch, v)
		}
		keep[i] = int(ix)
	}
	return keep, nil
}
