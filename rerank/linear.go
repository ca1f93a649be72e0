package rerank

import (
	"fmt"
	"sort"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/table"
)

// Linear-combination defaults: weight 0.7 favors vector relevance, fill
// 1.0 substitutes for the missing side of a half-matched row.
const (
	DefaultWeight = 0.7
	DefaultFill   = 1.0
)

// LinearCombination merges hybrid results by weighted sum of the inverted
// vector distance and the full-text score:
//
//	merged = weight*(1-distance) + (1-weight)*score
//
// Rows present on only one side get the configured fill value substituted
// for the missing side's distance (the fts score is inverted to the
// distance scale first), so fill 1.0 treats absence as the worst match.
type LinearCombination struct {
	PassThrough
	weight float64
	fill   float64
}

// NewLinearCombination validates the weight and builds a reranker.
func NewLinearCombination(weight, fill float64) (*LinearCombination, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: weight %v outside [0, 1]", domain.ErrValidation, weight)
	}
	return &LinearCombination{weight: weight, fill: fill}, nil
}

// DefaultLinearCombination returns the stock reranker used by hybrid
// queries when none is configured.
func DefaultLinearCombination() *LinearCombination {
	return &LinearCombination{weight: DefaultWeight, fill: DefaultFill}
}

// RerankHybrid performs a full outer join on _rowid and ranks the union
// by merged score, descending. Ties keep vector-result order first, then
// fts-result order.
func (r *LinearCombination) RerankHybrid(
	_ string, vectorResults, ftsResults *table.Table,
) (*table.Table, error) {
	vecIDs, err := vectorResults.RowIDs()
	if err != nil {
		return nil, fmt.Errorf("vector results: %w", err)
	}
	ftsIDs, err := ftsResults.RowIDs()
	if err != nil {
		return nil, fmt.Errorf("fts results: %w", err)
	}
	vecDist, err := vectorResults.Float64s(table.ColDistance)
	if err != nil {
		return nil, fmt.Errorf("vector results: %w", err)
	}
	ftsScore, err := ftsResults.Float64s(table.ColScore)
	if err != nil {
		return nil, fmt.Errorf("fts results: %w", err)
	}

	entries := make([]joinedRow, 0, len(vecIDs)+len(ftsIDs))
	byID := make(map[uint64]int, len(vecIDs))
	for i, id := range vecIDs {
		byID[id] = len(entries)
		entries = append(entries, joinedRow{id: id, vecRow: i, ftsRow: -1})
	}
	for i, id := range ftsIDs {
		if j, ok := byID[id]; ok {
			entries[j].ftsRow = i
			continue
		}
		entries = append(entries, joinedRow{id: id, vecRow: -1, ftsRow: i})
	}

	// Both sides are combined on the inverted (distance-like) scale, so
	// the fill substitutes for a missing side's distance: fill 1.0 makes
	// absence from either side count as the worst possible match there.
	merged := make([]float64, len(entries))
	for i, e := range entries {
		dist, ftsDist := r.fill, r.fill
		if e.vecRow >= 0 {
			dist = vecDist[e.vecRow]
		}
		if e.ftsRow >= 0 {
			ftsDist = 1 - ftsScore[e.ftsRow]
		}
		merged[i] = r.weight*(1-dist) + (1-r.weight)*(1-ftsDist)
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return merged[order[a]] > merged[order[b]]
	})

	ranked := make([]joinedRow, len(order))
	for i, ix := range order {
		ranked[i] = entries[ix]
	}
	return joinColumns(vectorResults, ftsResults, ranked, merged, order)
}

// joinedRow points one output row at its source rows; -1 marks a side the
// row was absent from.
type joinedRow struct {
	id     uint64
	vecRow int
	ftsRow int
}

// joinColumns assembles the output table: vector-side data columns first,
// then fts-only data columns, then _rowid and _relevance_score. Cells
// missing on both sides stay nil.
func joinColumns(
	vec, fts *table.Table, rows []joinedRow, merged []float64, order []int,
) (*table.Table, error) {
	names := make([]string, 0, vec.NumCols()+fts.NumCols())
	seen := map[string]bool{
		table.ColDistance: true,
		table.ColScore:    true,
		table.ColRowID:    true,
	}
	for _, n := range vec.ColumnNames() {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, n := range fts.ColumnNames() {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	cols := make([]table.Column, 0, len(names)+2)
	for _, name := range names {
		vals := make([]any, len(rows))
		for i, row := range rows {
			if row.vecRow >= 0 {
				if v, ok := vec.Value(name, row.vecRow); ok {
					vals[i] = v
					continue
				}
			}
			if row.ftsRow >= 0 {
				if v, ok := fts.Value(name, row.ftsRow); ok {
					vals[i] = v
				}
			}
		}
		cols = append(cols, table.Column{Name: name, Values: vals})
	}

	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row.id
	}
	cols = append(cols, table.Column{Name: table.ColRowID, Values: ids})

	scores := make([]any, len(order))
	for i, ix := range order {
		scores[i] = merged[ix]
	}
	cols = append(cols, table.Column{Name: table.ColRelevance, Values: scores})

	return table.New(cols...)
}
