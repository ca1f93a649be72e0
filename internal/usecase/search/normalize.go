package search

import (
	"fmt"
	"sort"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/table"
)

// NormalizeMode selects how heterogeneous scores are made comparable.
type NormalizeMode string

const (
	// NormalizeScore rescales scores linearly onto [0,1].
	NormalizeScore NormalizeMode = "score"
	// NormalizeRank replaces scores with their 1-based ascending rank.
	NormalizeRank NormalizeMode = "rank"
)

// IsValid reports whether m is a known normalize mode.
func (m NormalizeMode) IsValid() bool {
	return m == NormalizeScore || m == NormalizeRank
}

// Normalize returns a copy of t with the named score column rescaled per
// the mode. A zero-row table is returned unchanged. The input table is
// never mutated.
func Normalize(t *table.Table, column string, m NormalizeMode) (*table.Table, error) {
	switch m {
	case NormalizeScore:
		return normalizeScores(t, column)
	case NormalizeRank:
		return rankScores(t, column)
	default:
		return nil, fmt.Errorf("%w: normalize mode must be score or rank: %q", domain.ErrValidation, m)
	}
}

// normalizeScores rescales by (x - min) / (max - min). When all scores
// are equal the range degenerates to max so the division stays defined;
// an all-zero column then yields NaN, an accepted edge case.
func normalizeScores(t *table.Table, column string) (*table.Table, error) {
	if t.NumRows() == 0 {
		return t, nil
	}
	scores, err := t.Float64s(column)
	if err != nil {
		return nil, err
	}
	minV, maxV := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
	}
	rng := maxV - minV
	if rng == 0 {
		rng = maxV
	}
	vals := make([]any, len(scores))
	for i, s := range scores {
		vals[i] = (s - minV) / rng
	}
	return t.SetColumn(column, vals)
}

// rankScores replaces each score by its 1-based ascending rank, ties
// broken by original order.
func rankScores(t *table.Table, column string) (*table.Table, error) {
	if t.NumRows() == 0 {
		return t, nil
	}
	scores, err := t.Float64s(column)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})
	vals := make([]any, len(scores))
	for rank, ix := range order {
		vals[ix] = float64(rank + 1)
	}
	return t.SetColumn(column, vals)
}
