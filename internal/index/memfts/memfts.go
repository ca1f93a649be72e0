// Package memfts implements an in-memory BM25 full-text index over one
// text column of a dataset.
package memfts

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/datalith-io/lakeq/internal/domain"
	"github.com/datalith-io/lakeq/internal/domain/query"
	"github.com/datalith-io/lakeq/table"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Scanner is the dataset surface the index builds from.
type Scanner interface {
	Scan(ctx context.Context, projection query.Projection, filter string, limit int) (*table.Table, error)
}

// Index holds postings for a fixed snapshot of documents.
type Index struct {
	ids      []uint64
	texts    []string
	lengths  []int
	avgLen   float64
	postings map[string]map[int]int
	df       map[string]int
}

// Build indexes the given documents. ids and texts are parallel.
func Build(ids []uint64, texts []string) (*Index, error) {
	if len(ids) != len(texts) {
		return nil, fmt.Errorf("%w: %d ids for %d documents", domain.ErrValidation, len(ids), len(texts))
	}

	ix := &Index{
		ids:      ids,
		texts:    make([]string, len(texts)),
		lengths:  make([]int, len(texts)),
		postings: make(map[string]map[int]int),
		df:       make(map[string]int),
	}

	total := 0
	for i, text := range texts {
		ix.texts[i] = strings.ToLower(text)
		terms := tokenize(text)
		ix.lengths[i] = len(terms)
		total += len(terms)

		seen := make(map[string]bool, len(terms))
		for _, term := range terms {
			docs := ix.postings[term]
			if docs == nil {
				docs = make(map[int]int)
				ix.postings[term] = docs
			}
			docs[i]++
			if !seen[term] {
				seen[term] = true
				ix.df[term]++
			}
		}
	}
	if len(texts) > 0 {
		ix.avgLen = float64(total) / float64(len(texts))
	}
	return ix, nil
}

// FromScanner builds the index from a dataset's text column, keyed by
// the dataset's row ids.
func FromScanner(ctx context.Context, s Scanner, textColumn string) (*Index, error) {
	proj, err := query.NewProjection([]string{textColumn})
	if err != nil {
		return nil, err
	}
	t, err := s.Scan(ctx, proj, "", 0)
	if err != nil {
		return nil, fmt.Errorf("scan text column: %w", err)
	}
	ids, err := t.RowIDs()
	if err != nil {
		return nil, err
	}
	col, ok := t.Column(textColumn)
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no text column %q", domain.ErrConfiguration, textColumn)
	}
	texts := make([]string, len(col.Values))
	for i, v := range col.Values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: cell %d of column %q is %T, want string",
				domain.ErrTypeMismatch, i, textColumn, v)
		}
		texts[i] = s
	}
	return Build(ids, texts)
}

// Exists reports whether the index has been built.
func (ix *Index) Exists(ctx context.Context) bool {
	return ix != nil && ix.postings != nil
}

// Search scores documents against the query with BM25 and returns the
// top limit row ids with their scores, best first. A query wrapped in
// double quotes matches the inner text as an exact phrase.
// limit<=0 returns every match.
func (ix *Index) Search(ctx context.Context, queryText string, limit int) ([]uint64, []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	text, phrase := unwrapPhrase(queryText)
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil, nil, nil
	}

	scores := make(map[int]float64)
	for _, term := range terms {
		docs := ix.postings[term]
		if len(docs) == 0 {
			continue
		}
		idf := math.Log(1 + (float64(len(ix.ids))-float64(ix.df[term])+0.5)/(float64(ix.df[term])+0.5))
		for doc, freq := range docs {
			tf := float64(freq)
			norm := 1 - bm25B + bm25B*float64(ix.lengths[doc])/ix.avgLen
			scores[doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	order := make([]int, 0, len(scores))
	for doc := range scores {
		if phrase && !strings.Contains(ix.texts[doc], strings.ToLower(text)) {
			continue
		}
		order = append(order, doc)
	}
	sort.Slice(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return ix.ids[order[a]] < ix.ids[order[b]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	ids := make([]uint64, len(order))
	out := make([]float32, len(order))
	for i, doc := range order {
		ids[i] = ix.ids[doc]
		out[i] = float32(scores[doc])
	}
	return ids, out, nil
}

// unwrapPhrase strips a surrounding pair of double quotes.
func unwrapPhrase(q string) (string, bool) {
	t := strings.TrimSpace(q)
	if len(t) >= 2 && strings.HasPrefix(t, `"`) && strings.HasSuffix(t, `"`) {
		return t[1 : len(t)-1], true
	}
	return q, false
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
