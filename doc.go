// Package lakeq is a client for columnar datasets with vector,
// full-text, and hybrid search.
//
// Open a dataset directory and query it with a fluent builder:
//
//	client, err := lakeq.Open(ctx, "./data")
//	if err != nil {
//		...
//	}
//	results, err := client.Search([]float32{0.1, 0.2, 0.3}).
//		Limit(5).
//		Where("price > 10").
//		Execute(ctx)
//
// Queries accept a vector, a batch of vectors, text (vectorized through
// a registered embedding function, or matched against the full-text
// index), or a [vector, text] pair for explicit hybrid search. Hybrid
// results are score-normalized and merged by a reranker, by default the
// linear combination in package rerank.
package lakeq
