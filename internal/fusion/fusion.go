// Package fusion merges dense and sparse result lists into one ranking.
package fusion

import (
	"sort"

	"github.com/knoguchi/insight/internal/vectorstore"
)

// DefaultRRFK is the rank offset in reciprocal rank fusion.
const DefaultRRFK = 60.0

// Fuse combines dense and sparse rankings with weighted reciprocal rank
// fusion:
//
//	score(d) = alpha/(k+rank_dense(d)) + (1-alpha)/(k+rank_sparse(d))
//
// Ranks are 1-based and a list that does not contain d contributes nothing.
// alpha=1 is pure dense, alpha=0 pure sparse. Results are keyed by chunk ID,
// the dense copy wins when both lists carry one, and Score is replaced by
// the fused score. Ties keep the order of first appearance (dense before
// sparse). limit <= 0 returns every fused result.
func Fuse(dense, sparse []vectorstore.SearchResult, alpha float64, limit int) []vectorstore.SearchResult {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	type fused struct {
		result vectorstore.SearchResult
		score  float64
		order  int
	}
	byID := make(map[string]*fused, len(dense)+len(sparse))

	add := func(results []vectorstore.SearchResult, weight float64) {
		for i, r := range results {
			f, ok := byID[r.ID]
			if !ok {
				f = &fused{result: r, order: len(byID)}
				byID[r.ID] = f
			}
			f.score += weight / (DefaultRRFK + float64(i+1))
		}
	}
	add(dense, alpha)
	add(sparse, 1-alpha)

	all := make([]*fused, 0, len(byID))
	for _, f := range byID {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]vectorstore.SearchResult, len(all))
	for i, f := range all {
		out[i] = f.result
		out[i].Score = float32(f.score)
	}
	return out
}
