package fusion

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
)

// DefaultK is the Reciprocal Rank Fusion constant (standard value from
// Cormack et al. 2009).
const DefaultK = 60

// Fuse merges the dense and sparse ranked lists via alpha-weighted Reciprocal
// Rank Fusion. A document at 1-based rank r contributes 1/(k+r) for its list;
// a document missing from a list contributes 0 for that term. Final score:
//
//	alpha*rrf_dense + (1-alpha)*rrf_sparse
//
// Fusion operates on rank positions, never on the raw per-channel scores, so
// the two channels' incomparable score scales cannot leak into the result.
// alpha=1 degenerates to dense-only rank order, alpha=0 to sparse-only.
//
// Ties break by higher combined score first, then by first-encounter order
// during dense-list iteration, making the output deterministic for identical
// inputs. Returns the top limit documents tagged channel.Fused.
//
// Panics on contract violations: alpha outside [0,1], non-positive k,
// negative limit, or duplicate ids within one input list.
func Fuse(dense, sparse []result.ScoredDocument, alpha float64, k, limit int) []result.ScoredDocument {
	if alpha < 0 || alpha > 1 {
		panic(fmt.Sprintf("fusion: alpha must be in [0,1], got %v", alpha))
	}
	if k <= 0 {
		panic(fmt.Sprintf("fusion: k must be positive, got %d", k))
	}
	if limit < 0 {
		panic(fmt.Sprintf("fusion: limit must be non-negative, got %d", limit))
	}

	type fused struct {
		doc   result.ScoredDocument
		score float64
	}

	byID := make(map[string]*fused, len(dense)+len(sparse))
	order := make([]*fused, 0, len(dense)+len(sparse))

	seen := make(map[string]struct{}, len(dense))
	for rank, r := range dense {
		id := r.ID()
		if _, dup := seen[id]; dup {
			panic(fmt.Sprintf("fusion: duplicate id %q in dense list", id))
		}
		seen[id] = struct{}{}

		f := &fused{doc: r, score: alpha * rrf(k, rank+1)}
		byID[id] = f
		order = append(order, f)
	}

	seen = make(map[string]struct{}, len(sparse))
	for rank, r := range sparse {
		id := r.ID()
		if _, dup := seen[id]; dup {
			panic(fmt.Sprintf("fusion: duplicate id %q in sparse list", id))
		}
		seen[id] = struct{}{}

		contribution := (1 - alpha) * rrf(k, rank+1)
		if f, ok := byID[id]; ok {
			f.score += contribution
			continue
		}
		f := &fused{doc: r, score: contribution}
		byID[id] = f
		order = append(order, f)
	}

	// Stable sort over encounter order implements the tie-break rule.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]result.ScoredDocument, len(order))
	for i, f := range order {
		out[i] = f.doc.Rescored(f.score, channel.Fused)
	}
	return out
}

func rrf(k, rank int) float64 {
	return 1.0 / float64(k+rank)
}
