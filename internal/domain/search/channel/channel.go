package channel

// Channel tags which retrieval stage produced a score. Score scales differ
// per channel and must never be compared across channels without fusion.
type Channel string

const (
	// Dense is similarity search over embedding vectors.
	Dense Channel = "dense"
	// Sparse is similarity search over a bag-of-weighted-terms vector.
	Sparse Channel = "sparse"
	// Fused marks a score produced by rank fusion.
	Fused Channel = "fused"
	// Reranked marks a normalized score produced by a reranker.
	Reranked Channel = "reranked"
)

// IsValid reports whether c is a known channel tag.
func (c Channel) IsValid() bool {
	switch c {
	case Dense, Sparse, Fused, Reranked:
		return true
	}
	return false
}

// String returns the channel name.
func (c Channel) String() string { return string(c) }
