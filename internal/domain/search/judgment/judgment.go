package judgment

// Judgment is a pseudo-ground-truth relevance label a reranker assigned to
// one document. The field names are stable identifiers: they feed the
// evaluation feedback sink and are used as dashboard keys downstream.
type Judgment struct {
	DocID          string  `json:"doc_id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// New creates a judgment.
func New(docID string, relevanceScore float64) Judgment {
	return Judgment{DocID: docID, RelevanceScore: relevanceScore}
}
