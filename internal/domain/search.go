package domain

// SearchHit is one retrieved chunk with its scores. Hits are ephemeral:
// created fresh per query, ranked, and discarded once the query
// completes.
type SearchHit struct {
	DocID      string
	Title      string
	Text       string
	Page       int
	Similarity float64
	// RerankScore is a probability in (0,1) set by the reranker.
	// Reranked reports whether the hit was actually judged; unjudged
	// hits fall back to Similarity for ordering.
	RerankScore float64
	Reranked    bool
	Metadata    map[string]string
}

// SortScore is the key used to order hits after the rerank stage.
func (h *SearchHit) SortScore() float64 {
	if h.Reranked {
		return h.RerankScore
	}
	return h.Similarity
}

// Citation links a span of a generated answer back to a source chunk.
// SpanStart and SpanEnd are rune offsets into the answer text.
type Citation struct {
	DocID     string
	Title     string
	Page      int
	SpanStart int
	SpanEnd   int
}
