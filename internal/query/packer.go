package query

import (
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/tokens"
)

// Pack greedily takes hits in rank order until the next hit would push
// the running token cost past maxContextTokens, and returns that
// prefix. Token cost uses the same estimate as chunking, so the budget
// composes with chunk geometry.
func Pack(hits []domain.SearchHit, maxContextTokens int) []domain.SearchHit {
	if maxContextTokens <= 0 {
		return []domain.SearchHit{}
	}
	used := 0
	for i, h := range hits {
		cost := tokens.Estimate(h.Text)
		if used+cost > maxContextTokens {
			return hits[:i]
		}
		used += cost
	}
	return hits
}

// BuildContext renders packed hits into the prompt context handed to
// the answer-synthesis collaborator.
func BuildContext(hits []domain.SearchHit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if h.Title != "" {
			b.WriteString("[" + h.Title + "]\n")
		}
		b.WriteString(h.Text)
	}
	return b.String()
}
