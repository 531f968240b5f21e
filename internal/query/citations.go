package query

import (
	"strings"
	"unicode/utf8"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/tokens"
)

// citationMatchThreshold is the fixed partial-match score (0-100) above
// which a hit is considered quoted or paraphrased by the answer. Kept
// as one named constant; whether it should be tuned per corpus is an
// open tuning question, not a config knob.
const citationMatchThreshold = 60

// ExtractCitations attributes spans of answer back to the hits that
// produced its context. Matching is fuzzy partial-ratio, so paraphrase
// and light rewording still attribute; maxPerSource caps citations per
// document. Best-effort by contract: an answer with no matching hit
// yields no citations, never an error.
func ExtractCitations(answer string, hits []domain.SearchHit, maxPerSource int) []domain.Citation {
	citations := []domain.Citation{}
	if strings.TrimSpace(answer) == "" {
		return citations
	}

	perSource := map[string]int{}
	for _, h := range hits {
		if maxPerSource > 0 && perSource[h.DocID] >= maxPerSource {
			continue
		}
		if fuzzy.PartialRatio(answer, h.Text) < citationMatchThreshold {
			continue
		}
		start, end := bestSpan(answer, h.Text)
		citations = append(citations, domain.Citation{
			DocID:     h.DocID,
			Title:     h.Title,
			Page:      h.Page,
			SpanStart: start,
			SpanEnd:   end,
		})
		perSource[h.DocID]++
	}
	return citations
}

// bestSpan locates the stretch of answer that most resembles source and
// returns it as rune offsets. Exact (case-insensitive) containment wins
// outright; otherwise a word-aligned window of the source's width
// slides over the answer and the best-scoring window is taken.
func bestSpan(answer, source string) (int, int) {
	lowerAnswer := strings.ToLower(answer)
	lowerSource := strings.ToLower(source)
	if idx := strings.Index(lowerAnswer, lowerSource); idx >= 0 {
		return runeOffset(answer, idx), runeOffset(answer, idx+len(source))
	}

	words := tokens.SplitWords(answer)
	if len(words) == 0 {
		return 0, utf8.RuneCountInString(answer)
	}
	width := len(tokens.SplitWords(source))
	if width < 1 {
		width = 1
	}
	if width > len(words) {
		width = len(words)
	}

	bestScore := -1
	bestStart, bestEnd := words[0].Start, words[len(words)-1].End
	for i := 0; i+width <= len(words); i++ {
		window := answer[words[i].Start:words[i+width-1].End]
		score := fuzzy.Ratio(window, source)
		if score > bestScore {
			bestScore = score
			bestStart, bestEnd = words[i].Start, words[i+width-1].End
		}
	}
	return runeOffset(answer, bestStart), runeOffset(answer, bestEnd)
}

func runeOffset(s string, byteOffset int) int {
	return utf8.RuneCountInString(s[:byteOffset])
}
