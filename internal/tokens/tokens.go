// Package tokens provides the token-length metric shared by chunking
// and context packing. No tokenizer model ships with the engine, so
// lengths are estimated with the standard 4-characters-per-token
// heuristic. The estimate is deterministic: the same text always
// yields the same count.
package tokens

const charsPerToken = 4

// Estimate returns the approximate token length of text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Word is one whitespace-delimited word with its byte offsets in the
// source text.
type Word struct {
	Text  string
	Start int
	End   int
}

// SplitWords splits text into words, retaining byte offsets so chunkers
// can report source spans.
func SplitWords(text string) []Word {
	words := make([]Word, 0, len(text)/6)
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			if start >= 0 {
				words = append(words, Word{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, Word{Text: text[start:], Start: start, End: len(text)})
	}
	return words
}

// WordTokens returns the token cost of one word, counting the joining
// space that reassembly adds.
func WordTokens(w Word) int {
	return Estimate(w.Text + " ")
}
