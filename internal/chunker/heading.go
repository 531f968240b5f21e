package chunker

import (
	"strings"
	"unicode"

	"github.com/quarrylabs/quarry/internal/tokens"
)

// section is a run of body text grouped under the heading that
// precedes it. Text before the first heading forms a section with an
// empty heading.
type section struct {
	heading string
	body    string
}

// isHeadingLine applies a lightweight heuristic: markdown-style "#"
// prefixes, short ALL-CAPS lines, and numbered section lines
// ("3.", "2.4.1 Title") all count as headings.
func isHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	if isAllCapsShort(trimmed) {
		return true
	}
	return isNumberedSection(trimmed)
}

func isAllCapsShort(line string) bool {
	if len(strings.Fields(line)) > 8 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	return letters >= 2
}

func isNumberedSection(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 10 {
		return false
	}
	lead := strings.TrimRight(fields[0], ".)")
	if lead == "" {
		return false
	}
	sawDigit := false
	for _, part := range strings.Split(lead, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return false
			}
			sawDigit = true
		}
	}
	return sawDigit && len(fields) > 1
}

// splitSections groups lines under their preceding heading.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")
	var out []section
	current := section{}
	var body []string

	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.heading != "" || current.body != "" {
			out = append(out, current)
		}
		body = body[:0]
	}

	for _, line := range lines {
		if isHeadingLine(line) {
			flush()
			current = section{heading: strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

// headingChunker groups body text under headings, accumulates sentences
// per section until the token count crosses the upper target, and
// prepends the heading to every resulting chunk for context.
type headingChunker struct{}

func (h *headingChunker) name() string { return StrategyHeading }

func (h *headingChunker) chunkBody(text string, opts Options) []piece {
	var out []piece
	for _, sec := range splitSections(text) {
		if sec.body == "" {
			continue
		}
		for _, block := range packSentences(sec.body, opts) {
			chunkText := block
			if sec.heading != "" {
				chunkText = sec.heading + "\n\n" + block
			}
			out = append(out, piece{text: chunkText, start: -1, end: -1})
		}
	}
	return out
}

// packSentences accumulates sentences into blocks whose token length
// stays at or under TargetHigh, then token-packs any oversized block
// with overlap.
func packSentences(body string, opts Options) []string {
	sentences := splitSentences(body)
	var blocks []string
	var cur strings.Builder
	curTokens := 0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		block := strings.TrimSpace(cur.String())
		cur.Reset()
		curTokens = 0
		if block == "" {
			return
		}
		if tokens.Estimate(block) > opts.TargetHigh {
			blocks = append(blocks, packWindow(block, opts.TargetHigh, opts.OverlapTokens)...)
			return
		}
		blocks = append(blocks, block)
	}

	for _, s := range sentences {
		st := tokens.Estimate(s)
		if curTokens > 0 && curTokens+st > opts.TargetHigh {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
		curTokens += st
	}
	flush()
	return blocks
}

// splitSentences breaks text on sentence-final punctuation followed by
// whitespace. Good enough for chunk boundaries; no abbreviation table.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				s := strings.TrimSpace(string(runes[start : i+1]))
				if s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
