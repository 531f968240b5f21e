package chunker

import (
	"strings"
	"unicode"

	"github.com/quarrylabs/quarry/internal/tokens"
)

// recursiveChunker attempts a heading-based split first, then recursively
// splits oversized pieces on blank lines, sentence boundaries, and
// finally fixed-size word windows, packing the resulting leaves back
// into the target token range with overlap. Chunks are contiguous slices
// of the source text, so this strategy tracks byte offsets.
type recursiveChunker struct{}

func (r *recursiveChunker) name() string { return StrategyRecursive }

const wordWindowSize = 80

type span struct {
	start, end int
}

func (r *recursiveChunker) chunkBody(text string, opts Options) []piece {
	body := span{0, len(text)}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	leaves := splitToFit(text, body, levelSection, opts.TargetHigh)
	return packLeaves(text, leaves, opts)
}

const (
	levelSection = iota
	levelParagraph
	levelSentence
	levelWords
)

func spanTokens(sp span) int {
	n := sp.end - sp.start
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// splitToFit recursively splits sp until every leaf fits in the token
// budget. Levels go heading -> blank line -> sentence -> word window;
// a word-window leaf is terminal regardless of size.
func splitToFit(text string, sp span, level, high int) []span {
	if spanTokens(sp) <= high || level > levelWords {
		return []span{sp}
	}
	parts := splitAtLevel(text, sp, level)
	if len(parts) <= 1 {
		return splitToFit(text, sp, level+1, high)
	}
	var out []span
	for _, p := range parts {
		out = append(out, splitToFit(text, p, level+1, high)...)
	}
	return out
}

func splitAtLevel(text string, sp span, level int) []span {
	switch level {
	case levelSection:
		return splitSpanOnHeadings(text, sp)
	case levelParagraph:
		return splitSpanOnBlankLines(text, sp)
	case levelSentence:
		return splitSpanOnSentences(text, sp)
	default:
		return splitSpanOnWordWindows(text, sp)
	}
}

// lineSpans yields each line of text[sp] with its byte offsets,
// excluding the trailing newline.
func lineSpans(text string, sp span) []span {
	var out []span
	start := sp.start
	for i := sp.start; i < sp.end; i++ {
		if text[i] == '\n' {
			out = append(out, span{start, i})
			start = i + 1
		}
	}
	if start < sp.end {
		out = append(out, span{start, sp.end})
	}
	return out
}

func splitSpanOnHeadings(text string, sp span) []span {
	lines := lineSpans(text, sp)
	var out []span
	partStart := -1
	for _, ln := range lines {
		if isHeadingLine(text[ln.start:ln.end]) {
			if partStart >= 0 {
				out = appendNonBlank(out, text, span{partStart, ln.start})
			}
			partStart = ln.start
			continue
		}
		if partStart < 0 {
			partStart = ln.start
		}
	}
	if partStart >= 0 {
		out = appendNonBlank(out, text, span{partStart, sp.end})
	}
	return out
}

func splitSpanOnBlankLines(text string, sp span) []span {
	lines := lineSpans(text, sp)
	var out []span
	partStart := -1
	for _, ln := range lines {
		if strings.TrimSpace(text[ln.start:ln.end]) == "" {
			if partStart >= 0 {
				out = appendNonBlank(out, text, span{partStart, ln.start})
				partStart = -1
			}
			continue
		}
		if partStart < 0 {
			partStart = ln.start
		}
	}
	if partStart >= 0 {
		out = appendNonBlank(out, text, span{partStart, sp.end})
	}
	return out
}

func splitSpanOnSentences(text string, sp span) []span {
	var out []span
	start := sp.start
	for i := sp.start; i < sp.end; i++ {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			next := i + 1
			if next >= sp.end || text[next] == ' ' || text[next] == '\n' || text[next] == '\t' {
				out = appendNonBlank(out, text, span{start, next})
				start = next
			}
		}
	}
	if start < sp.end {
		out = appendNonBlank(out, text, span{start, sp.end})
	}
	return out
}

func splitSpanOnWordWindows(text string, sp span) []span {
	words := tokens.SplitWords(text[sp.start:sp.end])
	var out []span
	for i := 0; i < len(words); i += wordWindowSize {
		j := min(i+wordWindowSize, len(words))
		out = append(out, span{
			start: sp.start + words[i].Start,
			end:   sp.start + words[j-1].End,
		})
	}
	return out
}

func appendNonBlank(dst []span, text string, sp span) []span {
	if strings.TrimSpace(text[sp.start:sp.end]) == "" {
		return dst
	}
	return append(dst, sp)
}

// packLeaves greedily merges consecutive leaves into chunks of at most
// TargetHigh tokens. Overlap is applied only here: each new chunk
// starts OverlapTokens back inside the previous one, snapped to a word
// boundary. The remainder chunk may fall below TargetLow.
func packLeaves(text string, leaves []span, opts Options) []piece {
	if len(leaves) == 0 {
		return nil
	}
	var out []piece
	curStart := leaves[0].start
	prevEnd := leaves[0].end
	for _, leaf := range leaves[1:] {
		if spanTokens(span{curStart, leaf.end}) > opts.TargetHigh {
			out = appendPiece(out, text, curStart, prevEnd)
			curStart = overlapStart(text, curStart, prevEnd, opts.OverlapTokens)
			if spanTokens(span{curStart, leaf.end}) > opts.TargetHigh {
				curStart = shrinkOverlap(text, curStart, leaf, opts.TargetHigh)
			}
		}
		prevEnd = leaf.end
	}
	return appendPiece(out, text, curStart, prevEnd)
}

// overlapStart walks back roughly overlapTokens tokens from end and
// snaps forward to the next word boundary, never regressing to or past
// the previous chunk's start.
func overlapStart(text string, prevStart, end, overlapTokens int) int {
	if overlapTokens <= 0 {
		return end
	}
	start := end - overlapTokens*4
	if start <= prevStart {
		start = prevStart + (end-prevStart)/2
	}
	for start < end && start > 0 && !unicode.IsSpace(rune(text[start-1])) {
		start++
	}
	return start
}

// shrinkOverlap trims the overlap prefix when the upcoming leaf is
// close to the token budget and leaves no room for the full overlap.
// The returned start keeps the chunk within TargetHigh through
// leaf.end, snapped forward to a word boundary, and never moves into
// the leaf itself.
func shrinkOverlap(text string, start int, leaf span, high int) int {
	fit := leaf.end - high*4
	if fit < start {
		return start
	}
	for fit > 0 && fit < leaf.start && !unicode.IsSpace(rune(text[fit-1])) {
		fit++
	}
	if fit > leaf.start {
		fit = leaf.start
	}
	return fit
}

func appendPiece(dst []piece, text string, start, end int) []piece {
	for start < end && unicode.IsSpace(rune(text[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	if start >= end {
		return dst
	}
	return append(dst, piece{text: text[start:end], start: start, end: end})
}
