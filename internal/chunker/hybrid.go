package chunker

import (
	"github.com/quarrylabs/quarry/internal/tokens"
)

// hybridChunker uses the same heading detection as the heading strategy
// but packs each whole section directly into token windows instead of
// accumulating sentences. Fewer, larger chunks at the cost of heading
// fidelity.
type hybridChunker struct{}

func (h *hybridChunker) name() string { return StrategyHybrid }

func (h *hybridChunker) chunkBody(text string, opts Options) []piece {
	var out []piece
	for _, sec := range splitSections(text) {
		body := sec.body
		if sec.heading != "" {
			if body == "" {
				body = sec.heading
			} else {
				body = sec.heading + "\n" + body
			}
		}
		if body == "" {
			continue
		}
		window := hybridWindow(tokens.Estimate(body), opts)
		for _, w := range packWindow(body, window, opts.OverlapTokens) {
			out = append(out, piece{text: w, start: -1, end: -1})
		}
	}
	return out
}

// hybridWindow sizes the packing window at half the section, clamped to
// the configured token range.
func hybridWindow(sectionTokens int, opts Options) int {
	w := sectionTokens / 2
	if w < opts.TargetLow {
		w = opts.TargetLow
	}
	if w > opts.TargetHigh {
		w = opts.TargetHigh
	}
	return w
}
