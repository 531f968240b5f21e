// Package chunker splits cleaned documents into overlapping, token-bounded
// text spans. All strategies are pure and deterministic: the same document
// and options always produce the same chunks.
package chunker

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/tokens"
)

// Strategy names recognized by the factory.
const (
	StrategyRecursive = "recursive"
	StrategyHeading   = "heading"
	StrategyHybrid    = "hybrid"
	StrategyXMLAware  = "xml_aware"
	StrategyCustom    = "custom"
)

// Options controls the token geometry of produced chunks.
type Options struct {
	// TargetLow and TargetHigh bound each chunk's token length. A final
	// remainder chunk per section may fall below TargetLow.
	TargetLow  int
	TargetHigh int
	// OverlapTokens is carried from the tail of one chunk into the head
	// of the next at the final packing step.
	OverlapTokens int
}

// DefaultOptions provides sane defaults for chunking.
func DefaultOptions() Options {
	return Options{TargetLow: 300, TargetHigh: 700, OverlapTokens: 60}
}

// Chunker turns one document into a finite chunk sequence.
type Chunker interface {
	Chunk(doc *domain.RawDocument, opts Options) ([]domain.Chunk, error)
}

// piece is one chunk body before document metadata is attached.
// start/end are byte offsets into the chunked text, or -1 when the
// strategy does not track offsets.
type piece struct {
	text  string
	start int
	end   int
}

// bodyChunker splits a single body of text. Implemented by each strategy;
// the page-aware wrapper in chunkDocument handles pagination on top.
type bodyChunker interface {
	name() string
	chunkBody(text string, opts Options) []piece
}

var customChunker Chunker

// RegisterCustom installs an externally supplied chunker for the
// "custom" strategy. Intended for callers that load one out-of-tree.
func RegisterCustom(c Chunker) {
	customChunker = c
}

// New returns the chunker for the named strategy. Unknown names are
// configuration errors.
func New(strategy string) (Chunker, error) {
	switch strategy {
	case StrategyRecursive:
		return &docChunker{impl: &recursiveChunker{}}, nil
	case StrategyHeading:
		return &docChunker{impl: &headingChunker{}}, nil
	case StrategyHybrid:
		return &docChunker{impl: &hybridChunker{}}, nil
	case StrategyXMLAware:
		return &docChunker{impl: &xmlChunker{}}, nil
	case StrategyCustom:
		if customChunker == nil {
			return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "custom chunking strategy selected but none registered")
		}
		return customChunker, nil
	default:
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, fmt.Sprintf("unknown chunking strategy %q", strategy), domain.ErrUnknownStrategy)
	}
}

// docChunker applies a body strategy across a document, one page at a
// time when a paginated view exists so page boundaries are preserved.
type docChunker struct {
	impl bodyChunker
}

func (d *docChunker) Chunk(doc *domain.RawDocument, opts Options) ([]domain.Chunk, error) {
	opts = normalize(opts)

	if len(doc.Pages) > 0 {
		var out []domain.Chunk
		for _, page := range doc.Pages {
			pieces := d.impl.chunkBody(page.Text, opts)
			out = appendChunks(out, doc, d.impl.name(), page.Number, pieces)
		}
		return out, nil
	}

	text := strings.TrimSpace(doc.FullText)
	if text == "" {
		return []domain.Chunk{}, nil
	}
	pieces := d.impl.chunkBody(doc.FullText, opts)
	return appendChunks(nil, doc, d.impl.name(), 0, pieces), nil
}

func appendChunks(dst []domain.Chunk, doc *domain.RawDocument, strategy string, page int, pieces []piece) []domain.Chunk {
	for _, p := range pieces {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		idx := len(dst)
		dst = append(dst, domain.Chunk{
			ID:          domain.ChunkID(doc.ID, idx, text),
			DocID:       doc.ID,
			Text:        text,
			Page:        page,
			StartOffset: p.start,
			EndOffset:   p.end,
			Metadata: map[string]string{
				"title":    doc.Title,
				"strategy": strategy,
			},
		})
	}
	if dst == nil {
		dst = []domain.Chunk{}
	}
	return dst
}

func normalize(opts Options) Options {
	def := DefaultOptions()
	if opts.TargetHigh <= 0 {
		opts.TargetHigh = def.TargetHigh
	}
	if opts.TargetLow <= 0 || opts.TargetLow > opts.TargetHigh {
		opts.TargetLow = min(def.TargetLow, opts.TargetHigh)
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	// Overlap must leave forward progress within a window.
	if opts.OverlapTokens >= opts.TargetLow {
		opts.OverlapTokens = opts.TargetLow / 2
	}
	return opts
}

// packWindow splits text into windows of roughly windowTokens tokens,
// stepping back overlapTokens at each boundary. Used by the heading,
// hybrid, and xml strategies, which do not track source offsets.
func packWindow(text string, windowTokens, overlapTokens int) []string {
	words := tokens.SplitWords(text)
	if len(words) == 0 {
		return nil
	}
	if tokens.Estimate(text) <= windowTokens {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(words) {
		end := start
		count := 0
		for end < len(words) {
			wt := tokens.WordTokens(words[end])
			if count+wt > windowTokens && end > start {
				break
			}
			count += wt
			end++
		}

		out = append(out, joinWords(words[start:end]))
		if end >= len(words) {
			break
		}

		next := end
		if overlapTokens > 0 {
			back := 0
			for next > start+1 && back < overlapTokens {
				next--
				back += tokens.WordTokens(words[next])
			}
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func joinWords(words []tokens.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
