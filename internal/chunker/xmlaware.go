package chunker

import (
	"encoding/xml"
	"io"
	"strings"
)

// xmlChunker parses markup sources into structural blocks, converting
// tabular regions to a normalized row/column text form before packing.
// If the markup does not parse, it falls back to the hybrid strategy.
type xmlChunker struct{}

func (x *xmlChunker) name() string { return StrategyXMLAware }

var blockElements = map[string]bool{
	"p": true, "para": true, "div": true, "section": true, "sec": true,
	"title": true, "h1": true, "h2": true, "h3": true, "abstract": true,
	"li": true, "item": true, "caption": true,
}

var tableElements = map[string]bool{"table": true, "tbl": true}
var rowElements = map[string]bool{"tr": true, "row": true}
var cellElements = map[string]bool{"td": true, "th": true, "cell": true, "entry": true}

func (x *xmlChunker) chunkBody(text string, opts Options) []piece {
	blocks, err := parseBlocks(text)
	if err != nil || len(blocks) == 0 {
		fallback := &hybridChunker{}
		return fallback.chunkBody(text, opts)
	}

	joined := strings.Join(blocks, "\n\n")
	window := hybridWindow(len(joined)/4, opts)
	var out []piece
	for _, w := range packWindow(joined, window, opts.OverlapTokens) {
		out = append(out, piece{text: w, start: -1, end: -1})
	}
	return out
}

// parseBlocks walks the XML token stream collecting block-level text.
// Tables become one block of "cell | cell | cell" rows.
func parseBlocks(text string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = false

	var blocks []string
	var block strings.Builder
	var tableRows []string
	var row []string
	var cell strings.Builder
	depthTable := 0
	inCell := false

	flushBlock := func() {
		b := strings.TrimSpace(block.String())
		block.Reset()
		if b != "" {
			blocks = append(blocks, b)
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			switch {
			case tableElements[name]:
				flushBlock()
				depthTable++
			case depthTable > 0 && rowElements[name]:
				row = row[:0]
			case depthTable > 0 && cellElements[name]:
				inCell = true
				cell.Reset()
			case blockElements[name] && depthTable == 0:
				flushBlock()
			}
		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			switch {
			case tableElements[name]:
				depthTable--
				if depthTable <= 0 {
					depthTable = 0
					if len(tableRows) > 0 {
						blocks = append(blocks, strings.Join(tableRows, "\n"))
						tableRows = tableRows[:0]
					}
				}
			case depthTable > 0 && rowElements[name]:
				if len(row) > 0 {
					tableRows = append(tableRows, strings.Join(row, " | "))
					row = row[:0]
				}
			case depthTable > 0 && cellElements[name]:
				inCell = false
				row = append(row, strings.Join(strings.Fields(cell.String()), " "))
			case blockElements[name] && depthTable == 0:
				flushBlock()
			}
		case xml.CharData:
			s := string(t)
			if inCell {
				cell.WriteString(s)
			} else if depthTable == 0 {
				block.WriteString(s)
			}
		}
	}
	flushBlock()
	return blocks, nil
}
