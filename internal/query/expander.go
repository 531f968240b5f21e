// Package query implements the per-query retrieval pipeline: probe
// expansion, vector search fan-out, logprob reranking, token-budget
// packing, and citation extraction.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
)

// Generator is the text-generation collaborator. Responses are JSON
// documents; callers validate them against their own schema.
type Generator interface {
	Generate(ctx context.Context, model, system, user string) (string, error)
}

// Expander produces additional search probes for a query: paraphrase or
// keyword variants, and an optional hypothetical answer passage (HyDE).
// Both are config-gated and degrade to no probes on malformed model
// output; expansion never fails a query.
type Expander struct {
	gen    Generator
	cfg    *config.Config
	logger *zap.Logger
}

func NewExpander(gen Generator, cfg *config.Config, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{gen: gen, cfg: cfg, logger: logger}
}

const expandSystemPrompt = `You rewrite search queries to improve recall.
Respond with a JSON object of the form {"variants": ["...", "..."]}.
Each variant must be a self-contained search query. No commentary.`

const hydeSystemPrompt = `You write a short hypothetical passage that would answer the question, as if quoted from a reference document.
Respond with a JSON object of the form {"passage": "..."}. No commentary.`

// generate runs one model call under the query-stage request timeout.
func (e *Expander) generate(ctx context.Context, system, user string) (string, error) {
	if t := e.cfg.Query.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return e.gen.Generate(ctx, e.cfg.Query.ExpansionModel, system, user)
}

// Expand returns up to the configured number of query variants. Returns
// no variants when expansion is disabled or the model output does not
// match the schema.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	if !e.cfg.Query.ExpansionEnabled || e.gen == nil {
		return []string{}
	}

	user := fmt.Sprintf("Produce %d %s variants of this query: %s",
		e.cfg.Query.ExpansionVariants, e.cfg.Query.ExpansionStyle, query)
	raw, err := e.generate(ctx, expandSystemPrompt, user)
	if err != nil {
		e.logger.Warn("query expansion failed, continuing without variants", zap.Error(err))
		return []string{}
	}

	var parsed struct {
		Variants []string `json:"variants"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Warn("query expansion returned malformed JSON, continuing without variants", zap.Error(err))
		return []string{}
	}

	variants := make([]string, 0, len(parsed.Variants))
	for _, v := range parsed.Variants {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, query) {
			continue
		}
		variants = append(variants, v)
		if len(variants) == e.cfg.Query.ExpansionVariants {
			break
		}
	}
	return variants
}

// HyDE returns a hypothetical answer passage to use as a search probe,
// or no probes when disabled or on malformed output.
func (e *Expander) HyDE(ctx context.Context, query string) []string {
	if !e.cfg.Query.HyDEEnabled || e.gen == nil {
		return []string{}
	}

	raw, err := e.generate(ctx, hydeSystemPrompt, query)
	if err != nil {
		e.logger.Warn("hyde generation failed, continuing without passage", zap.Error(err))
		return []string{}
	}

	var parsed struct {
		Passage string `json:"passage"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Warn("hyde returned malformed JSON, continuing without passage", zap.Error(err))
		return []string{}
	}
	passage := strings.TrimSpace(parsed.Passage)
	if passage == "" {
		return []string{}
	}
	return []string{passage}
}
