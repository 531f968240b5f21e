package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/telemetry"
)

// Result is the outcome of one query: the ranked hits that fit the
// context budget and the rendered context itself.
type Result struct {
	Query string
	// Hits is the packed, rank-ordered subset of candidates.
	Hits []domain.SearchHit
	// Candidates is how many deduplicated hits ranking saw.
	Candidates int
	Context    string
}

// Pipeline composes the query-time stages. A stage error aborts the
// whole call; there is no partial result.
type Pipeline struct {
	retriever *Retriever
	reranker  *Reranker
	cfg       *config.Config
	logger    *zap.Logger
}

func NewPipeline(retriever *Retriever, reranker *Reranker, cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{retriever: retriever, reranker: reranker, cfg: cfg, logger: logger}
}

// Query runs retrieve → rerank → pack and returns the assembled
// context.
func (p *Pipeline) Query(ctx context.Context, query string) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "query.run", telemetry.SpanAttributes{
		Backend: p.cfg.ResolvedBackend(),
	})
	defer span.End()

	retrieveCtx, retrieveSpan := telemetry.StartSpan(ctx, "query.retrieve", telemetry.SpanAttributes{Stage: "retrieve"})
	candidates, err := p.retriever.Retrieve(retrieveCtx, query)
	if err != nil {
		retrieveSpan.SetError(err)
		retrieveSpan.End()
		return Result{}, err
	}
	retrieveSpan.End()

	rerankCtx, rerankSpan := telemetry.StartSpan(ctx, "query.rerank", telemetry.SpanAttributes{Stage: "rerank"})
	ranked, err := p.reranker.Rerank(rerankCtx, query, candidates)
	if err != nil {
		rerankSpan.SetError(err)
		rerankSpan.End()
		return Result{}, err
	}
	rerankSpan.End()

	packed := Pack(ranked, p.cfg.Query.MaxContextTokens)

	p.logger.Debug("query completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("packed", len(packed)),
	)
	return Result{
		Query:      query,
		Hits:       packed,
		Candidates: len(candidates),
		Context:    BuildContext(packed),
	}, nil
}

// Citations attributes an externally generated answer back to the hits
// that formed its context.
func (p *Pipeline) Citations(answer string, hits []domain.SearchHit) []domain.Citation {
	return ExtractCitations(answer, hits, p.cfg.Query.CitationsMaxPerSource)
}
