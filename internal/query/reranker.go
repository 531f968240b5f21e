package query

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/llm"
)

// Judge is the relevance-judgment collaborator.
type Judge interface {
	Judge(ctx context.Context, model, query, passage string) (llm.Judgment, error)
}

// Reranker re-scores candidate hits against the original query. Each
// judged hit gets a probability derived from the yes/no label
// log-probabilities; hits outside the candidate window keep their
// similarity score for ordering.
type Reranker struct {
	judge  Judge
	cfg    *config.Config
	logger *zap.Logger
}

func NewReranker(judge Judge, cfg *config.Config, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{judge: judge, cfg: cfg, logger: logger}
}

// Rerank judges up to max_candidates hits concurrently and returns the
// full set sorted by descending score. Disabled reranking passes hits
// through untouched. A malformed judgment leaves that one hit on its
// similarity score rather than failing the query; transient judgment
// failures retry and, exhausted, fail the stage.
func (r *Reranker) Rerank(ctx context.Context, query string, hits []domain.SearchHit) ([]domain.SearchHit, error) {
	if !r.cfg.Query.RerankEnabled || r.judge == nil || len(hits) == 0 {
		return hits, nil
	}

	candidates := len(hits)
	if max := r.cfg.Query.RerankMaxCandidates; max > 0 && candidates > max {
		candidates = max
	}

	policy := embed.RetryPolicy{
		PerCallTimeout: r.cfg.Query.RequestTimeout,
		Backoff:        embed.DefaultBackoff(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embed.PoolSize(r.cfg.Query.RerankWorkers))
	for i := 0; i < candidates; i++ {
		hit := &hits[i]
		g.Go(func() error {
			var judgment llm.Judgment
			err := policy.Run(gctx, r.logger, "relevance judgment", func(ctx context.Context) error {
				var err error
				judgment, err = r.judge.Judge(ctx, r.cfg.Query.RerankModel, query, hit.Text)
				return err
			})
			if err != nil {
				if domain.IsMalformed(err) {
					r.logger.Warn("unusable relevance judgment, keeping similarity score",
						zap.String("doc_id", hit.DocID), zap.Error(err))
					return nil
				}
				return err
			}
			hit.RerankScore = RerankScore(judgment.YesLogProb, judgment.NoLogProb)
			hit.Reranked = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits = r.filterByScore(hits)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].SortScore() > hits[j].SortScore() })
	return hits, nil
}

// RerankScore converts the two label log-probabilities into the
// probability of "yes" via a numerically stable two-way softmax:
// 1 / (1 + exp(no_lp - yes_lp)). Strictly within (0,1) and monotone in
// yes_lp - no_lp.
func RerankScore(yesLogProb, noLogProb float64) float64 {
	return 1.0 / (1.0 + math.Exp(noLogProb-yesLogProb))
}

// filterByScore drops judged hits below the configured rerank
// threshold; a non-positive threshold disables dropping. Unjudged hits
// are never dropped here, the similarity gate already had its turn.
func (r *Reranker) filterByScore(hits []domain.SearchHit) []domain.SearchHit {
	threshold := r.cfg.Query.RerankScoreThreshold
	if threshold <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Reranked && h.RerankScore < threshold {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}
