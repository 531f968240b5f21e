package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/vectorstore"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fans a query (and its expansion probes) out against the
// vector store and reduces the hits to a deduplicated candidate set.
type Retriever struct {
	expander *Expander
	embedder Embedder
	store    vectorstore.Store
	cfg      *config.Config
	logger   *zap.Logger
}

func NewRetriever(expander *Expander, embedder Embedder, store vectorstore.Store, cfg *config.Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{expander: expander, embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Retrieve returns the deduplicated, similarity-filtered candidate set
// for query, unranked beyond each search's own ordering. The raw query
// is always the first probe, so on text collisions its hits win.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.SearchHit, error) {
	if query == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "query must not be empty", domain.ErrEmptyQuery)
	}

	probes := []string{query}
	probes = append(probes, r.expander.Expand(ctx, query)...)
	probes = append(probes, r.expander.HyDE(ctx, query)...)

	hits, err := r.search(ctx, probes)
	if err != nil {
		return nil, err
	}

	hits = r.filterBySimilarity(hits)
	hits = dedupeByText(hits)
	r.logger.Debug("retrieved candidates",
		zap.Int("probes", len(probes)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// search embeds every probe in one call and issues one vector search
// per probe. Backends that search from raw text skip the embedding step
// entirely.
func (r *Retriever) search(ctx context.Context, probes []string) ([]domain.SearchHit, error) {
	k := r.cfg.Query.TopK

	if ts, ok := r.store.(vectorstore.TextSearcher); ok {
		var hits []domain.SearchHit
		for _, probe := range probes {
			probeHits, err := ts.SearchText(ctx, probe, k, nil)
			if err != nil {
				return nil, err
			}
			hits = append(hits, probeHits...)
		}
		return hits, nil
	}

	vectors, err := r.embedder.Embed(ctx, probes)
	if err != nil {
		return nil, err
	}
	var hits []domain.SearchHit
	for _, vector := range vectors {
		vectorHits, err := r.store.Search(ctx, vector, k, nil)
		if err != nil {
			return nil, err
		}
		hits = append(hits, vectorHits...)
	}
	return hits, nil
}

// filterBySimilarity drops hits below the configured similarity
// threshold. Disabled or non-positive thresholds are a no-op.
func (r *Retriever) filterBySimilarity(hits []domain.SearchHit) []domain.SearchHit {
	if !r.cfg.Query.SimilarityFilterEnabled || r.cfg.Query.SimilarityThreshold <= 0 {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Similarity >= r.cfg.Query.SimilarityThreshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// dedupeByText keeps the first occurrence of each exact chunk text, so
// a collision resolves in favor of the earlier probe's ranking.
func dedupeByText(hits []domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]bool, len(hits))
	kept := hits[:0]
	for _, h := range hits {
		if seen[h.Text] {
			continue
		}
		seen[h.Text] = true
		kept = append(kept, h)
	}
	return kept
}
