// Package ingest drives documents through chunking, embedding, and
// storage. A document either lands completely or not at all: any stage
// failure aborts the run and surfaces the stage's error unchanged.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/telemetry"
	"github.com/quarrylabs/quarry/internal/vectorstore"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result summarizes one ingestion run.
type Result struct {
	Documents int
	Chunks    int
	// Delegated is set when the backend accepted whole documents and
	// performed chunking and embedding itself.
	Delegated bool
}

// Pipeline ingests raw documents into the configured vector store.
type Pipeline struct {
	chunker  chunker.Chunker
	opts     chunker.Options
	embedder Embedder
	store    vectorstore.Store
	cfg      *config.Config
	logger   *zap.Logger
}

func NewPipeline(c chunker.Chunker, embedder Embedder, store vectorstore.Store, cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		chunker: c,
		opts: chunker.Options{
			TargetLow:     cfg.Chunking.TargetLow,
			TargetHigh:    cfg.Chunking.TargetHigh,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		},
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Ingest runs the full pipeline over docs. When the backend indexes
// whole documents itself, chunking and embedding are skipped and the
// documents are handed over as-is.
func (p *Pipeline) Ingest(ctx context.Context, docs []domain.RawDocument) (Result, error) {
	if len(docs) == 0 {
		return Result{}, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "ingest.run", telemetry.SpanAttributes{
		Backend: p.cfg.ResolvedBackend(),
	})
	defer span.End()

	if indexer, ok := p.store.(vectorstore.DocumentIndexer); ok {
		if err := indexer.IndexDocuments(ctx, docs); err != nil {
			span.SetError(err)
			return Result{}, fmt.Errorf("document indexing failed: %w", err)
		}
		telemetry.AddBreadcrumb(ctx, "ingest", "backend indexed documents itself")
		p.logger.Info("delegated ingestion to backend", zap.Int("documents", len(docs)))
		return Result{Documents: len(docs), Delegated: true}, nil
	}

	var chunks []domain.Chunk
	for i := range docs {
		docChunks, err := p.chunker.Chunk(&docs[i], p.opts)
		if err != nil {
			span.SetError(err)
			return Result{}, fmt.Errorf("chunking %s failed: %w", docs[i].ID, err)
		}
		telemetry.AddBreadcrumb(ctx, "chunk", docs[i].ID)
		chunks = append(chunks, docChunks...)
	}
	if len(chunks) == 0 {
		p.logger.Info("nothing to ingest", zap.Int("documents", len(docs)))
		return Result{Documents: len(docs)}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embedCtx, embedSpan := telemetry.StartSpan(ctx, "ingest.embed", telemetry.SpanAttributes{Stage: "embed"})
	vectors, err := p.embedder.Embed(embedCtx, texts)
	if err != nil {
		embedSpan.SetError(err)
		embedSpan.End()
		return Result{}, err
	}
	embedSpan.End()

	records := make([]domain.StoredRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.StoredRecord{
			ID:       c.ID,
			DocID:    c.DocID,
			Title:    c.Metadata["title"],
			Text:     c.Text,
			Page:     c.Page,
			Vector:   vectors[i],
			Metadata: c.Metadata,
		}
	}
	upsertCtx, upsertSpan := telemetry.StartSpan(ctx, "ingest.upsert", telemetry.SpanAttributes{Stage: "upsert"})
	if err := p.upsert(upsertCtx, records); err != nil {
		upsertSpan.SetError(err)
		upsertSpan.End()
		return Result{}, err
	}
	upsertSpan.End()

	p.logger.Info("ingested documents",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)
	return Result{Documents: len(docs), Chunks: len(chunks)}, nil
}

// upsert writes records in bounded-parallel batches with the same retry
// discipline as embedding. Batches are idempotent by record ID, so a
// retried batch that half-landed converges rather than duplicating.
func (p *Pipeline) upsert(ctx context.Context, records []domain.StoredRecord) error {
	batchSize := p.cfg.VectorStore.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = 128
	}
	policy := embed.RetryPolicy{
		MaxAttempts: p.cfg.VectorStore.UpsertAttempts,
		Backoff:     embed.DefaultBackoff(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embed.PoolSize(p.cfg.VectorStore.UpsertWorkers))
	for start := 0; start < len(records); start += batchSize {
		batch := records[start:min(start+batchSize, len(records))]
		g.Go(func() error {
			return policy.Run(gctx, p.logger, "upsert batch", func(ctx context.Context) error {
				return p.store.Upsert(ctx, batch)
			})
		})
	}
	return g.Wait()
}

// Delete removes every record belonging to the given doc IDs. The
// vectorstore.DeleteAll sentinel clears the store.
func (p *Pipeline) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	attrs := telemetry.SpanAttributes{Backend: p.cfg.ResolvedBackend(), Stage: "delete"}
	if len(docIDs) == 1 && docIDs[0] != vectorstore.DeleteAll {
		attrs.DocID = docIDs[0]
	}
	ctx, span := telemetry.StartSpan(ctx, "ingest.delete", attrs)
	defer span.End()
	if err := p.store.Delete(ctx, docIDs); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}
