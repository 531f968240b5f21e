// Package cli implements the quarry subcommands. Each command builds
// just the pipeline it needs from configuration and tears it down on
// exit.
package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/logging"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/telemetry"
	"github.com/quarrylabs/quarry/internal/vectorstore"
)

// engine bundles the constructed pipelines and their teardown.
type engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *llm.Client
	store    vectorstore.Store
	ingestor *ingest.Pipeline
	querier  *query.Pipeline

	shutdownTelemetry func()
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:   cfg.SentryDSN,
		Debug: cfg.Debug,
	})
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(llm.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingDimensions: cfg.Embeddings.Dimensions,
		RequestsPerSecond:   cfg.Embeddings.RequestsPerSecond,
	})

	store, err := vectorstore.Open(ctx, cfg, client.Dimensions(), logger)
	if err != nil {
		shutdown()
		return nil, err
	}

	c, err := chunker.New(cfg.Chunking.Strategy)
	if err != nil {
		store.Close()
		shutdown()
		return nil, err
	}
	orchestrator := embed.NewOrchestrator(client, embed.Config{
		Model:          cfg.Embeddings.Model,
		BatchSize:      cfg.Embeddings.BatchSize,
		Workers:        cfg.Embeddings.Workers,
		MaxAttempts:    cfg.Embeddings.MaxAttempts,
		RequestTimeout: cfg.Embeddings.RequestTimeout,
	}, logger)

	expander := query.NewExpander(client, cfg, logger)
	retriever := query.NewRetriever(expander, orchestrator, store, cfg, logger)
	reranker := query.NewReranker(client, cfg, logger)

	return &engine{
		cfg:               cfg,
		logger:            logger,
		client:            client,
		store:             store,
		ingestor:          ingest.NewPipeline(c, orchestrator, store, cfg, logger),
		querier:           query.NewPipeline(retriever, reranker, cfg, logger),
		shutdownTelemetry: shutdown,
	}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close vector store", zap.Error(err))
	}
	e.shutdownTelemetry()
	_ = e.logger.Sync()
}

// reportError captures err before it surfaces to the user.
func (e *engine) reportError(ctx context.Context, err error) error {
	if err != nil {
		telemetry.CaptureError(ctx, err)
	}
	return err
}

func requireOpenAI(cfg *config.Config) error {
	if !cfg.HasOpenAI() {
		return fmt.Errorf("QUARRY_OPENAI_API_KEY is required for this command")
	}
	return nil
}
