// Package embed turns lists of texts into vectors through batched,
// bounded-parallel calls to an embedding service, with retry under rate
// limits. The one invariant everything else leans on: output order
// matches input order no matter which batch finishes first.
package embed

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/domain"
)

// maxDefaultWorkers caps pool sizes derived from hardware parallelism.
const maxDefaultWorkers = 8

// BatchEmbedder is the embedding service collaborator.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Config controls batching and the worker pool.
type Config struct {
	Model     string
	BatchSize int
	// Workers bounds the pool; zero derives it from GOMAXPROCS capped
	// at maxDefaultWorkers.
	Workers        int
	MaxAttempts    int
	RequestTimeout time.Duration
	Backoff        Backoff
	// AttemptObserver is surfaced for tests that assert the retry schedule.
	AttemptObserver func(attempt int, delay time.Duration)
}

// Orchestrator fans batches out to a bounded worker pool and stitches
// results back into input order.
type Orchestrator struct {
	client BatchEmbedder
	cfg    Config
	logger *zap.Logger
}

// NewOrchestrator creates an Orchestrator. A nil logger is replaced
// with a no-op one.
func NewOrchestrator(client BatchEmbedder, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	return &Orchestrator{client: client, cfg: cfg, logger: logger}
}

// PoolSize resolves a configured worker count, deriving a default from
// available parallelism when unset.
func PoolSize(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.GOMAXPROCS(0)
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Embed returns one vector per input text, in input order. A batch that
// exhausts its retries fails the whole call; partial results are never
// returned.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	policy := RetryPolicy{
		MaxAttempts:     o.cfg.MaxAttempts,
		PerCallTimeout:  o.cfg.RequestTimeout,
		Backoff:         o.cfg.Backoff,
		AttemptObserver: o.cfg.AttemptObserver,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(PoolSize(o.cfg.Workers))

	for start := 0; start < len(texts); start += o.cfg.BatchSize {
		start := start
		end := min(start+o.cfg.BatchSize, len(texts))
		g.Go(func() error {
			return policy.Run(gctx, o.logger, "embed batch", func(ctx context.Context) error {
				vectors, err := o.client.EmbedBatch(ctx, texts[start:end], o.cfg.Model)
				if err != nil {
					return err
				}
				if len(vectors) != end-start {
					return domain.ErrNoEmbeddings
				}
				// Each batch owns a disjoint slice of results, so no
				// locking is needed to stitch by input index.
				copy(results[start:end], vectors)
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	o.logger.Debug("embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("batch_size", o.cfg.BatchSize),
	)
	return results, nil
}
