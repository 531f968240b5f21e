// Package vectorstore defines the backend-agnostic vector store
// contract and the concrete backends behind it. Backends register
// themselves in a factory keyed by the configured backend name;
// out-of-tree implementations load through the plugin backend.
package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

// DeleteAll is the reserved sentinel doc ID meaning "delete every record".
const DeleteAll = "*"

// Stats describes a backend's state and capability profile.
type Stats struct {
	Backend string
	Records int64
	// AcceptsDocuments reports whether the backend ingests whole
	// documents and performs its own chunking and embedding.
	AcceptsDocuments bool
	Extra            map[string]string
}

// Store is the contract every backend implements. Implementations must
// be safe for concurrent use; search and upsert may interleave.
type Store interface {
	// Upsert writes records, idempotent by record ID.
	Upsert(ctx context.Context, records []domain.StoredRecord) error
	// Delete removes all records belonging to the given doc IDs.
	// Passing the DeleteAll sentinel clears the store.
	Delete(ctx context.Context, docIDs []string) error
	// Search returns up to k hits ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// DocumentIndexer is the optional capability of managed backends that
// accept whole documents and chunk/embed them server-side.
type DocumentIndexer interface {
	IndexDocuments(ctx context.Context, docs []domain.RawDocument) error
}

// TextSearcher is the optional capability of backends that can search
// from raw query text without a client-side embedding.
type TextSearcher interface {
	SearchText(ctx context.Context, query string, k int, filters map[string]string) ([]domain.SearchHit, error)
}

// Factory builds a Store from configuration. dimensions is the vector
// width of the configured embedding model; backends that own a schema
// must ensure their collection exists with that width.
type Factory func(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error)

var registry = map[string]Factory{}

// Register installs a backend factory under name. Called from init
// functions of in-tree backends and from plugin registration hooks.
func Register(name string, f Factory) {
	registry[name] = f
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.ResolvedBackend()
	if name == config.BackendPlugin {
		if err := loadPlugin(cfg.VectorStore.PluginPath); err != nil {
			return nil, err
		}
	}
	factory, ok := registry[name]
	if !ok {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("no vector store backend registered as %q", name), domain.ErrUnknownBackend)
	}
	store, err := factory(ctx, cfg, dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", name, err)
	}
	return store, nil
}

func containsDeleteAll(docIDs []string) bool {
	for _, id := range docIDs {
		if id == DeleteAll {
			return true
		}
	}
	return false
}
