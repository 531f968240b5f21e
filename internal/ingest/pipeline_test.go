package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/vectorstore"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Chunking.Strategy = "recursive"
	cfg.Chunking.TargetLow = 300
	cfg.Chunking.TargetHigh = 700
	cfg.Chunking.OverlapTokens = 60
	cfg.VectorStore.UpsertBatchSize = 128
	cfg.VectorStore.UpsertAttempts = 3
	return cfg
}

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, embedder Embedder, store vectorstore.Store) *Pipeline {
	t.Helper()
	cfg := testConfig()
	c, err := chunker.New(cfg.Chunking.Strategy)
	require.NoError(t, err)
	return NewPipeline(c, embedder, store, cfg, nil)
}

func TestPipeline_IngestStoresOneRecordPerChunk(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{}
	p := newTestPipeline(t, embedder, store)

	doc := domain.RawDocument{
		ID:       "doc-1",
		Title:    "Guide",
		FullText: "The pipeline chunks text, embeds the chunks, and writes records. Short documents become one chunk.",
	}
	result, err := p.Ingest(ctx, []domain.RawDocument{doc})
	require.NoError(t, err)
	assert.False(t, result.Delegated)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, embedder.calls, "all chunk texts go through one embed call")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(result.Chunks), stats.Records)

	hits, err := store.Search(ctx, []float32{0, 1}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Equal(t, "Guide", hits[0].Title)
}

func TestPipeline_ReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	p := newTestPipeline(t, &stubEmbedder{}, store)

	doc := domain.RawDocument{ID: "doc-1", FullText: "Same text both times, same chunk ids both times."}
	first, err := p.Ingest(ctx, []domain.RawDocument{doc})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, []domain.RawDocument{doc})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(first.Chunks), stats.Records, "re-ingestion overwrites, it does not duplicate")
}

func TestPipeline_EmbedFailureAbortsWholeIngest(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{err: errors.New("embedding service down")}
	p := newTestPipeline(t, embedder, store)

	_, err := p.Ingest(ctx, []domain.RawDocument{{ID: "doc-1", FullText: "some text"}})
	require.Error(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Records, "nothing lands when a stage fails")
}

func TestPipeline_EmptyDocumentsIngestNothing(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{}
	p := newTestPipeline(t, embedder, store)

	result, err := p.Ingest(ctx, []domain.RawDocument{{ID: "doc-1", FullText: "   "}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Chunks)
	assert.Equal(t, 0, embedder.calls, "no chunks, no embedding call")

	result, err = p.Ingest(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Documents)
}

// indexerStore accepts whole documents, like a managed search service.
type indexerStore struct {
	*vectorstore.MemoryStore
	mock.Mock
}

func (s *indexerStore) IndexDocuments(ctx context.Context, docs []domain.RawDocument) error {
	return s.Called(ctx, docs).Error(0)
}

func TestPipeline_DelegatesToDocumentIndexer(t *testing.T) {
	ctx := context.Background()
	store := &indexerStore{MemoryStore: vectorstore.NewMemoryStore()}
	embedder := &stubEmbedder{}
	p := newTestPipeline(t, embedder, store)

	docs := []domain.RawDocument{{ID: "doc-1", FullText: "whole document"}}
	store.On("IndexDocuments", mock.Anything, docs).Return(nil).Once()

	result, err := p.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.True(t, result.Delegated)
	assert.Equal(t, 0, embedder.calls, "chunking and embedding are bypassed")
	store.AssertExpectations(t)
}

func TestPipeline_Delete(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	p := newTestPipeline(t, &stubEmbedder{}, store)

	_, err := p.Ingest(ctx, []domain.RawDocument{
		{ID: "doc-1", FullText: "first document body"},
		{ID: "doc-2", FullText: "second document body"},
	})
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, []string{"doc-1"}))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Records)

	require.NoError(t, p.Delete(ctx, nil), "deleting nothing is a no-op")
}
