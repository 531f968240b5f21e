package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/vectorstore"
)

// testConfig mirrors the envconfig defaults without going through the
// environment.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Query.TopK = 5
	cfg.Query.RerankModel = "gpt-4o-mini"
	cfg.Query.RerankMaxCandidates = 20
	cfg.Query.ExpansionVariants = 3
	cfg.Query.ExpansionStyle = "paraphrase"
	cfg.Query.ExpansionModel = "gpt-4o-mini"
	cfg.Query.MaxContextTokens = 3000
	cfg.Query.CitationsMaxPerSource = 3
	return cfg
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, records []domain.StoredRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, docIDs []string) error {
	return m.Called(ctx, docIDs).Error(0)
}

func (m *mockStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error) {
	args := m.Called(ctx, vector, k, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchHit), args.Error(1)
}

func (m *mockStore) Stats(ctx context.Context) (vectorstore.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(vectorstore.Stats), args.Error(1)
}

func (m *mockStore) Close() error { return nil }

func hit(docID, text string, similarity float64) domain.SearchHit {
	return domain.SearchHit{DocID: docID, Text: text, Similarity: similarity}
}

// With all toggles off, the retriever must issue exactly one embed call
// carrying one text and exactly one search, and return at most top_k
// hits.
func TestRetriever_PlainQueryIsOneEmbedOneSearch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	embedder := new(mockEmbedder)
	store := new(mockStore)
	vector := []float32{0.1, 0.2}
	embedder.On("Embed", ctx, []string{"how do retries work?"}).Return([][]float32{vector}, nil).Once()
	store.On("Search", ctx, vector, 5, map[string]string(nil)).Return([]domain.SearchHit{
		hit("d1", "a", 0.9), hit("d2", "b", 0.8), hit("d3", "c", 0.7),
		hit("d4", "d", 0.6), hit("d5", "e", 0.5),
	}, nil).Once()

	r := NewRetriever(NewExpander(nil, cfg, nil), embedder, store, cfg, nil)
	hits, err := r.Retrieve(ctx, "how do retries work?")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), cfg.Query.TopK)

	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRetriever_EmptyQueryIsValidationError(t *testing.T) {
	cfg := testConfig()
	r := NewRetriever(NewExpander(nil, cfg, nil), new(mockEmbedder), new(mockStore), cfg, nil)

	_, err := r.Retrieve(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

// Dedup keeps the first occurrence of an exact text, which preserves
// the raw query's ranking over later probes'.
func TestRetriever_DedupKeepsFirstOccurrence(t *testing.T) {
	hits := []domain.SearchHit{
		{Text: "x", Similarity: 9},
		{Text: "x", Similarity: 5},
		{Text: "y", Similarity: 3},
	}
	out := dedupeByText(hits)
	require.Len(t, out, 2)
	assert.Equal(t, 9.0, out[0].Similarity, "the first occurrence wins")
	assert.Equal(t, "y", out[1].Text)
}

func TestRetriever_SimilarityFilter(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Query.SimilarityFilterEnabled = true
	cfg.Query.SimilarityThreshold = 0.5

	embedder := new(mockEmbedder)
	store := new(mockStore)
	vector := []float32{1}
	embedder.On("Embed", ctx, mock.Anything).Return([][]float32{vector}, nil)
	store.On("Search", ctx, vector, 5, map[string]string(nil)).Return([]domain.SearchHit{
		hit("d1", "keep", 0.9), hit("d2", "drop", 0.2),
	}, nil)

	r := NewRetriever(NewExpander(nil, cfg, nil), embedder, store, cfg, nil)
	hits, err := r.Retrieve(ctx, "q")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "keep", hits[0].Text)
}

func TestRetriever_ThresholdZeroIsNoOp(t *testing.T) {
	cfg := testConfig()
	cfg.Query.SimilarityFilterEnabled = true
	cfg.Query.SimilarityThreshold = 0

	r := NewRetriever(NewExpander(nil, cfg, nil), nil, nil, cfg, nil)
	hits := r.filterBySimilarity([]domain.SearchHit{hit("d1", "a", 0.01)})
	assert.Len(t, hits, 1)
}

// Expansion adds probes: every probe is embedded in the one embed call,
// and each probe's vector gets its own search.
func TestRetriever_ExpandedQueryFansOut(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Query.ExpansionEnabled = true

	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, "gpt-4o-mini", mock.Anything, mock.Anything).
		Return(`{"variants": ["probe one", "probe two"]}`, nil).Once()

	embedder := new(mockEmbedder)
	store := new(mockStore)
	v0, v1, v2 := []float32{0}, []float32{1}, []float32{2}
	embedder.On("Embed", ctx, []string{"q", "probe one", "probe two"}).
		Return([][]float32{v0, v1, v2}, nil).Once()
	store.On("Search", ctx, v0, 5, map[string]string(nil)).Return([]domain.SearchHit{hit("d1", "a", 0.9)}, nil).Once()
	store.On("Search", ctx, v1, 5, map[string]string(nil)).Return([]domain.SearchHit{hit("d2", "b", 0.8)}, nil).Once()
	store.On("Search", ctx, v2, 5, map[string]string(nil)).Return([]domain.SearchHit{hit("d1", "a", 0.7)}, nil).Once()

	r := NewRetriever(NewExpander(gen, cfg, nil), embedder, store, cfg, nil)
	hits, err := r.Retrieve(ctx, "q")
	require.NoError(t, err)
	require.Len(t, hits, 2, "duplicate text from the third probe dedups away")

	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
	gen.AssertExpectations(t)
}

type textSearchStore struct {
	mockStore
}

func (m *textSearchStore) SearchText(ctx context.Context, query string, k int, filters map[string]string) ([]domain.SearchHit, error) {
	args := m.Called(ctx, query, k, filters)
	return args.Get(0).([]domain.SearchHit), args.Error(1)
}

// Backends that search from raw text skip client-side embedding.
func TestRetriever_TextSearcherSkipsEmbedding(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	store := new(textSearchStore)
	store.On("SearchText", ctx, "q", 5, map[string]string(nil)).
		Return([]domain.SearchHit{hit("d1", "a", 0.9)}, nil).Once()

	r := NewRetriever(NewExpander(nil, cfg, nil), nil, store, cfg, nil)
	hits, err := r.Retrieve(ctx, "q")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	store.AssertExpectations(t)
}
