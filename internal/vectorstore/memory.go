package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

func init() {
	Register(config.BackendMemory, func(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is an exact cosine-similarity store used for tests and
// local development. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.StoredRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.StoredRecord)}
}

func (m *MemoryStore) Upsert(ctx context.Context, records []domain.StoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, docIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if containsDeleteAll(docIDs) {
		m.records = make(map[string]domain.StoredRecord)
		return nil
	}
	drop := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		drop[id] = true
	}
	for id, r := range m.records {
		if drop[r.DocID] {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]domain.SearchHit, 0, len(m.records))
	for _, r := range m.records {
		if !matchesFilters(r, filters) {
			continue
		}
		hits = append(hits, domain.SearchHit{
			DocID:      r.DocID,
			Title:      r.Title,
			Text:       r.Text,
			Page:       r.Page,
			Similarity: cosineSimilarity(vector, r.Vector),
			Metadata:   r.Metadata,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Backend: config.BackendMemory, Records: int64(len(m.records))}, nil
}

func (m *MemoryStore) Close() error { return nil }

func matchesFilters(r domain.StoredRecord, filters map[string]string) bool {
	for key, want := range filters {
		if key == "doc_id" {
			if r.DocID != want {
				return false
			}
			continue
		}
		if r.Metadata[key] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
