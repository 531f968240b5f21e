package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

func init() {
	Register(config.BackendQdrant, func(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error) {
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.VectorStore.QdrantHost,
			Port:       cfg.VectorStore.QdrantPort,
			APIKey:     cfg.VectorStore.QdrantAPIKey,
			UseTLS:     cfg.VectorStore.QdrantUseTLS,
			Collection: cfg.VectorStore.QdrantCollection,
			Dimensions: dimensions,
		}, logger)
	})
}

// QdrantConfig holds connection settings for the qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// QdrantStore keeps records in a qdrant collection. The collection is
// created on open with the embedding model's vector width when absent.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	s.logger.Info("created qdrant collection",
		zap.String("collection", s.collection),
		zap.Int("dimensions", s.dimensions),
	)
	return nil
}

// pointID derives a deterministic UUID from the content-addressed chunk
// ID, which is what makes re-upserts of the same chunk idempotent.
func pointID(recordID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String())
}

func (s *QdrantStore) Upsert(ctx context.Context, records []domain.StoredRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload := map[string]any{
			"chunk_id": r.ID,
			"doc_id":   r.DocID,
			"title":    r.Title,
			"content":  r.Text,
			"page":     int64(r.Page),
		}
		for k, v := range r.Metadata {
			payload["meta_"+k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Delete(ctx context.Context, docIDs []string) error {
	filter := &qdrant.Filter{}
	if !containsDeleteAll(docIDs) {
		for _, id := range docIDs {
			filter.Should = append(filter.Should, qdrant.NewMatch("doc_id", id))
		}
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		filter := &qdrant.Filter{}
		for key, val := range filters {
			field := key
			if field != "doc_id" {
				field = "meta_" + field
			}
			filter.Must = append(filter.Must, qdrant.NewMatch(field, val))
		}
		req.Filter = filter
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		hit := domain.SearchHit{Similarity: float64(p.Score)}
		if v, ok := p.Payload["doc_id"]; ok {
			hit.DocID = v.GetStringValue()
		}
		if v, ok := p.Payload["title"]; ok {
			hit.Title = v.GetStringValue()
		}
		if v, ok := p.Payload["content"]; ok {
			hit.Text = v.GetStringValue()
		}
		if v, ok := p.Payload["page"]; ok {
			hit.Page = int(v.GetIntegerValue())
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend: config.BackendQdrant,
		Records: int64(count),
		Extra:   map[string]string{"collection": s.collection},
	}, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
