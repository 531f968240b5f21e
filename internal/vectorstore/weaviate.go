package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

func init() {
	Register(config.BackendManagedSearch, func(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error) {
		return NewWeaviateStore(ctx, WeaviateConfig{
			Host:   cfg.VectorStore.WeaviateHost,
			Scheme: cfg.VectorStore.WeaviateScheme,
			APIKey: cfg.VectorStore.WeaviateAPIKey,
			Class:  cfg.VectorStore.WeaviateClass,
		}, logger)
	})
}

// WeaviateConfig holds connection settings for the managed search backend.
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
}

// WeaviateStore is the managed search-service backend. The service
// vectorizes content itself (text2vec module), so ingestion can hand it
// whole documents and skip the engine's chunker and embedder; querying
// can run from raw text.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
	logger *zap.Logger
}

var _ DocumentIndexer = (*WeaviateStore)(nil)
var _ TextSearcher = (*WeaviateStore)(nil)

func NewWeaviateStore(ctx context.Context, cfg WeaviateConfig, logger *zap.Logger) (*WeaviateStore, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	clientConfig := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateStore{client: client, class: cfg.Class, logger: logger}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.class,
		Vectorizer: "text2vec-openai",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "docId", DataType: []string{"text"}},
			{Name: "page", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class: %w", err)
	}
	s.logger.Info("created weaviate class", zap.String("class", s.class))
	return nil
}

func objectID(id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// IndexDocuments uploads whole documents; the service chunks and
// vectorizes them internally.
func (s *WeaviateStore) IndexDocuments(ctx context.Context, docs []domain.RawDocument) error {
	objects := make([]*models.Object, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		objects = append(objects, &models.Object{
			Class: s.class,
			ID:    objectID(doc.ID),
			Properties: map[string]interface{}{
				"content": doc.Text(),
				"title":   doc.Title,
				"docId":   doc.ID,
				"page":    0,
			},
		})
	}
	return s.batchWrite(ctx, objects)
}

// Upsert writes pre-vectorized records; idempotent because object IDs
// derive from record IDs.
func (s *WeaviateStore) Upsert(ctx context.Context, records []domain.StoredRecord) error {
	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objects = append(objects, &models.Object{
			Class:  s.class,
			ID:     objectID(r.ID),
			Vector: models.C11yVector(r.Vector),
			Properties: map[string]interface{}{
				"content": r.Text,
				"title":   r.Title,
				"docId":   r.DocID,
				"page":    r.Page,
			},
		})
	}
	return s.batchWrite(ctx, objects)
}

// classifyWeaviate maps client failures onto the error taxonomy. The
// client wraps HTTP failures in WeaviateClientError; 4xx request errors
// are permanent, rate limits, server errors, and transport failures are
// worth retrying.
func classifyWeaviate(err error) error {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		code := clientErr.StatusCode
		if code == 429 || code >= 500 || code <= 0 {
			return domain.Transient(err)
		}
		return err
	}
	return domain.Transient(err)
}

func (s *WeaviateStore) batchWrite(ctx context.Context, objects []*models.Object) error {
	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return classifyWeaviate(fmt.Errorf("weaviate batch write failed: %w", err))
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate rejected object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *WeaviateStore) Delete(ctx context.Context, docIDs []string) error {
	where := filters.Where().WithPath([]string{"docId"})
	if containsDeleteAll(docIDs) {
		where = where.WithOperator(filters.Like).WithValueText("*")
	} else {
		where = where.WithOperator(filters.ContainsAny).WithValueText(docIDs...)
	}
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate delete failed: %w", err)
	}
	return nil
}

func (s *WeaviateStore) Search(ctx context.Context, vector []float32, k int, filterMap map[string]string) ([]domain.SearchHit, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	query := s.client.GraphQL().Get().WithClassName(s.class).WithNearVector(near)
	return s.runSearch(ctx, query, k, filterMap)
}

// SearchText queries from raw text, letting the service embed the query
// itself.
func (s *WeaviateStore) SearchText(ctx context.Context, text string, k int, filterMap map[string]string) ([]domain.SearchHit, error) {
	near := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{text})
	query := s.client.GraphQL().Get().WithClassName(s.class).WithNearText(near)
	return s.runSearch(ctx, query, k, filterMap)
}

func (s *WeaviateStore) runSearch(ctx context.Context, query *graphql.GetBuilder, k int, filterMap map[string]string) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "docId"},
		{Name: "page"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
	if docID, ok := filterMap["doc_id"]; ok {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"docId"}).
			WithOperator(filters.Equal).
			WithValueText(docID))
	}

	resp, err := query.WithFields(fields...).WithLimit(k).Do(ctx)
	if err != nil {
		return nil, classifyWeaviate(fmt.Errorf("weaviate search failed: %w", err))
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", resp.Errors[0].Message)
	}
	return s.parseHits(resp), nil
}

func (s *WeaviateStore) parseHits(resp *models.GraphQLResponse) []domain.SearchHit {
	hits := []domain.SearchHit{}
	data, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return hits
	}
	items, ok := data[s.class].([]interface{})
	if !ok {
		return hits
	}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hit := domain.SearchHit{}
		if v, ok := m["content"].(string); ok {
			hit.Text = v
		}
		if v, ok := m["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := m["docId"].(string); ok {
			hit.DocID = v
		}
		if v, ok := m["page"].(float64); ok {
			hit.Page = int(v)
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if v, ok := add["certainty"].(float64); ok {
				hit.Similarity = v
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

func (s *WeaviateStore) Stats(ctx context.Context) (Stats, error) {
	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Backend: config.BackendManagedSearch, AcceptsDocuments: true}
	if data, ok := resp.Data["Aggregate"].(map[string]interface{}); ok {
		if items, ok := data[s.class].([]interface{}); ok && len(items) > 0 {
			if m, ok := items[0].(map[string]interface{}); ok {
				if meta, ok := m["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						stats.Records = int64(count)
					}
				}
			}
		}
	}
	return stats, nil
}

func (s *WeaviateStore) Close() error { return nil }
