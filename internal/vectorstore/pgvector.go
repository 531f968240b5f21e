package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
)

func init() {
	Register(config.BackendPgvector, func(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (Store, error) {
		return NewPgvectorStore(ctx, cfg.VectorStore.PostgresDSN, dimensions, logger)
	})
}

// PgvectorStore persists records in Postgres with the pgvector
// extension. The chunks table is bootstrapped on open with the vector
// width of the configured embedding model.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *zap.Logger
}

func NewPgvectorStore(ctx context.Context, dsn string, dimensions int, logger *zap.Logger) (*PgvectorStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgvectorStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS quarry_chunks (
			id         text PRIMARY KEY,
			doc_id     text NOT NULL,
			title      text NOT NULL DEFAULT '',
			content    text NOT NULL,
			page       int NOT NULL DEFAULT 0,
			metadata   jsonb NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`, s.dimensions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS quarry_chunks_doc_id_idx ON quarry_chunks (doc_id)`); err != nil {
		return fmt.Errorf("failed to create doc_id index: %w", err)
	}

	// An existing table may have been created for a different model;
	// pgvector stores the declared width in atttypmod.
	var width int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'quarry_chunks'::regclass AND attname = 'embedding'`).Scan(&width)
	if err != nil {
		return fmt.Errorf("failed to inspect embedding column: %w", err)
	}
	if width != s.dimensions {
		return domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("chunks table has %d-dimensional embeddings but the embedding model produces %d", width, s.dimensions))
	}
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, records []domain.StoredRecord) error {
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", r.ID, err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO quarry_chunks (id, doc_id, title, content, page, metadata, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (id) DO UPDATE SET
				doc_id = EXCLUDED.doc_id,
				title = EXCLUDED.title,
				content = EXCLUDED.content,
				page = EXCLUDED.page,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = now()`,
			r.ID, r.DocID, r.Title, r.Text, r.Page, meta, pgvector.NewVector(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *PgvectorStore) Delete(ctx context.Context, docIDs []string) error {
	if containsDeleteAll(docIDs) {
		_, err := s.pool.Exec(ctx, `DELETE FROM quarry_chunks`)
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM quarry_chunks WHERE doc_id = ANY($1)`, docIDs)
	return err
}

func (s *PgvectorStore) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(vector)

	query := `
		SELECT doc_id, title, content, page, metadata,
		       1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM quarry_chunks`
	args := []interface{}{vec}
	if docID, ok := filters["doc_id"]; ok {
		query += ` WHERE doc_id = $2`
		args = append(args, docID)
	}
	query += fmt.Sprintf(` ORDER BY score DESC LIMIT %d`, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0, k)
	for rows.Next() {
		var hit domain.SearchHit
		var meta []byte
		if err := rows.Scan(&hit.DocID, &hit.Title, &hit.Text, &hit.Page, &meta, &hit.Similarity); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *PgvectorStore) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM quarry_chunks`).Scan(&count); err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend: config.BackendPgvector,
		Records: count,
		Extra:   map[string]string{"dimensions": fmt.Sprintf("%d", s.dimensions)},
	}, nil
}

func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}
