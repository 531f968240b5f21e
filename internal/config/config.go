package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/quarrylabs/quarry/internal/domain"
)

// Backend names recognized by the vector store factory. "custom" is an
// accepted alias for "pgvector": the self-hosted database slot.
const (
	BackendManagedSearch = "managed_search"
	BackendPgvector      = "pgvector"
	BackendQdrant        = "qdrant"
	BackendMemory        = "memory"
	BackendPlugin        = "plugin"
)

// Config is the validated, immutable process configuration. Loaded once
// and passed by reference into every component; the engine treats it as
// read-only.
type Config struct {
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	SentryDSN string `envconfig:"SENTRY_DSN"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	Chunking    ChunkingConfig
	Embeddings  EmbeddingsConfig
	VectorStore VectorStoreConfig
	Query       QueryConfig

	S3 S3Config
}

type ChunkingConfig struct {
	Strategy      string `envconfig:"CHUNKING_STRATEGY" default:"recursive"`
	TargetLow     int    `envconfig:"CHUNKING_TARGET_LOW" default:"300"`
	TargetHigh    int    `envconfig:"CHUNKING_TARGET_HIGH" default:"700"`
	OverlapTokens int    `envconfig:"CHUNKING_OVERLAP_TOKENS" default:"60"`
}

type EmbeddingsConfig struct {
	Model          string        `envconfig:"EMBEDDINGS_MODEL" default:"text-embedding-3-small"`
	Dimensions     int           `envconfig:"EMBEDDINGS_DIMENSIONS" default:"1536"`
	BatchSize      int           `envconfig:"EMBEDDINGS_BATCH_SIZE" default:"64"`
	Workers        int           `envconfig:"EMBEDDINGS_WORKERS" default:"0"`
	MaxAttempts    int           `envconfig:"EMBEDDINGS_MAX_ATTEMPTS" default:"5"`
	RequestTimeout time.Duration `envconfig:"EMBEDDINGS_REQUEST_TIMEOUT" default:"30s"`
	// RequestsPerSecond rate-limits model calls client-side; zero disables.
	RequestsPerSecond float64 `envconfig:"EMBEDDINGS_RPS" default:"0"`
}

type VectorStoreConfig struct {
	Backend string `envconfig:"VECTOR_STORE_BACKEND" default:"memory"`

	// pgvector
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// qdrant
	QdrantHost       string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS     bool   `envconfig:"QDRANT_USE_TLS" default:"false"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"quarry_chunks"`

	// managed search service (weaviate)
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateAPIKey string `envconfig:"WEAVIATE_API_KEY"`
	WeaviateClass  string `envconfig:"WEAVIATE_CLASS" default:"QuarryChunk"`

	// plugin
	PluginPath string `envconfig:"VECTOR_STORE_PLUGIN_PATH"`

	UpsertBatchSize int `envconfig:"UPSERT_BATCH_SIZE" default:"128"`
	UpsertWorkers   int `envconfig:"UPSERT_WORKERS" default:"0"`
	UpsertAttempts  int `envconfig:"UPSERT_MAX_ATTEMPTS" default:"5"`
}

type QueryConfig struct {
	TopK int `envconfig:"QUERY_TOP_K" default:"5"`

	SimilarityFilterEnabled bool    `envconfig:"QUERY_SIMILARITY_FILTER_ENABLED" default:"false"`
	SimilarityThreshold     float64 `envconfig:"QUERY_SIMILARITY_THRESHOLD" default:"0"`

	RerankEnabled        bool    `envconfig:"QUERY_RERANK_ENABLED" default:"false"`
	RerankModel          string  `envconfig:"QUERY_RERANK_MODEL" default:"gpt-4o-mini"`
	RerankMaxCandidates  int     `envconfig:"QUERY_RERANK_MAX_CANDIDATES" default:"20"`
	RerankScoreThreshold float64 `envconfig:"QUERY_RERANK_SCORE_THRESHOLD" default:"0"`
	RerankWorkers        int     `envconfig:"QUERY_RERANK_WORKERS" default:"0"`

	ExpansionEnabled  bool   `envconfig:"QUERY_EXPANSION_ENABLED" default:"false"`
	ExpansionVariants int    `envconfig:"QUERY_EXPANSION_VARIANTS" default:"3"`
	ExpansionStyle    string `envconfig:"QUERY_EXPANSION_STYLE" default:"paraphrase"`
	ExpansionModel    string `envconfig:"QUERY_EXPANSION_MODEL" default:"gpt-4o-mini"`

	HyDEEnabled bool `envconfig:"QUERY_HYDE_ENABLED" default:"false"`

	MaxContextTokens      int `envconfig:"QUERY_MAX_CONTEXT_TOKENS" default:"3000"`
	CitationsMaxPerSource int `envconfig:"QUERY_CITATIONS_MAX_PER_SOURCE" default:"3"`

	// RequestTimeout bounds each expansion, HyDE, and rerank model call.
	RequestTimeout time.Duration `envconfig:"QUERY_REQUEST_TIMEOUT" default:"30s"`
}

type S3Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT"`
	AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	Bucket    string `envconfig:"S3_BUCKET"`
	Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

// Load reads configuration from the environment (and a .env file when
// present) and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("QUARRY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

var validStrategies = map[string]bool{
	"recursive": true, "heading": true, "hybrid": true, "xml_aware": true, "custom": true,
}

var validBackends = map[string]bool{
	BackendManagedSearch: true,
	BackendPgvector:      true,
	BackendQdrant:        true,
	BackendMemory:        true,
	BackendPlugin:        true,
}

// Validate rejects unknown strategy and backend names and inconsistent
// knobs. Configuration errors are fatal at construction time.
func (c *Config) Validate() error {
	if !validStrategies[c.Chunking.Strategy] {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("unknown chunking strategy %q", c.Chunking.Strategy), domain.ErrUnknownStrategy)
	}
	if c.Chunking.TargetLow <= 0 || c.Chunking.TargetHigh < c.Chunking.TargetLow {
		return domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("invalid chunking token range [%d, %d]", c.Chunking.TargetLow, c.Chunking.TargetHigh))
	}
	if c.Chunking.OverlapTokens < 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "chunking overlap must not be negative")
	}

	backend := c.ResolvedBackend()
	if !validBackends[backend] {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("unknown vector store backend %q", c.VectorStore.Backend), domain.ErrUnknownBackend)
	}
	switch backend {
	case BackendPgvector:
		if c.VectorStore.PostgresDSN == "" {
			return domain.NewDomainError(domain.ErrCodeConfiguration, "pgvector backend requires QUARRY_POSTGRES_DSN")
		}
	case BackendPlugin:
		if c.VectorStore.PluginPath == "" {
			return domain.NewDomainError(domain.ErrCodeConfiguration, "plugin backend requires QUARRY_VECTOR_STORE_PLUGIN_PATH")
		}
	}

	if c.Query.TopK <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "query top_k must be positive")
	}
	if c.Query.MaxContextTokens <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "query max_context_tokens must be positive")
	}
	return nil
}

// ResolvedBackend maps the "custom" alias onto the self-hosted database
// backend.
func (c *Config) ResolvedBackend() string {
	if c.VectorStore.Backend == "custom" {
		return BackendPgvector
	}
	return c.VectorStore.Backend
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasS3() bool {
	return c.S3.Endpoint != "" && c.S3.AccessKey != "" && c.S3.SecretKey != ""
}
