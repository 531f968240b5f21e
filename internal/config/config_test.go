package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/domain"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Chunking.Strategy = "recursive"
	cfg.Chunking.TargetLow = 300
	cfg.Chunking.TargetHigh = 700
	cfg.VectorStore.Backend = BackendMemory
	cfg.Query.TopK = 5
	cfg.Query.MaxContextTokens = 3000
	return cfg
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_UnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Chunking.Strategy = "semantic"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Backend = "chroma"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}

func TestValidate_TokenRange(t *testing.T) {
	cfg := validConfig()
	cfg.Chunking.TargetLow = 700
	cfg.Chunking.TargetHigh = 300
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Chunking.TargetLow = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Chunking.OverlapTokens = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_PgvectorRequiresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Backend = BackendPgvector
	assert.Error(t, cfg.Validate())

	cfg.VectorStore.PostgresDSN = "postgres://localhost/quarry"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_PluginRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Backend = BackendPlugin
	assert.Error(t, cfg.Validate())

	cfg.VectorStore.PluginPath = "/opt/quarry/store.so"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_QueryKnobs(t *testing.T) {
	cfg := validConfig()
	cfg.Query.TopK = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Query.MaxContextTokens = 0
	assert.Error(t, cfg.Validate())
}

func TestResolvedBackend_CustomAliasesPgvector(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Backend = "custom"
	assert.Equal(t, BackendPgvector, cfg.ResolvedBackend())

	cfg.VectorStore.Backend = BackendQdrant
	assert.Equal(t, BackendQdrant, cfg.ResolvedBackend())
}

func TestValidate_CustomAliasStillNeedsDSN(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Backend = "custom"
	assert.Error(t, cfg.Validate())

	cfg.VectorStore.PostgresDSN = "postgres://localhost/quarry"
	assert.NoError(t, cfg.Validate())
}
