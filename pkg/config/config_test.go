package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresCredentialsKey(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIALS_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "unit-test-key")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "8460", cfg.Port)
	assert.Equal(t, 20, cfg.Search.MaxConcurrency)
	assert.Equal(t, 30, cfg.Search.OverallDeadlineSeconds)
	assert.Equal(t, 30, cfg.Search.SourceTimeoutSeconds)
	assert.Equal(t, 10, cfg.Datasource.PoolMaxConns)
	assert.Equal(t, 5, cfg.AI.TimeoutSeconds)
	assert.InDelta(t, 0.3, cfg.Search.SemanticBlendWeight, 1e-9)
	assert.False(t, cfg.AI.IsAvailable())
}

func TestLoadCapsConcurrencyAtCeiling(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "unit-test-key")
	t.Setenv("SEARCH_MAX_CONCURRENCY", "500")

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, HardConcurrencyCeiling, cfg.Search.MaxConcurrency)
}

func TestLoadRejectsBadBlendWeight(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "unit-test-key")
	t.Setenv("SEARCH_SEMANTIC_BLEND_WEIGHT", "1.5")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic_blend_weight")
}

func TestDatabaseConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "fedsearch",
		Password: "pw", Database: "fedsearch_engine", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=fedsearch password=pw dbname=fedsearch_engine sslmode=disable",
		cfg.ConnectionString())
}
