package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RANK_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${RANK_TEST_HOST}"))
	assert.Equal(t, "port: 5433", expandEnv("port: ${RANK_TEST_UNSET_PORT:5433}"))
	assert.Equal(t, "x: ${RANK_TEST_UNSET}", expandEnv("x: ${RANK_TEST_UNSET}"))
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "app:\n  name: ranking-test\n")
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "ranking-test", cfg.App.Name)
	assert.Equal(t, 0.4, cfg.Ranking.Weights.Search)
	assert.Equal(t, 0.1, cfg.Ranking.Weights.Freshness)
	assert.Equal(t, 200, cfg.Ranking.MaxCandidates)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, time.Minute, cfg.Breaker.Window)
	assert.Equal(t, 100*time.Millisecond, cfg.Retrieval.Timeouts.Lexical)
	assert.Equal(t, 150*time.Millisecond, cfg.Retrieval.Timeouts.Semantic)
	assert.Equal(t, 90*24*time.Hour, cfg.Ranking.FreshnessHalfLife)
	assert.Equal(t, 5, cfg.ColdStart.MinInteractions)
	assert.Equal(t, time.Minute, cfg.Features.NegativeTTL)
	assert.Equal(t, 5, cfg.Retrieval.Synonyms.MaxPerTerm)
	assert.Equal(t, 0.8, cfg.Retrieval.Synonyms.Boost)
	assert.True(t, cfg.Retrieval.Spell.Enabled)
	assert.Equal(t, 2, cfg.Retrieval.Spell.MaxEditDistance)
	assert.Equal(t, 0.8, cfg.Retrieval.Spell.ConfidenceThreshold)
}

func TestLoadFromMergesEnvFileAndPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "cache:\n  redis:\n    host: ${RANK_TEST_REDIS:localhost}\nretrieval:\n  lexical_backend: postgres\n")
	writeConfig(t, dir, "config.staging.yaml", "retrieval:\n  lexical_backend: meilisearch\n")
	t.Setenv("APP_ENV", "staging")
	t.Setenv("RANK_TEST_REDIS", "redis.staging")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.staging", cfg.Cache.Redis.Host)
	assert.Equal(t, "meilisearch", cfg.Retrieval.LexicalBackend)
}

func TestLoadFromRejectsInvalidWeights(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "ranking:\n  weights:\n    search: 0.9\n    cf: 0.9\n")
	t.Setenv("APP_ENV", "test")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to at most 1")
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}
