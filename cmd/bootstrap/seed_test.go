package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/domain/entity"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadSeed(t *testing.T) {
	path := writeSeed(t, `{
		"products": [
			{"id": "p1", "name": "Trail shoes", "category": "shoes", "popularity_score": 0.9, "factor": [0.1, 0.2]},
			{"id": "p2", "name": "Socks", "category": "apparel", "created_at": "2026-01-02T00:00:00Z"}
		],
		"users": [{"id": "u1", "category_affinity": {"shoes": 0.7}}],
		"interactions": [{"user_id": "u1", "product_id": "p1", "kind": "purchase"}]
	}`)

	seed, err := readSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Products, 2)
	assert.Equal(t, []float32{0.1, 0.2}, seed.Products[0].Factor)
	assert.Equal(t, 0.7, seed.Users[0].CategoryAffinity["shoes"])
	assert.Equal(t, "purchase", seed.Interactions[0].Kind)
}

func TestReadSeed_RejectsProductWithoutID(t *testing.T) {
	_, err := readSeed(writeSeed(t, `{"products": [{"name": "nameless"}]}`))
	assert.Error(t, err)

	_, err = readSeed(writeSeed(t, `not json`))
	assert.Error(t, err)
}

func TestSeedProduct_DefaultsCreatedAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := seedProduct{ID: "p1"}.toEntity(now)
	assert.Equal(t, now, p.CreatedAt)
}

func TestSeedInteraction_ToEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ev := seedInteraction{UserID: "u1", ProductID: "p1", Kind: "purchase"}.toEvent(now)
	assert.Equal(t, entity.EventTypePurchase, ev.Type)
	assert.Equal(t, 3.0, ev.Type.Weight())
	assert.Equal(t, now, ev.Timestamp)
	assert.Equal(t, "seed", ev.Source)
}

func TestVectorRecords(t *testing.T) {
	embeddings, factors := vectorRecords([]*entity.Product{
		{ID: "p1", Category: "shoes", Embedding: []float32{1, 0}, Factor: []float32{0.5}},
		{ID: "p2", Embedding: []float32{0, 1}},
		{ID: "p3"},
	})
	require.Len(t, embeddings, 2)
	require.Len(t, factors, 1)
	assert.Equal(t, "shoes", factors[0].Category)
	assert.Equal(t, "p2", embeddings[1].ID)
}
