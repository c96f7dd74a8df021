package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuery(t *testing.T) {
	cases := map[string]string{
		"  Running SHOES!! ":    "running shoes",
		"air-max   90":          "air max 90",
		"Men's (Leather) boots": "men s leather boots",
		"\t\n":                  "",
		"...":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeQuery(in), in)
	}
}

func TestQueryNormalizer_ExpandsAbbreviations(t *testing.T) {
	n := NewQueryNormalizer(map[string]string{"TV": "Television", "hdmi": "hdmi"})

	assert.Equal(t, "smart television 4k", n.Normalize("Smart TV, 4K"))
	assert.Equal(t, "hdmi cable", n.Normalize("HDMI cable"))
	assert.Equal(t, "tvstand", n.Normalize("tvstand"))
}

func TestQueryNormalizer_Nil(t *testing.T) {
	var n *QueryNormalizer
	assert.Equal(t, "red shoes", n.Normalize("Red  Shoes"))
}

func TestSpellCorrector(t *testing.T) {
	c := NewSpellCorrector([]string{"Trail Runner 2", "leather"}, 2, 0.8)

	res := c.Correct("runnign shoez")
	assert.True(t, res.Applied)
	assert.Equal(t, "running shoes", res.Query)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	res = c.Correct("leather trail")
	assert.False(t, res.Applied)
	assert.Equal(t, "leather trail", res.Query)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)

	// 距离 2 的置信度 0.8 不高于阈值，保持原词
	res = c.Correct("lexxher")
	assert.False(t, res.Applied)
	assert.Equal(t, "lexxher", res.Query)

	res = c.Correct("tv 4k")
	assert.False(t, res.Applied, "short and numeric tokens are left alone")
	assert.Equal(t, "tv 4k", res.Query)
}

func TestSpellCorrector_TiesBreakLexicographically(t *testing.T) {
	c := NewSpellCorrector([]string{"cart", "card"}, 2, 0.8)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "card", c.Correct("carx").Query)
	}

	var empty *SpellCorrector
	assert.Equal(t, "anything", empty.Correct("anything").Query)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("shoes", "shoes", 2))
	assert.Equal(t, 1, editDistance("shoes", "shoe", 2))
	assert.Equal(t, 1, editDistance("runnign", "running", 2), "adjacent transposition counts once")
	assert.Equal(t, 2, editDistance("lexxher", "leather", 2))
	assert.Equal(t, 3, editDistance("abc", "xyzabc", 2), "beyond the limit reports limit+1")
}

func TestSynonymExpander(t *testing.T) {
	e := NewSynonymExpander(map[string][]string{
		"Sneakers": {"Trainers", "running shoes", "sneakers", "kicks", "plimsolls", "tennis shoes", "joggers"},
		"laptop":   {"notebook"},
	}, 5, 0.8)

	q := e.Expand("red sneakers")
	require.Len(t, q.Terms, 2)
	assert.Nil(t, q.Terms[0].Synonyms)
	assert.Equal(t, []string{"trainers", "running shoes", "kicks", "plimsolls", "tennis shoes"}, q.Terms[1].Synonyms)
	assert.Equal(t, "red sneakers", q.String())
	assert.Equal(t, "red (sneakers OR trainers OR running shoes OR kicks OR plimsolls OR tennis shoes)", q.Expression())
	assert.InDelta(t, 0.8, q.Boost(), 1e-9)

	assert.False(t, e.Expand("desk").Expanded())
	assert.Equal(t, 2, e.Size())
}

func TestLoadSynonymFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"couch": ["sofa", "settee"]}`), 0o600))

	dict, err := LoadSynonymFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sofa", "settee"}, dict["couch"])

	require.NoError(t, os.WriteFile(path, []byte(`["not", "a", "map"]`), 0o600))
	_, err = LoadSynonymFile(path)
	assert.Error(t, err)
}

func TestQueryEnhancer(t *testing.T) {
	e := NewQueryEnhancer(
		NewQueryNormalizer(map[string]string{"tv": "television"}),
		NewSpellCorrector([]string{"television stand"}, 2, 0.8),
		NewSynonymExpander(map[string][]string{"stand": {"mount"}}, 5, 0.8),
	)

	got := e.Enhance("TV Stnad!")
	assert.Equal(t, "television stnad", got.Normalized)
	assert.Equal(t, "television stand", got.Query)
	assert.True(t, got.Spell.Applied)
	assert.Equal(t, "television (stand OR mount)", got.Text.Expression())

	assert.Equal(t, e.Enhance("TV Stnad!"), got)
	assert.True(t, e.Enhance("?!").Text.Empty())

	var plain *QueryEnhancer
	assert.Equal(t, "red shoes", plain.Enhance("Red Shoes").Text.String())
}
