package feature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	deleted   []string
	patterns  []string
	popular   int
	responses int
}

func (r *recordingInvalidator) Delete(ctx context.Context, keys ...string) error {
	r.deleted = append(r.deleted, keys...)
	return nil
}

func (r *recordingInvalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

func (r *recordingInvalidator) InvalidatePopular(ctx context.Context) error {
	r.popular++
	return nil
}

func (r *recordingInvalidator) InvalidateResponses(ctx context.Context) error {
	r.responses++
	return nil
}

func TestInvalidator_ByEntity(t *testing.T) {
	reg, err := NewBuiltinRegistry(linearFreshness, map[string]int{Popularity: 2})
	require.NoError(t, err)
	rec := &recordingInvalidator{}

	require.NoError(t, NewInvalidator(reg, rec).Invalidate(context.Background(), []string{Popularity, Freshness}, []string{"p1", "p2", "p1"}))

	assert.Equal(t, []string{"feature:popularity:p1:v2", "feature:popularity:p2:v2"}, rec.deleted)
	assert.Empty(t, rec.patterns, "derived features are skipped")
	assert.Equal(t, 1, rec.popular)
	assert.Equal(t, 1, rec.responses)
}

func TestInvalidator_WholeFeature(t *testing.T) {
	reg, err := NewBuiltinRegistry(linearFreshness, nil)
	require.NoError(t, err)
	rec := &recordingInvalidator{}

	require.NoError(t, NewInvalidator(reg, rec).Invalidate(context.Background(), []string{CFItemFactor, CFUserFactor}, nil))

	assert.Equal(t, []string{"feature:cf_item_factor:*", "feature:cf_user_factor:*"}, rec.patterns)
	assert.Equal(t, 0, rec.popular)
	assert.Equal(t, 1, rec.responses)
}

func TestInvalidator_UnknownFeature(t *testing.T) {
	reg, err := NewBuiltinRegistry(linearFreshness, nil)
	require.NoError(t, err)

	err = NewInvalidator(reg, &recordingInvalidator{}).Invalidate(context.Background(), []string{"nope"}, nil)
	assert.ErrorIs(t, err, ErrUnknownFeature)
}
