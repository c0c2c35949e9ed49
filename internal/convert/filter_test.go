package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graft-ml/graft/internal/tensor"
)

func paramTable(names ...string) map[string]*tensor.Native {
	m := make(map[string]*tensor.Native, len(names))
	for _, n := range names {
		m[n] = tensor.Scalar(1)
	}
	return m
}

func TestFilterExclude(t *testing.T) {
	params := paramTable("w", "aux.w")

	kept, err := Filter{Exclude: `aux\..*`}.Apply(params)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.Contains(t, kept, "w")

	// The input table is untouched.
	assert.Len(t, params, 2)
}

func TestFilterIncludeThenExclude(t *testing.T) {
	params := paramTable("encoder.w", "encoder.aux.w", "decoder.w")

	kept, err := Filter{Include: `^encoder\.`, Exclude: `aux`}.Apply(params)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.Contains(t, kept, "encoder.w")
}

func TestFilterExcludeWinsOnConflict(t *testing.T) {
	params := paramTable("fc.weight")

	kept, err := Filter{Include: `fc\.weight`, Exclude: `fc\.weight`}.Apply(params)
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestFilterEmptyKeepsAll(t *testing.T) {
	params := paramTable("a", "b")
	kept, err := Filter{}.Apply(params)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

func TestFilterBadPattern(t *testing.T) {
	_, err := Filter{Include: `(`}.Apply(paramTable("a"))
	assert.Error(t, err)
	_, err = Filter{Exclude: `[`}.Apply(paramTable("a"))
	assert.Error(t, err)
}
