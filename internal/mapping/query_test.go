package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQueryFlat(t *testing.T) {
	got, err := RenderQuery("cloudCoverPercentage={value}", 25)
	require.NoError(t, err)
	assert.Equal(t, "cloudCoverPercentage=25", got)
}

func TestRenderQueryJSONFragment(t *testing.T) {
	got, err := RenderQuery(`{{"filter": {"cloudCover": {"lte": {value}}}}}`, 25)
	require.NoError(t, err)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	filter := m["filter"].(map[string]any)
	cc := filter["cloudCover"].(map[string]any)
	assert.InDelta(t, 25, cc["lte"], 0.0001)
}

func TestRenderTemplateLeavesUnknownPlaceholders(t *testing.T) {
	got, err := RenderTemplate("{productType}_{unknown}", map[string]any{"productType": "S2_MSI_L1C"})
	require.NoError(t, err)
	assert.Equal(t, "S2_MSI_L1C_{unknown}", got)
}

func TestDeepMergeNested(t *testing.T) {
	dst := map[string]any{
		"filter": map[string]any{
			"cloudCover": map[string]any{"lte": 25},
		},
	}
	src := map[string]any{
		"filter": map[string]any{
			"bbox": []float64{1, 2, 3, 4},
		},
		"page": 2,
	}
	merged := DeepMerge(dst, src)
	filter := merged["filter"].(map[string]any)
	assert.Contains(t, filter, "cloudCover")
	assert.Contains(t, filter, "bbox")
	assert.Equal(t, 2, merged["page"])
}

func TestDeepMergeNilDst(t *testing.T) {
	merged := DeepMerge(nil, map[string]any{"a": 1})
	assert.Equal(t, 1, merged["a"])
}
