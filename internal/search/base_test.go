package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/mapping"
)

const productEntryJSON = `{
	"id": "S2A_MSIL1C_20240315",
	"collection": "SENTINEL2_L1C",
	"properties": {
		"cloudCover": 5
	}
}`

func TestExtractPropertiesTwoPass(t *testing.T) {
	m, err := mapping.ParseMapping(map[string]any{
		"id":          "$.id",
		"productType": "$.collection",
		"title":       "{productType}_{id}",
	})
	require.NoError(t, err)

	props, err := extractProperties([]byte(productEntryJSON), m, map[string]any{"platform": "sentinel-2"})
	require.NoError(t, err)
	assert.Equal(t, "S2A_MSIL1C_20240315", props["id"])
	assert.Equal(t, "SENTINEL2_L1C", props["productType"])
	assert.Equal(t, "SENTINEL2_L1C_S2A_MSIL1C_20240315", props["title"])
	assert.Equal(t, "sentinel-2", props["platform"])
}

func TestExtractPropertiesDefaultsOverlaidByExtraction(t *testing.T) {
	m, err := mapping.ParseMapping(map[string]any{
		"id": "$.id",
	})
	require.NoError(t, err)

	props, err := extractProperties([]byte(productEntryJSON), m, map[string]any{"id": "placeholder"})
	require.NoError(t, err)
	assert.Equal(t, "S2A_MSIL1C_20240315", props["id"])
}

func TestRenderQueryableParamsFlatAndJSON(t *testing.T) {
	m, err := mapping.ParseMapping(map[string]any{
		"cloudCover": []any{"eo:cloud_cover={value}", "$.properties.cloudCover"},
		"bbox":       []any{`{{"bbox": [{value}]}}`, "$.bbox"},
	})
	require.NoError(t, err)

	flat, jsonFragment, err := renderQueryableParams(m, map[string]any{
		"cloudCover": 10,
		"bbox":       "1,2,3,4",
	})
	require.NoError(t, err)
	assert.Equal(t, "10", flat.Get("eo:cloud_cover"))
	assert.Contains(t, jsonFragment, "bbox")
}

func TestCanonicalRequestIDDeterministic(t *testing.T) {
	kwargs := map[string]any{"start": "2024-01-01T00:00:00Z", "end": "2024-02-01T00:00:00Z", "cloudCover": 20}
	id1, err := canonicalRequestID("s2_msi_l1c", kwargs)
	require.NoError(t, err)
	id2, err := canonicalRequestID("s2_msi_l1c", kwargs)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Contains(t, id1, "S2_MSI_L1C_20240101_20240201_")
}
