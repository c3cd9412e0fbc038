package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

const stacFeatureCollection = `{
	"type": "FeatureCollection",
	"numberMatched": 1,
	"features": [
		{
			"id": "S2A_MSIL1C_20240315",
			"properties": {
				"datetime": "2024-03-15T10:00:00Z"
			},
			"assets": {
				"download": {"href": "https://example.test/download/S2A_MSIL1C_20240315"}
			}
		}
	]
}`

func testProviderPlugin(endpoint string) (*config.ProviderConfig, *config.ProductConfig, *config.PluginConfig) {
	provider := &config.ProviderConfig{Name: "testprovider"}
	product := &config.ProductConfig{ProductType: "S2_MSI_L1C"}
	plugin := &config.PluginConfig{
		Type: "QueryStringSearch",
		Extra: map[string]any{
			"endpoint":      endpoint,
			"results_entry": "$.features",
			"metadata_mapping": map[string]any{
				"id":           "$.id",
				"title":        "$.id",
				"downloadLink": "$.assets.download.href",
				"cloudCover":   []any{"cloudCover={value}", "$.properties.cloudCover"},
			},
			"pagination": map[string]any{
				"total_items_nb_key_path": "$.numberMatched",
			},
		},
	}
	return provider, product, plugin
}

func TestQueryStringSearchQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(stacFeatureCollection))
	}))
	defer server.Close()

	provider, product, plugin := testProviderPlugin(server.URL)
	sp, err := newQueryStringSearch(provider, product, plugin)
	require.NoError(t, err)

	products, total, err := sp.Query(context.Background(), &model.PreparedSearch{
		ProductType: "S2_MSI_L1C",
		Page:        1,
		Kwargs:      map[string]any{},
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, total)
	assert.Equal(t, 1, *total)

	p := products[0]
	assert.Equal(t, "S2A_MSIL1C_20240315", p.ID)
	assert.Equal(t, "testprovider", p.Provider)
	assert.Equal(t, "https://example.test/download/S2A_MSIL1C_20240315", p.RemoteLocation)
	assert.Equal(t, "https://example.test/download/S2A_MSIL1C_20240315", p.Location)
}

func TestQueryStringSearchAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	provider, product, plugin := testProviderPlugin(server.URL)
	plugin.Extra["auth_error_code"] = []any{403}
	sp, err := newQueryStringSearch(provider, product, plugin)
	require.NoError(t, err)

	_, _, err = sp.Query(context.Background(), &model.PreparedSearch{
		ProductType: "S2_MSI_L1C",
		Kwargs:      map[string]any{},
	})
	require.Error(t, err)
	assert.True(t, errs.IsAuthError(err))
}
