package search

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

func TestBuildFromRequestQuery(t *testing.T) {
	provider := &config.ProviderConfig{Name: "testprovider"}
	product := &config.ProductConfig{ProductType: "S2_MSI_L1C"}
	plugin := &config.PluginConfig{
		Type: "BuildPostSearchResult",
		Extra: map[string]any{
			"download_url_tpl": "https://example.test/order/{productType}/{id}",
		},
	}
	p, err := newBuildFromRequest(provider, product, plugin)
	require.NoError(t, err)

	products, total, err := p.Query(context.Background(), &model.PreparedSearch{
		ProductType: "S2_MSI_L1C",
		Kwargs:      map[string]any{"start": "2024-01-01", "end": "2024-01-02"},
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, total)
	assert.Equal(t, 1, *total)
	assert.Equal(t, "testprovider", products[0].Provider)
	assert.Contains(t, products[0].RemoteLocation, "https://example.test/order/S2_MSI_L1C/")
	assert.Equal(t, "2024-01-01", products[0].Properties["start"])
}

func TestBuildFromRequestQueryFetchMetadata(t *testing.T) {
	// The metadata is served from a data: URI: enrichFromFetchMetadata
	// blocks private IPs, so a loopback httptest server would be refused.
	metadata := base64.StdEncoding.EncodeToString([]byte(`{"cloudCover": 12, "start": "should-not-override"}`))

	provider := &config.ProviderConfig{Name: "testprovider"}
	product := &config.ProductConfig{
		ProductType:   "S2_MSI_L1C",
		FetchMetadata: "data:application/json;base64," + metadata,
	}
	plugin := &config.PluginConfig{
		Type: "BuildPostSearchResult",
		Extra: map[string]any{
			"download_url_tpl": "https://example.test/order/{productType}/{id}",
		},
	}
	p, err := newBuildFromRequest(provider, product, plugin)
	require.NoError(t, err)

	products, _, err := p.Query(context.Background(), &model.PreparedSearch{
		ProductType: "S2_MSI_L1C",
		Kwargs:      map[string]any{"start": "2024-01-01"},
	})
	require.NoError(t, err)
	require.Len(t, products, 1)

	// fetch_metadata fills in a property the request didn't carry...
	assert.EqualValues(t, 12, products[0].Properties["cloudCover"])
	// ...but never overrides one the request already set.
	assert.Equal(t, "2024-01-01", products[0].Properties["start"])
}
