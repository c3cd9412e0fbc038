package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

type fakeSearchPlugin struct {
	provider string
	calls    int
}

func (f *fakeSearchPlugin) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	f.calls++
	return []*model.Product{model.NewProduct(f.provider, prep.ProductType, "p1", "https://example/p1")}, nil, nil
}

type fakeDownloadPlugin struct{ provider string }

func (f *fakeDownloadPlugin) Download(ctx context.Context, p *model.Product, auth model.Authenticator, opts model.DownloadOptions) (string, error) {
	return "/tmp/" + p.ID, nil
}

type fakeAuthPlugin struct{ provider string }

func (f *fakeAuthPlugin) Authenticate(ctx context.Context) (model.Authenticator, error) {
	return model.NoAuth, nil
}

type fakeCrunchPlugin struct{ keep int }

func (f *fakeCrunchPlugin) Crunch(ctx context.Context, products []*model.Product, opts map[string]any) ([]*model.Product, error) {
	if f.keep >= len(products) {
		return products, nil
	}
	return products[:f.keep], nil
}

func init() {
	RegisterSearchPlugin("registrytest.Search", func(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
		return &fakeSearchPlugin{provider: provider.Name}, nil
	})
	RegisterDownloadPlugin("registrytest.Download", func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
		return &fakeDownloadPlugin{provider: provider.Name}, nil
	})
	RegisterAuthPlugin("registrytest.Auth", func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
		return &fakeAuthPlugin{provider: provider.Name}, nil
	})
	RegisterCrunchPlugin("registrytest.keep-first", func(opts map[string]any) (model.CrunchPlugin, error) {
		n, _ := opts["keep"].(int)
		return &fakeCrunchPlugin{keep: n}, nil
	})
}

func pluginFixture(name string, priority int) *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:     name,
		Priority: priority,
		Plugins: map[config.Topic]*config.PluginConfig{
			config.TopicSearch:   {Type: "registrytest.Search"},
			config.TopicDownload: {Type: "registrytest.Download"},
			config.TopicAuth:     {Type: "registrytest.Auth"},
		},
		Products: map[string]*config.ProductConfig{
			"S2_MSI_L1C": {Collection: "S2ST"},
		},
	}
}

func TestPluginRegistryGetSearchPluginsOrderedByPriority(t *testing.T) {
	providers := NewProviderRegistry()
	require.NoError(t, providers.Add(pluginFixture("low", 0)))
	require.NoError(t, providers.Add(pluginFixture("high", 9)))
	pr := NewPluginRegistry(providers)

	plugins, err := pr.GetSearchPlugins("S2_MSI_L1C")
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "high", plugins[0].(*fakeSearchPlugin).provider)
	assert.Equal(t, "low", plugins[1].(*fakeSearchPlugin).provider)
}

func TestPluginRegistryGetSearchPluginsSkipsUnsupportedProductType(t *testing.T) {
	providers := NewProviderRegistry()
	require.NoError(t, providers.Add(pluginFixture("peps", 1)))
	pr := NewPluginRegistry(providers)

	plugins, err := pr.GetSearchPlugins("UNKNOWN_TYPE")
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestPluginRegistrySearchInstantiationIsMemoized(t *testing.T) {
	providers := NewProviderRegistry()
	require.NoError(t, providers.Add(pluginFixture("peps", 1)))
	pr := NewPluginRegistry(providers)

	first, err := pr.GetSearchPlugins("S2_MSI_L1C")
	require.NoError(t, err)
	second, err := pr.GetSearchPlugins("S2_MSI_L1C")
	require.NoError(t, err)
	assert.Same(t, first[0], second[0])
}

func TestPluginRegistryUnregisteredTypeIsMisconfigured(t *testing.T) {
	providers := NewProviderRegistry()
	pc := pluginFixture("peps", 1)
	pc.Plugins[config.TopicSearch] = &config.PluginConfig{Type: "NoSuchPlugin"}
	require.NoError(t, providers.Add(pc))
	pr := NewPluginRegistry(providers)

	_, err := pr.GetSearchPlugins("S2_MSI_L1C")
	require.Error(t, err)
	assert.True(t, errs.IsMisconfigured(err))
}

func TestPluginRegistryGetDownloadPlugin(t *testing.T) {
	providers := NewProviderRegistry()
	require.NoError(t, providers.Add(pluginFixture("peps", 1)))
	pr := NewPluginRegistry(providers)

	p := model.NewProduct("peps", "S2_MSI_L1C", "p1", "https://example/p1")
	dp, err := pr.GetDownloadPlugin(p)
	require.NoError(t, err)
	path, err := dp.Download(context.Background(), p, model.NoAuth, model.DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p1", path)
}

func TestPluginRegistryGetAuthPluginFallsBackToAuthTopic(t *testing.T) {
	providers := NewProviderRegistry()
	require.NoError(t, providers.Add(pluginFixture("peps", 1)))
	pr := NewPluginRegistry(providers)

	ap, err := pr.GetAuthPlugin("peps", config.TopicSearchAuth)
	require.NoError(t, err)
	authr, err := ap.Authenticate(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, authr)
}

func TestPluginRegistryGetCrunchPluginBuildsFreshEachCall(t *testing.T) {
	providers := NewProviderRegistry()
	pr := NewPluginRegistry(providers)

	cp, err := pr.GetCrunchPlugin("registrytest.keep-first", map[string]any{"keep": 1})
	require.NoError(t, err)
	products := []*model.Product{
		model.NewProduct("peps", "X", "a", "u1"),
		model.NewProduct("peps", "X", "b", "u2"),
	}
	kept, err := cp.Crunch(context.Background(), products, nil)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].ID)

	cp2, err := pr.GetCrunchPlugin("registrytest.keep-first", map[string]any{"keep": 1})
	require.NoError(t, err)
	assert.NotSame(t, cp, cp2)
}

func TestPluginRegistryUnregisteredCrunchPlugin(t *testing.T) {
	providers := NewProviderRegistry()
	pr := NewPluginRegistry(providers)
	_, err := pr.GetCrunchPlugin(fmt.Sprintf("registrytest.%s", "does-not-exist"), nil)
	require.Error(t, err)
}
