package gateway

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

// fakeSearchPlugin returns a fixed, or scripted, page of products per
// call, recording every invocation so fallback/fan-out tests can assert
// on call counts.
type fakeSearchPlugin struct {
	provider string
	pages    func(page int) ([]*model.Product, *int, error)
	err      error

	mu    sync.Mutex
	calls int
}

func (f *fakeSearchPlugin) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.pages != nil {
		return f.pages(prep.Page)
	}
	return []*model.Product{model.NewProduct(f.provider, prep.ProductType, "p1", "https://example/p1")}, nil, nil
}

type fakeDownloadPlugin struct {
	mu       sync.Mutex
	attempts map[string]int
	fail     func(id string, attempt int) error
}

func (f *fakeDownloadPlugin) Download(ctx context.Context, p *model.Product, auth model.Authenticator, opts model.DownloadOptions) (string, error) {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[p.ID]++
	attempt := f.attempts[p.ID]
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(p.ID, attempt); err != nil {
			return "", err
		}
	}
	return "/tmp/" + p.ID, nil
}

type fakeAuthPlugin struct {
	err   error
	calls int
}

func (f *fakeAuthPlugin) Authenticate(ctx context.Context) (model.Authenticator, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error { return nil }), nil
}

const (
	gwSearchType   = "gatewaytest.search"
	gwDownloadType = "gatewaytest.download"
	gwAuthType     = "gatewaytest.auth"
)

var registerOnce = func() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		registry.RegisterSearchPlugin(gwSearchType, func(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
			sp, _ := plugin.Extra["_plugin"].(model.SearchPlugin)
			if sp != nil {
				return sp, nil
			}
			return &fakeSearchPlugin{provider: provider.Name}, nil
		})
		registry.RegisterDownloadPlugin(gwDownloadType, func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
			dp, _ := plugin.Extra["_plugin"].(model.Downloader)
			if dp != nil {
				return dp, nil
			}
			return &fakeDownloadPlugin{}, nil
		})
		registry.RegisterAuthPlugin(gwAuthType, func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
			ap, _ := plugin.Extra["_plugin"].(model.AuthPlugin)
			if ap != nil {
				return ap, nil
			}
			return &fakeAuthPlugin{}, nil
		})
	}
}()

func newTestProvider(name string, priority int, searchPlugin model.SearchPlugin) *config.ProviderConfig {
	registerOnce()
	return &config.ProviderConfig{
		Name:     name,
		Priority: priority,
		Plugins: map[config.Topic]*config.PluginConfig{
			config.TopicSearch: {Type: gwSearchType, Extra: map[string]any{"_plugin": searchPlugin}},
		},
		Products: map[string]*config.ProductConfig{
			"GENERIC_PRODUCT_TYPE": {},
		},
	}
}

func withDownload(pc *config.ProviderConfig, dp model.Downloader) *config.ProviderConfig {
	pc.Plugins[config.TopicDownload] = &config.PluginConfig{Type: gwDownloadType, Extra: map[string]any{"_plugin": dp}}
	return pc
}

func withSearchAuth(pc *config.ProviderConfig, ap model.AuthPlugin) *config.ProviderConfig {
	pc.Plugins[config.TopicSearchAuth] = &config.PluginConfig{Type: gwAuthType, Extra: map[string]any{"_plugin": ap}}
	return pc
}

func newRegistry(t *testing.T, providers ...*config.ProviderConfig) *registry.ProviderRegistry {
	t.Helper()
	r := registry.NewProviderRegistry()
	for _, pc := range providers {
		require.NoError(t, r.Add(pc))
	}
	return r
}

func TestNewSharesCredentialsUpFront(t *testing.T) {
	pA := newTestProvider("a", 1, &fakeSearchPlugin{provider: "a"})
	pA.Plugins[config.TopicSearchAuth] = &config.PluginConfig{
		Type:              gwAuthType,
		CredentialsTarget: "shared",
		Credentials:       map[string]string{"token": "secret"},
		Extra:             map[string]any{"_plugin": &fakeAuthPlugin{}},
	}
	pB := newTestProvider("b", 2, &fakeSearchPlugin{provider: "b"})
	pB.Plugins[config.TopicSearchAuth] = &config.PluginConfig{
		Type:              gwAuthType,
		CredentialsTarget: "shared",
		Extra:             map[string]any{"_plugin": &fakeAuthPlugin{}},
	}

	r := newRegistry(t, pA, pB)
	_, err := New(r)
	require.NoError(t, err)

	shared, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "secret", shared.Plugins[config.TopicSearchAuth].Credentials["token"])
}

func TestListProductTypesJoinsBuiltinAndProviders(t *testing.T) {
	pA := newTestProvider("a", 1, &fakeSearchPlugin{provider: "a"})
	pA.Products["S2_MSI_L1C"] = &config.ProductConfig{}
	r := newRegistry(t, pA)
	g, err := New(r, WithProductTypes(map[string]*model.ProductType{"BUILTIN_TYPE": {ID: "BUILTIN_TYPE"}}))
	require.NoError(t, err)

	types, err := g.ListProductTypes("")
	require.NoError(t, err)
	assert.Contains(t, types, "BUILTIN_TYPE")
	assert.Contains(t, types, "S2_MSI_L1C")
	assert.NotContains(t, types, "GENERIC_PRODUCT_TYPE")
}

func TestListProductTypesUnknownProvider(t *testing.T) {
	r := newRegistry(t)
	g, err := New(r)
	require.NoError(t, err)
	_, err = g.ListProductTypes("nope")
	var target *errs.UnsupportedProviderError
	assert.ErrorAs(t, err, &target)
}

func TestAuthenticatorMemoizesAcrossCalls(t *testing.T) {
	pA := newTestProvider("a", 1, &fakeSearchPlugin{provider: "a"})
	ap := &fakeAuthPlugin{}
	withSearchAuth(pA, ap)
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	a1, err := g.authenticator(context.Background(), "a", config.TopicSearchAuth)
	require.NoError(t, err)
	a2, err := g.authenticator(context.Background(), "a", config.TopicSearchAuth)
	require.NoError(t, err)
	assert.NotNil(t, a1)
	assert.NotNil(t, a2)
	assert.Equal(t, 1, ap.calls)
}

func TestAuthenticatorNoAuthWhenUnconfigured(t *testing.T) {
	pA := newTestProvider("a", 1, &fakeSearchPlugin{provider: "a"})
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	a, err := g.authenticator(context.Background(), "a", config.TopicSearchAuth)
	require.NoError(t, err)
	assert.Equal(t, reflect.ValueOf(model.NoAuth).Pointer(), reflect.ValueOf(a).Pointer())
}
