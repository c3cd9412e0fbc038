package registry

import (
	"fmt"
	"sync"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

// SearchFactory builds a model.SearchPlugin for one (provider,
// productType) pair from its resolved provider, product, and plugin
// config. internal/search registers one factory per plugin type name in
// its init(), the same discover-by-string-key shape database/sql uses
// for drivers.
type SearchFactory func(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error)

// DownloadFactory builds a model.Downloader for one provider.
type DownloadFactory func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error)

// AuthFactory builds a model.AuthPlugin for one provider's auth-shaped
// PluginConfig (auth, search_auth, or download_auth).
type AuthFactory func(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error)

// CrunchFactory builds a model.CrunchPlugin from a free-form options map,
// keyed by a plugin name rather than a provider (crunch plugins are
// provider-independent post-processing steps spec.md §2 lists alongside
// the provider-bound topics).
type CrunchFactory func(opts map[string]any) (model.CrunchPlugin, error)

var (
	factoriesMu       sync.RWMutex
	searchFactories   = map[string]SearchFactory{}
	downloadFactories = map[string]DownloadFactory{}
	authFactories     = map[string]AuthFactory{}
	crunchFactories   = map[string]CrunchFactory{}
)

// RegisterSearchPlugin makes a search plugin constructor available under
// typeName (the provider config's `search.type` value). Intended to be
// called from package init().
func RegisterSearchPlugin(typeName string, f SearchFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	searchFactories[typeName] = f
}

// RegisterDownloadPlugin registers a download plugin constructor.
func RegisterDownloadPlugin(typeName string, f DownloadFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	downloadFactories[typeName] = f
}

// RegisterAuthPlugin registers an auth plugin constructor.
func RegisterAuthPlugin(typeName string, f AuthFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	authFactories[typeName] = f
}

// RegisterCrunchPlugin registers a crunch plugin constructor under name.
func RegisterCrunchPlugin(name string, f CrunchFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	crunchFactories[name] = f
}

// PluginRegistry discovers plugin types by topic and memoizes the
// instances it builds, per spec.md §4.2. It holds a ProviderRegistry
// rather than a static provider list so that GetSearchPlugins always
// reflects the provider registry's current priority order; no separate
// priority bookkeeping is needed on the cached instances themselves.
type PluginRegistry struct {
	providers *ProviderRegistry

	mu            sync.Mutex
	searchCache   map[string]model.SearchPlugin
	downloadCache map[string]model.Downloader
	authCache     map[string]model.AuthPlugin
}

// NewPluginRegistry builds a PluginRegistry backed by providers.
func NewPluginRegistry(providers *ProviderRegistry) *PluginRegistry {
	return &PluginRegistry{
		providers:     providers,
		searchCache:   map[string]model.SearchPlugin{},
		downloadCache: map[string]model.Downloader{},
		authCache:     map[string]model.AuthPlugin{},
	}
}

// GetSearchPlugins returns, for every provider that supports productType
// (per config.ProviderConfig.SupportsProductType), that provider's search
// plugin instance, in descending provider priority with ties broken by
// insertion order (ProviderRegistry.Ordered already provides that order).
func (r *PluginRegistry) GetSearchPlugins(productType string) ([]model.SearchPlugin, error) {
	var plugins []model.SearchPlugin
	for _, pc := range r.providers.Ordered() {
		if !pc.SupportsProductType(productType) {
			continue
		}
		plugin, ok := pc.Plugins[config.TopicSearch]
		if !ok {
			continue
		}
		sp, err := r.searchPlugin(pc, productType, plugin)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, sp)
	}
	return plugins, nil
}

// ProviderSearchPlugin pairs a search plugin instance with the provider
// name it was resolved from, the correlation GetSearchPlugins itself
// throws away but which the gateway needs to attribute a fan-out
// failure (AuthenticationError/RequestError) to the provider that
// raised it, per spec.md §4.7/§7.
type ProviderSearchPlugin struct {
	Provider string
	Plugin   model.SearchPlugin
}

// GetSearchPluginsByProvider is GetSearchPlugins, but paired with each
// plugin's originating provider name, in the same descending-priority
// order.
func (r *PluginRegistry) GetSearchPluginsByProvider(productType string) ([]ProviderSearchPlugin, error) {
	var out []ProviderSearchPlugin
	for _, pc := range r.providers.Ordered() {
		if !pc.SupportsProductType(productType) {
			continue
		}
		plugin, ok := pc.Plugins[config.TopicSearch]
		if !ok {
			continue
		}
		sp, err := r.searchPlugin(pc, productType, plugin)
		if err != nil {
			return nil, err
		}
		out = append(out, ProviderSearchPlugin{Provider: pc.Name, Plugin: sp})
	}
	return out, nil
}

func (r *PluginRegistry) searchPlugin(pc *config.ProviderConfig, productType string, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	key := pc.Name + "\x00" + productType
	r.mu.Lock()
	defer r.mu.Unlock()
	if sp, ok := r.searchCache[key]; ok {
		return sp, nil
	}
	factoriesMu.RLock()
	factory, ok := searchFactories[plugin.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errs.NewMisconfigured(pc.Name, fmt.Sprintf("unregistered search plugin type %q", plugin.Type))
	}
	product := pc.Products[productType]
	if product == nil {
		product = pc.Products["GENERIC_PRODUCT_TYPE"]
	}
	sp, err := factory(pc, product, plugin)
	if err != nil {
		return nil, err
	}
	r.searchCache[key] = sp
	return sp, nil
}

// GetDownloadPlugin resolves the download plugin for product's provider,
// memoized per provider (a single instance serves every product from
// that provider).
func (r *PluginRegistry) GetDownloadPlugin(product *model.Product) (model.Downloader, error) {
	pc, ok := r.providers.Get(product.Provider)
	if !ok {
		return nil, errs.NewMisconfigured(product.Provider, "provider not registered")
	}
	plugin, ok := pc.Plugins[config.TopicDownload]
	if !ok {
		return nil, errs.NewMisconfigured(product.Provider, "no download plugin configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if dp, ok := r.downloadCache[pc.Name]; ok {
		return dp, nil
	}
	factoriesMu.RLock()
	factory, ok := downloadFactories[plugin.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errs.NewMisconfigured(pc.Name, fmt.Sprintf("unregistered download plugin type %q", plugin.Type))
	}
	dp, err := factory(pc, plugin)
	if err != nil {
		return nil, err
	}
	r.downloadCache[pc.Name] = dp
	return dp, nil
}

// GetAuthPlugin resolves the auth plugin for provider under topic
// (TopicAuth, TopicSearchAuth, or TopicDownloadAuth), falling back to
// TopicAuth when the more specific topic is not configured — auth
// material in this config model is provider-scoped rather than
// product-type-scoped, so unlike spec.md §4.2's GetAuthPlugin(productType,
// provider) signature, productType plays no role in instance selection
// here and is deliberately omitted.
func (r *PluginRegistry) GetAuthPlugin(providerName string, topic config.Topic) (model.AuthPlugin, error) {
	pc, ok := r.providers.Get(providerName)
	if !ok {
		return nil, errs.NewMisconfigured(providerName, "provider not registered")
	}
	plugin, ok := pc.Plugins[topic]
	if !ok {
		plugin, ok = pc.Plugins[config.TopicAuth]
		topic = config.TopicAuth
	}
	if !ok {
		return nil, errs.NewMisconfigured(providerName, "no auth plugin configured")
	}

	key := pc.Name + "\x00" + string(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	if ap, ok := r.authCache[key]; ok {
		return ap, nil
	}
	factoriesMu.RLock()
	factory, ok := authFactories[plugin.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errs.NewMisconfigured(pc.Name, fmt.Sprintf("unregistered auth plugin type %q", plugin.Type))
	}
	ap, err := factory(pc, plugin)
	if err != nil {
		return nil, err
	}
	r.authCache[key] = ap
	return ap, nil
}

// GetCrunchPlugin builds a crunch plugin by name, fresh every call: opts
// vary call to call (e.g. the property to filter latest-by), so there is
// nothing stable to memoize an instance against.
func (r *PluginRegistry) GetCrunchPlugin(name string, opts map[string]any) (model.CrunchPlugin, error) {
	factoriesMu.RLock()
	factory, ok := crunchFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errs.NewMisconfigured("", fmt.Sprintf("unregistered crunch plugin %q", name))
	}
	return factory(opts)
}
