// Package gateway implements the federation engine spec.md §4.7/§4.8
// describes: the public entry points (Search, SearchAll, Download,
// DownloadAll, ListProductTypes, Queryables) that own provider
// ordering, fan-out/fallback, pagination, retry/back-off scheduling,
// and result normalization. Every internal/* package is implementation
// detail behind this one, matching spec.md §1's "CLI/REST front ends
// only invoke the engine."
package gateway

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/logging"
)

// Gateway is the single public entry point onto the federation engine.
// It owns a provider registry (ordering, whitelist, credential sharing)
// and a plugin registry (memoized plugin instances), and additionally
// memoizes authenticated sessions per (provider, auth topic) with
// single-flight renewal, per spec.md §5 "Shared resource policy."
//
// No global mutable configuration survives construction (spec.md §5):
// the only post-construction mutation is SetPriority, which takes the
// provider registry's own lock.
type Gateway struct {
	providers *registry.ProviderRegistry
	plugins   *registry.PluginRegistry
	logger    *zap.Logger

	productTypes map[string]*model.ProductType

	authMu    sync.Mutex
	authCache map[string]model.Authenticator
	authGroup singleflight.Group
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithLogger sets the *zap.Logger the gateway logs search/download
// failures (per-provider search and auth errors, per-product download
// errors) to, per spec.md §9's "Global state"
// note: logging is an explicit constructor parameter, never a
// package-level logger. Defaults to pkg/logging's terminal-style logger
// when not supplied.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithProductTypes seeds the gateway's built-in product type catalog
// (spec.md §2's "Common data model" ProductType/Collection entities),
// keyed by id. ListProductTypes joins this set with whatever each
// provider additionally declares in its own products map; Queryables
// does not consult it.
func WithProductTypes(catalog map[string]*model.ProductType) Option {
	return func(g *Gateway) {
		for id, pt := range catalog {
			g.productTypes[id] = pt
		}
	}
}

// New builds a Gateway over providers. It runs ShareCredentials once up
// front (spec.md §4.3), so a MisconfiguredError surfaces at
// construction time rather than on the first search that happens to
// need a shared credential.
func New(providers *registry.ProviderRegistry, opts ...Option) (*Gateway, error) {
	if err := providers.ShareCredentials(); err != nil {
		return nil, err
	}
	g := &Gateway{
		providers:    providers,
		plugins:      registry.NewPluginRegistry(providers),
		logger:       logging.NewLogger(nil),
		productTypes: map[string]*model.ProductType{},
		authCache:    map[string]model.Authenticator{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SetPriority changes a registered provider's priority under the
// provider registry's lock, the one explicit reconfiguration spec.md §5
// allows after construction. It does not invalidate the plugin cache:
// PluginRegistry.GetSearchPlugins always re-sorts from the live
// registry, so the new order is visible on the very next Search.
func (g *Gateway) SetPriority(provider string, priority int) error {
	return g.providers.UpdatePriority(provider, priority)
}

// ListProductTypes enumerates the gateway's built-in product type ids
// joined with every provider's declared products map (or just
// provider's, when non-empty), per spec.md §4.7. GENERIC_PRODUCT_TYPE
// is a dispatch sentinel, never a real product type, and is excluded.
func (g *Gateway) ListProductTypes(provider string) ([]string, error) {
	if provider != "" {
		if _, ok := g.providers.Get(provider); !ok {
			return nil, &errs.UnsupportedProviderError{Provider: provider}
		}
	}
	seen := map[string]bool{}
	for id := range g.productTypes {
		seen[id] = true
	}
	for _, pc := range g.providers.Ordered() {
		if provider != "" && pc.Name != provider {
			continue
		}
		for id := range pc.Products {
			if id == "GENERIC_PRODUCT_TYPE" {
				continue
			}
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// authenticator resolves, and single-flight-memoizes, the Authenticator
// for (providerName, topic), per spec.md §5: "Authentication sessions
// (tokens) are shared across concurrent requests to the same provider;
// token renewal must be single-flight (at most one in-flight refresh)
// with waiters blocked until completion." A provider that configures no
// auth plugin at all (a public API) resolves to model.NoAuth rather
// than an error: absence of an auth topic isn't misconfiguration, it's
// "this provider doesn't need one."
func (g *Gateway) authenticator(ctx context.Context, providerName string, topic config.Topic) (model.Authenticator, error) {
	pc, ok := g.providers.Get(providerName)
	if !ok {
		return nil, errs.NewMisconfigured(providerName, "provider not registered")
	}
	if _, ok := pc.Plugins[topic]; !ok {
		if _, ok := pc.Plugins[config.TopicAuth]; !ok {
			return model.NoAuth, nil
		}
	}

	key := providerName + "\x00" + string(topic)
	g.authMu.Lock()
	if a, ok := g.authCache[key]; ok {
		g.authMu.Unlock()
		return a, nil
	}
	g.authMu.Unlock()

	v, err, _ := g.authGroup.Do(key, func() (any, error) {
		g.authMu.Lock()
		if a, ok := g.authCache[key]; ok {
			g.authMu.Unlock()
			return a, nil
		}
		g.authMu.Unlock()

		ap, err := g.plugins.GetAuthPlugin(providerName, topic)
		if err != nil {
			return nil, err
		}
		a, err := ap.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		g.authMu.Lock()
		g.authCache[key] = a
		g.authMu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(model.Authenticator), nil
}

// attachDownloaders resolves and attaches a Downloader/downloader-auth
// pair to every product, per spec.md §3's lifecycle note: "downloader
// and downloader_auth are attached by the gateway before the product is
// returned to the user." A resolution failure on one product doesn't
// fail the whole search: spec.md §7 treats AddressNotFound/download
// wiring problems as surfaced only when the caller actually downloads,
// so this logs (debug-level, via the gateway's logger) and leaves that
// one product's Downloader nil rather than dropping it from the result.
func (g *Gateway) attachDownloaders(ctx context.Context, products []*model.Product) {
	for _, p := range products {
		dp, err := g.plugins.GetDownloadPlugin(p)
		if err != nil {
			g.logger.Debug("no downloader resolved for product", zap.String("product", p.ID), zap.Error(err))
			continue
		}
		p.Downloader = dp
		auth, err := g.authenticator(ctx, p.Provider, config.TopicDownloadAuth)
		if err != nil {
			g.logger.Debug("no downloader auth resolved for product", zap.String("product", p.ID), zap.Error(err))
			continue
		}
		p.DownloaderAuth = auth
	}
}
