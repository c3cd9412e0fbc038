// Package registry holds the two registries spec.md §4.2/§4.3 describe:
// ProviderRegistry, an ordered set of provider configurations, and
// PluginRegistry, which turns a provider's PluginConfig into a live plugin
// instance on demand and remembers the result.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// ProviderRegistry is an ordered map of provider configurations, keyed by
// name, per spec.md §4.3. Insertion order is preserved for priority-tie
// breaking; Add/Remove/Merge/ShareCredentials mutate under a lock since
// the gateway may reload configuration while searches are in flight.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*config.ProviderConfig
	order     []string
}

// NewProviderRegistry builds an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]*config.ProviderConfig)}
}

// NewProviderRegistryFrom populates a registry from a loaded provider map
// (e.g. config.Loader.Load's result), in the names' sorted order so
// iteration is deterministic from the start.
func NewProviderRegistryFrom(providers map[string]*config.ProviderConfig) *ProviderRegistry {
	r := NewProviderRegistry()
	for _, name := range config.SortedNames(providers) {
		_ = r.Add(providers[name])
	}
	return r
}

// Add inserts pc, refusing a duplicate name.
func (r *ProviderRegistry) Add(pc *config.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[pc.Name]; ok {
		return errs.NewMisconfigured(pc.Name, "provider already registered")
	}
	r.providers[pc.Name] = pc
	r.order = append(r.order, pc.Name)
	return nil
}

// Remove deletes name, failing if it is absent.
func (r *ProviderRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return errs.NewMisconfigured(name, "provider not registered")
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the provider config for name, if registered.
func (r *ProviderRegistry) Get(name string) (*config.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.providers[name]
	return pc, ok
}

// UpdatePriority rewrites a registered provider's priority, the one
// post-construction mutation spec.md §3 singles out, and re-sorts nothing
// itself: Ordered() always consults the live priority, so any caller
// (notably PluginRegistry.GetSearchPlugins) sees the new order on its
// next call without further bookkeeping.
func (r *ProviderRegistry) UpdatePriority(name string, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.providers[name]
	if !ok {
		return errs.NewMisconfigured(name, "provider not registered")
	}
	r.providers[name] = pc.Update(&priority, "", nil)
	return nil
}

// Merge deep-merges other into r: plugin sub-configs are merged
// field-by-field in place (so the existing PluginConfig's identity and
// any fields not touched by other survive), non-plugin scalar fields are
// overwritten by other's side when set, per spec.md §4.3. Providers only
// present in other are appended to r's order.
func (r *ProviderRegistry) Merge(other *ProviderRegistry) {
	other.mu.RLock()
	incoming := make([]*config.ProviderConfig, 0, len(other.order))
	for _, name := range other.order {
		incoming = append(incoming, other.providers[name])
	}
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ov := range incoming {
		existing, ok := r.providers[ov.Name]
		if !ok {
			r.providers[ov.Name] = ov
			r.order = append(r.order, ov.Name)
			continue
		}
		mergeProviderInPlace(existing, ov)
	}
}

func mergeProviderInPlace(base, other *config.ProviderConfig) {
	if other.Priority != 0 {
		base.Priority = other.Priority
	}
	if other.Description != "" {
		base.Description = other.Description
	}
	if other.URL != "" {
		base.URL = other.URL
	}
	if other.Group != "" {
		base.Group = other.Group
	}
	if len(other.Roles) > 0 {
		base.Roles = other.Roles
	}
	if base.Plugins == nil {
		base.Plugins = map[config.Topic]*config.PluginConfig{}
	}
	for topic, pc := range other.Plugins {
		if existing, ok := base.Plugins[topic]; ok {
			mergePluginInPlace(existing, pc)
		} else {
			base.Plugins[topic] = pc.Clone()
		}
	}
	if base.Products == nil {
		base.Products = map[string]*config.ProductConfig{}
	}
	for id, prod := range other.Products {
		base.Products[id] = prod
	}
}

func mergePluginInPlace(base, other *config.PluginConfig) {
	if other.Type != "" {
		base.Type = other.Type
	}
	if other.CredentialsTarget != "" {
		base.CredentialsTarget = other.CredentialsTarget
	}
	if len(other.Credentials) > 0 {
		if base.Credentials == nil {
			base.Credentials = map[string]string{}
		}
		for k, v := range other.Credentials {
			base.Credentials[k] = v
		}
	}
	if len(other.Extra) > 0 {
		if base.Extra == nil {
			base.Extra = map[string]any{}
		}
		for k, v := range other.Extra {
			base.Extra[k] = v
		}
	}
}

// Filter returns every registered provider config matching predicate, in
// current priority order.
func (r *ProviderRegistry) Filter(predicate func(*config.ProviderConfig) bool) []*config.ProviderConfig {
	var out []*config.ProviderConfig
	for _, pc := range r.Ordered() {
		if predicate(pc) {
			out = append(out, pc)
		}
	}
	return out
}

// Ordered returns every registered provider sorted by descending
// priority, ties broken by insertion order, per spec.md §4.2's selection
// rule.
func (r *ProviderRegistry) Ordered() []*config.ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.SliceStable(names, func(i, j int) bool {
		return r.providers[names[i]].Priority > r.providers[names[j]].Priority
	})
	out := make([]*config.ProviderConfig, len(names))
	for i, n := range names {
		out[i] = r.providers[n]
	}
	return out
}

// Whitelist restricts the registry to the named providers, dropping
// every other one; an empty or nil names list is a no-op, matching
// spec.md §4.3's "optionally restrict... from an environment variable."
func (r *ProviderRegistry) Whitelist(names []string) {
	if len(names) == 0 {
		return
	}
	allow := make(map[string]bool, len(names))
	for _, n := range names {
		allow[n] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	newOrder := make([]string, 0, len(r.order))
	for _, n := range r.order {
		if allow[n] {
			newOrder = append(newOrder, n)
			continue
		}
		delete(r.providers, n)
	}
	r.order = newOrder
}

// ShareCredentials implements OPEN QUESTION DECISION #1: for every pair
// of (topic, provider) PluginConfigs that declare the same non-empty
// CredentialsTarget, the one holding non-empty Credentials is the
// source; every other config with that target and no credentials of its
// own is filled in from it. Two distinct providers both claiming to be
// the source for the same target is rejected outright rather than
// resolved by picking one arbitrarily.
func (r *ProviderRegistry) ShareCredentials() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	type source struct {
		provider string
		creds    map[string]string
	}
	sources := map[string]source{}

	for _, name := range r.order {
		pc := r.providers[name]
		for _, plugin := range pc.Plugins {
			if plugin.CredentialsTarget == "" || len(plugin.Credentials) == 0 {
				continue
			}
			target := plugin.CredentialsTarget
			if existing, ok := sources[target]; ok && existing.provider != name {
				return errs.NewMisconfigured(
					fmt.Sprintf("%s,%s", existing.provider, name),
					fmt.Sprintf("share_credentials target %q has credentials declared by more than one provider", target),
				)
			}
			sources[target] = source{provider: name, creds: plugin.Credentials}
		}
	}

	for _, name := range r.order {
		pc := r.providers[name]
		for _, plugin := range pc.Plugins {
			if plugin.CredentialsTarget == "" || len(plugin.Credentials) > 0 {
				continue
			}
			src, ok := sources[plugin.CredentialsTarget]
			if !ok {
				continue
			}
			plugin.Credentials = make(map[string]string, len(src.creds))
			for k, v := range src.creds {
				plugin.Credentials[k] = v
			}
		}
	}
	return nil
}

// Names returns the registered provider names in current priority order.
func (r *ProviderRegistry) Names() []string {
	out := make([]string, 0)
	for _, pc := range r.Ordered() {
		out = append(out, pc.Name)
	}
	return out
}
