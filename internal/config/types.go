// Package config implements the layered configuration loader: built-in
// provider defaults, user overrides, environment-variable overrides,
// and per-call kwargs, producing immutable ProviderConfig records, per
// spec.md §6's "Configuration file" section.
package config

import "fmt"

// PluginConfig is one topic's (api/search/download/auth/search_auth/
// download_auth) plugin sub-config, per spec.md §3's ProviderConfig
// entity table. Type names the registered plugin constructor to use;
// Extra carries every plugin-specific key (endpoints, pagination,
// metadata_mapping, free-text ops, token keys, ...) verbatim, since each
// plugin variant interprets a different subset and this package does
// not know the full set up front.
type PluginConfig struct {
	Type string

	// Credentials holds the plugin's auth material (username/password,
	// api_key, access_key_id, ...), when this PluginConfig is itself an
	// auth topic. Empty for non-auth topics.
	Credentials map[string]string

	// CredentialsTarget names the share_credentials matching key this
	// config participates in (OPEN QUESTION DECISIONS #1 in
	// SPEC_FULL.md): ShareCredentials only copies Credentials between
	// configs whose CredentialsTarget is non-empty and equal.
	CredentialsTarget string

	Extra map[string]any
}

// String returns the raw value stored under key in Extra, or ok=false.
func (c *PluginConfig) String(key string) (string, bool) {
	v, ok := c.Extra[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a deep-enough copy of c for copy-on-write merge
// semantics (spec.md §3: "mapping is copy-on-write when merged").
func (c *PluginConfig) Clone() *PluginConfig {
	if c == nil {
		return nil
	}
	out := &PluginConfig{
		Type:              c.Type,
		CredentialsTarget: c.CredentialsTarget,
		Credentials:       make(map[string]string, len(c.Credentials)),
		Extra:             make(map[string]any, len(c.Extra)),
	}
	for k, v := range c.Credentials {
		out.Credentials[k] = v
	}
	for k, v := range c.Extra {
		out.Extra[k] = v
	}
	return out
}

// ProductConfig is one provider's per-product-type entry, per spec.md
// §6's "products entry" description.
type ProductConfig struct {
	Collection          string
	ProductType         string
	MetadataMapping     map[string]any
	FetchMetadata        string
	ComplementaryURLKey string
	ConstraintsFilePath string
	ConstraintsFileURL  string
	DefaultBucket       string
	BuildSafe           bool
	FlattenTopDirs      bool

	// QueryableDefaults carries any free-form queryable default that
	// doesn't fit the named fields above.
	QueryableDefaults map[string]any
}

// Topic names one of the six plugin slots a ProviderConfig may fill.
type Topic string

const (
	TopicAPI          Topic = "api"
	TopicSearch       Topic = "search"
	TopicDownload     Topic = "download"
	TopicAuth         Topic = "auth"
	TopicSearchAuth   Topic = "search_auth"
	TopicDownloadAuth Topic = "download_auth"
)

// ProviderConfig is constructed once per process from the layered
// loader and is immutable thereafter except for Update, per spec.md
// §3's ProviderConfig lifecycle note.
type ProviderConfig struct {
	Name        string
	Priority    int
	Description string
	URL         string
	Roles       []string
	Group       string

	Plugins map[Topic]*PluginConfig

	Products map[string]*ProductConfig
}

// Validate enforces spec.md §3's ProviderConfig invariant: has a name,
// implements at least one plugin topic, and if `api` is present no
// other topic plugin is permitted on the same provider.
func (p *ProviderConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider config has no name")
	}
	if len(p.Plugins) == 0 {
		return fmt.Errorf("provider %q declares no plugin topics", p.Name)
	}
	if _, hasAPI := p.Plugins[TopicAPI]; hasAPI && len(p.Plugins) > 1 {
		return fmt.Errorf("provider %q declares an api plugin alongside other topics; api providers must be exclusive", p.Name)
	}
	for topic, pc := range p.Plugins {
		if pc.Type == "" {
			return fmt.Errorf("provider %q topic %q has no plugin type", p.Name, topic)
		}
	}
	return nil
}

// Update applies a mutation to priority and/or credentials, the only
// two fields spec.md §3 allows to change after construction, returning
// a new ProviderConfig (the caller is expected to install it under the
// registry lock).
func (p *ProviderConfig) Update(priority *int, topic Topic, credentials map[string]string) *ProviderConfig {
	out := p.Clone()
	if priority != nil {
		out.Priority = *priority
	}
	if credentials != nil {
		if pc, ok := out.Plugins[topic]; ok {
			pc.Credentials = credentials
		}
	}
	return out
}

// Clone deep-copies p so Update/Merge never mutate a config another
// goroutine may be reading, per spec.md §5's "no global mutable
// configuration after construction."
func (p *ProviderConfig) Clone() *ProviderConfig {
	out := &ProviderConfig{
		Name:        p.Name,
		Priority:    p.Priority,
		Description: p.Description,
		URL:         p.URL,
		Group:       p.Group,
		Roles:       append([]string(nil), p.Roles...),
		Plugins:     make(map[Topic]*PluginConfig, len(p.Plugins)),
		Products:    make(map[string]*ProductConfig, len(p.Products)),
	}
	for topic, pc := range p.Plugins {
		out.Plugins[topic] = pc.Clone()
	}
	for id, prod := range p.Products {
		cp := *prod
		out.Products[id] = &cp
	}
	return out
}

// SupportsProductType reports whether p can serve productType, per
// spec.md §4.2's selection rule: an exact products entry, or a
// GENERIC_PRODUCT_TYPE template entry.
func (p *ProviderConfig) SupportsProductType(productType string) bool {
	if _, ok := p.Products[productType]; ok {
		return true
	}
	_, ok := p.Products["GENERIC_PRODUCT_TYPE"]
	return ok
}

// MergeOverride deep-merges other on top of p, per spec.md §4.3's
// ProviderRegistry.Merge: plugin sub-configs are merged field-by-field
// preserving the base PluginConfig's other fields, non-plugin scalar
// fields from other win when set (non-zero).
func (p *ProviderConfig) MergeOverride(other *ProviderConfig) *ProviderConfig {
	merged := p.Clone()
	if other.Priority != 0 {
		merged.Priority = other.Priority
	}
	if other.Description != "" {
		merged.Description = other.Description
	}
	if other.URL != "" {
		merged.URL = other.URL
	}
	if other.Group != "" {
		merged.Group = other.Group
	}
	if len(other.Roles) > 0 {
		merged.Roles = other.Roles
	}
	for topic, pc := range other.Plugins {
		if existing, ok := merged.Plugins[topic]; ok {
			merged.Plugins[topic] = existing.mergeOverride(pc)
		} else {
			merged.Plugins[topic] = pc.Clone()
		}
	}
	for id, prod := range other.Products {
		merged.Products[id] = prod
	}
	return merged
}

// mergeOverride deep-merges other on top of c, field-by-field, per
// spec.md §3's "mapping is copy-on-write when merged."
func (c *PluginConfig) mergeOverride(other *PluginConfig) *PluginConfig {
	merged := c.Clone()
	if other.Type != "" {
		merged.Type = other.Type
	}
	if other.CredentialsTarget != "" {
		merged.CredentialsTarget = other.CredentialsTarget
	}
	for k, v := range other.Credentials {
		merged.Credentials[k] = v
	}
	for k, v := range other.Extra {
		merged.Extra[k] = v
	}
	return merged
}
