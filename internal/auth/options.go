// Package auth implements the authentication plugin variants spec.md
// §4.4 describes, each producing a model.Authenticator that a search or
// download plugin attaches to its outgoing requests. Every variant
// registers itself with internal/registry from an init(), keyed by the
// plugin type name a provider's auth config names.
package auth

import (
	"fmt"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// stringOpt reads a required string option from plugin's Extra/known
// fields, returning a MisconfiguredError naming provider and key if
// absent or empty.
func stringOpt(provider string, plugin *config.PluginConfig, key string) (string, error) {
	v, ok := plugin.String(key)
	if !ok || v == "" {
		return "", errs.NewMisconfigured(provider, fmt.Sprintf("missing required option %q", key))
	}
	return v, nil
}

// optStringOpt reads an optional string option, returning def when absent.
func optStringOpt(plugin *config.PluginConfig, key, def string) string {
	if v, ok := plugin.String(key); ok {
		return v
	}
	return def
}

// optBoolOpt reads an optional bool option.
func optBoolOpt(plugin *config.PluginConfig, key string, def bool) bool {
	v, ok := plugin.Extra[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// headersOpt reads a string->string map option (e.g. "headers").
func headersOpt(plugin *config.PluginConfig, key string) map[string]string {
	raw, ok := plugin.Extra[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// requireCredentials enforces validate_config_credentials's rule from
// spec.md §4.4: credentials must be present and every value non-empty.
func requireCredentials(provider string, plugin *config.PluginConfig) error {
	if len(plugin.Credentials) == 0 {
		return errs.NewMisconfigured(provider, "missing credentials")
	}
	var missing []string
	for k, v := range plugin.Credentials {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return errs.NewMisconfigured(provider, fmt.Sprintf("missing credential values: %v", missing))
	}
	return nil
}

// optIntOpt reads an optional int option, accepting both JSON-decoded
// float64 and plain int forms.
func optIntOpt(plugin *config.PluginConfig, key string, def int) int {
	v, ok := plugin.Extra[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}
