package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CS-SI/eodag-sub000/internal/errs"
)

// EnvPrefix is the environment-variable namespace spec.md §6 specifies:
// EODAG__<PROVIDER>__<TOPIC>__<KEY>[__SUBKEY]*.
const EnvPrefix = "EODAG"

// Loader reads the three static layers spec.md §2/§6 describe (built-in
// defaults, user overrides, environment variables) and produces an
// immutable set of ProviderConfig records keyed by name. Per-call
// kwargs, the fourth layer, are applied by callers on top of the
// resolved ProviderConfig (e.g. gateway.Search's **kwargs), not here.
//
// Built-in defaults and the user overlay are parsed directly with
// gopkg.in/yaml.v3 and merged with ProviderConfig.MergeOverride, which
// preserves the exact case of provider names, topic keys, and product
// type ids (YAML map keys matter here: "GENERIC_PRODUCT_TYPE" is a
// literal sentinel, not just a label). Environment variables are a
// different problem — turning "EODAG__PEPS__AUTH__CREDENTIALS__USERNAME"
// into a nested provider/topic/key path is exactly what viper's
// delimiter-aware Set/AllSettings does, so that layer alone goes
// through a throwaway viper instance and is then walked onto the
// already-typed provider map.
type Loader struct{}

// NewLoader builds a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load builds the final provider map from builtinYAML (the packaged
// defaults), an optional userYAML overlay (nil/empty to skip), and the
// process environment, in that precedence order (later layers win).
func (l *Loader) Load(builtinYAML, userYAML []byte) (map[string]*ProviderConfig, error) {
	providers, err := parseProviders(builtinYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing built-in provider defaults: %w", err)
	}
	if len(userYAML) > 0 {
		user, err := parseProviders(userYAML)
		if err != nil {
			return nil, fmt.Errorf("parsing user provider overrides: %w", err)
		}
		for name, ov := range user {
			if base, ok := providers[name]; ok {
				providers[name] = base.MergeOverride(ov)
			} else {
				providers[name] = ov
			}
		}
	}

	envSettings, err := envOverrideSettings()
	if err != nil {
		return nil, fmt.Errorf("parsing EODAG__ environment overrides: %w", err)
	}
	applyEnvSettings(providers, envSettings)

	for name, pc := range providers {
		if err := pc.Validate(); err != nil {
			return nil, errs.NewMisconfigured(name, err.Error())
		}
	}
	return providers, nil
}

func parseProviders(data []byte) (map[string]*ProviderConfig, error) {
	var out map[string]*ProviderConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]*ProviderConfig{}
	}
	for name, pc := range out {
		pc.Name = name
	}
	return out, nil
}

// envOverrideSettings scans the process environment for EODAG__ prefixed
// variables and feeds each one into a throwaway viper instance as a Set
// call on the "__"-delimited key, letting viper's own key-splitting
// build the nested provider/topic/key map; AllSettings then hands back a
// plain map[string]any tree to apply onto the typed provider configs.
func envOverrideSettings() (map[string]any, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	prefix := EnvPrefix + "__"
	found := false
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, val := kv[:eq], kv[eq+1:]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.TrimPrefix(key, prefix)
		if strings.Count(path, "__") < 2 {
			continue
		}
		v.Set(path, coerceEnvValue(val))
		found = true
	}
	if !found {
		return nil, nil
	}
	return v.AllSettings(), nil
}

// applyEnvSettings walks the {provider: {topic: {...}}} tree
// envOverrideSettings produced and applies each leaf onto the matching
// PluginConfig, per spec.md §6's EODAG__<PROVIDER>__<TOPIC>__<KEY> form.
// Unknown providers/topics are silently ignored: an environment variable
// addressing a provider this process doesn't know about is not an
// error, since the same environment is often shared across deployments
// with different user config overlays.
func applyEnvSettings(providers map[string]*ProviderConfig, settings map[string]any) {
	for providerName, topicsRaw := range settings {
		pc, ok := providers[providerName]
		if !ok {
			continue
		}
		topics, ok := topicsRaw.(map[string]any)
		if !ok {
			continue
		}
		for topicName, fieldsRaw := range topics {
			plugin, ok := pc.Plugins[Topic(topicName)]
			if !ok {
				continue
			}
			fields, ok := fieldsRaw.(map[string]any)
			if !ok {
				continue
			}
			applyEnvFields(plugin, fields)
		}
	}
}

func applyEnvFields(plugin *PluginConfig, fields map[string]any) {
	for key, v := range fields {
		switch key {
		case "type":
			if s, ok := v.(string); ok {
				plugin.Type = s
			}
		case "credentials_target":
			if s, ok := v.(string); ok {
				plugin.CredentialsTarget = s
			}
		case "credentials":
			creds, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if plugin.Credentials == nil {
				plugin.Credentials = map[string]string{}
			}
			for ck, cv := range creds {
				plugin.Credentials[ck] = fmt.Sprint(cv)
			}
		default:
			if plugin.Extra == nil {
				plugin.Extra = map[string]any{}
			}
			plugin.Extra[key] = v
		}
	}
}

// coerceEnvValue converts an environment-variable string into a bool or
// int when it unambiguously parses as one, else leaves it a string;
// environment variables carry no type information of their own.
func coerceEnvValue(val string) any {
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	return val
}

// SortedNames returns providers' keys sorted by descending priority,
// then name for ties. Callers that need true registration-order
// tie-breaking (spec.md §4.2/§5: "priority desc, then registration
// order") should use ProviderRegistry (internal/registry) instead,
// which preserves an explicit insertion-ordered slice; a Go map has no
// stable iteration order to recover that from.
func SortedNames(providers map[string]*ProviderConfig) []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.SliceStable(names, func(i, j int) bool {
		pi, pj := providers[names[i]], providers[names[j]]
		if pi.Priority != pj.Priority {
			return pi.Priority > pj.Priority
		}
		return names[i] < names[j]
	})
	return names
}
