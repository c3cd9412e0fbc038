package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var knownTopics = []Topic{
	TopicAPI, TopicSearch, TopicDownload, TopicAuth, TopicSearchAuth, TopicDownloadAuth,
}

// UnmarshalYAML decodes one top-level providerName: {...} value into a
// ProviderConfig, splitting the six reserved topic keys into Plugins and
// everything else under "products" into Products, per spec.md §6.
func (p *ProviderConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding provider config: %w", err)
	}

	p.Plugins = make(map[Topic]*PluginConfig)
	p.Products = make(map[string]*ProductConfig)

	for key, v := range raw {
		n := v
		switch key {
		case "priority":
			if err := n.Decode(&p.Priority); err != nil {
				return fmt.Errorf("decoding priority: %w", err)
			}
		case "description":
			if err := n.Decode(&p.Description); err != nil {
				return fmt.Errorf("decoding description: %w", err)
			}
		case "url":
			if err := n.Decode(&p.URL); err != nil {
				return fmt.Errorf("decoding url: %w", err)
			}
		case "group":
			if err := n.Decode(&p.Group); err != nil {
				return fmt.Errorf("decoding group: %w", err)
			}
		case "roles":
			if err := n.Decode(&p.Roles); err != nil {
				return fmt.Errorf("decoding roles: %w", err)
			}
		case "products":
			var products map[string]*ProductConfig
			if err := n.Decode(&products); err != nil {
				return fmt.Errorf("decoding products: %w", err)
			}
			p.Products = products
		default:
			if !isKnownTopic(key) {
				continue
			}
			var pc PluginConfig
			if err := n.Decode(&pc); err != nil {
				return fmt.Errorf("decoding %s plugin config: %w", key, err)
			}
			p.Plugins[Topic(key)] = &pc
		}
	}
	return nil
}

func isKnownTopic(key string) bool {
	for _, t := range knownTopics {
		if string(t) == key {
			return true
		}
	}
	return false
}

// UnmarshalYAML decodes a plugin sub-config, pulling out "type",
// "credentials", and "credentials_target" and leaving every other key
// (endpoints, pagination, metadata_mapping, ...) in Extra, since each
// plugin variant interprets a different subset.
func (c *PluginConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding plugin config: %w", err)
	}
	c.Extra = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "type":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("plugin config %q must be a string", k)
			}
			c.Type = s
		case "credentials_target":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("plugin config %q must be a string", k)
			}
			c.CredentialsTarget = s
		case "credentials":
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("plugin config %q must be a mapping", k)
			}
			c.Credentials = make(map[string]string, len(m))
			for ck, cv := range m {
				c.Credentials[ck] = fmt.Sprint(cv)
			}
		default:
			c.Extra[k] = v
		}
	}
	return nil
}

// UnmarshalYAML decodes a products[id] entry, per spec.md §6's list of
// recognized keys, leaving anything else as a free-form queryable
// default.
func (pc *ProductConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding product config: %w", err)
	}
	pc.QueryableDefaults = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "collection":
			pc.Collection, _ = v.(string)
		case "productType":
			pc.ProductType, _ = v.(string)
		case "metadata_mapping":
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("product config %q must be a mapping", k)
			}
			pc.MetadataMapping = m
		case "fetch_metadata":
			pc.FetchMetadata, _ = v.(string)
		case "complementary_url_key":
			pc.ComplementaryURLKey, _ = v.(string)
		case "constraints_file_path":
			pc.ConstraintsFilePath, _ = v.(string)
		case "constraints_file_url":
			pc.ConstraintsFileURL, _ = v.(string)
		case "default_bucket":
			pc.DefaultBucket, _ = v.(string)
		case "build_safe":
			pc.BuildSafe, _ = v.(bool)
		case "flatten_top_dirs":
			pc.FlattenTopDirs, _ = v.(bool)
		default:
			pc.QueryableDefaults[k] = v
		}
	}
	return nil
}
