package auth

import (
	"context"
	"net/http"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterAuthPlugin("HTTPHeaderAuth", newHeaderAuth)
}

// headerAuth copies a configured header template map onto outgoing
// requests, substituting credential placeholders, per spec.md §4.4's
// "Header" variant, grounded on
// original_source/eodag/plugins/authentication/header.py. Placeholder
// substitution reuses mapping.RenderTemplate rather than a second
// templating implementation, since header.py's `"{userinput}".format(...)`
// and the metadata mapping engine's `{field}` template entries are the
// same `{name}` substitution shape.
type headerAuth struct {
	headers map[string]string
}

func newHeaderAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	if err := requireCredentials(provider.Name, plugin); err != nil {
		return nil, err
	}
	templates := headersOpt(plugin, "headers")
	vars := make(map[string]any, len(plugin.Credentials))
	for k, v := range plugin.Credentials {
		vars[k] = v
	}
	rendered := make(map[string]string, len(templates))
	for name, tmpl := range templates {
		value, err := mapping.RenderTemplate(tmpl, vars)
		if err != nil {
			return nil, err
		}
		rendered[name] = value
	}
	return &headerAuth{headers: rendered}, nil
}

func (a *headerAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	headers := a.headers
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return nil
	}), nil
}
