package auth

import (
	"context"
	"net/http"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterAuthPlugin("HttpQueryStringAuth", newQueryStringAuth)
}

// queryStringAuth appends configured credential keys to every outgoing
// request's URL query string, per spec.md §4.4's "Query-string" variant,
// grounded on
// original_source/eodag/plugins/authentication/qsauth.py's QueryStringAuth.
type queryStringAuth struct {
	provider string
	params   map[string]string
	authURI  string
	client   *http.Client
}

func newQueryStringAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	if err := requireCredentials(provider.Name, plugin); err != nil {
		return nil, err
	}
	return &queryStringAuth{
		provider: provider.Name,
		params:   plugin.Credentials,
		authURI:  optStringOpt(plugin, "auth_uri", ""),
		client:   http.DefaultClient,
	}, nil
}

func (a *queryStringAuth) apply(req *http.Request) {
	q := req.URL.Query()
	for k, v := range a.params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
}

func (a *queryStringAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	if a.authURI != "" {
		probeReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.authURI, nil)
		if err != nil {
			return nil, errs.NewAuthentication(a.provider, "building probe request", err)
		}
		a.apply(probeReq)
		resp, err := a.client.Do(probeReq)
		if err != nil {
			return nil, errs.NewAuthentication(a.provider, "probe request failed", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errs.NewAuthentication(a.provider, "credentials rejected by auth_uri", nil)
		}
	}
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		a.apply(req)
		return nil
	}), nil
}
