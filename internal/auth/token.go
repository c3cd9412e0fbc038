package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterAuthPlugin("TokenAuth", newTokenAuth)
}

// tokenAuth POSTs credentials to auth_uri once, extracts a bearer token
// from the text or JSON response body, and injects it as an
// `Authorization: Bearer` header on every subsequent request, per
// spec.md §4.4's "Token (simple)" variant, grounded on
// original_source/eodag/plugins/authentication/token.py.
type tokenAuth struct {
	provider   string
	authURI    string
	credentials map[string]string
	headers    map[string]string
	tokenType  string
	tokenKey   string
	client     *http.Client
}

func newTokenAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	if err := requireCredentials(provider.Name, plugin); err != nil {
		return nil, err
	}
	authURI, err := stringOpt(provider.Name, plugin, "auth_uri")
	if err != nil {
		return nil, err
	}
	return &tokenAuth{
		provider:    provider.Name,
		authURI:     authURI,
		credentials: plugin.Credentials,
		headers:     headersOpt(plugin, "headers"),
		tokenType:   optStringOpt(plugin, "token_type", "text"),
		tokenKey:    optStringOpt(plugin, "token_key", "access_token"),
		client:      http.DefaultClient,
	}, nil
}

func (a *tokenAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	form := url.Values{}
	for k, v := range a.credentials {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.NewAuthentication(a.provider, "building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errs.NewAuthentication(a.provider, "token request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewAuthentication(a.provider, "reading token response", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errs.NewAuthentication(a.provider, "credentials rejected", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.NewRequest(a.provider, resp.StatusCode, string(body), nil)
	}

	var token string
	if a.tokenType == "json" {
		var parsed map[string]any
		if err := jsonutil.Unmarshal(body, &parsed); err != nil {
			return nil, errs.NewAuthentication(a.provider, "parsing token response JSON", err)
		}
		v, ok := parsed[a.tokenKey]
		if !ok {
			return nil, errs.NewAuthentication(a.provider, "token key not found in response", nil)
		}
		token, _ = v.(string)
	} else {
		token = strings.TrimSpace(string(body))
	}
	if token == "" {
		return nil, errs.NewAuthentication(a.provider, "empty token in response", nil)
	}

	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}), nil
}
