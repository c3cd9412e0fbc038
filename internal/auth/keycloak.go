package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterAuthPlugin("KeycloakOIDCPasswordAuth", newKeycloakAuth)
}

// keycloakAuth implements the Keycloak/OpenID Connect password grant,
// per spec.md §4.4's "Keycloak/OIDC password grant" variant, grounded on
// original_source/eodag/plugins/authentication/keycloak.py. It keeps a
// single cached access/refresh token pair across calls (the
// PluginRegistry memoizes one instance per provider), refreshing it
// instead of re-authenticating when possible, and — the one-time-password
// accommodation from spec.md §4.4 — falls back to the last token it ever
// obtained if a refresh attempt fails, rather than forcing a fresh
// password grant that might ask an OTP-protected account for a code it
// cannot supply twice.
type keycloakAuth struct {
	provider       string
	tokenURL       string
	clientID       string
	clientSecret   string
	credentials    map[string]string
	tokenProvision string
	tokenQSKey     string
	client         *http.Client

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	expiry        time.Time
	lastGoodToken string
}

func newKeycloakAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	if err := requireCredentials(provider.Name, plugin); err != nil {
		return nil, err
	}
	authBaseURI, err := stringOpt(provider.Name, plugin, "auth_base_uri")
	if err != nil {
		return nil, err
	}
	realm, err := stringOpt(provider.Name, plugin, "realm")
	if err != nil {
		return nil, err
	}
	clientID, err := stringOpt(provider.Name, plugin, "client_id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := stringOpt(provider.Name, plugin, "client_secret")
	if err != nil {
		return nil, err
	}
	provision := optStringOpt(plugin, "token_provision", "header")
	qsKey := optStringOpt(plugin, "token_qs_key", "")
	if provision == "qs" && qsKey == "" {
		return nil, errs.NewMisconfigured(provider.Name, `token_provision "qs" requires token_qs_key`)
	}
	return &keycloakAuth{
		provider:       provider.Name,
		tokenURL:       strings.TrimRight(authBaseURI, "/") + "/realms/" + realm + "/protocol/openid-connect/token",
		clientID:       clientID,
		clientSecret:   clientSecret,
		credentials:    plugin.Credentials,
		tokenProvision: provision,
		tokenQSKey:     qsKey,
		client:         http.DefaultClient,
	}, nil
}

func (a *keycloakAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	a.mu.Lock()
	token, err := a.resolveTokenLocked(ctx)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	provision, key := a.tokenProvision, a.tokenQSKey
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		if provision == "qs" {
			q := req.URL.Query()
			q.Set(key, token)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}), nil
}

func (a *keycloakAuth) resolveTokenLocked(ctx context.Context) (string, error) {
	if a.accessToken != "" && time.Now().Before(a.expiry) {
		return a.accessToken, nil
	}
	if a.refreshToken != "" {
		tok, err := a.requestToken(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {a.refreshToken},
			"client_id":     {a.clientID},
			"client_secret": {a.clientSecret},
		})
		if err == nil {
			a.store(tok)
			return a.accessToken, nil
		}
		if a.lastGoodToken != "" {
			return a.lastGoodToken, nil
		}
	}

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
	}
	for k, v := range a.credentials {
		form.Set(k, v)
	}
	tok, err := a.requestToken(ctx, form)
	if err != nil {
		if a.lastGoodToken != "" {
			return a.lastGoodToken, nil
		}
		return "", err
	}
	a.store(tok)
	return a.accessToken, nil
}

type keycloakTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (a *keycloakAuth) requestToken(ctx context.Context, form url.Values) (*keycloakTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.NewAuthentication(a.provider, "building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errs.NewAuthentication(a.provider, "token request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, errs.NewAuthentication(a.provider, "token endpoint returned "+strconv.Itoa(resp.StatusCode), nil)
	}
	var tok keycloakTokenResponse
	if err := jsonutil.Unmarshal(body, &tok); err != nil {
		return nil, errs.NewAuthentication(a.provider, "parsing token response", err)
	}
	if tok.AccessToken == "" {
		return nil, errs.NewAuthentication(a.provider, "token response missing access_token", nil)
	}
	return &tok, nil
}

func (a *keycloakAuth) store(tok *keycloakTokenResponse) {
	a.accessToken = tok.AccessToken
	a.lastGoodToken = tok.AccessToken
	a.refreshToken = tok.RefreshToken
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 60
	}
	a.expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
}
