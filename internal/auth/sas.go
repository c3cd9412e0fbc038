package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterAuthPlugin("SASAuth", newSASAuth)
}

// sasAuth implements time-limited signed-URL auth, per spec.md §4.4's
// "SAS" variant: GET a configured signed-URL endpoint, cache
// {signed_url, expiry} keyed by the original URL, and transparently
// substitute the signed URL into outgoing requests while the cached
// entry is still valid.
type sasAuth struct {
	provider   string
	signURI    string
	urlParam   string
	expiryKey  string
	signedKey  string
	defaultTTL time.Duration
	client     *http.Client

	mu    sync.Mutex
	cache map[string]*sasEntry
}

type sasEntry struct {
	signedURL string
	expiry    time.Time
}

func newSASAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	signURI, err := stringOpt(provider.Name, plugin, "signing_uri")
	if err != nil {
		return nil, err
	}
	return &sasAuth{
		provider:   provider.Name,
		signURI:    signURI,
		urlParam:   optStringOpt(plugin, "url_param", "url"),
		expiryKey:  optStringOpt(plugin, "expiry_key", "expiry"),
		signedKey:  optStringOpt(plugin, "signed_url_key", "signed_url"),
		defaultTTL: time.Duration(optIntOpt(plugin, "default_ttl_seconds", 3600)) * time.Second,
		client:     http.DefaultClient,
		cache:      map[string]*sasEntry{},
	}, nil
}

func (a *sasAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		signed, err := a.signedURLFor(ctx, req.URL.String())
		if err != nil {
			return err
		}
		u, err := url.Parse(signed)
		if err != nil {
			return errs.NewAuthentication(a.provider, "parsing signed URL", err)
		}
		req.URL = u
		req.Host = u.Host
		return nil
	}), nil
}

// signedURLFor returns a cached signed URL for original while
// now < expiry, per spec.md §4.4: "treat a URL as authenticated while
// now < expiry."
func (a *sasAuth) signedURLFor(ctx context.Context, original string) (string, error) {
	a.mu.Lock()
	entry, ok := a.cache[original]
	a.mu.Unlock()
	if ok && time.Now().Before(entry.expiry) {
		return entry.signedURL, nil
	}

	q := url.Values{}
	q.Set(a.urlParam, original)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.signURI+"?"+q.Encode(), nil)
	if err != nil {
		return "", errs.NewAuthentication(a.provider, "building SAS request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", errs.NewAuthentication(a.provider, "SAS request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errs.NewAuthentication(a.provider, "SAS endpoint rejected the request", nil)
	}
	if resp.StatusCode >= 400 {
		return "", errs.NewRequest(a.provider, resp.StatusCode, string(body), nil)
	}

	var parsed map[string]any
	if err := jsonutil.Unmarshal(body, &parsed); err != nil {
		return "", errs.NewAuthentication(a.provider, "parsing SAS response", err)
	}
	signedURL, _ := parsed[a.signedKey].(string)
	if signedURL == "" {
		return "", errs.NewAuthentication(a.provider, "SAS response missing "+a.signedKey, nil)
	}
	ttl := a.defaultTTL
	if rawExpiry, ok := parsed[a.expiryKey]; ok {
		if exp, err := parseSASExpiry(rawExpiry); err == nil {
			a.mu.Lock()
			a.cache[original] = &sasEntry{signedURL: signedURL, expiry: exp}
			a.mu.Unlock()
			return signedURL, nil
		}
	}

	a.mu.Lock()
	a.cache[original] = &sasEntry{signedURL: signedURL, expiry: time.Now().Add(ttl)}
	a.mu.Unlock()
	return signedURL, nil
}

func parseSASExpiry(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	case float64:
		return time.Unix(int64(v), 0), nil
	}
	return time.Time{}, errs.NewValidation("expiry", "unrecognized SAS expiry format")
}

