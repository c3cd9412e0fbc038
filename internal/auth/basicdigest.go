package auth

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterAuthPlugin("GenericAuth", newGenericAuth)
	registry.RegisterAuthPlugin("BasicAuth", newGenericAuth)
	registry.RegisterAuthPlugin("DigestAuth", newGenericAuth)
}

// genericAuth wraps HTTP Basic/Digest with credentials from config, per
// spec.md §4.4's "Basic/Digest" variant, grounded on
// original_source/eodag/plugins/authentication/generic.py's method switch
// (the Python plugin there picks between requests' HTTPBasicAuth and
// HTTPDigestAuth based on a "method" config key).
type genericAuth struct {
	provider string
	username string
	password string
	digest   bool
	client   *http.Client
}

func newGenericAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	if err := requireCredentials(provider.Name, plugin); err != nil {
		return nil, err
	}
	username, ok := plugin.Credentials["username"]
	if !ok {
		return nil, errs.NewMisconfigured(provider.Name, "missing credential \"username\"")
	}
	password, ok := plugin.Credentials["password"]
	if !ok {
		return nil, errs.NewMisconfigured(provider.Name, "missing credential \"password\"")
	}
	method := optStringOpt(plugin, "method", "basic")
	return &genericAuth{
		provider: provider.Name,
		username: username,
		password: password,
		digest:   strings.EqualFold(method, "digest") || plugin.Type == "DigestAuth",
		client:   http.DefaultClient,
	}, nil
}

func (a *genericAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	if a.digest {
		return newDigestAuthenticator(a.username, a.password, a.client), nil
	}
	username, password := a.username, a.password
	return model.AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		req.SetBasicAuth(username, password)
		return nil
	}), nil
}

// digestAuthenticator implements RFC 7616 digest auth by probing the
// target host once for a WWW-Authenticate challenge and reusing it
// (incrementing the nonce count) on every subsequent request, since no
// digest-auth client library appears anywhere in the retrieved corpus
// (checked every go.mod for "digest": only indirect, never-imported
// transitive deps turned up, e.g. mongodb-forks/digest pulled in by an
// unrelated Atlas SDK) — justified stdlib-only (crypto/md5, net/http).
type digestAuthenticator struct {
	username, password string
	client             *http.Client

	mu         sync.Mutex
	challenges map[string]*digestChallenge
	nc         uint32
}

type digestChallenge struct {
	realm, nonce, qop, opaque, algorithm string
}

func newDigestAuthenticator(username, password string, client *http.Client) *digestAuthenticator {
	return &digestAuthenticator{
		username:   username,
		password:   password,
		client:     client,
		challenges: map[string]*digestChallenge{},
	}
}

func (d *digestAuthenticator) Authenticate(ctx context.Context, req *http.Request) error {
	host := req.URL.Host
	d.mu.Lock()
	ch, ok := d.challenges[host]
	d.mu.Unlock()
	if !ok {
		var err error
		ch, err = d.probe(ctx, req.URL.String())
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.challenges[host] = ch
		d.mu.Unlock()
	}

	nc := atomic.AddUint32(&d.nc, 1)
	ncStr := fmt.Sprintf("%08x", nc)
	cnonce := randomHex(8)
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", d.username, ch.realm, d.password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", req.Method, req.URL.RequestURI()))

	var response string
	if ch.qop != "" {
		response = md5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, ch.nonce, ncStr, cnonce, ch.qop, ha2))
	} else {
		response = md5Hex(fmt.Sprintf("%s:%s:%s", ha1, ch.nonce, ha2))
	}

	header := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		d.username, ch.realm, ch.nonce, req.URL.RequestURI(), response,
	)
	if ch.qop != "" {
		header += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, ch.qop, ncStr, cnonce)
	}
	if ch.opaque != "" {
		header += fmt.Sprintf(`, opaque="%s"`, ch.opaque)
	}
	req.Header.Set("Authorization", header)
	return nil
}

func (d *digestAuthenticator) probe(ctx context.Context, url string) (*digestChallenge, error) {
	probeReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building digest probe request: %w", err)
	}
	resp, err := d.client.Do(probeReq)
	if err != nil {
		return nil, errs.NewAuthentication("", "digest probe request failed", err)
	}
	defer resp.Body.Close()
	header := resp.Header.Get("WWW-Authenticate")
	if resp.StatusCode != http.StatusUnauthorized || header == "" {
		return nil, errs.NewAuthentication("", "server did not issue a digest challenge", nil)
	}
	return parseDigestChallenge(header)
}

var digestParamRe = regexp.MustCompile(`(\w+)=("([^"]*)"|[^\s,]+)`)

func parseDigestChallenge(header string) (*digestChallenge, error) {
	header = strings.TrimPrefix(header, "Digest ")
	ch := &digestChallenge{algorithm: "MD5"}
	for _, m := range digestParamRe.FindAllStringSubmatch(header, -1) {
		key, val := m[1], m[3]
		if val == "" {
			val = m[2]
		}
		switch strings.ToLower(key) {
		case "realm":
			ch.realm = val
		case "nonce":
			ch.nonce = val
		case "qop":
			ch.qop = strings.Split(val, ",")[0]
		case "opaque":
			ch.opaque = val
		case "algorithm":
			ch.algorithm = val
		}
	}
	if ch.nonce == "" {
		return nil, errs.NewAuthentication("", "digest challenge missing nonce", nil)
	}
	return ch, nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
