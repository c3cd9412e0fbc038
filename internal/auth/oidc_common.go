package auth

import (
	"net/http/cookiejar"

	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

// newCookieJar builds the in-memory cookie jar the OIDC flows need to
// carry a session across the authorization-endpoint GET, the login
// form POST, and any consent-step redirect the provider inserts between
// them.
func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(nil)
}

// extractTokenField parses a token-endpoint JSON response and returns
// the string field named key (spec.md §4.4's "extract target token").
func extractTokenField(body []byte, key string) (string, error) {
	var parsed map[string]any
	if err := jsonutil.Unmarshal(body, &parsed); err != nil {
		return "", errs.NewAuthentication("", "parsing token response", err)
	}
	v, ok := parsed[key]
	if !ok {
		return "", errs.NewAuthentication("", "token response missing "+key, nil)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errs.NewAuthentication("", "token field "+key+" is empty or not a string", nil)
	}
	return s, nil
}
