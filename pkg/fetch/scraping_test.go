package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePathSecurityRejectsSiblingWithSharedPrefix(t *testing.T) {
	cfg := &ContentSecurityConfig{AllowedPaths: []string{"/data/public"}}

	assert.NoError(t, validatePathSecurity("/data/public", cfg))
	assert.NoError(t, validatePathSecurity("/data/public/report.json", cfg))
	assert.Error(t, validatePathSecurity("/data/public_secret/passwords.txt", cfg))
}

func TestValidatePathSecurityNoAllowlistMeansUnrestricted(t *testing.T) {
	assert.NoError(t, validatePathSecurity("/anything", &ContentSecurityConfig{}))
	assert.NoError(t, validatePathSecurity("/anything", nil))
}

func TestParseDataURI(t *testing.T) {
	contentType, data, err := ParseDataURI("data:text/plain;base64,aGVsbG8=")
	assert.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
	assert.Equal(t, "hello", string(data))
}
