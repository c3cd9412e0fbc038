package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const builtinFixture = `
peps:
  priority: 1
  description: CNES PEPS
  url: https://peps.cnes.fr
  search:
    type: QueryStringSearch
    endpoint: https://peps.cnes.fr/resto/api/collections/{collection}/search.json
  download:
    type: HTTPDownload
    base_uri: https://peps.cnes.fr/resto
  auth:
    type: TokenAuth
    auth_uri: https://peps.cnes.fr/oauth/token
    credentials_target: peps_shared
  products:
    S2_MSI_L1C:
      collection: S2ST

creodias:
  priority: 0
  search:
    type: QueryStringSearch
    endpoint: https://creodias.eu/search
  download:
    type: S3Download
  auth:
    type: AWSAuth
    credentials_target: peps_shared
  products:
    GENERIC_PRODUCT_TYPE:
      collection: "{productType}"
`

func loadFixture(t *testing.T, userYAML string) map[string]*ProviderConfig {
	t.Helper()
	l := NewLoader()
	providers, err := l.Load([]byte(builtinFixture), []byte(userYAML))
	require.NoError(t, err)
	return providers
}

func TestLoadBuiltinOnly(t *testing.T) {
	providers := loadFixture(t, "")
	require.Contains(t, providers, "peps")
	peps := providers["peps"]
	assert.Equal(t, "peps", peps.Name)
	assert.Equal(t, 1, peps.Priority)
	assert.Equal(t, "CNES PEPS", peps.Description)
	require.Contains(t, peps.Plugins, TopicSearch)
	assert.Equal(t, "QueryStringSearch", peps.Plugins[TopicSearch].Type)
	endpoint, ok := peps.Plugins[TopicSearch].String("endpoint")
	require.True(t, ok)
	assert.Contains(t, endpoint, "peps.cnes.fr")
}

func TestLoadUserOverridePriority(t *testing.T) {
	providers := loadFixture(t, "peps:\n  priority: 5\n")
	assert.Equal(t, 5, providers["peps"].Priority)
	// Unrelated fields survive the merge.
	assert.Equal(t, "CNES PEPS", providers["peps"].Description)
}

func TestLoadSupportsProductType(t *testing.T) {
	providers := loadFixture(t, "")
	assert.True(t, providers["peps"].SupportsProductType("S2_MSI_L1C"))
	assert.False(t, providers["peps"].SupportsProductType("UNKNOWN"))
	assert.True(t, providers["creodias"].SupportsProductType("ANYTHING"))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EODAG__PEPS__AUTH__CREDENTIALS__USERNAME", "alice")
	t.Setenv("EODAG__PEPS__SEARCH__ENDPOINT", "https://override.example/search")
	providers := loadFixture(t, "")
	peps := providers["peps"]
	assert.Equal(t, "alice", peps.Plugins[TopicAuth].Credentials["username"])
	endpoint, _ := peps.Plugins[TopicSearch].String("endpoint")
	assert.Equal(t, "https://override.example/search", endpoint)
}

func TestSortedNames(t *testing.T) {
	providers := loadFixture(t, "")
	names := SortedNames(providers)
	require.Equal(t, []string{"peps", "creodias"}, names)
}

func TestValidateRejectsAPIAlongsideOtherTopics(t *testing.T) {
	bad := `
badprovider:
  api:
    type: SomeAPI
  search:
    type: QueryStringSearch
  products:
    X:
      collection: X
`
	l := NewLoader()
	_, err := l.Load([]byte(bad), nil)
	require.Error(t, err)
}

func TestValidateRejectsMissingType(t *testing.T) {
	bad := `
badprovider:
  search: {}
  products:
    X:
      collection: X
`
	l := NewLoader()
	_, err := l.Load([]byte(bad), nil)
	require.Error(t, err)
}
