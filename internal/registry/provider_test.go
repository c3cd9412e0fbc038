package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
)

func providerFixture(name string, priority int) *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:     name,
		Priority: priority,
		Plugins: map[config.Topic]*config.PluginConfig{
			config.TopicSearch: {Type: "QueryStringSearch", Extra: map[string]any{}},
		},
		Products: map[string]*config.ProductConfig{
			"GENERIC_PRODUCT_TYPE": {Collection: "{productType}"},
		},
	}
}

func TestProviderRegistryAddRejectsDuplicate(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("peps", 1)))
	err := r.Add(providerFixture("peps", 2))
	require.Error(t, err)
}

func TestProviderRegistryRemoveAbsent(t *testing.T) {
	r := NewProviderRegistry()
	err := r.Remove("nope")
	require.Error(t, err)
}

func TestProviderRegistryOrderedByPriorityThenInsertion(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("a", 0)))
	require.NoError(t, r.Add(providerFixture("b", 5)))
	require.NoError(t, r.Add(providerFixture("c", 5)))
	require.NoError(t, r.Add(providerFixture("d", 1)))

	names := r.Names()
	assert.Equal(t, []string{"b", "c", "d", "a"}, names)
}

func TestProviderRegistryUpdatePriorityReordersOnNextCall(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("a", 0)))
	require.NoError(t, r.Add(providerFixture("b", 5)))
	require.NoError(t, r.UpdatePriority("a", 10))
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestProviderRegistryMergePreservesUntouchedFieldsAndAddsNewProvider(t *testing.T) {
	r := NewProviderRegistry()
	base := providerFixture("peps", 1)
	base.Description = "CNES PEPS"
	require.NoError(t, r.Add(base))

	other := NewProviderRegistry()
	ov := providerFixture("peps", 9)
	ov.Description = ""
	ov.Plugins[config.TopicDownload] = &config.PluginConfig{Type: "HTTPDownload", Extra: map[string]any{}}
	require.NoError(t, other.Add(ov))
	newProvider := providerFixture("creodias", 0)
	require.NoError(t, other.Add(newProvider))

	r.Merge(other)

	peps, ok := r.Get("peps")
	require.True(t, ok)
	assert.Equal(t, 9, peps.Priority)
	assert.Equal(t, "CNES PEPS", peps.Description, "untouched field survives the merge")
	assert.Contains(t, peps.Plugins, config.TopicDownload)
	assert.Contains(t, peps.Plugins, config.TopicSearch)

	_, ok = r.Get("creodias")
	assert.True(t, ok, "provider only present on the incoming side is added")
}

func TestProviderRegistryWhitelist(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("peps", 1)))
	require.NoError(t, r.Add(providerFixture("creodias", 0)))
	r.Whitelist([]string{"peps"})
	assert.Equal(t, []string{"peps"}, r.Names())
}

func TestProviderRegistryWhitelistEmptyIsNoop(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("peps", 1)))
	r.Whitelist(nil)
	assert.Equal(t, []string{"peps"}, r.Names())
}

func TestProviderRegistryShareCredentialsFillsMissingTarget(t *testing.T) {
	r := NewProviderRegistry()
	peps := providerFixture("peps", 1)
	peps.Plugins[config.TopicAuth] = &config.PluginConfig{
		Type:              "TokenAuth",
		CredentialsTarget: "peps_shared",
		Credentials:       map[string]string{"username": "alice"},
	}
	require.NoError(t, r.Add(peps))

	peps2 := providerFixture("peps_s3", 0)
	peps2.Plugins[config.TopicAuth] = &config.PluginConfig{
		Type:              "AWSAuth",
		CredentialsTarget: "peps_shared",
	}
	require.NoError(t, r.Add(peps2))

	require.NoError(t, r.ShareCredentials())

	pc, _ := r.Get("peps_s3")
	assert.Equal(t, "alice", pc.Plugins[config.TopicAuth].Credentials["username"])
}

func TestProviderRegistryShareCredentialsRejectsAmbiguousTarget(t *testing.T) {
	r := NewProviderRegistry()
	a := providerFixture("a", 1)
	a.Plugins[config.TopicAuth] = &config.PluginConfig{
		Type: "TokenAuth", CredentialsTarget: "shared", Credentials: map[string]string{"username": "alice"},
	}
	require.NoError(t, r.Add(a))

	b := providerFixture("b", 1)
	b.Plugins[config.TopicAuth] = &config.PluginConfig{
		Type: "TokenAuth", CredentialsTarget: "shared", Credentials: map[string]string{"username": "bob"},
	}
	require.NoError(t, r.Add(b))

	err := r.ShareCredentials()
	require.Error(t, err)
}

func TestProviderRegistryFilter(t *testing.T) {
	r := NewProviderRegistry()
	require.NoError(t, r.Add(providerFixture("peps", 1)))
	require.NoError(t, r.Add(providerFixture("creodias", 0)))
	filtered := r.Filter(func(pc *config.ProviderConfig) bool { return pc.Priority > 0 })
	require.Len(t, filtered, 1)
	assert.Equal(t, "peps", filtered[0].Name)
}
