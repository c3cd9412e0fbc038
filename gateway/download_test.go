package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

func TestDownloadResolvesDownloaderLazily(t *testing.T) {
	dp := &fakeDownloadPlugin{}
	pA := withDownload(newTestProvider("A", 1, &fakeSearchPlugin{provider: "A"}), dp)
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	p := model.NewProduct("A", "T", "p1", "https://example/p1")
	path, err := g.Download(context.Background(), p, model.DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p1", path)
	assert.Equal(t, 1, dp.attempts["p1"])
}

// TestDownloadAllRetriesOfflineProduct matches spec.md §4.6/§8's
// offline-then-available retry loop: a NotAvailableError reschedules the
// product rather than failing the batch, and it eventually succeeds.
func TestDownloadAllRetriesOfflineProduct(t *testing.T) {
	dp := &fakeDownloadPlugin{fail: func(id string, attempt int) error {
		if id == "offline" && attempt < 2 {
			return errs.NewNotAvailable(id, "ordering in progress")
		}
		return nil
	}}
	pA := withDownload(newTestProvider("A", 1, &fakeSearchPlugin{provider: "A"}), dp)
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	products := []*model.Product{
		model.NewProduct("A", "T", "ready", "https://example/ready"),
		model.NewProduct("A", "T", "offline", "https://example/offline"),
	}
	paths, warnings, err := g.DownloadAll(context.Background(), products, model.DownloadOptions{
		Wait:    10 * time.Millisecond,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.NotEmpty(t, warnings)
	assert.Equal(t, 2, dp.attempts["offline"])
}

func TestDownloadAllAbortsOnAuthFailure(t *testing.T) {
	dp := &fakeDownloadPlugin{}
	pA := withDownload(newTestProvider("A", 1, &fakeSearchPlugin{provider: "A"}), dp)
	pA.Plugins[config.TopicDownloadAuth] = &config.PluginConfig{
		Type:  gwAuthType,
		Extra: map[string]any{"_plugin": &fakeAuthPlugin{err: errs.NewAuthentication("A", "token expired", nil)}},
	}
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	products := []*model.Product{model.NewProduct("A", "T", "p1", "https://example/p1")}
	_, _, err = g.DownloadAll(context.Background(), products, model.DownloadOptions{Timeout: time.Second})
	var target *errs.AuthenticationError
	assert.ErrorAs(t, err, &target)
}

func TestDownloadAllDropsOtherErrorsAndContinues(t *testing.T) {
	dp := &fakeDownloadPlugin{fail: func(id string, attempt int) error {
		if id == "bad" {
			return errs.NewDownload(id, "disk full", nil)
		}
		return nil
	}}
	pA := withDownload(newTestProvider("A", 1, &fakeSearchPlugin{provider: "A"}), dp)
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	products := []*model.Product{
		model.NewProduct("A", "T", "bad", "https://example/bad"),
		model.NewProduct("A", "T", "good", "https://example/good"),
	}
	paths, warnings, err := g.DownloadAll(context.Background(), products, model.DownloadOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Len(t, warnings, 1)
}
