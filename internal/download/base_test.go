package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/model"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "S2A_MSIL1C_20240315", Sanitize("S2A_MSIL1C_20240315"))
	assert.Equal(t, "hello_world", Sanitize("hello, world!"))
	assert.Equal(t, "a_b_c", Sanitize("  a (b) [c]  "))
}

func TestPrepareDownloadAlreadyDoneWhenLocationIsLocalFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "already-here.zip")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	p := &model.Product{
		ID:             "p1",
		Title:          "p1",
		RemoteLocation: "https://example.test/p1.zip",
		Location:       fileURI(existing),
	}
	prep, err := prepareDownload(dir, p, ".zip")
	require.NoError(t, err)
	assert.True(t, prep.alreadyDone)
	assert.Equal(t, existing, prep.fsPath)
}

func TestPrepareDownloadRemovesStaleRecord(t *testing.T) {
	dir := t.TempDir()
	p := &model.Product{ID: "p1", Title: "p1", RemoteLocation: "https://example.test/p1.zip"}

	record := recordPath(dir, p.RemoteLocation)
	require.NoError(t, os.MkdirAll(filepath.Dir(record), 0o755))
	require.NoError(t, os.WriteFile(record, []byte(p.RemoteLocation), 0o644))

	prep, err := prepareDownload(dir, p, ".zip")
	require.NoError(t, err)
	assert.False(t, prep.alreadyDone)
	assert.NoFileExists(t, record)
}

func TestPrepareDownloadAlreadyDoneWhenRecordAndDestExist(t *testing.T) {
	dir := t.TempDir()
	p := &model.Product{ID: "p1", Title: "p1", RemoteLocation: "https://example.test/p1.zip"}

	fsPath := destPath(dir, p, ".zip")
	require.NoError(t, os.WriteFile(fsPath, []byte("x"), 0o644))
	record := recordPath(dir, p.RemoteLocation)
	require.NoError(t, os.MkdirAll(filepath.Dir(record), 0o755))
	require.NoError(t, os.WriteFile(record, []byte(p.RemoteLocation), 0o644))

	prep, err := prepareDownload(dir, p, ".zip")
	require.NoError(t, err)
	assert.True(t, prep.alreadyDone)
	assert.Equal(t, fsPath, prep.fsPath)
}

func TestStreamGetWritesChunksAndReportsProgress(t *testing.T) {
	const body = "the quick brown fox jumps over the lazy dog"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var totalSeen int64
	written, err := streamGet(context.Background(), server.Client(), req, dest, func(delta, total int64) {
		totalSeen += delta
	}, func(resp *http.Response) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), written)
	assert.Equal(t, int64(len(body)), totalSeen)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.NoFileExists(t, dest+".part")
}

func TestStreamGetClassifiesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	classified := false
	_, err = streamGet(context.Background(), server.Client(), req, dest, nil, func(resp *http.Response) error {
		classified = true
		return assert.AnError
	})
	require.Error(t, err)
	assert.True(t, classified)
	assert.NoFileExists(t, dest)
}
