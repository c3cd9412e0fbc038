// Package download implements the download plugin variants spec.md
// §4.6 describes: HTTP streaming with order/poll and record/resume,
// S3-via-REST bucket listing, S3-native object-store download with
// SAFE-format reassembly, and a library-backed opaque adapter. Every
// variant registers a registry.DownloadFactory from its own init(),
// mirroring internal/search and internal/auth's discover-by-string-key
// pattern, and shares the prepare/stream/finalize scaffolding in this
// file and finalize.go, grounded on
// original_source/eodag/plugins/download/base.py's _prepare_download /
// _finalize.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

const (
	chunkSize          = 64 * 1024
	downloadRecordsDir = ".downloaded"

	offlineStatus = "OFFLINE"
	onlineStatus  = "ONLINE"
)

var sanitizeRe = regexp.MustCompile(`[\s,;:!?'"/\\()\[\]{}<>*|]+`)

// Sanitize turns value into a safe directory/file name component, per
// spec.md §4.6's "sanitized title" destination-naming step. Runs of
// whitespace/punctuation collapse to a single underscore; hyphen, dot,
// and underscore pass through unchanged. Diacritic folding isn't
// attempted: no transliteration library exists anywhere in the
// retrieved corpus, so this stays stdlib `regexp`-only (see DESIGN.md).
func Sanitize(value string) string {
	out := sanitizeRe.ReplaceAllString(value, "_")
	return strings.Trim(out, "_")
}

// recordPath returns the .downloaded/<md5(remoteLocation)> record file
// path under prefix, per spec.md §4.6/§6's "Record file layout."
func recordPath(prefix, remoteLocation string) string {
	sum := md5.Sum([]byte(remoteLocation))
	return filepath.Join(prefix, downloadRecordsDir, hex.EncodeToString(sum[:]))
}

// destPath computes the per-product destination path inside prefix,
// following base.py's "sanitized title (+ id suffix) + extension"
// naming rule: the "-<sanitized id>" suffix is added whenever
// sanitizing changed the title.
func destPath(prefix string, p *model.Product, extension string) string {
	abs, err := filepath.Abs(prefix)
	if err != nil {
		abs = prefix
	}
	title := Sanitize(p.Title)
	suffix := ""
	if title != p.Title {
		suffix = "-" + Sanitize(p.ID)
	}
	return filepath.Join(abs, title+suffix+extension)
}

// prepared is the outcome of prepareDownload: either a destination to
// stream into, or an already-complete path to hand straight to
// finalize.
type prepared struct {
	fsPath      string
	recordFile  string
	alreadyDone bool
}

// prepareDownload implements spec.md §4.6's shared "prepare" scaffolding:
//  1. short-circuit if product.Location already points to an existing
//     local file/dir (base.py: "product.location != product.remote_location");
//  2. ensure <prefix>/.downloaded exists;
//  3. short-circuit if both the record file and destination exist, or
//     the destination directory (extension stripped) exists;
//  4. delete a stale record file when the destination is missing,
//     treating the previous attempt as aborted.
func prepareDownload(prefix string, p *model.Product, extension string) (*prepared, error) {
	if p.Location != "" && p.Location != p.RemoteLocation {
		if fsPath, ok := strings.CutPrefix(p.Location, "file://"); ok {
			if fileExists(fsPath) || dirExists(fsPath) {
				return &prepared{fsPath: fsPath, alreadyDone: true}, nil
			}
		}
	}
	if p.RemoteLocation == "" {
		return nil, errs.NewDownload(p.ID, "product has no remote_location to download", nil)
	}

	recordsDir := filepath.Join(mustAbs(prefix), downloadRecordsDir)
	if err := os.MkdirAll(recordsDir, 0o755); err != nil {
		return nil, errs.NewDownload(p.ID, "creating records directory", err)
	}

	fsPath := destPath(prefix, p, extension)
	fsDirPath := strings.TrimSuffix(fsPath, extension)
	record := recordPath(prefix, p.RemoteLocation)

	switch {
	case fileExists(record) && fileExists(fsPath):
		return &prepared{fsPath: fsPath, recordFile: record, alreadyDone: true}, nil
	case fileExists(record) && dirExists(fsDirPath):
		return &prepared{fsPath: fsDirPath, recordFile: record, alreadyDone: true}, nil
	case fileExists(record):
		_ = os.Remove(record)
	}

	return &prepared{fsPath: fsPath, recordFile: record}, nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writeRecord writes remoteLocation as the content of recordFile,
// atomically (temp file + rename), satisfying spec.md §5's "writers
// must write to a temp path and atomically rename into place" so two
// concurrent downloads of the same URL coordinate safely.
func writeRecord(recordFile, remoteLocation string) error {
	tmp := recordFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(remoteLocation), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, recordFile)
}

// fileURI turns a local filesystem path into the "file://" URI spec.md
// §3 requires for Product.Location after a successful download.
func fileURI(path string) string {
	return "file://" + filepath.ToSlash(mustAbs(path))
}

// streamGet issues req (already auth-mutated by the caller) and streams
// the response body to dest via a temp-file-then-rename, invoking
// progressFn(delta, total) per chunk read, per spec.md §4.6's "Stream
// the body in fixed-size chunks (64 KiB)." total is taken from
// Content-Length when present, else 0. classifyErr maps the HTTP
// outcome to the caller's error taxonomy (AuthenticationError /
// NotAvailableError / DownloadError differ by download variant and by
// whether the product reports OFFLINE, so the caller supplies the
// classifier rather than this shared helper guessing).
func streamGet(ctx context.Context, client *http.Client, req *http.Request, dest string, progressFn func(delta, total int64), classifyErr func(resp *http.Response) error) (int64, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, classifyErr(nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, classifyErr(resp)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	cleanup := true
	defer func() {
		if cleanup {
			out.Close()
			os.Remove(tmp)
		}
	}()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if progressFn != nil {
				progressFn(int64(n), total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	cleanup = false
	if err := out.Close(); err != nil {
		return written, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return written, err
	}
	return written, nil
}

// productionStatus reads the "productionStatus" property, defaulting to
// ONLINE when absent, per http.py's
// `product.properties.get("productionStatus", ONLINE_STATUS)`.
func productionStatus(p *model.Product) string {
	if v, ok := p.Properties["productionStatus"].(string); ok && v != "" {
		return v
	}
	return onlineStatus
}

// orderLink reads the "orderLink" property, or "" when absent.
func orderLink(p *model.Product) string {
	v, _ := p.Properties["orderLink"].(string)
	return v
}

// stringOpt/optStringOpt/optBoolOpt/optIntOpt mirror internal/auth's
// option helpers (each plugin package owns its own copy rather than
// sharing one across package boundaries, see internal/search/base.go).
func stringOpt(provider string, plugin *config.PluginConfig, key string) (string, error) {
	v, ok := plugin.String(key)
	if !ok || v == "" {
		return "", errs.NewMisconfigured(provider, fmt.Sprintf("missing required option %q", key))
	}
	return v, nil
}

func optStringOpt(plugin *config.PluginConfig, key, def string) string {
	if v, ok := plugin.String(key); ok {
		return v
	}
	return def
}

func optBoolOpt(plugin *config.PluginConfig, key string, def bool) bool {
	v, ok := plugin.Extra[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func optIntOpt(plugin *config.PluginConfig, key string, def int) int {
	v, ok := plugin.Extra[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

func headersOpt(plugin *config.PluginConfig, key string) map[string]string {
	raw, ok := plugin.Extra[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func queryOpt(plugin *config.PluginConfig, key string) map[string]string {
	return headersOpt(plugin, key)
}

// authErrorCodesOpt reads "auth_error_code" in its int/float64/[]any
// forms, mirroring internal/search/base.go's authErrorCodes.
func authErrorCodesOpt(plugin *config.PluginConfig) map[int]bool {
	out := map[int]bool{}
	switch v := plugin.Extra["auth_error_code"].(type) {
	case int:
		out[v] = true
	case float64:
		out[int(v)] = true
	case []any:
		for _, e := range v {
			switch n := e.(type) {
			case int:
				out[n] = true
			case float64:
				out[int(n)] = true
			}
		}
	}
	return out
}

// productConfigFor resolves provider's per-product-type config entry
// for productType, falling back to a GENERIC_PRODUCT_TYPE entry, per
// config.ProviderConfig.SupportsProductType's same fallback rule.
func productConfigFor(provider *config.ProviderConfig, productType string) *config.ProductConfig {
	if pc, ok := provider.Products[productType]; ok {
		return pc
	}
	return provider.Products["GENERIC_PRODUCT_TYPE"]
}

// resolvedOptions collects the per-call overrides spec.md §4.6
// describes ("outputs_prefix, extract and dl_url_params... override any
// other values defined in a configuration file"), applying opts over
// the plugin's own configured defaults.
type resolvedOptions struct {
	outputsPrefix string
	extract       bool
	archiveDepth  int
	deleteArchive bool
	flattenTop    bool
	progressFn    func(delta, total int64)
}

func resolveOptions(opts model.DownloadOptions, defaultPrefix string, defaultArchiveDepth int) resolvedOptions {
	prefix := opts.OutputsPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	archiveDepth := opts.ArchiveDepth
	if archiveDepth == 0 {
		archiveDepth = defaultArchiveDepth
	}
	return resolvedOptions{
		outputsPrefix: prefix,
		extract:       opts.Extract,
		archiveDepth:  archiveDepth,
		deleteArchive: opts.DeleteArchive,
		flattenTop:    opts.FlattenTopDirs,
		progressFn:    opts.ProgressFn,
	}
}
