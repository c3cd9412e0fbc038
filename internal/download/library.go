package download

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterDownloadPlugin("LibraryDownload", newLibraryDownload)
}

// LibraryFetcher is the blocking façade spec.md §4.6's "library-backed"
// variant requires: it delegates the actual transfer to an external
// native SDK (no portable wire protocol involved) and writes the
// product into destDir under filename, the way
// original_source/eodag/plugins/download/cop_marine.py calls
// copernicusmarine.subset(output_directory=..., output_filename=...).
// No such SDK exists anywhere in this module's Go dependency corpus, so
// this module ships no built-in implementation — a deployment that
// needs one registers it by plugin-configured name via
// RegisterLibraryFetcher, and the adapter below only supplies the
// surrounding prepare/finalize scaffolding and query-param decoding.
type LibraryFetcher func(ctx context.Context, queryParams map[string]any, destDir, filename string) error

var libraryFetchers = map[string]LibraryFetcher{}

// RegisterLibraryFetcher makes fn available to LibraryDownload plugin
// instances configured with matching library_name.
func RegisterLibraryFetcher(name string, fn LibraryFetcher) {
	libraryFetchers[name] = fn
}

// libraryDownload wraps an opaque, externally-registered LibraryFetcher
// in the same prepare/record/finalize scaffolding every other download
// variant uses, per spec.md §4.6: "Library-backed... prepare/finalize
// still apply."
type libraryDownload struct {
	provider      *config.ProviderConfig
	libraryName   string
	outputsPrefix string
	archiveDepth  int
}

func newLibraryDownload(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
	libraryName, err := stringOpt(provider.Name, plugin, "library_name")
	if err != nil {
		return nil, err
	}
	return &libraryDownload{
		provider:      provider,
		libraryName:   libraryName,
		outputsPrefix: optStringOpt(plugin, "outputs_prefix", "."),
		archiveDepth:  optIntOpt(plugin, "archive_depth", 1),
	}, nil
}

func (d *libraryDownload) Download(ctx context.Context, p *model.Product, auth model.Authenticator, opts model.DownloadOptions) (string, error) {
	fetcher, ok := libraryFetchers[d.libraryName]
	if !ok {
		return "", errs.NewMisconfigured(d.provider.Name, "no library fetcher registered under name "+d.libraryName)
	}

	ro := resolveOptions(opts, d.outputsPrefix, d.archiveDepth)

	prep, err := prepareDownload(ro.outputsPrefix, p, "")
	if err != nil {
		return "", err
	}
	if prep.alreadyDone {
		p.Location = fileURI(prep.fsPath)
		return prep.fsPath, nil
	}

	queryParams, err := libraryQueryParams(p)
	if err != nil {
		return "", err
	}

	destDir := filepath.Dir(prep.fsPath)
	filename := filepath.Base(prep.fsPath)
	if err := fetcher(ctx, queryParams, destDir, filename); err != nil {
		return "", errs.NewDownload(p.ID, "library fetcher "+d.libraryName+" failed", err)
	}

	if err := writeRecord(prep.recordFile, p.RemoteLocation); err != nil {
		return "", errs.NewDownload(p.ID, "writing download record", err)
	}

	finalPath := collapseDepth(prep.fsPath, effectiveDepth(ro))
	p.Location = fileURI(finalPath)
	return finalPath, nil
}

// libraryQueryParams recovers the provider-specific query string stashed
// on the product's "_dc_qs" property (double URL-decoded, then parsed as
// a flat query string) and hands it to the fetcher as a generic param
// bag, grounded on cop_marine.py's
// `geojson.loads(unquote_plus(unquote_plus(product.properties["_dc_qs"])))`.
// Unlike the Python original this module has no GeoJSON decoder in its
// dependency corpus for this narrow a use, so the stashed string is
// treated as an ordinary URL-encoded query string instead of a GeoJSON
// document; a provider integration needing structured params can decode
// its own shape from the raw string inside its registered fetcher.
func libraryQueryParams(p *model.Product) (map[string]any, error) {
	raw, _ := p.Properties["_dc_qs"].(string)
	if raw == "" {
		return map[string]any{}, nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, errs.NewDownload(p.ID, "decoding _dc_qs property", err)
	}
	decoded, err = url.QueryUnescape(decoded)
	if err != nil {
		return nil, errs.NewDownload(p.ID, "decoding _dc_qs property", err)
	}
	values, err := url.ParseQuery(strings.TrimPrefix(decoded, "?"))
	if err != nil {
		return nil, errs.NewDownload(p.ID, "parsing _dc_qs property", err)
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out, nil
}
