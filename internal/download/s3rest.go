package download

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterDownloadPlugin("S3RestDownload", newS3RestDownload)
}

// listBucketResult is the subset of an S3 ListObjects XML response
// s3rest.go needs, grounded on
// original_source/eodag/plugins/download/s3rest.py's minidom parse of
// "Contents"/"Key"/"Size" elements.
type listBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key  string `xml:"Key"`
		Size int64  `xml:"Size"`
	} `xml:"Contents"`
}

// s3RestDownload lists a product's bucket prefix over plain HTTP (an S3
// REST front with no SDK, no SigV4) and GETs each key individually, per
// spec.md §4.6's "S3-via-REST" variant and
// original_source/eodag/plugins/download/s3rest.py.
type s3RestDownload struct {
	provider      *config.ProviderConfig
	baseURI       string
	outputsPrefix string
	archiveDepth  int
	authCodes     map[int]bool
	client        *http.Client
}

func newS3RestDownload(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
	baseURI, err := stringOpt(provider.Name, plugin, "base_uri")
	if err != nil {
		return nil, err
	}
	return &s3RestDownload{
		provider:      provider,
		baseURI:       strings.TrimRight(baseURI, "/"),
		outputsPrefix: optStringOpt(plugin, "outputs_prefix", "."),
		archiveDepth:  optIntOpt(plugin, "archive_depth", 1),
		authCodes:     authErrorCodesOpt(plugin),
		client:        &http.Client{},
	}, nil
}

func (d *s3RestDownload) Download(ctx context.Context, p *model.Product, auth model.Authenticator, opts model.DownloadOptions) (string, error) {
	ro := resolveOptions(opts, d.outputsPrefix, d.archiveDepth)

	bucket, prefix := bucketAndPrefix(p, productConfigFor(d.provider, p.ProductType))
	if bucket == "" {
		return "", errs.NewMisconfigured(d.provider.Name, "could not resolve bucket for product "+p.ID)
	}
	bucketURL := d.baseURI + "/" + bucket

	listURL := bucketURL + "?prefix=" + url.QueryEscape(strings.Trim(prefix, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", errs.NewDownload(p.ID, "building bucket listing request", err)
	}
	if auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return "", errs.NewAuthentication(d.provider.Name, "authenticating bucket listing request", err)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", errs.NewRequest(d.provider.Name, 0, err.Error(), err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		if d.authCodes[resp.StatusCode] || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", errs.NewAuthentication(d.provider.Name, string(body), nil)
		}
		return "", errs.NewRequest(d.provider.Name, resp.StatusCode, string(body), nil)
	}

	var listing listBucketResult
	if err := xml.Unmarshal(body, &listing); err != nil {
		return "", errs.NewDownload(p.ID, "parsing bucket listing XML", err)
	}

	switch len(listing.Contents) {
	case 0:
		return "", errs.NewDownload(p.ID, "bucket listing returned no content for "+prefix, nil)
	case 1:
		// Single-file download: delegate to the plain HTTP streaming
		// primitive against the one resolved key, per s3rest.py.
		return d.downloadSingle(ctx, p, bucketURL+"/"+strings.TrimLeft(listing.Contents[0].Key, "/"), auth, ro)
	}

	return d.downloadMany(ctx, p, bucketURL, listing, auth, ro)
}

func (d *s3RestDownload) downloadSingle(ctx context.Context, p *model.Product, objectURL string, auth model.Authenticator, ro resolvedOptions) (string, error) {
	prep, err := prepareDownload(ro.outputsPrefix, p, ".zip")
	if err != nil {
		return "", err
	}
	if prep.alreadyDone {
		finalPath, err := finalize(p.ID, prep.fsPath, ro)
		if err != nil {
			return "", err
		}
		p.Location = fileURI(finalPath)
		return finalPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return "", errs.NewDownload(p.ID, "building object request", err)
	}
	if auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return "", errs.NewAuthentication(d.provider.Name, "authenticating object request", err)
		}
	}
	if _, err := streamGet(ctx, d.client, req, prep.fsPath, wrapProgress(ro.progressFn), d.classify()); err != nil {
		return "", err
	}
	if err := writeRecord(prep.recordFile, p.RemoteLocation); err != nil {
		return "", errs.NewDownload(p.ID, "writing download record", err)
	}
	finalPath, err := finalize(p.ID, prep.fsPath, ro)
	if err != nil {
		return "", err
	}
	p.Location = fileURI(finalPath)
	return finalPath, nil
}

// downloadMany streams every key under the bucket prefix into a
// product-named directory, per s3rest.py's multi-node loop: no archive
// extraction applies here (the bucket contents are already loose
// files), only the archiveDepth collapse and record bookkeeping.
func (d *s3RestDownload) downloadMany(ctx context.Context, p *model.Product, bucketURL string, listing listBucketResult, auth model.Authenticator, ro resolvedOptions) (string, error) {
	destDir := destPath(ro.outputsPrefix, p, "")
	record := recordPath(ro.outputsPrefix, p.RemoteLocation)
	if fileExists(record) && dirExists(destDir) {
		finalPath := collapseDepth(destDir, effectiveDepth(ro))
		p.Location = fileURI(finalPath)
		return finalPath, nil
	}
	_ = os.MkdirAll(filepath.Join(mustAbs(ro.outputsPrefix), downloadRecordsDir), 0o755)

	var total int64
	for _, c := range listing.Contents {
		total += c.Size
	}

	for _, c := range listing.Contents {
		objectURL := bucketURL + "/" + strings.TrimLeft(c.Key, "/")
		localPath := filepath.Join(destDir, filepath.FromSlash(path.Base(c.Key)))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
		if err != nil {
			return "", errs.NewDownload(p.ID, "building object request for "+c.Key, err)
		}
		if auth != nil {
			if err := auth.Authenticate(ctx, req); err != nil {
				return "", errs.NewAuthentication(d.provider.Name, "authenticating object request", err)
			}
		}
		progress := wrapProgress(ro.progressFn)
		if _, err := streamGet(ctx, d.client, req, localPath, func(delta, _ int64) { progress(delta, total) }, d.classify()); err != nil {
			return "", err
		}
	}

	if err := writeRecord(record, p.RemoteLocation); err != nil {
		return "", errs.NewDownload(p.ID, "writing download record", err)
	}
	finalPath := collapseDepth(destDir, effectiveDepth(ro))
	p.Location = fileURI(finalPath)
	return finalPath, nil
}

func (d *s3RestDownload) classify() func(resp *http.Response) error {
	return func(resp *http.Response) error {
		if resp == nil {
			return errs.NewDownload("", "request failed", nil)
		}
		body, _ := io.ReadAll(resp.Body)
		if d.authCodes[resp.StatusCode] || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return errs.NewAuthentication(d.provider.Name, "HTTP "+resp.Status+": "+string(body), nil)
		}
		return errs.NewDownload("", "HTTP "+resp.Status+": "+string(body), nil)
	}
}

// bucketAndPrefix resolves the S3 bucket name and key prefix from a
// product's remote_location, per aws.py's get_bucket_name_and_prefix:
// an "s3://bucket/prefix" (or schemeless) URL names the bucket via its
// host, falling back to the product type's configured default_bucket;
// an http(s) URL embeds the bucket as its first path segment.
func bucketAndPrefix(p *model.Product, pc *config.ProductConfig) (string, string) {
	u, err := url.Parse(p.RemoteLocation)
	if err != nil {
		return "", ""
	}
	switch u.Scheme {
	case "", "s3":
		bucket := u.Host
		if bucket == "" && pc != nil {
			bucket = pc.DefaultBucket
		}
		return bucket, strings.Trim(u.Path, "/")
	case "http", "https", "ftp":
		parts := strings.SplitN(strings.TrimLeft(u.Path, "/"), "/", 2)
		if len(parts) < 2 {
			return "", ""
		}
		return parts[0], parts[1]
	}
	return "", ""
}
