package download

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterDownloadPlugin("HTTPDownload", newHTTPDownload)
}

// httpDownload streams a product over plain HTTP, ordering it first
// when its "productionStatus" property reports OFFLINE, per spec.md
// §4.6's "Stream" step and
// original_source/eodag/plugins/download/http.py.
type httpDownload struct {
	provider      *config.ProviderConfig
	outputsPrefix string
	archiveDepth  int
	orderMethod   string
	orderHeaders  map[string]string
	orderEnabled  bool
	dlURLParams   map[string]string
	authCodes     map[int]bool
	client        *http.Client
}

func newHTTPDownload(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
	if _, err := stringOpt(provider.Name, plugin, "base_uri"); err != nil {
		return nil, err
	}
	return &httpDownload{
		provider:      provider,
		outputsPrefix: optStringOpt(plugin, "outputs_prefix", "."),
		archiveDepth:  optIntOpt(plugin, "archive_depth", 1),
		orderMethod:   optStringOpt(plugin, "order_method", http.MethodGet),
		orderHeaders:  headersOpt(plugin, "order_headers"),
		orderEnabled:  optBoolOpt(plugin, "order_enabled", false),
		dlURLParams:   queryOpt(plugin, "dl_url_params"),
		authCodes:     authErrorCodesOpt(plugin),
		client:        &http.Client{Timeout: 0},
	}, nil
}

func (d *httpDownload) Download(ctx context.Context, p *model.Product, auth model.Authenticator, opts model.DownloadOptions) (string, error) {
	// opts.Extract is used exactly as given: neither this plugin nor
	// the gateway's Download fills in a default, so a zero-value
	// DownloadOptions leaves archives unextracted.
	ro := resolveOptions(opts, d.outputsPrefix, d.archiveDepth)

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

	if productionStatus(p) == offlineStatus {
		if d.orderEnabled {
			if link := orderLink(p); link != "" {
				if err := d.order(ctx, link, auth); err != nil {
					return "", err
				}
			}
			return "", errs.NewNotAvailable(p.ID, "product is OFFLINE; order issued, retry later")
		}
		return "", errs.NewNotAvailable(p.ID, "product is OFFLINE and ordering is not enabled for this provider")
	}

	reqURL := p.RemoteLocation
	if len(d.dlURLParams) > 0 {
		u, perr := url.Parse(reqURL)
		if perr == nil {
			q := u.Query()
			for k, v := range d.dlURLParams {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			reqURL = u.String()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", errs.NewDownload(p.ID, "building download request", err)
	}
	if auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return "", errs.NewAuthentication(d.provider.Name, "authenticating download request", err)
		}
	}

	written, err := streamGet(ctx, d.client, req, prep.fsPath, wrapProgress(opts.ProgressFn), d.classify(p))
	if err != nil {
		return "", err
	}
	if written == 0 && productionStatus(p) != onlineStatus {
		return "", errs.NewNotAvailable(p.ID, "ordered product returned an empty body")
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

// order issues the configured order request for an OFFLINE product, per
// http.py's "order product if it is offline" block. The response body
// and status are discarded and a transport failure is ignored; only a
// failure to build or authenticate the order request is returned. The
// caller then reports the product with a retryable NotAvailableError.
func (d *httpDownload) order(ctx context.Context, link string, auth model.Authenticator) error {
	req, err := http.NewRequestWithContext(ctx, d.orderMethod, link, nil)
	if err != nil {
		return errs.NewDownload("", "building order request", err)
	}
	for k, v := range d.orderHeaders {
		req.Header.Set(k, v)
	}
	if auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return errs.NewAuthentication(d.provider.Name, "authenticating order request", err)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil //nolint: the order endpoint is best-effort; the poll loop is what matters
	}
	defer resp.Body.Close()
	_, _ = io.ReadAll(resp.Body)
	return nil
}

// classify maps a streamGet outcome to spec.md §4.6's error taxonomy:
// configured auth_error_code -> AuthenticationError; an
// order-in-flight product -> NotAvailableError; any other HTTP error ->
// DownloadError.
func (d *httpDownload) classify(p *model.Product) func(resp *http.Response) error {
	return func(resp *http.Response) error {
		if resp == nil {
			return errs.NewDownload(p.ID, "request failed", nil)
		}
		body, _ := io.ReadAll(resp.Body)
		if d.authCodes[resp.StatusCode] || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return errs.NewAuthentication(d.provider.Name, "HTTP "+resp.Status+": "+string(body), nil)
		}
		if productionStatus(p) != onlineStatus {
			return errs.NewNotAvailable(p.ID, string(body))
		}
		return errs.NewDownload(p.ID, "HTTP "+resp.Status+": "+string(body), nil)
	}
}

// wrapProgress adapts a nil-safe model.DownloadOptions.ProgressFn into
// streamGet's callback shape.
func wrapProgress(fn func(delta, total int64)) func(delta, total int64) {
	if fn == nil {
		return func(int64, int64) {}
	}
	return fn
}
