package model

import (
	"context"
	"net/http"
	"time"
)

// Asset is one named file belonging to a Product (e.g. a band, a
// thumbnail, the product manifest).
type Asset struct {
	Key   string
	Href  string
	Title string
	Roles []string
}

// Authenticator mutates an outgoing HTTP request to carry credentials,
// either by setting headers or by rewriting the URL (query-string auth
// schemes). Implemented by every plugin in internal/auth.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, req *http.Request) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// NoAuth is an Authenticator that leaves the request untouched, used by
// providers that require no authentication.
var NoAuth Authenticator = AuthenticatorFunc(func(context.Context, *http.Request) error { return nil })

// DownloadOptions configures a single Download call. OutputsPrefix,
// Extract and FlattenTopDirs mirror the per-product-type config keys
// named in spec.md §6; ProgressFn/Wait/Timeout mirror spec.md §4.6/§5.
type DownloadOptions struct {
	OutputsPrefix   string
	Extract         bool
	FlattenTopDirs  bool
	DeleteArchive   bool
	ArchiveDepth    int
	Wait            time.Duration
	Timeout         time.Duration
	ProgressFn      func(delta, total int64)
}

// Downloader streams a Product to local disk and returns the final
// filesystem path. Implemented by every plugin in internal/download.
type Downloader interface {
	Download(ctx context.Context, p *Product, auth Authenticator, opts DownloadOptions) (string, error)
}

// Product is the common representation of one search result, uniform
// across every provider. remote_location/location/driver/downloader
// follow spec.md §3's lifecycle invariants: location starts equal to
// remote_location, and only a Downloader mutates location, always to a
// "file://" URI, never remote_location.
type Product struct {
	Provider    string
	ProductType string
	ID          string
	Title       string
	Geometry    Geometry
	Properties  map[string]any
	Assets      map[string]Asset

	// RemoteLocation is the immutable origin URI, set once by the
	// search plugin that produced this Product.
	RemoteLocation string
	// Location starts equal to RemoteLocation and is rewritten to
	// "file://<path>" only by a successful Downloader.Download.
	Location string

	// SearchArgs is a snapshot of the kwargs used to find this product,
	// carried for re-issuing the same request (e.g. build-from-request
	// downloads embed it in the download link).
	SearchArgs map[string]any

	// Downloader/DownloaderAuth are attached by the gateway after a
	// search plugin returns the product, never by the plugin itself
	// (spec.md §3 "Lifecycle"). They are non-owning references resolved
	// through the plugin registry, not owning pointers, to avoid the
	// Product<->registry reference cycle spec.md §9 calls out.
	Downloader     Downloader     `json:"-"`
	DownloaderAuth Authenticator  `json:"-"`
}

// NewProduct constructs a Product with Location seeded from
// RemoteLocation, satisfying the §3 invariant up front.
func NewProduct(provider, productType, id, remoteLocation string) *Product {
	return &Product{
		Provider:       provider,
		ProductType:    productType,
		ID:             id,
		RemoteLocation: remoteLocation,
		Location:       remoteLocation,
		Properties:     map[string]any{},
		Assets:         map[string]Asset{},
	}
}

// Download delegates to the Product's attached Downloader, the
// convenience entry point spec.md §9 describes as "product.Download()".
func (p *Product) Download(ctx context.Context, opts DownloadOptions) (string, error) {
	if p.Downloader == nil {
		return "", &NoDownloaderError{ProductID: p.ID}
	}
	return p.Downloader.Download(ctx, p, p.DownloaderAuth, opts)
}

// NoDownloaderError reports a Product that was never attached to a
// downloader (e.g. constructed directly rather than through a Gateway).
type NoDownloaderError struct{ ProductID string }

func (e *NoDownloaderError) Error() string {
	return "product " + e.ProductID + " has no downloader attached"
}
