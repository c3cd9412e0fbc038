package model

import "context"

// PreparedSearch is the provider-agnostic envelope a SearchPlugin consumes,
// per spec.md §4.5: "PreparedSearch carries product type, page,
// items-per-page, count flag, auth handle, and raw user kwargs." It lives
// in model, not internal/search, so internal/registry can declare a
// SearchPlugin interface without importing internal/search (which itself
// depends on internal/registry to resolve auth plugins).
type PreparedSearch struct {
	ProductType  string
	Page         int
	ItemsPerPage int
	Count        bool
	Auth         Authenticator
	Kwargs       map[string]any
}

// SearchPlugin issues one provider query and returns products plus an
// optional total-results count, per spec.md §4.5's common interface.
type SearchPlugin interface {
	Query(ctx context.Context, prep *PreparedSearch) ([]*Product, *int, error)
}

// AuthPlugin produces an Authenticator, performing whatever network
// round trip (login, token refresh, signed-URL fetch) its variant
// requires, per spec.md §4.4's common interface.
type AuthPlugin interface {
	Authenticate(ctx context.Context) (Authenticator, error)
}

// CrunchPlugin post-processes an already-fetched product list (e.g.
// keep-latest-per-property, spatial-overlap filtering), per spec.md §2's
// plugin topic list ("search, download, authentication, crunch, api").
type CrunchPlugin interface {
	Crunch(ctx context.Context, products []*Product, opts map[string]any) ([]*Product, error)
}
