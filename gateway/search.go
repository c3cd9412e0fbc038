package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

// defaultItemsPerPage is pagination's fallback page size when a caller
// leaves SearchParams.ItemsPerPage unset.
const defaultItemsPerPage = 20

// defaultSearchAllHardCap bounds the number of pages SearchAll fetches
// when the caller passes no positive hardCapPages: it caps the sequential
// walk when the total item count is unknown and the computed page count
// when it is known, per spec.md §4.7's "or a configured hard cap."
const defaultSearchAllHardCap = 1000

// searchAllFanOutLimit bounds SearchAll's concurrent page fetches once
// the total item count is known, per spec.md §5's "parallel workload"
// model for fan-out work.
const searchAllFanOutLimit = 8

// SearchParams is the gateway's public search request, per spec.md
// §4.7's `Search(productType, geom, start, end, page, items_per_page,
// provider=None, **kwargs)` signature. Geometry/Start/End are the named
// positional arguments; Extra carries every other domain-specific
// queryable (cloudCover, instrument, ...) under the common vocabulary
// name the metadata mapping engine expects.
type SearchParams struct {
	ProductType  string
	Geometry     model.Geometry
	Start        string
	End          string
	Page         int
	ItemsPerPage int
	Count        bool
	Provider     string
	Extra        map[string]any
}

// kwargs flattens params into the map a model.PreparedSearch carries,
// per spec.md §4.5's "raw user kwargs." geom/start/end use fixed
// canonical names so metadata_mapping entries can be written against a
// stable vocabulary regardless of which provider is queried.
func (p SearchParams) kwargs() map[string]any {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	if !p.Geometry.IsZero() {
		out["geom"] = p.Geometry
	}
	if p.Start != "" {
		out["start"] = p.Start
	}
	if p.End != "" {
		out["end"] = p.End
	}
	return out
}

// Warning is one provider's contribution to a partial failure, per
// spec.md §7's "a search that partially fails yields the successful
// products plus a structured warning listing the failed providers and
// reasons."
type Warning struct {
	Provider string
	Err      error
}

// Search implements spec.md §4.7's Search: try providers supporting
// ProductType in priority order (or only Provider, if set); the first
// to succeed wins outright (its result is returned as-is, never merged
// with another provider's, per the "happy-path search" scenario in
// spec.md §8). AuthenticationError and RequestError/TimeOutError both
// fall through to the next candidate; a MisconfiguredError stops the
// search at once and is returned with the warnings gathered so far. If
// every candidate fails, the first error encountered is returned
// alongside the partial-failure warnings.
func (g *Gateway) Search(ctx context.Context, params SearchParams) (model.SearchResult, *int, []Warning, error) {
	candidates, err := g.plugins.GetSearchPluginsByProvider(params.ProductType)
	if err != nil {
		return model.SearchResult{}, nil, nil, err
	}
	if params.Provider != "" {
		candidates = filterProvider(candidates, params.Provider)
		if len(candidates) == 0 {
			if _, ok := g.providers.Get(params.Provider); !ok {
				return model.SearchResult{}, nil, nil, &errs.UnsupportedProviderError{Provider: params.Provider}
			}
			return model.SearchResult{}, nil, nil, &errs.UnsupportedProductTypeError{ProductType: params.ProductType}
		}
	}
	if len(candidates) == 0 {
		return model.SearchResult{}, nil, nil, &errs.UnsupportedProductTypeError{ProductType: params.ProductType}
	}

	page := params.Page
	if page == 0 {
		page = 1
	}
	itemsPerPage := params.ItemsPerPage
	if itemsPerPage == 0 {
		itemsPerPage = defaultItemsPerPage
	}
	kwargs := params.kwargs()

	var warnings []Warning
	var firstErr error
	for _, cand := range candidates {
		auth, err := g.authenticator(ctx, cand.Provider, config.TopicSearchAuth)
		if err != nil {
			g.logger.Warn("search auth failed", zap.String("provider", cand.Provider), zap.Error(err))
			warnings = append(warnings, Warning{Provider: cand.Provider, Err: err})
			if errs.IsMisconfigured(err) {
				return model.SearchResult{}, nil, warnings, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		prep := &model.PreparedSearch{
			ProductType:  params.ProductType,
			Page:         page,
			ItemsPerPage: itemsPerPage,
			Count:        params.Count,
			Auth:         auth,
			Kwargs:       kwargs,
		}
		products, total, err := cand.Plugin.Query(ctx, prep)
		if err != nil {
			g.logger.Warn("search failed", zap.String("provider", cand.Provider), zap.Error(err))
			warnings = append(warnings, Warning{Provider: cand.Provider, Err: err})
			if errs.IsMisconfigured(err) {
				return model.SearchResult{}, nil, warnings, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		result := model.SearchResult{Products: products, TotalItems: total, Provider: cand.Provider}
		g.attachDownloaders(ctx, result.Products)
		return result, total, warnings, nil
	}

	return model.SearchResult{}, nil, warnings, firstErr
}

func filterProvider(candidates []registry.ProviderSearchPlugin, provider string) []registry.ProviderSearchPlugin {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Provider == provider {
			out = append(out, c)
		}
	}
	return out
}

// SearchAll implements spec.md §4.7's SearchAll: it iterates pages
// transparently until exhaustion or a hard cap. The first page
// determines both the serving provider (every later page targets that
// same provider, not a fresh priority fallback) and, when the provider
// reports a total item count, the exact number of remaining pages —
// which are then fetched concurrently (bounded, per spec.md §5's
// parallel-workload model) rather than one at a time. When no total is
// available, pages are walked sequentially until one returns fewer
// than ItemsPerPage results.
func (g *Gateway) SearchAll(ctx context.Context, params SearchParams, hardCapPages int) (model.SearchResult, []Warning, error) {
	if hardCapPages <= 0 {
		hardCapPages = defaultSearchAllHardCap
	}
	itemsPerPage := params.ItemsPerPage
	if itemsPerPage <= 0 {
		itemsPerPage = defaultItemsPerPage
	}

	first := params
	first.Page = 1
	first.ItemsPerPage = itemsPerPage
	first.Count = true
	merged, total, warnings, err := g.Search(ctx, first)
	if err != nil {
		return model.SearchResult{}, warnings, err
	}
	if merged.Len() == 0 {
		return merged, warnings, nil
	}
	pinned := params
	pinned.Provider = merged.Provider

	if total == nil {
		lastPageLen := merged.Len()
		for page := 2; lastPageLen == itemsPerPage && page <= hardCapPages; page++ {
			next := pinned
			next.Page = page
			next.ItemsPerPage = itemsPerPage
			next.Count = false
			result, _, w, err := g.Search(ctx, next)
			warnings = append(warnings, w...)
			if err != nil || result.Len() == 0 {
				break
			}
			merged = merged.Append(result)
			lastPageLen = result.Len()
		}
		return merged.Dedup(), warnings, nil
	}

	totalPages := (*total + itemsPerPage - 1) / itemsPerPage
	if totalPages < 1 {
		totalPages = 1
	}
	if totalPages > hardCapPages {
		totalPages = hardCapPages
	}
	if totalPages <= 1 {
		return merged.Dedup(), warnings, nil
	}

	type pageOutcome struct {
		result model.SearchResult
		warn   []Warning
		err    error
	}
	outcomes := make([]pageOutcome, totalPages+1)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(searchAllFanOutLimit)
	var mu sync.Mutex

	for page := 2; page <= totalPages; page++ {
		page := page
		grp.Go(func() error {
			next := pinned
			next.Page = page
			next.ItemsPerPage = itemsPerPage
			next.Count = false
			result, _, w, err := g.Search(gctx, next)
			mu.Lock()
			outcomes[page] = pageOutcome{result: result, warn: w, err: err}
			mu.Unlock()
			return nil // a failed page is a partial-failure warning, never fatal to the others
		})
	}
	_ = grp.Wait()

	for page := 2; page <= totalPages; page++ {
		out := outcomes[page]
		warnings = append(warnings, out.warn...)
		if out.err != nil {
			warnings = append(warnings, Warning{Provider: pinned.Provider, Err: out.err})
			continue
		}
		merged = merged.Append(out.result)
	}
	return merged.Dedup(), warnings, nil
}
