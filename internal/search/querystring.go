package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterSearchPlugin("QueryStringSearch", newQueryStringSearch)
}

// queryStringSearch is the OpenSearch/STAC-style variant spec.md §4.5
// names "Query-string GET": a single URL with a query string, page
// navigation via a URL template, grounded on
// original_source/eodag/plugins/search/qssearch.py.
type queryStringSearch struct {
	provider            string
	endpoint            string
	resultsEntry        string
	m                   mapping.Mapping
	product             *config.ProductConfig
	providerProductType string
	logicalProductType  string
	pg                  pagination
	literal             url.Values
	authCodes           map[int]bool
	client              *http.Client
}

func newQueryStringSearch(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	endpoint, err := stringOpt(provider.Name, plugin, "endpoint")
	if err != nil {
		return nil, err
	}
	m, err := resolveMapping(plugin, product)
	if err != nil {
		return nil, err
	}
	return &queryStringSearch{
		provider:     provider.Name,
		endpoint:     endpoint,
		resultsEntry: optStringOpt(plugin, "results_entry", "$.features"),
		m:            m,
		product:      product,
		pg:           parsePagination(plugin),
		literal:      literalParams(plugin),
		authCodes:    authErrorCodes(plugin),
		client:       defaultHTTPClient(),
	}, nil
}

func (s *queryStringSearch) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	providerCollection := providerProductType(s.product, prep.ProductType)

	flat, _, err := renderQueryableParams(s.m, prep.Kwargs)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range s.literal {
		flat[k] = v
	}

	itemsPerPage := prep.ItemsPerPage
	if itemsPerPage == 0 {
		itemsPerPage = s.pg.itemsPerPageDefault
	}
	page := prep.Page
	if page == 0 {
		page = 1
	}

	reqURL := s.endpoint
	vars := pageVars(s.endpoint, flat.Encode(), page, itemsPerPage)
	vars["productType"] = providerCollection
	if tpl, err := s.pg.renderNextPageURL(vars); err != nil {
		return nil, nil, err
	} else if tpl != "" {
		reqURL = tpl
	} else if encoded := flat.Encode(); encoded != "" {
		reqURL = s.endpoint + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building search request: %w", err)
	}

	body, err := doRequest(ctx, s.client, req, s.provider, prep.Auth, s.authCodes)
	if err != nil {
		return nil, nil, err
	}

	entries, err := jsonResultEntries(body, s.resultsEntry)
	if err != nil {
		return nil, nil, err
	}
	products := make([]*model.Product, 0, len(entries))
	for _, e := range entries {
		p, err := buildProduct(e, s.provider, prep.ProductType, s.product, s.m)
		if err != nil {
			return nil, nil, err
		}
		p.SearchArgs = prep.Kwargs
		products = append(products, p)
	}

	total := jsonTotalCount(body, s.pg.totalItemsKeyPath)
	return products, total, nil
}
