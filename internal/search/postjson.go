package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterSearchPlugin("PostJsonSearch", newPostJSONSearch)
}

// postJSONSearch issues a single JSON-body POST, merging pagination
// into the body by deep-update rather than a URL template, per spec.md
// §4.5's "Post-JSON" variant, grounded on
// original_source/eodag/plugins/search/static_stac_search.py's
// request-body construction and libaf's JSON-body request helpers.
type postJSONSearch struct {
	provider     string
	endpoint     string
	resultsEntry string
	m            mapping.Mapping
	product      *config.ProductConfig
	pg           pagination
	literal      map[string]any
	authCodes    map[int]bool
	client       *http.Client
}

func newPostJSONSearch(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	endpoint, err := stringOpt(provider.Name, plugin, "endpoint")
	if err != nil {
		return nil, err
	}
	m, err := resolveMapping(plugin, product)
	if err != nil {
		return nil, err
	}
	literal, _ := plugin.Extra["literal_search_params"].(map[string]any)
	return &postJSONSearch{
		provider:     provider.Name,
		endpoint:     endpoint,
		resultsEntry: optStringOpt(plugin, "results_entry", "$.features"),
		m:            m,
		product:      product,
		pg:           parsePagination(plugin),
		literal:      literal,
		authCodes:    authErrorCodes(plugin),
		client:       defaultHTTPClient(),
	}, nil
}

func (s *postJSONSearch) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	_, jsonFragment, err := renderQueryableParams(s.m, prep.Kwargs)
	if err != nil {
		return nil, nil, err
	}
	payload := map[string]any{}
	for k, v := range s.literal {
		payload[k] = v
	}
	payload = mapping.DeepMerge(payload, jsonFragment)

	itemsPerPage := prep.ItemsPerPage
	if itemsPerPage == 0 {
		itemsPerPage = s.pg.itemsPerPageDefault
	}
	page := prep.Page
	if page == 0 {
		page = 1
	}
	vars := pageVars(s.endpoint, "", page, itemsPerPage)
	pageObj, err := s.pg.renderNextPageQueryObj(vars)
	if err != nil {
		return nil, nil, err
	}
	payload = mapping.DeepMerge(payload, pageObj)

	encoded, err := jsonutil.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding search request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
