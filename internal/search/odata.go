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
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterSearchPlugin("ODataV4Search", newODataSearch)
}

// odataSearch GETs an entity set, then fetches and merges a per-entity
// metadata endpoint for each result, per spec.md §4.5's "OData" variant
// ("GET an entity set, then for each entity GET a per-item metadata
// endpoint and merge"), grounded on
// original_source/eodag/plugins/search/csw.py's per-entry enrichment
// pattern and the Copernicus Data Space OData API shape.
type odataSearch struct {
	provider       string
	endpoint       string
	resultsEntry   string
	entityMetaTpl  string
	idField        string
	m              mapping.Mapping
	product        *config.ProductConfig
	pg             pagination
	literal        url.Values
	authCodes      map[int]bool
	client         *http.Client
}

func newODataSearch(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	endpoint, err := stringOpt(provider.Name, plugin, "endpoint")
	if err != nil {
		return nil, err
	}
	m, err := resolveMapping(plugin, product)
	if err != nil {
		return nil, err
	}
	return &odataSearch{
		provider:      provider.Name,
		endpoint:      endpoint,
		resultsEntry:  optStringOpt(plugin, "results_entry", "$.value"),
		entityMetaTpl: optStringOpt(plugin, "entity_metadata_tpl", ""),
		idField:       optStringOpt(plugin, "entity_id_field", "Id"),
		m:             m,
		product:       product,
		pg:            parsePagination(plugin),
		literal:       literalParams(plugin),
		authCodes:     authErrorCodes(plugin),
		client:        defaultHTTPClient(),
	}, nil
}

func (s *odataSearch) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
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
	if tpl, err := s.pg.renderNextPageURL(vars); err != nil {
		return nil, nil, err
	} else if tpl != "" {
		reqURL = tpl
	} else if encoded := flat.Encode(); encoded != "" {
		reqURL = s.endpoint + "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building entity-set request: %w", err)
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
		merged, err := s.mergeEntityMetadata(ctx, e, prep.Auth)
		if err != nil {
			return nil, nil, err
		}
		p, err := buildProduct(merged, s.provider, prep.ProductType, s.product, s.m)
		if err != nil {
			return nil, nil, err
		}
		p.SearchArgs = prep.Kwargs
		products = append(products, p)
	}

	total := jsonTotalCount(body, s.pg.totalItemsKeyPath)
	return products, total, nil
}

// mergeEntityMetadata fetches the per-entity metadata endpoint named by
// entity_metadata_tpl (substituting {id}) and deep-merges it on top of
// the entity-set entry, per spec.md §4.5's "merge" step. Returns entry
// unmodified when no template is configured.
func (s *odataSearch) mergeEntityMetadata(ctx context.Context, entry []byte, auth model.Authenticator) ([]byte, error) {
	if s.entityMetaTpl == "" {
		return entry, nil
	}
	var decoded map[string]any
	if err := jsonutil.Unmarshal(entry, &decoded); err != nil {
		return entry, nil
	}
	id, ok := decoded[s.idField]
	if !ok {
		return entry, nil
	}
	url, err := mapping.RenderTemplate(s.entityMetaTpl, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building entity metadata request: %w", err)
	}
	metaBody, err := doRequest(ctx, s.client, req, s.provider, auth, s.authCodes)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := jsonutil.Unmarshal(metaBody, &meta); err != nil {
		return entry, nil
	}
	merged := mapping.DeepMerge(decoded, meta)
	return jsonutil.Marshal(merged)
}
