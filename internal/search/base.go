// Package search implements the search plugin strategy variants spec.md
// §4.5 describes: query-string GET, POST-JSON, OData, CSW,
// build-from-request, and multi-step data-request. Every variant shares
// the pipeline described in spec.md §4.5 steps 1-3 and 6-7 (resolve
// provider product type and mapping, render queryable params, send the
// request(s), parse the response into Products); steps 4-5 (pagination,
// URL construction) are where the variants actually differ, so each
// plugin file owns its own request-building logic but calls back into
// this file's shared helpers.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

// stringOpt reads a required string option from plugin's Extra,
// returning a MisconfiguredError naming provider and key if absent or
// empty, mirroring internal/auth's option helpers (each plugin package
// owns its own copy rather than sharing one across package boundaries).
func stringOpt(provider string, plugin *config.PluginConfig, key string) (string, error) {
	v, ok := plugin.String(key)
	if !ok || v == "" {
		return "", errs.NewMisconfigured(provider, fmt.Sprintf("missing required option %q", key))
	}
	return v, nil
}

// optStringOpt reads an optional string option, returning def when absent.
func optStringOpt(plugin *config.PluginConfig, key, def string) string {
	if v, ok := plugin.String(key); ok {
		return v
	}
	return def
}

// optIntOpt reads an optional int option, accepting both JSON-decoded
// float64 and plain int forms.
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

// ResolveMapping exports resolveMapping for callers outside this package
// (the gateway's Queryables needs the same provider/product-type merged
// mapping a search plugin builds, to list queryable names without
// duplicating the merge logic).
func ResolveMapping(plugin *config.PluginConfig, product *config.ProductConfig) (mapping.Mapping, error) {
	return resolveMapping(plugin, product)
}

// resolveMapping builds the merged metadata mapping for one (provider,
// product type) pair: the provider-global mapping overlaid with the
// product-type-specific override, per spec.md §4.1/§4.5 step 1.
func resolveMapping(plugin *config.PluginConfig, product *config.ProductConfig) (mapping.Mapping, error) {
	base := mapping.Mapping{}
	if raw, ok := plugin.Extra["metadata_mapping"].(map[string]any); ok {
		m, err := mapping.ParseMapping(raw)
		if err != nil {
			return nil, fmt.Errorf("provider metadata_mapping: %w", err)
		}
		base = m
	}
	if product != nil && len(product.MetadataMapping) > 0 {
		override, err := mapping.ParseMapping(product.MetadataMapping)
		if err != nil {
			return nil, fmt.Errorf("product metadata_mapping override: %w", err)
		}
		base = base.Merge(override)
	}
	return base, nil
}

// providerProductType resolves the provider-side collection id for a
// logical product type, per spec.md §4.5 step 1.
func providerProductType(product *config.ProductConfig, productType string) string {
	if product == nil {
		return productType
	}
	if product.ProductType != "" {
		return product.ProductType
	}
	if product.Collection != "" {
		return product.Collection
	}
	return productType
}

// renderQueryableParams renders every queryable mapping entry present in
// kwargs into either a flat query-string parameter or a JSON fragment to
// deep-merge, per spec.md §4.5 step 3. A query-format template that
// renders to a plain "key=value" string becomes a flat query parameter;
// one wrapped in "{{...}}" renders to a parsed JSON value, and a JSON
// object is deep-merged into the returned fragment for a POST body. A
// rendered value that is neither a string nor a JSON object is dropped.
func renderQueryableParams(m mapping.Mapping, kwargs map[string]any) (url.Values, map[string]any, error) {
	flat := url.Values{}
	var jsonFragment map[string]any
	for name, entry := range m.Queryables() {
		value, ok := kwargs[name]
		if !ok {
			continue
		}
		rendered, err := mapping.RenderQuery(entry.QueryFormat, value)
		if err != nil {
			return nil, nil, fmt.Errorf("rendering queryable %q: %w", name, err)
		}
		switch v := rendered.(type) {
		case string:
			if k, val, ok := splitKeyValue(v); ok {
				flat.Set(k, val)
			}
		case map[string]any:
			jsonFragment = mapping.DeepMerge(jsonFragment, v)
		}
	}
	return flat, jsonFragment, nil
}

func splitKeyValue(s string) (string, string, bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// literalParams reads the provider's literal_search_params, applied
// verbatim to every request regardless of user kwargs, per spec.md
// §4.5 step 3.
func literalParams(plugin *config.PluginConfig) url.Values {
	out := url.Values{}
	raw, ok := plugin.Extra["literal_search_params"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		out.Set(k, fmt.Sprint(v))
	}
	return out
}

// pagination carries the paginated-request template spec.md §4.5 step 4
// describes: a next-page URL template or a next-page JSON query object,
// plus the JSONPath/XPath to the total-items count.
type pagination struct {
	nextPageURLTpl      string
	nextPageQueryObj    map[string]any
	totalItemsKeyPath   string
	itemsPerPageDefault int
}

func parsePagination(plugin *config.PluginConfig) pagination {
	p := pagination{itemsPerPageDefault: 20}
	raw, ok := plugin.Extra["pagination"].(map[string]any)
	if !ok {
		return p
	}
	if v, ok := raw["next_page_url_tpl"].(string); ok {
		p.nextPageURLTpl = v
	}
	if v, ok := raw["next_page_query_obj"].(map[string]any); ok {
		p.nextPageQueryObj = v
	}
	if v, ok := raw["total_items_nb_key_path"].(string); ok {
		p.totalItemsKeyPath = v
	}
	if v, ok := raw["items_per_page_default"]; ok {
		switch n := v.(type) {
		case int:
			p.itemsPerPageDefault = n
		case float64:
			p.itemsPerPageDefault = int(n)
		}
	}
	return p
}

// pageVars builds the {url, search, items_per_page, page, skip}
// substitution set spec.md §4.5 step 4 names.
func pageVars(baseURL, search string, page, itemsPerPage int) map[string]any {
	return map[string]any{
		"url":            baseURL,
		"search":         search,
		"items_per_page": itemsPerPage,
		"page":           page,
		"skip":           (page - 1) * itemsPerPage,
	}
}

// renderNextPageURL renders p.nextPageURLTpl with vars, returning "" if
// no template is configured (single-page providers).
func (p pagination) renderNextPageURL(vars map[string]any) (string, error) {
	if p.nextPageURLTpl == "" {
		return "", nil
	}
	return mapping.RenderTemplate(p.nextPageURLTpl, vars)
}

// renderNextPageQueryObj renders p.nextPageQueryObj's string leaves as
// templates against vars, returning a deep-mergeable JSON fragment for
// POST-JSON pagination.
func (p pagination) renderNextPageQueryObj(vars map[string]any) (map[string]any, error) {
	if p.nextPageQueryObj == nil {
		return nil, nil
	}
	return renderJSONTemplate(p.nextPageQueryObj, vars)
}

func renderJSONTemplate(obj map[string]any, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		rv, err := renderJSONValue(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func renderJSONValue(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		rendered, err := mapping.RenderTemplate(t, vars)
		if err != nil {
			return nil, err
		}
		if name, ok := singlePlaceholder(t); ok {
			if val, ok := vars[name]; ok {
				return val, nil
			}
		}
		return rendered, nil
	case map[string]any:
		return renderJSONTemplate(t, vars)
	default:
		return v, nil
	}
}

// singlePlaceholder reports whether tmpl is exactly one "{name}"
// placeholder and nothing else, letting a pagination template preserve
// the numeric type of "page"/"items_per_page" rather than stringifying
// it via fmt.Sprint.
func singlePlaceholder(tmpl string) (string, bool) {
	if !strings.HasPrefix(tmpl, "{") || !strings.HasSuffix(tmpl, "}") {
		return "", false
	}
	name := tmpl[1 : len(tmpl)-1]
	if name == "" || strings.ContainsAny(name, "{}") {
		return "", false
	}
	return name, true
}

// authErrorCodes reads the provider's auth_error_code list, per spec.md
// §4.5 step 6.
func authErrorCodes(plugin *config.PluginConfig) map[int]bool {
	out := map[int]bool{}
	raw, ok := plugin.Extra["auth_error_code"]
	if !ok {
		return out
	}
	switch v := raw.(type) {
	case int:
		out[v] = true
	case float64:
		out[int(v)] = true
	case []any:
		for _, c := range v {
			switch n := c.(type) {
			case int:
				out[n] = true
			case float64:
				out[int(n)] = true
			}
		}
	}
	return out
}

// classifyHTTPError turns a failed/erroring HTTP round trip into the
// typed error spec.md §4.5 step 6 and §7 specify.
func classifyHTTPError(provider string, resp *http.Response, body []byte, authCodes map[int]bool, err error) error {
	if err != nil {
		if isDeadlineExceeded(err) {
			return errs.NewTimeOut(provider, err)
		}
		return errs.NewRequest(provider, 0, err.Error(), err)
	}
	if authCodes[resp.StatusCode] || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errs.NewAuthentication(provider, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return errs.NewRequest(provider, resp.StatusCode, string(body), nil)
}

func isDeadlineExceeded(err error) bool {
	return strings.Contains(err.Error(), "context deadline exceeded") || strings.Contains(err.Error(), "Client.Timeout")
}

// doRequest sends req with client, treating non-2xx responses and
// transport errors per spec.md §4.5 step 6's error taxonomy.
func doRequest(ctx context.Context, client *http.Client, req *http.Request, provider string, auth model.Authenticator, authCodes map[int]bool) ([]byte, error) {
	if auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return nil, err
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(provider, nil, nil, authCodes, err)
	}
	defer resp.Body.Close()
	body, err := readAllLimited(resp)
	if err != nil {
		return nil, errs.NewRequest(provider, resp.StatusCode, "reading response body: "+err.Error(), err)
	}
	if resp.StatusCode >= 400 {
		return nil, classifyHTTPError(provider, resp, body, authCodes, nil)
	}
	return body, nil
}

func readAllLimited(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

// defaultHTTPClient builds the timeout spec.md §5 names for short
// synchronous calls (search requests aren't downloads).
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

// extractEntry pulls one Entry's value out of a raw response entry body,
// dispatching to the JSONPath or XPath evaluator per Entry.Lang, and
// applies the entry's converter chain, per spec.md §4.1's extraction
// contract. required mirrors spec.md §4.5 step 7's "extraction misses
// leave the property absent rather than failing the whole product" rule:
// Extract/Queryable entries are optional, Const/Template are not subject
// to extraction at all.
func extractEntry(body []byte, e mapping.Entry) (any, bool, error) {
	var raw any
	var err error
	switch e.Lang {
	case mapping.PathLangXML:
		var s string
		s, err = mapping.ExtractXMLOne(body, e.Path, false)
		if err == nil && s != "" {
			raw = s
		}
	default:
		raw, err = mapping.ExtractJSONOne(body, e.Path, false)
	}
	if err != nil {
		return nil, false, fmt.Errorf("extracting %q: %w", e.Path, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	converted, err := mapping.Apply(raw, e.Converters)
	if err != nil {
		return nil, false, err
	}
	return converted, true, nil
}

// extractProperties runs the two-pass resolution spec.md §4.5 step 7
// describes: Const/Extract/Queryable entries resolve directly against
// body first, then Template entries render against the property map
// built so far (so a template can reference an already-extracted
// property), per spec.md §4.1 "second pass".
func extractProperties(body []byte, m mapping.Mapping, defaults map[string]any) (map[string]any, error) {
	props := make(map[string]any, len(defaults)+len(m))
	for k, v := range defaults {
		props[k] = v
	}

	var templates []string
	for name, e := range m {
		switch e.Kind {
		case mapping.KindConst:
			v, err := mapping.Apply(e.Const, e.Converters)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			props[name] = v
		case mapping.KindExtract, mapping.KindQueryable:
			v, ok, err := extractEntry(body, e)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			if ok {
				props[name] = v
			}
		case mapping.KindTemplate:
			templates = append(templates, name)
		}
	}

	vars := make(map[string]any, len(props))
	for k, v := range props {
		vars[k] = v
	}
	for _, name := range templates {
		e := m[name]
		rendered, err := mapping.RenderTemplate(e.Template, vars)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		v, err := mapping.Apply(rendered, e.Converters)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = v
	}
	return props, nil
}
