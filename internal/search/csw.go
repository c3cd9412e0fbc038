package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"text/template"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
)

func init() {
	registry.RegisterSearchPlugin("CSWSearch", newCSWSearch)
}

// cswSearch builds an OGC Filter Encoding constraint per query and
// issues one getrecords request per configured product-type tag,
// unioning the partial results, per spec.md §4.5's "CSW" variant,
// grounded on original_source/eodag/plugins/search/csw.py (owslib-based
// in the original; here POST-built by hand since no CSW/OWS client
// exists anywhere in the corpus).
type cswSearch struct {
	provider     string
	endpoint     string
	resultsEntry string
	typeNames    []string
	envelope     *template.Template
	m            mapping.Mapping
	product      *config.ProductConfig
	authCodes    map[int]bool
	client       *http.Client
}

const cswEnvelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecords xmlns:csw="http://www.opengis.net/cat/csw/2.0.2" xmlns:ogc="http://www.opengis.net/ogc"
    service="CSW" version="2.0.2" resultType="results" outputSchema="http://www.opengis.net/cat/csw/2.0.2">
  <csw:Query typeNames="{{.TypeName}}">
    <csw:Constraint version="1.1.0">
      <ogc:Filter>{{.Filter}}</ogc:Filter>
    </csw:Constraint>
  </csw:Query>
</csw:GetRecords>`

func newCSWSearch(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	endpoint, err := stringOpt(provider.Name, plugin, "endpoint")
	if err != nil {
		return nil, err
	}
	m, err := resolveMapping(plugin, product)
	if err != nil {
		return nil, err
	}
	var typeNames []string
	if raw, ok := plugin.Extra["type_names"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				typeNames = append(typeNames, s)
			}
		}
	}
	if len(typeNames) == 0 {
		typeNames = []string{optStringOpt(plugin, "type_name", "gmd:MD_Metadata")}
	}
	tpl, err := template.New("csw-envelope").Parse(cswEnvelopeTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing CSW envelope template: %w", err)
	}
	return &cswSearch{
		provider:     provider.Name,
		endpoint:     endpoint,
		resultsEntry: optStringOpt(plugin, "results_entry", "./csw:SearchResults/gmd:MD_Metadata"),
		typeNames:    typeNames,
		envelope:     tpl,
		m:            m,
		product:      product,
		authCodes:    authErrorCodes(plugin),
		client:       defaultHTTPClient(),
	}, nil
}

func (s *cswSearch) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	filter, err := buildOGCFilter(s.m, prep.Kwargs)
	if err != nil {
		return nil, nil, err
	}

	var products []*model.Product
	for _, typeName := range s.typeNames {
		var envelope bytes.Buffer
		if err := s.envelope.Execute(&envelope, struct{ TypeName, Filter string }{typeName, filter}); err != nil {
			return nil, nil, fmt.Errorf("rendering CSW envelope for %q: %w", typeName, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(envelope.Bytes()))
		if err != nil {
			return nil, nil, fmt.Errorf("building getrecords request: %w", err)
		}
		req.Header.Set("Content-Type", "application/xml")

		body, err := doRequest(ctx, s.client, req, s.provider, prep.Auth, s.authCodes)
		if err != nil {
			return nil, nil, err
		}

		records, err := mapping.FindXMLNodes(body, s.resultsEntry)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing getrecords response for %q: %w", typeName, err)
		}
		for _, r := range records {
			p, err := buildProduct(r, s.provider, prep.ProductType, s.product, s.m)
			if err != nil {
				return nil, nil, err
			}
			p.SearchArgs = prep.Kwargs
			products = append(products, p)
		}
	}
	return products, nil, nil
}

// buildOGCFilter renders each queryable kwarg present in kwargs as an
// ogc:Filter PropertyIsEqualTo clause, ANDed together, per spec.md
// §4.5's "Build OGC Filter Encoding constraints." Each queryable's
// QueryFormat supplies the property name half of the clause (the part
// before "=" in its rendered "key=value" form), reusing the same
// queryable rendering every other variant uses.
func buildOGCFilter(m mapping.Mapping, kwargs map[string]any) (string, error) {
	flat, _, err := renderQueryableParams(m, kwargs)
	if err != nil {
		return "", err
	}
	if len(flat) == 0 {
		return "<ogc:PropertyIsLike><ogc:PropertyName>AnyText</ogc:PropertyName><ogc:Literal>%</ogc:Literal></ogc:PropertyIsLike>", nil
	}
	var clauses []string
	for key, vals := range flat {
		for _, v := range vals {
			clauses = append(clauses, fmt.Sprintf(
				"<ogc:PropertyIsEqualTo><ogc:PropertyName>%s</ogc:PropertyName><ogc:Literal>%s</ogc:Literal></ogc:PropertyIsEqualTo>",
				key, v))
		}
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	out := "<ogc:And>"
	for _, c := range clauses {
		out += c
	}
	out += "</ogc:And>"
	return out, nil
}
