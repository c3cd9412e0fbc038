package search

import (
	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

// buildProduct applies m to one raw result entry and assembles a
// model.Product, per spec.md §4.5 step 7: "Populate product.properties
// with the product-type defaults first, then overlay extracted values
// so that extracted fields take precedence."
func buildProduct(entry []byte, provider, logicalProductType string, product *config.ProductConfig, m mapping.Mapping) (*model.Product, error) {
	defaults := map[string]any{}
	if product != nil {
		for k, v := range product.QueryableDefaults {
			defaults[k] = v
		}
	}
	props, err := extractProperties(entry, m, defaults)
	if err != nil {
		return nil, err
	}

	id, _ := props["id"].(string)
	if id == "" {
		return nil, &errs.PluginImplementationError{Plugin: provider, Msg: "result entry mapping produced no id"}
	}

	remoteLocation := downloadLink(props, product)
	p := model.NewProduct(provider, logicalProductType, id, remoteLocation)
	if title, ok := props["title"].(string); ok {
		p.Title = title
	}
	if wkt, ok := props["geometry"].(string); ok && wkt != "" {
		p.Geometry = model.Geometry{WKT: wkt}
	}
	p.Properties = props
	return p, nil
}

// downloadLink picks the property that carries the remote asset
// location, preferring the product type's configured
// ComplementaryURLKey (spec.md §6's "complementary URL key") over the
// conventional "downloadLink" property name.
func downloadLink(props map[string]any, product *config.ProductConfig) string {
	if product != nil && product.ComplementaryURLKey != "" {
		if v, ok := props[product.ComplementaryURLKey].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := props["downloadLink"].(string); ok {
		return v
	}
	return ""
}
