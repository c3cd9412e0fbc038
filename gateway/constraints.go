package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/search"
)

// Constraint is one provider-published row of allowed value combinations,
// per the GLOSSARY's "Constraint" entry: a mapping from queryable key to
// the list of values allowed for it within that row.
type Constraint map[string][]any

// FixedParam is one user-supplied value to hold constant while resolving
// the allowed values for the rest, in the order the caller names it.
// Order is significant: spec.md §4.8/§8 scenario 6 narrows the live
// constraint set one parameter at a time, so fixing {var, year} in that
// order can name a different offending parameter than {year, var} would
// for the same two values.
type FixedParam struct {
	Name  string
	Value any
}

// Queryables implements spec.md §4.7's Queryables: the union of common
// queryables (model.NewQueryables' collection/datetime trio) and the
// queryable subset of the provider's resolved metadata mapping for
// productType, narrowed by constraint resolution when the provider
// publishes a constraints file and the caller fixes any parameters.
func (g *Gateway) Queryables(ctx context.Context, productType, provider string, fixed []FixedParam) (*model.Queryables, error) {
	q := model.NewQueryables()
	if provider == "" {
		return q, nil
	}
	pc, ok := g.providers.Get(provider)
	if !ok {
		return nil, &errs.UnsupportedProviderError{Provider: provider}
	}
	searchPlugin, ok := pc.Plugins[config.TopicSearch]
	if !ok {
		return q, nil
	}
	product := pc.Products[productType]
	if product == nil {
		product = pc.Products["GENERIC_PRODUCT_TYPE"]
	}
	m, err := search.ResolveMapping(searchPlugin, product)
	if err != nil {
		return nil, err
	}
	provided := &model.Queryables{Properties: map[string]model.Queryable{}}
	for name := range m.Queryables() {
		provided.Properties[name] = model.NewStringQueryable("", false, nil)
	}
	if product != nil {
		for name, def := range product.QueryableDefaults {
			qn, ok := provided.Properties[name]
			if !ok {
				qn = model.NewStringQueryable("", false, nil)
			}
			qn.Schema.Default = def
			provided.Properties[name] = qn
		}
	}
	q = q.Merge(provided)

	if product == nil || (product.ConstraintsFilePath == "" && product.ConstraintsFileURL == "") {
		return q, nil
	}
	constraints, err := g.loadConstraints(ctx, product)
	if err != nil {
		return nil, err
	}
	if len(constraints) == 0 || len(fixed) == 0 {
		return q, nil
	}

	allowed, err := ResolveConstraints(constraints, fixed)
	if err != nil {
		return nil, err
	}
	for name, values := range allowed {
		qn, ok := q.Properties[name]
		if !ok {
			qn = model.NewStringQueryable("", false, nil)
		}
		qn.Schema.Enum = values
		q.Properties[name] = qn
	}
	for _, fp := range fixed {
		qn, ok := q.Properties[fp.Name]
		if !ok {
			qn = model.NewStringQueryable("", false, nil)
		}
		qn.Schema.Default = fp.Value
		q.Properties[fp.Name] = qn
	}
	return q, nil
}

// loadConstraints fetches and parses product's constraints file/URL into
// a flat []Constraint, per spec.md §6's "constraints_file_path /
// constraints_file_url" product entry.
func (g *Gateway) loadConstraints(ctx context.Context, product *config.ProductConfig) ([]Constraint, error) {
	var body []byte
	switch {
	case product.ConstraintsFilePath != "":
		b, err := os.ReadFile(product.ConstraintsFilePath)
		if err != nil {
			return nil, errs.NewMisconfigured("", fmt.Sprintf("reading constraints file: %s", err))
		}
		body = b
	case product.ConstraintsFileURL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, product.ConstraintsFileURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errs.NewRequest("", 0, fmt.Sprintf("fetching constraints: %s", err), err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errs.NewRequest("", resp.StatusCode, fmt.Sprintf("reading constraints response: %s", err), err)
		}
		body = b
	default:
		return nil, nil
	}

	var rows []map[string]any
	if err := yaml.Unmarshal(body, &rows); err != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, errs.NewMisconfigured("", fmt.Sprintf("parsing constraints: %s", err))
		}
	}

	out := make([]Constraint, 0, len(rows))
	for _, row := range rows {
		c := make(Constraint, len(row))
		for k, v := range row {
			c[k] = asValueSlice(v)
		}
		out = append(out, c)
	}
	return out, nil
}

// asValueSlice normalizes one constraint row's value, which YAML/JSON may
// decode as either a scalar or a list, into a uniform []any.
func asValueSlice(v any) []any {
	if vs, ok := v.([]any); ok {
		return vs
	}
	return []any{v}
}

// ResolveConstraints implements spec.md §4.8: it narrows the live set of
// matching constraint rows one fixed parameter at a time, in the order
// given. Fixing a parameter whose value empties the live set names that
// parameter as the offending one (its allowed values being whatever the
// live set permitted immediately before this parameter was applied),
// except when the very first parameter already empties the full,
// unfiltered set while more than one parameter is being fixed — there,
// nothing has been narrowed yet to pin the blame on a single parameter,
// so the combination as a whole is reported instead.
func ResolveConstraints(constraints []Constraint, fixed []FixedParam) (map[string][]any, error) {
	live := constraints
	for i, fp := range fixed {
		known := false
		for _, c := range constraints {
			if _, ok := c[fp.Name]; ok {
				known = true
				break
			}
		}
		if !known {
			return nil, errs.NewValidation(fp.Name, "unknown to the provider's constraints")
		}

		next := filterRows(live, fp.Name, fp.Value)
		if len(next) == 0 {
			if i == 0 && len(fixed) > 1 {
				return nil, errs.NewValidationCombo(fixedMap(fixed))
			}
			return nil, errs.NewValidationSingle(fp.Name, fp.Value, unionValues(live, fp.Name))
		}
		live = next
	}

	fixedNames := make(map[string]bool, len(fixed))
	for _, fp := range fixed {
		fixedNames[fp.Name] = true
	}
	out := map[string][]any{}
	seen := map[string]map[any]bool{}
	for _, c := range live {
		for key, values := range c {
			if fixedNames[key] {
				continue
			}
			if seen[key] == nil {
				seen[key] = map[any]bool{}
			}
			for _, v := range values {
				if !seen[key][v] {
					seen[key][v] = true
					out[key] = append(out[key], v)
				}
			}
		}
	}
	for _, fp := range fixed {
		out[fp.Name] = []any{fp.Value}
	}
	return out, nil
}

// filterRows keeps the rows of live whose key entry (when present)
// contains value; a row that doesn't mention key at all neither confirms
// nor denies value, so it is dropped along with a definite mismatch —
// only a row that actually declares key and allows value survives.
func filterRows(live []Constraint, key string, value any) []Constraint {
	var out []Constraint
	for _, c := range live {
		allowed, ok := c[key]
		if !ok {
			continue
		}
		if containsValue(allowed, value) {
			out = append(out, c)
		}
	}
	return out
}

// unionValues collects every distinct value key takes across rows.
func unionValues(rows []Constraint, key string) []any {
	seen := map[any]bool{}
	var out []any
	for _, c := range rows {
		for _, v := range c[key] {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func containsValue(values []any, target any) bool {
	for _, v := range values {
		if fmt.Sprint(v) == fmt.Sprint(target) {
			return true
		}
	}
	return false
}

func fixedMap(fixed []FixedParam) map[string]any {
	out := make(map[string]any, len(fixed))
	for _, fp := range fixed {
		out[fp.Name] = fp.Value
	}
	return out
}
