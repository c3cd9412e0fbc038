package model

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Queryable describes one search parameter a provider will act on, as
// opposed to a property that merely appears in results. spec.md §3
// models this as a "Python-type-style annotation" (base type, optional
// alias, default, required flag, description); kin-openapi's
// openapi3.Schema already carries exactly that shape (Type, Default,
// Description) plus Format for free, so it is reused rather than
// hand-rolling an equivalent struct.
type Queryable struct {
	Alias    string
	Required bool
	Schema   *openapi3.Schema
}

// NewStringQueryable builds a simple required/optional string queryable
// with an optional default value.
func NewStringQueryable(description string, required bool, def any) Queryable {
	schema := openapi3.NewStringSchema()
	schema.Description = description
	if def != nil {
		schema.Default = def
	}
	return Queryable{Required: required, Schema: schema}
}

// Queryables is the named set of Queryable entries for one product
// type/provider pairing, plus whether unknown extra properties may be
// passed through. spec.md §3: always includes "collection"; time
// queryables expose start_datetime/end_datetime aliases; "datetime" is
// the only time field visible at the top level.
type Queryables struct {
	Properties            map[string]Queryable
	AdditionalProperties   bool
}

// NewQueryables builds the base set every product type/provider
// combination starts from: "collection" plus the datetime/start_datetime/
// end_datetime trio wired as aliases of each other per spec.md §3.
func NewQueryables() *Queryables {
	q := &Queryables{Properties: map[string]Queryable{}}
	q.Properties["collection"] = NewStringQueryable("product type identifier", true, nil)
	datetime := NewStringQueryable("acquisition date-time (RFC3339)", false, nil)
	q.Properties["datetime"] = datetime
	start := NewStringQueryable("start of the acquisition window (RFC3339)", false, nil)
	start.Alias = "datetime"
	q.Properties["start_datetime"] = start
	end := NewStringQueryable("end of the acquisition window (RFC3339)", false, nil)
	end.Alias = "datetime"
	q.Properties["end_datetime"] = end
	return q
}

// Merge overlays other's queryables on top of q, provider-declared
// entries winning over the common baseline (later callers pass the
// provider-specific set as other).
func (q *Queryables) Merge(other *Queryables) *Queryables {
	merged := &Queryables{
		Properties:           make(map[string]Queryable, len(q.Properties)+len(other.Properties)),
		AdditionalProperties: q.AdditionalProperties || other.AdditionalProperties,
	}
	for k, v := range q.Properties {
		merged.Properties[k] = v
	}
	for k, v := range other.Properties {
		merged.Properties[k] = v
	}
	return merged
}

// Names returns the queryable names in a stable, sorted order.
func (q *Queryables) Names() []string {
	names := make([]string, 0, len(q.Properties))
	for k := range q.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
