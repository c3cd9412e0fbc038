package model

// ProductType (aka Collection) is a logical, provider-independent
// catalog entry: "S2_MSI_L1C" and the like. spec.md §3: id is
// non-empty; extent strings are RFC 3339; validation can be strict
// (fail) or lax (coerce to defaults + warn) under ValidationMode.
type ProductType struct {
	ID               string
	Title            string
	Abstract         string
	Instruments      []string
	Platform         string
	Platforms        []string
	Constellation    string
	ProcessingLevel  string
	License          string
	Keywords         []string
	Alias            string

	// TemporalExtent is [start, end) as RFC 3339 strings; end may be
	// empty to mean "ongoing".
	TemporalExtentStart string
	TemporalExtentEnd   string

	// SpatialExtentBBox is [minX, minY, maxX, maxY] in WGS84 degrees.
	SpatialExtentBBox [4]float64
}

// ValidationMode controls how ProductType/Collection validation
// behaves. Callers pass it to Validate explicitly; nothing in this
// module reads the EODAG_VALIDATE_COLLECTIONS environment variable to
// choose it.
type ValidationMode int

const (
	// ValidationStrict fails validation outright on any defect.
	ValidationStrict ValidationMode = iota
	// ValidationLax coerces defects to defaults and returns warnings
	// instead of failing.
	ValidationLax
)

// Validate checks pt against the invariants in spec.md §3, returning
// warnings (never errors) in lax mode and a single error in strict
// mode as soon as a defect is found.
func (pt *ProductType) Validate(mode ValidationMode) (warnings []string, err error) {
	if pt.ID == "" {
		if mode == ValidationStrict {
			return nil, &emptyIDError{}
		}
		warnings = append(warnings, "product type has empty id")
	}
	if pt.TemporalExtentStart != "" {
		if !looksLikeRFC3339(pt.TemporalExtentStart) {
			if mode == ValidationStrict {
				return nil, &badExtentError{Field: "temporal_extent.start", Value: pt.TemporalExtentStart}
			}
			warnings = append(warnings, "temporal_extent.start is not RFC3339, coercing to empty")
			pt.TemporalExtentStart = ""
		}
	}
	if pt.TemporalExtentEnd != "" {
		if !looksLikeRFC3339(pt.TemporalExtentEnd) {
			if mode == ValidationStrict {
				return nil, &badExtentError{Field: "temporal_extent.end", Value: pt.TemporalExtentEnd}
			}
			warnings = append(warnings, "temporal_extent.end is not RFC3339, coercing to empty")
			pt.TemporalExtentEnd = ""
		}
	}
	return warnings, nil
}

func looksLikeRFC3339(s string) bool {
	// A cheap structural check (the mapping package's datetime
	// converters do the strict parse); this only guards Validate from needing mapping as a
	// dependency, which would create an import cycle (mapping consumes
	// model).
	if len(s) < len("2006-01-02") {
		return false
	}
	return s[4] == '-' && s[7] == '-'
}

type emptyIDError struct{}

func (e *emptyIDError) Error() string { return "product type id must not be empty" }

type badExtentError struct {
	Field string
	Value string
}

func (e *badExtentError) Error() string {
	return "field " + e.Field + " is not RFC3339: " + e.Value
}

// Collection is an alias: spec.md §3 treats Collection and ProductType
// as the same entity at different points in the pipeline (a provider
// "collection" becomes a gateway "product type" once merged across
// providers).
type Collection = ProductType
