package model

import "fmt"

// Geometry is a deliberately narrow WGS84 footprint. Full geometry
// parsing (arbitrary WKT/GeoJSON geometry types, topology operations)
// is an out-of-scope external collaborator per spec.md §1; this engine
// only ever needs to carry a bounding box through a search/download
// round trip and render it into a provider's query dialect.
type Geometry struct {
	// WKT, when non-empty, is the original well-known-text the caller
	// supplied or a provider returned; carried through unmodified.
	WKT string

	// MinX/MinY/MaxX/MaxY is the WGS84 bounding box, always populated
	// even when WKT is set (derived from it by the caller/mapping
	// converter, not by this type).
	MinX, MinY, MaxX, MaxY float64
}

// BBox constructs a rectangular Geometry from a bounding box.
func BBox(minX, minY, maxX, maxY float64) Geometry {
	return Geometry{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// IsZero reports whether g carries no usable extent.
func (g Geometry) IsZero() bool {
	return g.WKT == "" && g.MinX == 0 && g.MinY == 0 && g.MaxX == 0 && g.MaxY == 0
}

// ToBoundsList renders the bbox as the [minX, minY, maxX, maxY] form
// most OpenSearch/STAC/OData query dialects expect. Grounded on the
// "to_bounds_lists" converter named in spec.md §4.1.
func (g Geometry) ToBoundsList() []float64 {
	return []float64{g.MinX, g.MinY, g.MaxX, g.MaxY}
}

// ToWKT renders g as WKT, preferring the original string if one was
// carried through, else synthesizing a POLYGON from the bbox.
func (g Geometry) ToWKT() string {
	if g.WKT != "" {
		return g.WKT
	}
	return fmt.Sprintf(
		"POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		g.MinX, g.MinY,
		g.MaxX, g.MinY,
		g.MaxX, g.MaxY,
		g.MinX, g.MaxY,
		g.MinX, g.MinY,
	)
}
