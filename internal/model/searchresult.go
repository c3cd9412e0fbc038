package model

// SearchResult is an ordered sequence of Product plus optional paging
// metadata. spec.md §3 invariants: it preserves search order,
// concatenation is associative, and merging across providers
// deduplicates by (provider, id).
type SearchResult struct {
	Products   []*Product
	TotalItems *int
	Provider   string
}

// Len returns the number of products currently held.
func (r SearchResult) Len() int { return len(r.Products) }

// Append returns a new SearchResult with other's products appended
// after r's, preserving order. TotalItems is summed when both sides
// have one, else left nil - this is what makes Append associative: the
// sum of sums equals the sum of the flattened parts regardless of
// grouping.
func (r SearchResult) Append(other SearchResult) SearchResult {
	merged := SearchResult{
		Products: make([]*Product, 0, len(r.Products)+len(other.Products)),
		Provider: r.Provider,
	}
	if merged.Provider == "" {
		merged.Provider = other.Provider
	}
	merged.Products = append(merged.Products, r.Products...)
	merged.Products = append(merged.Products, other.Products...)
	if r.TotalItems != nil && other.TotalItems != nil {
		total := *r.TotalItems + *other.TotalItems
		merged.TotalItems = &total
	}
	return merged
}

// Dedup returns a copy of r with later products sharing a (provider,
// id) key dropped, keeping first-seen order.
func (r SearchResult) Dedup() SearchResult {
	seen := make(map[string]struct{}, len(r.Products))
	out := SearchResult{Products: make([]*Product, 0, len(r.Products)), TotalItems: r.TotalItems, Provider: r.Provider}
	for _, p := range r.Products {
		key := p.Provider + "\x00" + p.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Products = append(out.Products, p)
	}
	return out
}
