package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResultAppendPreservesProvider(t *testing.T) {
	first := SearchResult{Provider: "A", Products: []*Product{{Provider: "A", ID: "1"}}}
	second := SearchResult{Products: []*Product{{Provider: "A", ID: "2"}}}

	merged := first.Append(second)

	assert.Equal(t, "A", merged.Provider)
	assert.Len(t, merged.Products, 2)
}

func TestSearchResultAppendFallsBackToOtherSideProvider(t *testing.T) {
	first := SearchResult{Products: []*Product{{Provider: "A", ID: "1"}}}
	second := SearchResult{Provider: "A", Products: []*Product{{Provider: "A", ID: "2"}}}

	merged := first.Append(second)

	assert.Equal(t, "A", merged.Provider)
}

func TestSearchResultDedupPreservesProviderAndFirstSeenOrder(t *testing.T) {
	r := SearchResult{
		Provider: "A",
		Products: []*Product{
			{Provider: "A", ID: "1"},
			{Provider: "A", ID: "1"},
			{Provider: "A", ID: "2"},
		},
	}

	deduped := r.Dedup()

	assert.Equal(t, "A", deduped.Provider)
	assert.Len(t, deduped.Products, 2)
	assert.Equal(t, "1", deduped.Products[0].ID)
	assert.Equal(t, "2", deduped.Products[1].ID)
}
