package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

func intPtr(n int) *int { return &n }

// TestSearchHappyPathSingleProvider matches spec.md §8 scenario 1: a
// plain search against one configured, healthy provider returns every
// product attributed to it.
func TestSearchHappyPathSingleProvider(t *testing.T) {
	spA := &fakeSearchPlugin{provider: "A"}
	r := newRegistry(t, newTestProvider("A", 10, spA))
	g, err := New(r)
	require.NoError(t, err)

	result, _, warnings, err := g.Search(context.Background(), SearchParams{ProductType: "S2_MSI_L1C"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, result.Products, 1)
	for _, p := range result.Products {
		assert.Equal(t, "A", p.Provider)
	}
	assert.Equal(t, 1, spA.calls)
}

// TestSearchFallsBackOnAuthFailure matches spec.md §8 scenario 2: when
// the highest-priority provider's auth fails, Search falls through to
// the next candidate and the final result comes entirely from it.
func TestSearchFallsBackOnAuthFailure(t *testing.T) {
	pA := newTestProvider("A", 20, &fakeSearchPlugin{provider: "A"})
	withSearchAuth(pA, &fakeAuthPlugin{err: errs.NewAuthentication("A", "token expired", nil)})

	spB := &fakeSearchPlugin{pages: func(page int) ([]*model.Product, *int, error) {
		return []*model.Product{
			model.NewProduct("B", "S2_MSI_L1C", "b1", "https://example/b1"),
			model.NewProduct("B", "S2_MSI_L1C", "b2", "https://example/b2"),
		}, nil, nil
	}}
	pB := newTestProvider("B", 10, spB)

	r := newRegistry(t, pA, pB)
	g, err := New(r)
	require.NoError(t, err)

	result, _, warnings, err := g.Search(context.Background(), SearchParams{ProductType: "S2_MSI_L1C"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "A", warnings[0].Provider)
	require.Len(t, result.Products, 2)
	for _, p := range result.Products {
		assert.Equal(t, "B", p.Provider)
	}
}

func TestSearchUnsupportedProductType(t *testing.T) {
	pA := newTestProvider("A", 1, &fakeSearchPlugin{provider: "A"})
	delete(pA.Products, "GENERIC_PRODUCT_TYPE")
	pA.Products["S2_MSI_L1C"] = &config.ProductConfig{}
	r := newRegistry(t, pA)
	g, err := New(r)
	require.NoError(t, err)

	_, _, _, err = g.Search(context.Background(), SearchParams{ProductType: "NOPE", Provider: "A"})
	var target *errs.UnsupportedProductTypeError
	assert.ErrorAs(t, err, &target)
}

func TestSearchAllWalksPagesUntilShortPage(t *testing.T) {
	full := []*model.Product{
		model.NewProduct("A", "T", "p1", "u1"),
		model.NewProduct("A", "T", "p2", "u2"),
	}
	short := []*model.Product{model.NewProduct("A", "T", "p3", "u3")}
	sp := &fakeSearchPlugin{pages: func(page int) ([]*model.Product, *int, error) {
		if page == 1 {
			return full, nil, nil
		}
		return short, nil, nil
	}}
	r := newRegistry(t, newTestProvider("A", 1, sp))
	g, err := New(r)
	require.NoError(t, err)

	result, _, err := g.SearchAll(context.Background(), SearchParams{ProductType: "T", ItemsPerPage: 2}, 5)
	require.NoError(t, err)
	assert.Len(t, result.Products, 3)
}

func TestSearchAllFansOutKnownTotal(t *testing.T) {
	const itemsPerPage = 2
	sp := &fakeSearchPlugin{pages: func(page int) ([]*model.Product, *int, error) {
		total := 6
		start := (page - 1) * itemsPerPage
		var out []*model.Product
		for i := 0; i < itemsPerPage && start+i < total; i++ {
			out = append(out, model.NewProduct("A", "T", productID(start+i), "u"))
		}
		return out, &total, nil
	}}
	r := newRegistry(t, newTestProvider("A", 1, sp))
	g, err := New(r)
	require.NoError(t, err)

	result, warnings, err := g.SearchAll(context.Background(), SearchParams{ProductType: "T", ItemsPerPage: itemsPerPage}, 10)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, result.Products, 6)
}

func productID(n int) string {
	return "p" + string(rune('a'+n))
}
