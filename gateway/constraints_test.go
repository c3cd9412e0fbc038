package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-SI/eodag-sub000/internal/errs"
)

func sampleConstraints() []Constraint {
	return []Constraint{
		{"var": {"a", "b"}, "year": {2000, 2001}},
		{"var": {"c"}, "year": {2000}},
	}
}

// TestResolveConstraintsNarrowsRemainingValues matches spec.md §8
// scenario 6's first case: fixing var=b narrows year to {2000, 2001}.
func TestResolveConstraintsNarrowsRemainingValues(t *testing.T) {
	allowed, err := ResolveConstraints(sampleConstraints(), []FixedParam{{Name: "var", Value: "b"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{2000, 2001}, allowed["year"])
}

// TestResolveConstraintsNamesOffendingParameter matches spec.md §8
// scenario 6's second case: fixing var=c then year=2001 narrows to the
// single row allowing var=c, whose year values are {2000} — so the
// error names year, not the combination as a whole.
func TestResolveConstraintsNamesOffendingParameter(t *testing.T) {
	_, err := ResolveConstraints(sampleConstraints(), []FixedParam{
		{Name: "var", Value: "c"},
		{Name: "year", Value: 2001},
	})
	require.Error(t, err)
	var target *errs.ValidationError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "year", target.Field)
	assert.Contains(t, target.Msg, "2000")
}

func TestResolveConstraintsUnknownParameter(t *testing.T) {
	_, err := ResolveConstraints(sampleConstraints(), []FixedParam{{Name: "resolution", Value: "10m"}})
	require.Error(t, err)
	var target *errs.ValidationError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "resolution", target.Field)
}

// TestResolveConstraintsMonotone checks invariant #10: adding a fixed
// parameter never enlarges another parameter's allowed set.
func TestResolveConstraintsMonotone(t *testing.T) {
	before, err := ResolveConstraints(sampleConstraints(), nil)
	require.NoError(t, err)
	after, err := ResolveConstraints(sampleConstraints(), []FixedParam{{Name: "var", Value: "b"}})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(after["year"]), len(before["year"]))
}
