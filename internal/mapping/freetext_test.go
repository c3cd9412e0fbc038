package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineFreeTextSingle(t *testing.T) {
	got, err := CombineFreeText("{value}", []FreeTextClause{{Operator: FreeTextAND, Term: "foo"}})
	require.NoError(t, err)
	assert.Equal(t, "foo", got)
}

func TestCombineFreeTextMultiple(t *testing.T) {
	got, err := CombineFreeText("{value}", []FreeTextClause{
		{Operator: FreeTextAND, Term: "foo"},
		{Operator: FreeTextOR, Term: "bar"},
		{Operator: FreeTextNOT, Term: "baz"},
	})
	require.NoError(t, err)
	assert.Equal(t, "foo OR bar NOT baz", got)
}

func TestCombineFreeTextLeadingNOT(t *testing.T) {
	got, err := CombineFreeText("{value}", []FreeTextClause{{Operator: FreeTextNOT, Term: "foo"}})
	require.NoError(t, err)
	assert.Equal(t, "NOT foo", got)
}

func TestCombineFreeTextEmpty(t *testing.T) {
	got, err := CombineFreeText("{value}", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestParseFreeTextOperator(t *testing.T) {
	op, err := ParseFreeTextOperator("")
	require.NoError(t, err)
	assert.Equal(t, FreeTextAND, op)

	op, err = ParseFreeTextOperator("or")
	require.NoError(t, err)
	assert.Equal(t, FreeTextOR, op)

	_, err = ParseFreeTextOperator("XOR")
	require.Error(t, err)
}
