package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryConst(t *testing.T) {
	e, err := ParseEntry("Sentinel-2")
	require.NoError(t, err)
	assert.Equal(t, KindConst, e.Kind)
	assert.Equal(t, "Sentinel-2", e.Const)
}

func TestParseEntryExtractJSONPath(t *testing.T) {
	e, err := ParseEntry("$.properties.id")
	require.NoError(t, err)
	assert.Equal(t, KindExtract, e.Kind)
	assert.Equal(t, PathLangJSON, e.Lang)
	assert.Equal(t, "$.properties.id", e.Path)
}

func TestParseEntryExtractXPath(t *testing.T) {
	e, err := ParseEntry("/gmd:identifier")
	require.NoError(t, err)
	assert.Equal(t, KindExtract, e.Kind)
	assert.Equal(t, PathLangXML, e.Lang)
}

func TestParseEntryExtractWithConverters(t *testing.T) {
	e, err := ParseEntry(`$.properties.date#to_iso_date()`)
	require.NoError(t, err)
	assert.Equal(t, KindExtract, e.Kind)
	assert.Equal(t, "$.properties.date", e.Path)
	require.Len(t, e.Converters, 1)
	assert.Equal(t, "to_iso_date", e.Converters[0].Name)
}

func TestParseEntryTemplate(t *testing.T) {
	e, err := ParseEntry("{productType}_{id}")
	require.NoError(t, err)
	assert.Equal(t, KindTemplate, e.Kind)
	assert.Equal(t, "{productType}_{id}", e.Template)
}

func TestParseEntryQueryable(t *testing.T) {
	e, err := ParseEntry([]any{"cloudCover={value}", "$.properties.cloudCover"})
	require.NoError(t, err)
	assert.Equal(t, KindQueryable, e.Kind)
	assert.True(t, e.IsQueryable())
	assert.Equal(t, "cloudCover={value}", e.QueryFormat)
	assert.Equal(t, "$.properties.cloudCover", e.Path)
}

func TestParseEntryQueryableWrongShape(t *testing.T) {
	_, err := ParseEntry([]any{"only-one-element"})
	require.Error(t, err)
}

func TestParseEntryUnsupportedType(t *testing.T) {
	_, err := ParseEntry(42)
	require.Error(t, err)
}

func TestParseMapping(t *testing.T) {
	raw := map[string]any{
		"platform": "Sentinel-2",
		"id":       "$.properties.id",
		"cloudCover": []any{
			"cloudCover={value}",
			"$.properties.cloudCover",
		},
	}
	m, err := ParseMapping(raw)
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Equal(t, KindConst, m["platform"].Kind)
	assert.True(t, m["cloudCover"].IsQueryable())
	assert.Len(t, m.Queryables(), 1)
}

func TestParseConverterCallWithArgs(t *testing.T) {
	c, err := parseConverterCall(`replace_str("_","-")`)
	require.NoError(t, err)
	assert.Equal(t, "replace_str", c.Name)
	assert.Equal(t, []string{"_", "-"}, c.Args)
}

func TestParseConverterCallMissingParen(t *testing.T) {
	_, err := parseConverterCall("replace_str(_,-")
	require.Error(t, err)
}
