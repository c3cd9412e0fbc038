package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
	"type": "Feature",
	"properties": {
		"id": "S2A_MSIL1C_20240315",
		"cloudCover": 12.5,
		"keywords": ["a", "b", "c"]
	}
}`

func TestExtractJSONScalar(t *testing.T) {
	got, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.id", true)
	require.NoError(t, err)
	assert.Equal(t, "S2A_MSIL1C_20240315", got)
}

func TestExtractJSONNumber(t *testing.T) {
	got, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.cloudCover", true)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, got, 0.0001)
}

func TestExtractJSONArray(t *testing.T) {
	matches, err := ExtractJSON([]byte(sampleJSON), "$.properties.keywords[*]")
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestExtractJSONMissingOptional(t *testing.T) {
	got, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.missing", false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExtractJSONMissingRequired(t *testing.T) {
	_, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.missing", true)
	require.Error(t, err)
}

func TestExtractJSONIdempotent(t *testing.T) {
	first, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.id", true)
	require.NoError(t, err)
	second, err := ExtractJSONOne([]byte(sampleJSON), "$.properties.id", true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
