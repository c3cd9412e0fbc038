package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUnknownConverter(t *testing.T) {
	_, err := Apply("x", []Converter{{Name: "does_not_exist"}})
	require.Error(t, err)
}

func TestTimestampRoundTrip(t *testing.T) {
	// spec.md §8: iso(ts(d)) == d, truncated to second precision.
	const d = "2024-03-15T10:30:00Z"

	millis, err := convToTimestampMillis(d, nil)
	require.NoError(t, err)

	iso, err := convToISOUTCDatetimeFromMillis(millis, nil)
	require.NoError(t, err)

	assert.Equal(t, d, iso)
}

func TestToISOUTCDatetimeFromSeconds(t *testing.T) {
	got, err := convToISOUTCDatetime(int64(1710498600), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T10:30:00Z", got)
}

func TestToISODate(t *testing.T) {
	got, err := convToISODate("2024-03-15T10:30:00Z", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)
}

func TestRemoveExtension(t *testing.T) {
	cases := map[string]string{
		"scene.SAFE.zip": "scene.SAFE",
		"noext":          "noext",
		"a.b.c":          "a.b",
	}
	for in, want := range cases {
		got, err := convRemoveExtension(in, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReplaceStr(t *testing.T) {
	got, err := convReplaceStr("S2A_MSIL1C", []string{"_", "-"})
	require.NoError(t, err)
	assert.Equal(t, "S2A-MSIL1C", got)
}

func TestSliceStr(t *testing.T) {
	got, err := convSliceStr("S2A_MSIL1C_20240315", []string{"11", "19"})
	require.NoError(t, err)
	assert.Equal(t, "20240315", got)
}

func TestSliceStrNegativeIndices(t *testing.T) {
	got, err := convSliceStr("abcdef", []string{"-3"})
	require.NoError(t, err)
	assert.Equal(t, "def", got)
}

func TestGetGroupName(t *testing.T) {
	got, err := convGetGroupName("S2A_MSIL1C_20240315", []string{`(?P<tile>\d{8})`, "tile"})
	require.NoError(t, err)
	assert.Equal(t, "20240315", got)
}

func TestGetGroupNameNoMatch(t *testing.T) {
	_, err := convGetGroupName("no digits here", []string{`(?P<tile>\d{8})`, "tile"})
	require.Error(t, err)
}

func TestToWKTFromBBox(t *testing.T) {
	got, err := convToWKT([]any{1.0, 2.0, 3.0, 4.0}, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "POLYGON")
}

func TestToGeoJSON(t *testing.T) {
	got, err := convToGeoJSON([]any{1.0, 2.0, 3.0, 4.0}, nil)
	require.NoError(t, err)
	geo, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Polygon", geo["type"])
}

func TestApplyChain(t *testing.T) {
	got, err := Apply("S2A_MSIL1C_20240315.SAFE.zip", []Converter{
		{Name: "remove_extension"},
		{Name: "remove_extension"},
		{Name: "get_group_name", Args: []string{`(?P<tile>\d{8})`, "tile"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "20240315", got)
}
