package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<csw:Record xmlns:csw="http://www.opengis.net/cat/csw/2.0.2">
	<dc:identifier id="abc123">S2A_MSIL1C_20240315</dc:identifier>
	<dc:title>Sentinel-2 scene</dc:title>
</csw:Record>`

func TestExtractXMLText(t *testing.T) {
	got, err := ExtractXMLOne([]byte(sampleXML), "./Record/identifier", false)
	require.NoError(t, err)
	assert.Equal(t, "S2A_MSIL1C_20240315", got)
}

func TestExtractXMLAttr(t *testing.T) {
	got, err := ExtractXMLOne([]byte(sampleXML), "./Record/identifier/@id", false)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestExtractXMLMissingRequired(t *testing.T) {
	_, err := ExtractXMLOne([]byte(sampleXML), "./Record/missing", true)
	require.Error(t, err)
}

func TestExtractXMLMissingOptional(t *testing.T) {
	got, err := ExtractXMLOne([]byte(sampleXML), "./Record/missing", false)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
