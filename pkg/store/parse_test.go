package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouteSpecBare(t *testing.T) {
	start, end, rawURL, err := ParseRouteSpec("zdb://hub.grid.tf:9900")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x00), start)
	assert.Equal(t, uint8(0xFF), end)
	assert.Equal(t, "zdb://hub.grid.tf:9900", rawURL)
}

func TestParseRouteSpecRanged(t *testing.T) {
	start, end, rawURL, err := ParseRouteSpec("ab-cd=zdb://hub.grid.tf:9900")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), start)
	assert.Equal(t, uint8(0xcd), end)
	assert.Equal(t, "zdb://hub.grid.tf:9900", rawURL)
}

func TestParseRouteSpecURLWithEqualsInQuery(t *testing.T) {
	// The text before the first "=" ("dir:///tmp/store?a") isn't a hex-hex
	// range, so the whole string is the URL.
	start, end, rawURL, err := ParseRouteSpec("dir:///tmp/store?a=b")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x00), start)
	assert.Equal(t, uint8(0xFF), end)
	assert.Equal(t, "dir:///tmp/store?a=b", rawURL)
}

func TestFormatRouteSpecRoundTrips(t *testing.T) {
	r := Route{Start: 0xab, End: 0xcd, URL: "zdb://hub.grid.tf:9900"}
	formatted := FormatRouteSpec(r)
	start, end, rawURL, err := ParseRouteSpec(formatted)
	require.NoError(t, err)
	assert.Equal(t, r.Start, start)
	assert.Equal(t, r.End, end)
	assert.Equal(t, r.URL, rawURL)
}

func TestFormatRouteSpecCatchAllOmitsRange(t *testing.T) {
	r := Route{Start: 0x00, End: 0xFF, URL: "dir:///tmp/store"}
	assert.Equal(t, "dir:///tmp/store", FormatRouteSpec(r))
}

func TestMakeUnknownSchemeErrors(t *testing.T) {
	_, err := Make(nil, "ftp://nope")
	assert.Error(t, err)
}
