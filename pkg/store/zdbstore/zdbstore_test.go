package zdbstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These mirror the Rust source's own get_connection_info doc-tests
// (src/store/zdb.rs test_connection_info_*), carried over verbatim as the
// authoritative URL-parsing scenarios for this backend.

func TestParseConnectionInfoSimple(t *testing.T) {
	info, err := parseConnectionInfo("zdb://hub.grid.tf:9900")
	require.NoError(t, err)
	assert.Equal(t, "tcp", info.network)
	assert.Equal(t, "hub.grid.tf:9900", info.addr)
	assert.Empty(t, info.namespace)
}

func TestParseConnectionInfoDefaultPort(t *testing.T) {
	info, err := parseConnectionInfo("zdb://hub.grid.tf")
	require.NoError(t, err)
	assert.Equal(t, "hub.grid.tf:9900", info.addr)
}

func TestParseConnectionInfoNamespace(t *testing.T) {
	info, err := parseConnectionInfo("zdb://username@hub.grid.tf/custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", info.namespace)
	assert.Equal(t, "tcp", info.network)
	assert.Equal(t, "hub.grid.tf:9900", info.addr)
	assert.Equal(t, "username", info.username)
}

func TestParseConnectionInfoUnixSocket(t *testing.T) {
	info, err := parseConnectionInfo("zdb:///path/to/socket")
	require.NoError(t, err)
	assert.Equal(t, "unix", info.network)
	assert.Equal(t, "/path/to/socket", info.addr)
	assert.Empty(t, info.namespace)
}

func TestNewRegistersRoute(t *testing.T) {
	s, err := New("zdb://hub.grid.tf:9900/custom")
	require.NoError(t, err)
	routes := s.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, uint8(0x00), routes[0].Start)
	assert.Equal(t, uint8(0xFF), routes[0].End)
	assert.Equal(t, "zdb://hub.grid.tf:9900/custom", routes[0].URL)
}
