package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountedInFindsMatchingSecondField(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "mounts")
	require.NoError(t, os.WriteFile(fake, []byte(
		"proc /proc proc rw,nosuid,nodev,noexec 0 0\n"+
			"rfs /mnt/images fuse.rfs ro,nosuid,nodev 0 0\n",
	), 0o644))

	mounted, err := mountedIn(fake, "/mnt/images")
	require.NoError(t, err)
	assert.True(t, mounted)

	mounted, err = mountedIn(fake, "/mnt/elsewhere")
	require.NoError(t, err)
	assert.False(t, mounted)
}

func TestMountedInMissingFileErrors(t *testing.T) {
	_, err := mountedIn(filepath.Join(t.TempDir(), "nope"), "/mnt/images")
	assert.Error(t, err)
}
