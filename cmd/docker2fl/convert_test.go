package main

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threefoldtech/rfs/pkg/cache"
	"github.com/threefoldtech/rfs/pkg/meta"
	"github.com/threefoldtech/rfs/pkg/store"
)

type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	blob, ok := m.blobs[string(key)]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	return blob, nil
}

func (m *memStore) Set(ctx context.Context, key, blob []byte) error {
	m.blobs[string(key)] = blob
	return nil
}

func (m *memStore) Routes() []store.Route { return nil }

func writeTar(t *testing.T, dir, name string, entries map[string]string, symlinks map[string]string) string {
	t.Helper()

	layerPath := filepath.Join(dir, name)
	f, err := os.Create(layerPath)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	for path, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: path,
			Mode: 0o644,
			Uid:  1000,
			Gid:  1000,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	for path, target := range symlinks {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     path,
			Typeflag: tar.TypeSymlink,
			Linkname: target,
		}))
	}
	require.NoError(t, tw.Close())
	return layerPath
}

func newTestConverter(t *testing.T) (*Converter, *meta.DB) {
	t.Helper()

	db, err := meta.Create(filepath.Join(t.TempDir(), "rfs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backing := newMemStore()
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), backing)
	require.NoError(t, err)

	return NewConverter(nil, db, backing, c), db
}

func TestApplyLayerCreatesNestedFilesAndDirs(t *testing.T) {
	conv, db := newTestConverter(t)
	dir := t.TempDir()

	layer := writeTar(t, dir, "layer.tar", map[string]string{
		"etc/hostname": "alpine\n",
		"usr/bin/sh":   "#!/bin/sh\n",
	}, map[string]string{
		"bin": "usr/bin",
	})

	dirs := map[string]uint64{".": meta.RootInode}
	require.NoError(t, conv.applyLayer(context.Background(), layer, dirs))

	etcInode, kind, err := db.Lookup(meta.RootInode, "etc")
	require.NoError(t, err)
	assert.Equal(t, meta.KindDir, kind)

	hostnameInode, kind, err := db.Lookup(etcInode, "hostname")
	require.NoError(t, err)
	assert.Equal(t, meta.KindFile, kind)

	file, err := db.GetFile(hostnameInode)
	require.NoError(t, err)
	assert.EqualValues(t, len("alpine\n"), file.Size)
	require.NotEmpty(t, file.ACIKey)
	aci, err := db.ACI(file.ACIKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, aci.UID)
	assert.EqualValues(t, 1000, aci.GID)
	assert.EqualValues(t, 0o644, aci.Mode)

	binInode, kind, err := db.Lookup(meta.RootInode, "bin")
	require.NoError(t, err)
	assert.Equal(t, meta.KindLink, kind)

	link, err := db.GetLink(binInode)
	require.NoError(t, err)
	require.NotEmpty(t, link.ACIKey)

	usrInode, kind, err := db.Lookup(meta.RootInode, "usr")
	require.NoError(t, err)
	assert.Equal(t, meta.KindDir, kind)
	_, node, err := db.GetNode(usrInode)
	require.NoError(t, err)
	require.NotEmpty(t, node.ACIKey)
	usrACI, err := db.ACI(node.ACIKey)
	require.NoError(t, err)
	assert.EqualValues(t, defaultDirMode, usrACI.Mode, "implicitly created parent dir keeps the default ACI")
}

func TestApplyLayerSkipsWhiteoutMarkers(t *testing.T) {
	conv, db := newTestConverter(t)
	dir := t.TempDir()

	layer := writeTar(t, dir, "layer.tar", map[string]string{
		"var/.wh.log.txt": "",
	}, nil)

	dirs := map[string]uint64{".": meta.RootInode}
	require.NoError(t, conv.applyLayer(context.Background(), layer, dirs))

	varInode, _, err := db.Lookup(meta.RootInode, "var")
	require.NoError(t, err)

	children, err := db.ReadDir(varInode)
	require.NoError(t, err)
	assert.Empty(t, children.Children)
}

func TestWriteFileChunksAcrossMultipleBlocks(t *testing.T) {
	conv, db := newTestConverter(t)

	data := bytes.Repeat([]byte("x"), DefaultBlockSize+10)
	hdr := &tar.Header{Name: "big.bin", Mode: 0o600, Uid: 0, Gid: 0, Size: int64(len(data))}
	require.NoError(t, conv.writeFile(context.Background(), meta.RootInode, "big.bin", bytes.NewReader(data), hdr))

	inode, kind, err := db.Lookup(meta.RootInode, "big.bin")
	require.NoError(t, err)
	assert.Equal(t, meta.KindFile, kind)

	file, err := db.GetFile(inode)
	require.NoError(t, err)
	assert.Len(t, file.Blocks, 2)

	require.NotEmpty(t, file.ACIKey)
	aci, err := db.ACI(file.ACIKey)
	require.NoError(t, err)
	assert.EqualValues(t, 0o600, aci.Mode)
}

func TestFlistNameReplacesColonAndSlash(t *testing.T) {
	assert.Equal(t, "docker.io-library-alpine-latest.fl", flistName("docker.io/library/alpine:latest"))
}
