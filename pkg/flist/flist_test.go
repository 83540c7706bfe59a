package flist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threefoldtech/rfs/pkg/flistpb"
	"github.com/threefoldtech/rfs/pkg/meta"
)

type memStore struct {
	dirs map[string][]byte
}

func newMemStore() *memStore { return &memStore{dirs: map[string][]byte{}} }

func (m *memStore) Dir(key string) ([]byte, error) { return m.dirs[key], nil }
func (m *memStore) PutDir(key string, encoded []byte) error {
	m.dirs[key] = encoded
	return nil
}

func TestImportBuildsTreeAndSkipsUnknownEntries(t *testing.T) {
	src := newMemStore()

	src.dirs["root"] = flistpb.Marshal(&flistpb.Dir{
		Name: "/",
		Entries: []flistpb.Entry{
			flistpb.NewDirEntry(flistpb.Entry{Name: "bin"}, "bin-key"),
			flistpb.NewFileEntry(flistpb.Entry{Name: "hello.txt", Size: 5}, &flistpb.File{
				BlockSize: 4096,
				Blocks:    []flistpb.Block{{Hash: make([]byte, 16), Key: make([]byte, 16)}},
			}),
			{Name: "mystery-future-kind"}, // unknown entry, should be skipped
		},
	})
	src.dirs["bin-key"] = flistpb.Marshal(&flistpb.Dir{
		Name: "bin",
		Entries: []flistpb.Entry{
			flistpb.NewLinkEntry(flistpb.Entry{Name: "sh"}, "/bin/bash"),
		},
	})

	db, err := meta.Create(filepath.Join(t.TempDir(), "rfs.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Import(db, src, "root"))

	root, err := db.ReadDir(meta.RootInode)
	require.NoError(t, err)
	require.Len(t, root.Children, 2) // "mystery-future-kind" was skipped

	binInode, kind, err := db.Lookup(meta.RootInode, "bin")
	require.NoError(t, err)
	assert.Equal(t, meta.KindDir, kind)

	bin, err := db.ReadDir(binInode)
	require.NoError(t, err)
	require.Len(t, bin.Children, 1)

	shInode, kind, err := db.Lookup(binInode, "sh")
	require.NoError(t, err)
	assert.Equal(t, meta.KindLink, kind)
	link, err := db.GetLink(shInode)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", link.Target)

	_, kind, err = db.Lookup(meta.RootInode, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, meta.KindFile, kind)
}

func TestImportRejectsMalformedBlockHashLength(t *testing.T) {
	src := newMemStore()
	src.dirs["root"] = flistpb.Marshal(&flistpb.Dir{
		Name: "/",
		Entries: []flistpb.Entry{
			flistpb.NewFileEntry(flistpb.Entry{Name: "bad.bin", Size: 4}, &flistpb.File{
				BlockSize: 4096,
				Blocks:    []flistpb.Block{{Hash: make([]byte, 8), Key: make([]byte, 16)}},
			}),
		},
	})

	db, err := meta.Create(filepath.Join(t.TempDir(), "rfs.db"))
	require.NoError(t, err)
	defer db.Close()

	err = Import(db, src, "root")
	assert.Error(t, err)
}

func TestImportRejectsMalformedBlockKeyLength(t *testing.T) {
	src := newMemStore()
	src.dirs["root"] = flistpb.Marshal(&flistpb.Dir{
		Name: "/",
		Entries: []flistpb.Entry{
			flistpb.NewFileEntry(flistpb.Entry{Name: "bad.bin", Size: 4}, &flistpb.File{
				BlockSize: 4096,
				Blocks:    []flistpb.Block{{Hash: make([]byte, 16), Key: make([]byte, 0)}},
			}),
		},
	})

	db, err := meta.Create(filepath.Join(t.TempDir(), "rfs.db"))
	require.NoError(t, err)
	defer db.Close()

	err = Import(db, src, "root")
	assert.Error(t, err)
}

func TestExportRoundTripsThroughImport(t *testing.T) {
	db, err := meta.Create(filepath.Join(t.TempDir(), "rfs.db"))
	require.NoError(t, err)
	defer db.Close()

	sub, err := db.CreateDir(meta.RootInode, "etc")
	require.NoError(t, err)
	_, err = db.CreateFile(sub, "hosts", 9, 4096, []meta.FileBlock{{}})
	require.NoError(t, err)

	sink := newMemStore()
	keys := map[uint64]string{}
	dirKeyFor := func(inode uint64) string {
		if k, ok := keys[inode]; ok {
			return k
		}
		k := "dir-" + string(rune('a'+len(keys)))
		keys[inode] = k
		return k
	}

	rootKey, err := Export(db, sink, dirKeyFor)
	require.NoError(t, err)
	require.Contains(t, sink.dirs, rootKey)

	db2, err := meta.Create(filepath.Join(t.TempDir(), "rfs2.db"))
	require.NoError(t, err)
	defer db2.Close()

	require.NoError(t, Import(db2, sink, rootKey))

	etcInode, kind, err := db2.Lookup(meta.RootInode, "etc")
	require.NoError(t, err)
	assert.Equal(t, meta.KindDir, kind)

	_, kind, err = db2.Lookup(etcInode, "hosts")
	require.NoError(t, err)
	assert.Equal(t, meta.KindFile, kind)
}
