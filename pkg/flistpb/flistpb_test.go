package flistpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	dir := &Dir{
		Name:         "/",
		Parent:       "",
		Size:         0,
		Modification: 100,
		Creation:     99,
		Entries: []Entry{
			NewDirEntry(Entry{Name: "bin", ACIKey: "aci1"}, "dirkey-bin"),
			NewFileEntry(Entry{Name: "hello.txt", Size: 11, ACIKey: "aci2"}, &File{
				BlockSize: 4096,
				Blocks: []Block{
					{Hash: make([]byte, 16), Key: make([]byte, 16)},
				},
			}),
			NewLinkEntry(Entry{Name: "current"}, "/opt/app/1.0"),
		},
	}

	buf := Marshal(dir)
	got, err := Unmarshal(buf)
	require.NoError(t, err)

	assert.Equal(t, dir.Name, got.Name)
	assert.Equal(t, dir.Modification, got.Modification)
	require.Len(t, got.Entries, 3)

	assert.True(t, got.Entries[0].IsDir())
	assert.Equal(t, "dirkey-bin", got.Entries[0].SubDirKey)

	assert.True(t, got.Entries[1].IsFile())
	require.NotNil(t, got.Entries[1].File)
	assert.Equal(t, uint32(4096), got.Entries[1].File.BlockSize)
	require.Len(t, got.Entries[1].File.Blocks, 1)

	assert.True(t, got.Entries[2].IsLink())
	assert.Equal(t, "/opt/app/1.0", got.Entries[2].LinkTarget)
}

func TestUnmarshalEntryWithNoKnownKindIsUnknown(t *testing.T) {
	// An entry with none of SubDirKey/File/LinkTarget set round-trips as
	// "unknown", matching the legacy format's forward-compat escape hatch.
	dir := &Dir{Entries: []Entry{{Name: "mystery"}}}
	buf := Marshal(dir)

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.True(t, got.Entries[0].IsUnknown())
}

func TestUnmarshalSkipsUnrecognizedFields(t *testing.T) {
	dir := &Dir{Name: "/"}
	buf := Marshal(dir)

	// Append a field number this version of the format doesn't know about.
	buf = appendUnknownVarintField(buf, 99, 42)

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, "/", got.Name)
}
