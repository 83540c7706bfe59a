// Package flistpb hand-encodes and decodes the legacy flist artifact's
// recursive Dir/Entry/File/Block records using the wire format protobuf
// messages use, without a .proto schema or protoc-generated types. The
// style — protowire.AppendTag/AppendVarint/AppendBytes to encode, and a
// ConsumeTag-driven field loop to decode — is lifted directly from the
// teacher's own backend/mediavfs/gphoto_dynamic_proto.go, which hand-rolls
// a protobuf codec against Google Photos' dynamic API messages; the
// difference here is that each message has a fixed Go struct instead of a
// field-number-keyed map, since the legacy artifact's schema is fixed and
// known up front (it was originally a capnproto schema: see
// original_source/src/meta/types.rs and schema_capnp.rs).
package flistpb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Entry kind tags. A Entry's kind is carried as one of three
// mutually-exclusive fields (the oneof SubDirKey/File/LinkTarget below);
// an Entry with none of them set is the legacy format's "unknown entry
// kind" case and is dropped on import rather than rejected (spec.md §3,
// §9 — "skip unknown entry kinds").
type Entry struct {
	Name         string
	Size         uint64
	ACIKey       string
	Modification uint32
	Creation     uint32

	SubDirKey  string // set when this entry is a directory link
	File       *File  // set when this entry is a regular file
	LinkTarget string // set when this entry is a symlink

	hasSubDir bool
	hasFile   bool
	hasLink   bool
}

// IsDir, IsFile and IsLink report which oneof arm was actually present on
// the wire, distinguishing "File is a regular file with zero blocks" from
// "this Entry isn't a file at all".
func (e *Entry) IsDir() bool  { return e.hasSubDir }
func (e *Entry) IsFile() bool { return e.hasFile }
func (e *Entry) IsLink() bool { return e.hasLink }

// IsUnknown reports that none of Dir/File/Link was set: the legacy
// artifact's forward-compatibility escape hatch for entry kinds that
// didn't exist yet when it was written.
func (e *Entry) IsUnknown() bool { return !e.hasSubDir && !e.hasFile && !e.hasLink }

// Block is one encrypted, content-addressed chunk of a file's data.
type Block struct {
	Hash []byte // 16 bytes
	Key  []byte // 16 bytes
}

// File is the file-kind payload of an Entry.
type File struct {
	BlockSize uint32
	Blocks    []Block
}

// Dir is the top-level recursive directory record the legacy artifact
// stores one of per directory (spec.md §4.6).
type Dir struct {
	Name         string
	Parent       string
	Size         uint64
	Modification uint32
	Creation     uint32
	Entries      []Entry
}

// Field numbers, kept together so the encode and decode sides can't drift
// apart from each other.
const (
	dirFieldName         = 1
	dirFieldParent       = 2
	dirFieldSize         = 3
	dirFieldModification = 4
	dirFieldCreation     = 5
	dirFieldEntries      = 6

	entryFieldName         = 1
	entryFieldSize         = 2
	entryFieldACIKey       = 3
	entryFieldModification = 4
	entryFieldCreation     = 5
	entryFieldSubDirKey    = 6
	entryFieldFile         = 7
	entryFieldLinkTarget   = 8

	fileFieldBlockSize = 1
	fileFieldBlocks    = 2

	blockFieldHash = 1
	blockFieldKey  = 2
)

// Marshal encodes a Dir record to its wire form.
func Marshal(d *Dir) []byte {
	buf := make([]byte, 0, 256)
	buf = protowire.AppendTag(buf, dirFieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, d.Name)
	buf = protowire.AppendTag(buf, dirFieldParent, protowire.BytesType)
	buf = protowire.AppendString(buf, d.Parent)
	buf = protowire.AppendTag(buf, dirFieldSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, d.Size)
	buf = protowire.AppendTag(buf, dirFieldModification, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.Modification))
	buf = protowire.AppendTag(buf, dirFieldCreation, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.Creation))

	for _, e := range d.Entries {
		entryBuf := marshalEntry(&e)
		buf = protowire.AppendTag(buf, dirFieldEntries, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entryBuf)
	}
	return buf
}

func marshalEntry(e *Entry) []byte {
	buf := make([]byte, 0, 128)
	buf = protowire.AppendTag(buf, entryFieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, e.Name)
	buf = protowire.AppendTag(buf, entryFieldSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, e.Size)
	buf = protowire.AppendTag(buf, entryFieldACIKey, protowire.BytesType)
	buf = protowire.AppendString(buf, e.ACIKey)
	buf = protowire.AppendTag(buf, entryFieldModification, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.Modification))
	buf = protowire.AppendTag(buf, entryFieldCreation, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.Creation))

	switch {
	case e.hasSubDir:
		buf = protowire.AppendTag(buf, entryFieldSubDirKey, protowire.BytesType)
		buf = protowire.AppendString(buf, e.SubDirKey)
	case e.hasFile:
		buf = protowire.AppendTag(buf, entryFieldFile, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalFile(e.File))
	case e.hasLink:
		buf = protowire.AppendTag(buf, entryFieldLinkTarget, protowire.BytesType)
		buf = protowire.AppendString(buf, e.LinkTarget)
	}
	return buf
}

func marshalFile(f *File) []byte {
	buf := make([]byte, 0, 64)
	buf = protowire.AppendTag(buf, fileFieldBlockSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(f.BlockSize))
	for _, b := range f.Blocks {
		blockBuf := marshalBlock(&b)
		buf = protowire.AppendTag(buf, fileFieldBlocks, protowire.BytesType)
		buf = protowire.AppendBytes(buf, blockBuf)
	}
	return buf
}

func marshalBlock(b *Block) []byte {
	buf := make([]byte, 0, 40)
	buf = protowire.AppendTag(buf, blockFieldHash, protowire.BytesType)
	buf = protowire.AppendBytes(buf, b.Hash)
	buf = protowire.AppendTag(buf, blockFieldKey, protowire.BytesType)
	buf = protowire.AppendBytes(buf, b.Key)
	return buf
}

// NewFileEntry, NewDirEntry and NewLinkEntry construct an Entry with the
// right oneof arm flagged, since the has* flags are unexported.
func NewDirEntry(base Entry, subDirKey string) Entry {
	base.SubDirKey, base.hasSubDir = subDirKey, true
	return base
}

func NewFileEntry(base Entry, file *File) Entry {
	base.File, base.hasFile = file, true
	return base
}

func NewLinkEntry(base Entry, target string) Entry {
	base.LinkTarget, base.hasLink = target, true
	return base
}

// Unmarshal decodes a Dir record previously produced by Marshal.
// Unrecognized fields (a newer writer's additions) and entries whose oneof
// carries none of the three known kinds are both skipped rather than
// rejected, the forward-compatibility contract spec.md §3/§9 call for.
func Unmarshal(data []byte) (*Dir, error) {
	d := &Dir{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case dirFieldName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Name = v
			data = data[n:]
		case dirFieldParent:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Parent = v
			data = data[n:]
		case dirFieldSize:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Size = v
			data = data[n:]
		case dirFieldModification:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Modification = uint32(v)
			data = data[n:]
		case dirFieldCreation:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Creation = uint32(v)
			data = data[n:]
		case dirFieldEntries:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			entry, err := unmarshalEntry(v)
			if err != nil {
				return nil, err
			}
			d.Entries = append(d.Entries, *entry)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return d, nil
}

func unmarshalEntry(data []byte) (*Entry, error) {
	e := &Entry{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case entryFieldName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Name = v
			data = data[n:]
		case entryFieldSize:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Size = v
			data = data[n:]
		case entryFieldACIKey:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.ACIKey = v
			data = data[n:]
		case entryFieldModification:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Modification = uint32(v)
			data = data[n:]
		case entryFieldCreation:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Creation = uint32(v)
			data = data[n:]
		case entryFieldSubDirKey:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.SubDirKey, e.hasSubDir = v, true
			data = data[n:]
		case entryFieldFile:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			file, err := unmarshalFile(v)
			if err != nil {
				return nil, err
			}
			e.File, e.hasFile = file, true
			data = data[n:]
		case entryFieldLinkTarget:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.LinkTarget, e.hasLink = v, true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return e, nil
}

func unmarshalFile(data []byte) (*File, error) {
	f := &File{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case fileFieldBlockSize:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f.BlockSize = uint32(v)
			data = data[n:]
		case fileFieldBlocks:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			block, err := unmarshalBlock(v)
			if err != nil {
				return nil, err
			}
			f.Blocks = append(f.Blocks, *block)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return f, nil
}

func unmarshalBlock(data []byte) (*Block, error) {
	b := &Block{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case blockFieldHash:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b.Hash = append([]byte(nil), v...)
			data = data[n:]
		case blockFieldKey:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b.Key = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return b, nil
}
