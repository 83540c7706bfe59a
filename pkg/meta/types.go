// Package meta implements the embedded metadata store: the read-only-at
// -mount-time catalog of inodes, directory contents, file blocks, ACIs,
// store routes and artifact tags that together describe one flist (spec.md
// §4.5). It is grounded on backend/cache/storage_persistent.go's bbolt
// wrapper (a handful of named top-level buckets, JSON-encoded records, a
// connect-once-per-path singleton) and on the Rust original's
// src/meta/types.rs for the exact shape of Node/Dir/File/Link/Aci and the
// ACI uid==-1/gid==-1 backward-compatibility rule.
package meta

import "github.com/threefoldtech/rfs/pkg/codec"

// Kind discriminates the three entry kinds the store records (spec.md §3's
// Dir, File and Link). The legacy format's SubDir references are turned
// into Dir records on import and its Unknown entries are dropped rather
// than written (see pkg/flist's import policy), so neither has a Kind.
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
	KindLink
)

// Node is the kind-independent header every entry carries: its inode
// number, name within its parent, declared size, ACI key and the two
// legacy timestamp fields carried by the original flist format.
type Node struct {
	Inode        uint64
	Name         string
	Size         uint64
	ACIKey       string
	Modification uint32
	Creation     uint32
}

// Dir is a directory entry: its children, kept in insertion order for
// ReadDir and scanned by name for Lookup.
type Dir struct {
	Node
	Parent   uint64
	Children []uint64 // child inode numbers, in readdir order
}

// FileBlock is one chunk of a file's content: the content hash and the
// per-block decryption key codec.Encode produced for it.
type FileBlock struct {
	Hash codec.Hash
	Key  codec.Key
}

// File is a regular file entry: the block size it was chunked with and the
// ordered list of blocks that reassemble its content.
type File struct {
	Node
	BlockSize uint16
	Blocks    []FileBlock
}

// Link is a symlink entry.
type Link struct {
	Node
	Target string
}

// ACI is an access-control entry: owning user, group and POSIX mode bits.
type ACI struct {
	UID  uint32
	GID  uint32
	Mode uint32
}

// DefaultXID is the fallback uid/gid used when an ACI's uname/gname can't
// be resolved locally, matching the Rust original's ACI backward-compat
// rule (src/meta/types.rs: uid/gid of -1 resolves by name, else 1000).
const DefaultXID = 1000
