package meta

import (
	"encoding/binary"
	"encoding/json"
	"os/user"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/threefoldtech/rfs/pkg/store"
)

// Bucket names, in the spirit of backend/cache/storage_persistent.go's
// RootBucket/RootTsBucket/DataTsBucket/tempBucket constants: a handful of
// named top-level buckets rather than one sprawling key space.
const (
	nodesBucket = "nodes"
	acisBucket  = "acis"
	metaBucket  = "meta" // singleton keys: routes, tags
	routesKey   = "routes"
)

// RootInode is the inode number of the flist's root directory, fixed by
// convention so a fresh reader always has somewhere to start walking from.
const RootInode = 1

// record is the on-disk, kind-tagged union stored per inode. Only the
// fields relevant to Kind are populated; JSON is the teacher's own
// encoding choice for bucket values (storage_persistent.go JSON-encodes
// every record it stores), reused here for the same reason: every record
// is small, read far more often than written, and human-inspectable with
// `bbolt` CLI tooling during development.
type record struct {
	Kind Kind
	Node

	// Dir
	Parent   uint64
	Children []uint64

	// File
	BlockSize uint16
	Blocks    []FileBlock

	// Link
	Target string
}

// aciRecord stores the raw (possibly -1-sentineled) uid/gid alongside the
// resolved names, deferring name resolution to read time the way the Rust
// Aci::new constructor does.
type aciRecord struct {
	RawUID int64
	RawGID int64
	Mode   uint32
	UName  string
	GName  string
}

// DB is the embedded metadata store for one flist.
type DB struct {
	path     string
	db       *bolt.DB
	mu       sync.Mutex
	readOnly bool
}

// Create initializes a fresh metadata database at path with an empty root
// directory at RootInode, for use by the artifact writer (docker2fl).
func Create(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating metadata db %q", path)
	}

	d := &DB{path: path, db: bdb}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{nodesBucket, acisBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		nodes := tx.Bucket([]byte(nodesBucket))
		root := record{
			Kind: KindDir,
			Node: Node{Inode: RootInode, Name: "/"},
		}
		return putRecord(nodes, RootInode, root)
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return d, nil
}

// Open opens an existing metadata database at path. With readOnly set, the
// bbolt file is opened read-only and every Create*/Set* call on the DB
// fails; the mount CLI always opens its catalog this way, since a reader
// mounting a flist never needs to write to it.
func Open(path string, readOnly bool) (*DB, error) {
	bdb, err := bolt.Open(path, 0o644, &bolt.Options{ReadOnly: readOnly})
	if err != nil {
		return nil, errors.Wrapf(err, "opening metadata db %q", path)
	}
	return &DB{path: path, db: bdb, readOnly: readOnly}, nil
}

// Close releases the underlying bbolt file handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func putRecord(bucket *bolt.Bucket, inode uint64, r record) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return bucket.Put(inodeKey(inode), buf)
}

func inodeKey(inode uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, inode)
	return k
}

func (d *DB) getRecord(inode uint64) (record, error) {
	var r record
	err := d.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		buf := nodes.Get(inodeKey(inode))
		if buf == nil {
			return errors.Errorf("inode %d not found", inode)
		}
		return json.Unmarshal(buf, &r)
	})
	return r, err
}

// nextInode allocates the next inode number via bbolt's bucket sequence
// counter, seeded past RootInode.
func (d *DB) nextInode(tx *bolt.Tx) (uint64, error) {
	nodes := tx.Bucket([]byte(nodesBucket))
	if nodes.Sequence() < RootInode {
		if err := nodes.SetSequence(RootInode); err != nil {
			return 0, err
		}
	}
	return nodes.NextSequence()
}

// ReadDir returns the directory at inode and its children in readdir
// order.
func (d *DB) ReadDir(inode uint64) (*Dir, error) {
	r, err := d.getRecord(inode)
	if err != nil {
		return nil, err
	}
	if r.Kind != KindDir {
		return nil, errors.Errorf("inode %d is not a directory", inode)
	}
	return &Dir{Node: r.Node, Parent: r.Parent, Children: r.Children}, nil
}

// Lookup resolves name within the directory at parent, returning the
// child's inode number and kind.
func (d *DB) Lookup(parent uint64, name string) (uint64, Kind, error) {
	dir, err := d.ReadDir(parent)
	if err != nil {
		return 0, 0, err
	}
	for _, childInode := range dir.Children {
		child, err := d.getRecord(childInode)
		if err != nil {
			return 0, 0, err
		}
		if child.Name == name {
			return childInode, child.Kind, nil
		}
	}
	return 0, 0, store.ErrKeyNotFound
}

// GetFile returns the file entry at inode.
func (d *DB) GetFile(inode uint64) (*File, error) {
	r, err := d.getRecord(inode)
	if err != nil {
		return nil, err
	}
	if r.Kind != KindFile {
		return nil, errors.Errorf("inode %d is not a file", inode)
	}
	return &File{Node: r.Node, BlockSize: r.BlockSize, Blocks: r.Blocks}, nil
}

// GetLink returns the symlink entry at inode.
func (d *DB) GetLink(inode uint64) (*Link, error) {
	r, err := d.getRecord(inode)
	if err != nil {
		return nil, err
	}
	if r.Kind != KindLink {
		return nil, errors.Errorf("inode %d is not a link", inode)
	}
	return &Link{Node: r.Node, Target: r.Target}, nil
}

// GetNode returns the kind-independent header for inode, for callers (like
// the FUSE adapter's GetInodeAttributes) that only need Size/timestamps and
// not the kind-specific payload.
func (d *DB) GetNode(inode uint64) (Kind, Node, error) {
	r, err := d.getRecord(inode)
	if err != nil {
		return 0, Node{}, err
	}
	return r.Kind, r.Node, nil
}

// ACI resolves the access-control entry stored under key, applying the
// uid/gid == -1 backward-compatibility rule: a -1-sentineled id is resolved
// by looking up the accompanying user/group name on the local system, and
// falls back to DefaultXID if that name doesn't resolve (ported from the
// Rust original's Aci::new, src/meta/types.rs).
func (d *DB) ACI(key string) (ACI, error) {
	var rec aciRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(acisBucket))
		buf := bucket.Get([]byte(key))
		if buf == nil {
			return errors.Errorf("aci %q not found", key)
		}
		return json.Unmarshal(buf, &rec)
	})
	if err != nil {
		return ACI{}, err
	}

	uid := rec.RawUID
	if uid == -1 {
		uid = resolveUID(rec.UName)
	}
	gid := rec.RawGID
	if gid == -1 {
		gid = resolveGID(rec.GName)
	}

	return ACI{UID: uint32(uid), GID: uint32(gid), Mode: rec.Mode}, nil
}

func resolveUID(name string) int64 {
	if name == "" {
		return DefaultXID
	}
	u, err := user.Lookup(name)
	if err != nil {
		return DefaultXID
	}
	uid, err := strconv.ParseInt(u.Uid, 10, 64)
	if err != nil {
		return DefaultXID
	}
	return uid
}

func resolveGID(name string) int64 {
	if name == "" {
		return DefaultXID
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return DefaultXID
	}
	gid, err := strconv.ParseInt(g.Gid, 10, 64)
	if err != nil {
		return DefaultXID
	}
	return gid
}

// Routes returns the store route table recorded in the artifact at build
// time, for reconstructing a store.Router at mount time.
func (d *DB) Routes() ([]store.Route, error) {
	var routes []store.Route
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		buf := bucket.Get([]byte(routesKey))
		if buf == nil {
			return nil
		}
		return json.Unmarshal(buf, &routes)
	})
	return routes, err
}

// SetRoutes records the store route table, called once by the artifact
// writer before it converts any content.
func (d *DB) SetRoutes(routes []store.Route) error {
	buf, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		return bucket.Put([]byte(routesKey), buf)
	})
}

// Tags returns the artifact's free-form key/value tag set, as recorded by
// SetTag.
func (d *DB) Tags() (map[string]string, error) {
	tags := map[string]string{}
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(k) == routesKey {
				continue
			}
			tags[string(k)] = string(v)
		}
		return nil
	})
	return tags, err
}

// SetTag records a single key/value tag.
func (d *DB) SetTag(key, value string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		return bucket.Put([]byte(key), []byte(value))
	})
}
