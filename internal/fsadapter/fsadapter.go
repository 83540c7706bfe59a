// Package fsadapter mounts a pkg/meta catalog over FUSE as a read-only
// filesystem, fetching file content through a pkg/cache.Cache on demand.
// It is grounded on distr1-distri's internal/fuse/fuse.go: the same
// jacobsa/fuse + fuseops/fuseutil split and the same ENOSYS answer for
// OpenDir/OpenFile (the kernel is told not to bother sending them) —
// generalized from distri's squashfs-backed, union-of-packages inode space
// down to a single flat meta.DB-backed one, with no in-memory inode table:
// inode numbers are the catalog's own.
package fsadapter

import (
	"context"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/threefoldtech/rfs/pkg/cache"
	"github.com/threefoldtech/rfs/pkg/codec"
	"github.com/threefoldtech/rfs/pkg/meta"
	"github.com/threefoldtech/rfs/pkg/rfslog"
)

// never is the attribute-cache expiry distri's adapter also uses: the
// catalog is immutable for the life of a mount, so there is nothing to
// invalidate.
var never = time.Time{}

// FS implements fuseutil.FileSystem over a meta.DB, serving file content
// out of a chunk cache rather than a local disk tree. It keeps no open-file
// handle table: OpenDir/OpenFile both tell the kernel to skip the round
// trip (see below), so every Read call re-resolves its inode directly.
type FS struct {
	fuseutil.NotImplementedFileSystem

	db    *meta.DB
	cache *cache.Cache
	log   *rfslog.Logger
}

// New returns an FS ready to be passed to Mount.
func New(db *meta.DB, c *cache.Cache, log *rfslog.Logger) *FS {
	return &FS{db: db, cache: c, log: log}
}

// Mount mounts fs at mountpoint and blocks until it is unmounted or ctx is
// canceled, matching distri's Mount/join split: callers that want
// non-blocking behavior should call this from their own goroutine.
func Mount(ctx context.Context, mountpoint string, fs *FS, readOnly bool) error {
	cfg := &fuse.MountConfig{
		ReadOnly:   readOnly,
		FSName:     "rfs",
		VolumeName: "rfs",
	}

	mfs, err := fuse.Mount(mountpoint, fuseutil.NewFileSystemServer(fs), cfg)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = fuse.Unmount(mountpoint)
	}()

	return mfs.Join(ctx)
}

func inodeID(inode uint64) fuseops.InodeID { return fuseops.InodeID(inode) }
func toInode(id fuseops.InodeID) uint64     { return uint64(id) }

func attributesFor(kind meta.Kind, node meta.Node, aci meta.ACI) fuseops.InodeAttributes {
	mode := os.FileMode(aci.Mode)
	switch kind {
	case meta.KindDir:
		mode |= os.ModeDir
	case meta.KindLink:
		mode |= os.ModeSymlink
	}

	return fuseops.InodeAttributes{
		Size:  node.Size,
		Nlink: 1,
		Mode:  mode,
		Uid:   aci.UID,
		Gid:   aci.GID,
		Atime: epochTime(node.Modification),
		Mtime: epochTime(node.Modification),
		Ctime: epochTime(node.Creation),
	}
}

func epochTime(secs uint32) time.Time {
	if secs == 0 {
		return never
	}
	return time.Unix(int64(secs), 0)
}

func (fs *FS) nodeAttributes(inode uint64) (meta.Kind, meta.Node, fuseops.InodeAttributes, error) {
	kind, node, err := fs.db.GetNode(inode)
	if err != nil {
		return 0, meta.Node{}, fuseops.InodeAttributes{}, err
	}
	var aci meta.ACI
	if node.ACIKey != "" {
		aci, _ = fs.db.ACI(node.ACIKey)
	}
	return kind, node, attributesFor(kind, node, aci), nil
}

// StatFS reports a placeholder filesystem-wide statistic set; the catalog
// has no notion of free space to report since it describes fixed, already
// materialized content.
func (fs *FS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

// LookUpInode resolves op.Name within op.Parent.
func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	inode, _, err := fs.db.Lookup(toInode(op.Parent), op.Name)
	if err != nil {
		return fuse.ENOENT
	}

	_, _, attrs, err := fs.nodeAttributes(inode)
	if err != nil {
		return fuse.EIO
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:                inodeID(inode),
		Attributes:           attrs,
		AttributesExpiration: never,
		EntryExpiration:      never,
	}
	return nil
}

// GetInodeAttributes returns the attribute set the catalog records for
// op.Inode.
func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	_, _, attrs, err := fs.nodeAttributes(toInode(op.Inode))
	if err != nil {
		return fuse.ENOENT
	}
	op.Attributes = attrs
	op.AttributesExpiration = never
	return nil
}

// OpenDir instructs the kernel to skip the round trip, same as distri's
// adapter: a read-only catalog has no directory state an explicit open
// call would need to establish.
func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return fuse.ENOSYS
}

// ReadDir lists the directory at op.Inode starting from op.Offset.
func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	dir, err := fs.db.ReadDir(toInode(op.Inode))
	if err != nil {
		return fuse.EIO
	}

	var entries []fuseutil.Dirent
	for _, childInode := range dir.Children {
		kind, node, err := fs.db.GetNode(childInode)
		if err != nil {
			return fuse.EIO
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  inodeID(childInode),
			Name:   node.Name,
			Type:   directTypeFor(kind),
		})
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}

	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func directTypeFor(kind meta.Kind) fuseutil.DirentType {
	switch kind {
	case meta.KindDir:
		return fuseutil.DT_Directory
	case meta.KindLink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

// OpenFile instructs the kernel to skip the round trip; file content is
// fetched lazily, block by block, from ReadFile.
func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return fuse.ENOSYS
}

// ReadFile serves op.Dst from the blocks recorded for op.Inode, decoding
// each overlapping block through the chunk cache and pkg/codec as needed.
func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	file, err := fs.db.GetFile(toInode(op.Inode))
	if err != nil {
		return fuse.EIO
	}

	ranges := codec.Chunks(int64(file.Size), file.BlockSize)
	read := 0
	for i, r := range ranges {
		blockStart, blockEnd := r[0], r[1]
		reqStart, reqEnd := op.Offset, op.Offset+int64(len(op.Dst))
		if blockEnd <= reqStart || blockStart >= reqEnd {
			continue
		}

		block := file.Blocks[i]
		plaintext, err := fs.cache.Get(ctx, block.Hash, block.Key)
		if err != nil {
			fs.log.Errorf("fsadapter", "fetching block %d of inode %d: %v", i, op.Inode, err)
			return fuse.EIO
		}

		copyStart := maxInt64(reqStart, blockStart) - blockStart
		copyEnd := minInt64(reqEnd, blockEnd) - blockStart
		dstOffset := maxInt64(reqStart, blockStart) - reqStart
		n := copy(op.Dst[dstOffset:], plaintext[copyStart:copyEnd])
		read += n
	}

	op.BytesRead = read
	return nil
}

// ReadSymlink returns the link target recorded for op.Inode.
func (fs *FS) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	link, err := fs.db.GetLink(toInode(op.Inode))
	if err != nil {
		return fuse.EIO
	}
	op.Target = link.Target
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
