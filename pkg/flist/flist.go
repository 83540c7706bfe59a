// Package flist converts between the legacy artifact format (pkg/flistpb's
// recursive Dir/Entry records) and the embedded metadata database
// (pkg/meta). Import walks a decoded artifact tree depth-first and
// populates a fresh meta.DB; Export walks a meta.DB's tree and re-encodes
// it as the legacy format. The round trip keeps the tree shape, names,
// file sizes, block lists, link targets and ACI keys. It does not keep
// entry timestamps (Import does not write them into meta.DB, so a
// re-export carries zeros) or the ACI records those keys name (the legacy
// Dir records carry only the keys).
//
// The recursive depth-first walk mirrors distr1-distri's own package-graph
// walks (pb.readmeta.go / pb.readbuild.go decode one message, then recurse
// into its referenced sub-messages); here, decoding one Dir recurses into
// its SubDir-kind entries instead of package dependencies.
package flist

import (
	"github.com/pkg/errors"

	"github.com/threefoldtech/rfs/pkg/flistpb"
	"github.com/threefoldtech/rfs/pkg/meta"
)

// DirSource supplies the encoded Dir record for a given content-addressed
// directory key, abstracting over how the legacy artifact's directory
// blobs are actually stored (a standalone file, a column in an sqlite
// table, whatever the conversion's input format is).
type DirSource interface {
	Dir(key string) ([]byte, error)
}

// DirSink is the write-side counterpart of DirSource, used by Export.
type DirSink interface {
	PutDir(key string, encoded []byte) error
}

// Import decodes the directory tree rooted at rootKey from src and
// populates db starting at meta.RootInode, skipping any Entry whose kind
// flistpb reports as unknown (spec.md §3, §9).
func Import(db *meta.DB, src DirSource, rootKey string) error {
	return importDir(db, src, rootKey, meta.RootInode)
}

func importDir(db *meta.DB, src DirSource, key string, parent uint64) error {
	encoded, err := src.Dir(key)
	if err != nil {
		return errors.Wrapf(err, "reading dir %q", key)
	}

	dir, err := flistpb.Unmarshal(encoded)
	if err != nil {
		return errors.Wrapf(err, "decoding dir %q", key)
	}

	for _, entry := range dir.Entries {
		switch {
		case entry.IsDir():
			childInode, err := db.CreateDir(parent, entry.Name)
			if err != nil {
				return errors.Wrapf(err, "creating dir entry %q", entry.Name)
			}
			if entry.ACIKey != "" {
				if err := db.SetNodeACIKey(childInode, entry.ACIKey); err != nil {
					return err
				}
			}
			if err := importDir(db, src, entry.SubDirKey, childInode); err != nil {
				return err
			}

		case entry.IsFile():
			blocks := make([]meta.FileBlock, 0, len(entry.File.Blocks))
			for _, b := range entry.File.Blocks {
				if len(b.Hash) != 16 || len(b.Key) != 16 {
					return errors.Errorf("file entry %q: malformed block (hash %d bytes, key %d bytes, want 16 each)", entry.Name, len(b.Hash), len(b.Key))
				}
				var fb meta.FileBlock
				copy(fb.Hash[:], b.Hash)
				copy(fb.Key[:], b.Key)
				blocks = append(blocks, fb)
			}
			inode, err := db.CreateFile(parent, entry.Name, entry.Size, uint16(entry.File.BlockSize), blocks)
			if err != nil {
				return errors.Wrapf(err, "creating file entry %q", entry.Name)
			}
			if entry.ACIKey != "" {
				if err := db.SetNodeACIKey(inode, entry.ACIKey); err != nil {
					return err
				}
			}

		case entry.IsLink():
			inode, err := db.CreateLink(parent, entry.Name, entry.LinkTarget)
			if err != nil {
				return errors.Wrapf(err, "creating link entry %q", entry.Name)
			}
			if entry.ACIKey != "" {
				if err := db.SetNodeACIKey(inode, entry.ACIKey); err != nil {
					return err
				}
			}

		default:
			// Unknown entry kind: skip rather than reject, per the legacy
			// format's forward-compatibility contract.
			continue
		}
	}

	return nil
}

// Export walks db's tree starting at meta.RootInode and writes one encoded
// Dir record per directory into sink, keyed by dirKeyFor(inode). It returns
// the root directory's key.
func Export(db *meta.DB, sink DirSink, dirKeyFor func(inode uint64) string) (string, error) {
	rootKey := dirKeyFor(meta.RootInode)
	if err := exportDir(db, sink, meta.RootInode, dirKeyFor); err != nil {
		return "", err
	}
	return rootKey, nil
}

func exportDir(db *meta.DB, sink DirSink, inode uint64, dirKeyFor func(uint64) string) error {
	dir, err := db.ReadDir(inode)
	if err != nil {
		return errors.Wrapf(err, "reading dir inode %d", inode)
	}

	pbDir := &flistpb.Dir{
		Name:         dir.Name,
		Parent:       dirKeyFor(dir.Parent),
		Modification: dir.Modification,
		Creation:     dir.Creation,
	}

	for _, childInode := range dir.Children {
		kind, node, err := db.GetNode(childInode)
		if err != nil {
			return err
		}

		base := flistpb.Entry{
			Name:         node.Name,
			Size:         node.Size,
			ACIKey:       node.ACIKey,
			Modification: node.Modification,
			Creation:     node.Creation,
		}

		switch kind {
		case meta.KindDir:
			childKey := dirKeyFor(childInode)
			if err := exportDir(db, sink, childInode, dirKeyFor); err != nil {
				return err
			}
			pbDir.Entries = append(pbDir.Entries, flistpb.NewDirEntry(base, childKey))

		case meta.KindFile:
			file, err := db.GetFile(childInode)
			if err != nil {
				return err
			}
			pbFile := &flistpb.File{BlockSize: uint32(file.BlockSize)}
			for _, b := range file.Blocks {
				pbFile.Blocks = append(pbFile.Blocks, flistpb.Block{
					Hash: append([]byte(nil), b.Hash[:]...),
					Key:  append([]byte(nil), b.Key[:]...),
				})
			}
			pbDir.Entries = append(pbDir.Entries, flistpb.NewFileEntry(base, pbFile))

		case meta.KindLink:
			link, err := db.GetLink(childInode)
			if err != nil {
				return err
			}
			pbDir.Entries = append(pbDir.Entries, flistpb.NewLinkEntry(base, link.Target))
		}
	}

	return sink.PutDir(dirKeyFor(inode), flistpb.Marshal(pbDir))
}
