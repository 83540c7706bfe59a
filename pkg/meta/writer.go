package meta

import (
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// CreateDir allocates a new directory inode under parent named name and
// links it into parent's children list. Returns the new inode number.
func (d *DB) CreateDir(parent uint64, name string) (uint64, error) {
	if d.readOnly {
		return 0, errors.New("metadata db is read-only")
	}

	var inode uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))

		parentBuf := nodes.Get(inodeKey(parent))
		if parentBuf == nil {
			return errors.Errorf("parent inode %d not found", parent)
		}
		var parentRec record
		if err := json.Unmarshal(parentBuf, &parentRec); err != nil {
			return err
		}
		if parentRec.Kind != KindDir {
			return errors.Errorf("parent inode %d is not a directory", parent)
		}

		var err error
		inode, err = d.nextInode(tx)
		if err != nil {
			return err
		}

		rec := record{Kind: KindDir, Node: Node{Inode: inode, Name: name}, Parent: parent}
		if err := putRecord(nodes, inode, rec); err != nil {
			return err
		}

		parentRec.Children = append(parentRec.Children, inode)
		return putRecord(nodes, parent, parentRec)
	})
	return inode, err
}

// CreateFile allocates a new file inode under parent, recording its block
// list and size.
func (d *DB) CreateFile(parent uint64, name string, size uint64, blockSize uint16, blocks []FileBlock) (uint64, error) {
	if d.readOnly {
		return 0, errors.New("metadata db is read-only")
	}

	var inode uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))

		parentBuf := nodes.Get(inodeKey(parent))
		if parentBuf == nil {
			return errors.Errorf("parent inode %d not found", parent)
		}
		var parentRec record
		if err := json.Unmarshal(parentBuf, &parentRec); err != nil {
			return err
		}

		var err error
		inode, err = d.nextInode(tx)
		if err != nil {
			return err
		}

		rec := record{
			Kind:      KindFile,
			Node:      Node{Inode: inode, Name: name, Size: size},
			BlockSize: blockSize,
			Blocks:    blocks,
		}
		if err := putRecord(nodes, inode, rec); err != nil {
			return err
		}

		parentRec.Children = append(parentRec.Children, inode)
		return putRecord(nodes, parent, parentRec)
	})
	return inode, err
}

// CreateLink allocates a new symlink inode under parent pointing at target.
func (d *DB) CreateLink(parent uint64, name, target string) (uint64, error) {
	if d.readOnly {
		return 0, errors.New("metadata db is read-only")
	}

	var inode uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))

		parentBuf := nodes.Get(inodeKey(parent))
		if parentBuf == nil {
			return errors.Errorf("parent inode %d not found", parent)
		}
		var parentRec record
		if err := json.Unmarshal(parentBuf, &parentRec); err != nil {
			return err
		}

		var err error
		inode, err = d.nextInode(tx)
		if err != nil {
			return err
		}

		rec := record{Kind: KindLink, Node: Node{Inode: inode, Name: name}, Target: target}
		if err := putRecord(nodes, inode, rec); err != nil {
			return err
		}

		parentRec.Children = append(parentRec.Children, inode)
		return putRecord(nodes, parent, parentRec)
	})
	return inode, err
}

// SetNodeACIKey records which ACI entry governs inode.
func (d *DB) SetNodeACIKey(inode uint64, aciKey string) error {
	if d.readOnly {
		return errors.New("metadata db is read-only")
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		buf := nodes.Get(inodeKey(inode))
		if buf == nil {
			return errors.Errorf("inode %d not found", inode)
		}
		var rec record
		if err := json.Unmarshal(buf, &rec); err != nil {
			return err
		}
		rec.ACIKey = aciKey
		return putRecord(nodes, inode, rec)
	})
}

// SetACI writes (or overwrites) the access-control entry under key.
func (d *DB) SetACI(key string, uid, gid int64, uname, gname string, mode uint32) error {
	if d.readOnly {
		return errors.New("metadata db is read-only")
	}
	rec := aciRecord{RawUID: uid, RawGID: gid, UName: uname, GName: gname, Mode: mode}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(acisBucket))
		return bucket.Put([]byte(key), buf)
	})
}
