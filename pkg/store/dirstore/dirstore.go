// Package dirstore implements the store.Store contract over a plain
// directory tree: one file per blob, named by its hex key and sharded two
// hex digits deep to keep any one directory from growing unbounded. The
// write path (write-to-temp-file, then os.Rename into place) is grounded on
// backend/local/local.go's own rename-based move semantics (Fs.Move,
// Object.Update), which rely on the same "write fully, then atomically
// publish" guarantee POSIX rename gives on a single filesystem.
package dirstore

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/threefoldtech/rfs/pkg/store"
)

func init() {
	store.Register("dir", func(ctx context.Context, rawURL string) (store.Store, error) {
		return New(pathFromURL(rawURL))
	})
}

// pathFromURL strips the dir:// scheme off, leaving a filesystem path. Both
// "dir:///abs/path" (host-less, path carries the leading slash) and
// "dir://relative" forms are accepted.
func pathFromURL(rawURL string) string {
	const prefix = "dir://"
	if len(rawURL) > len(prefix) && rawURL[:len(prefix)] == prefix {
		return rawURL[len(prefix):]
	}
	return rawURL
}

// Store is a store.Store backed by a local (or network-mounted) directory.
type Store struct {
	root string
	url  string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating store root %q", dir)
	}
	return &Store{root: dir, url: "dir://" + dir}, nil
}

// path returns the on-disk location for key, sharded by its first hex byte
// the same way pkg/cache lays out its local copies. The contents differ: a
// dirstore holds the encrypted blobs, the cache holds decoded plaintext.
func (s *Store) path(key []byte) string {
	name := hex.EncodeToString(key)
	return filepath.Join(s.root, name[:2], name)
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(store.ErrUnavailable, err.Error())
	}
	if len(blob) == 0 {
		return nil, store.ErrInvalidBlob
	}
	return blob, nil
}

// Set implements store.Store: the blob is written to a temp file in the
// same shard directory, then renamed into place, so a concurrent Get on the
// same key never observes a partial write.
func (s *Store) Set(ctx context.Context, key []byte, blob []byte) error {
	dst := s.path(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return nil
}

// Routes implements store.Store.
func (s *Store) Routes() []store.Route {
	return []store.Route{{Start: 0x00, End: 0xFF, URL: s.url}}
}
