package main

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/threefoldtech/rfs/internal/dockerclient"
	"github.com/threefoldtech/rfs/pkg/cache"
	"github.com/threefoldtech/rfs/pkg/codec"
	"github.com/threefoldtech/rfs/pkg/meta"
	"github.com/threefoldtech/rfs/pkg/store"
)

// DefaultBlockSize is the chunk size new files are split into. The legacy
// format carries block size per file (spec.md §3) as a uint16, which caps
// any block size at 65535 bytes; this is only ever a default for freshly
// converted content, never a protocol constant.
const DefaultBlockSize = 32 * 1024

// manifestEntry is one element of a classic `docker save` manifest.json,
// the format /images/{name}/get still produces.
type manifestEntry struct {
	Config   string
	RepoTags []string
	Layers   []string
}

// Converter walks a Docker image's layers and materializes them into a
// fresh metadata database, uploading new content blocks through router and
// warming the local cache as it goes — the Go shape of the original Rust
// docker2fl::DockerImageToFlist::convert.
type Converter struct {
	docker *dockerclient.Client
	db     *meta.DB
	router store.Store
	cache  *cache.Cache
}

// NewConverter returns a Converter ready to build db from images pulled
// through docker.
func NewConverter(docker *dockerclient.Client, db *meta.DB, router store.Store, c *cache.Cache) *Converter {
	return &Converter{docker: docker, db: db, router: router, cache: c}
}

// Convert pulls image, saves its filesystem, and replays each layer's tar
// stream into c.db in manifest order, so later layers' entries naturally
// take precedence over earlier ones at the same path.
func (c *Converter) Convert(ctx context.Context, image string, creds *dockerclient.Credentials) error {
	if err := c.docker.Pull(ctx, image, creds); err != nil {
		return errors.Wrapf(err, "pulling image %q", image)
	}

	tmpDir := filepath.Join(os.TempDir(), uuid.New().String())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return errors.Wrap(err, "creating temp directory")
	}
	defer os.RemoveAll(tmpDir)

	if err := c.saveTo(ctx, image, tmpDir); err != nil {
		return errors.Wrapf(err, "saving image %q", image)
	}

	manifest, err := readManifest(tmpDir)
	if err != nil {
		return errors.Wrap(err, "reading image manifest")
	}

	dirs := map[string]uint64{".": meta.RootInode}
	for _, layer := range manifest.Layers {
		if err := c.applyLayer(ctx, filepath.Join(tmpDir, layer), dirs); err != nil {
			return errors.Wrapf(err, "applying layer %q", layer)
		}
	}

	return nil
}

// saveTo streams the image's `docker save` tar into dir, extracting it
// flat (manifest.json and every layer's own tar file become top-level
// entries named by their path within the outer archive).
func (c *Converter) saveTo(ctx context.Context, image, dir string) error {
	rc, err := c.docker.Save(ctx, image)
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}

func readManifest(dir string) (manifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return manifestEntry{}, err
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return manifestEntry{}, err
	}
	if len(entries) == 0 {
		return manifestEntry{}, errors.New("manifest.json has no entries")
	}
	return entries[0], nil
}

// applyLayer replays one layer.tar onto dirs, skipping OverlayFS/AUFS
// whiteout markers rather than honoring their delete semantics: pkg/meta
// has no remove primitive (spec.md's catalog is append-only), so a
// whiteout here only suppresses materializing the marker file itself
// instead of retracting whatever it would have hidden from a lower layer.
func (c *Converter) applyLayer(ctx context.Context, layerPath string, dirs map[string]uint64) error {
	f, err := os.Open(layerPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := path.Clean("/" + hdr.Name)[1:]
		if name == "" {
			continue
		}
		dir, base := path.Split(name)
		dir = strings.TrimSuffix(dir, "/")

		parent, err := c.ensureDir(dir, dirs)
		if err != nil {
			return err
		}
		if strings.HasPrefix(base, ".wh.") {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			inode, err := c.ensureDir(name, dirs)
			if err != nil {
				return err
			}
			if err := c.setACI(inode, hdr); err != nil {
				return err
			}

		case tar.TypeReg, tar.TypeRegA:
			if err := c.writeFile(ctx, parent, base, tr, hdr); err != nil {
				return err
			}

		case tar.TypeSymlink:
			inode, err := c.db.CreateLink(parent, base, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := c.setACI(inode, hdr); err != nil {
				return err
			}

		default:
			// Hard links, devices and fifos have no representation in
			// pkg/meta's node kinds (spec.md §3 Non-goals); skip rather
			// than fail the whole conversion over one unsupported entry.
			continue
		}
	}
}

// defaultDirMode is the permission set given to a directory that's only
// ever implied by a deeper path (e.g. "usr/bin/sh" with no preceding "usr"
// or "usr/bin" entry in the layer's tar stream), matching what GNU tar and
// the Docker daemon itself fall back to for an implied intermediate
// directory.
const defaultDirMode = 0o755

// ensureDir walks dir component by component, creating and caching any
// directory inode not already present in dirs, and giving each newly
// created inode a default ACI (root-owned, defaultDirMode) that an
// explicit tar.TypeDir header for the same path later overwrites via
// setACI. dirs is keyed by cleaned path with no leading or trailing
// slash; "." is the root.
func (c *Converter) ensureDir(dir string, dirs map[string]uint64) (uint64, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = "."
	}
	if inode, ok := dirs[dir]; ok {
		return inode, nil
	}

	parentPath, name := path.Split(dir)
	parentPath = strings.TrimSuffix(parentPath, "/")

	parent, err := c.ensureDir(parentPath, dirs)
	if err != nil {
		return 0, err
	}

	inode, err := c.db.CreateDir(parent, name)
	if err != nil {
		return 0, err
	}
	if err := c.setACIValues(inode, 0, 0, defaultDirMode); err != nil {
		return 0, err
	}
	dirs[dir] = inode
	return inode, nil
}

// writeFile chunks r into DefaultBlockSize blocks, uploads each new block
// through the router, warms the local cache, and records the resulting
// FileBlock list against a fresh file inode under parent, tagging it with
// hdr's owner/mode.
func (c *Converter) writeFile(ctx context.Context, parent uint64, name string, r io.Reader, hdr *tar.Header) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	blockSize := uint16(DefaultBlockSize)
	ranges := codec.Chunks(int64(len(data)), blockSize)
	blocks := make([]meta.FileBlock, 0, len(ranges))

	for _, rng := range ranges {
		plaintext := data[rng[0]:rng[1]]
		hash, key, blob, err := codec.Encode(plaintext)
		if err != nil {
			return err
		}
		if err := c.router.Set(ctx, hash[:], blob); err != nil {
			return errors.Wrapf(err, "uploading block for %q", name)
		}
		if err := c.cache.Put(hash, plaintext); err != nil {
			return errors.Wrapf(err, "caching block for %q", name)
		}
		blocks = append(blocks, meta.FileBlock{Hash: hash, Key: key})
	}

	inode, err := c.db.CreateFile(parent, name, uint64(hdr.Size), blockSize, blocks)
	if err != nil {
		return err
	}
	return c.setACI(inode, hdr)
}

// setACI records an ACI entry from a tar header's owner/mode bits and
// tags inode with it (spec.md §3/§4.5). ACI keys are derived from the
// (uid, gid, mode) tuple itself rather than minted fresh per inode, so
// the many files in a typical image layer that share the same permission
// bits collapse onto one ACI record instead of one per inode.
func (c *Converter) setACI(inode uint64, hdr *tar.Header) error {
	return c.setACIValues(inode, hdr.Uid, hdr.Gid, int(hdr.Mode))
}

func (c *Converter) setACIValues(inode uint64, uid, gid, mode int) error {
	perm := uint32(mode) & 0o7777
	key := fmt.Sprintf("%d:%d:%04o", uid, gid, perm)
	if err := c.db.SetACI(key, int64(uid), int64(gid), "", "", perm); err != nil {
		return errors.Wrapf(err, "recording aci %q", key)
	}
	return c.db.SetNodeACIKey(inode, key)
}
