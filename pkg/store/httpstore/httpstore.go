// Package httpstore implements a read-only store.Store that fetches blobs
// over plain HTTP(S) GET, one blob per hex-encoded key appended to the
// backend's base URL. It is grounded on backend/http/http.go, trimmed from
// rclone's full remote-filesystem semantics (directory listing, HEAD
// probing, redirect handling) down to the single GET-by-name operation this
// spec needs; backend/http/http.go's Put/Update both return errors for the
// same reason (fs.ErrorPermissionDenied there, store.ErrUnavailable here).
package httpstore

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/threefoldtech/rfs/pkg/store"
)

func init() {
	store.Register("http", func(ctx context.Context, rawURL string) (store.Store, error) {
		return New(rawURL)
	})
	store.Register("https", func(ctx context.Context, rawURL string) (store.Store, error) {
		return New(rawURL)
	})
}

// Store is a read-only store.Store serving blobs from a static HTTP(S)
// file server, one file per hex key.
type Store struct {
	base   *url.URL
	url    string
	client *http.Client
}

// New validates rawURL and returns a Store that will GET <rawURL>/<hexkey>
// to satisfy reads.
func New(rawURL string) (*Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing http store url %q", rawURL)
	}
	return &Store{base: u, url: rawURL, client: http.DefaultClient}, nil
}

func (s *Store) keyURL(key []byte) string {
	base := strings.TrimRight(s.base.String(), "/")
	return base + "/" + hex.EncodeToString(key)
}

// Get implements store.Store by issuing a GET for the key's hex name.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keyURL(key), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(store.ErrUnavailable, err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, store.ErrKeyNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errors.Wrapf(store.ErrUnavailable, "unexpected status %d", res.StatusCode)
	}

	blob, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(store.ErrUnavailable, err.Error())
	}
	if len(blob) == 0 {
		return nil, store.ErrInvalidBlob
	}
	return blob, nil
}

// Set always fails: the http backend is read-only, matching the spec's
// "http(s):// backends serve existing artifacts; they are never a write
// target" (spec.md §4.2).
func (s *Store) Set(ctx context.Context, key []byte, blob []byte) error {
	return errors.Wrap(store.ErrUnavailable, "http store is read-only")
}

// Routes implements store.Store.
func (s *Store) Routes() []store.Route {
	return []store.Route{{Start: 0x00, End: 0xFF, URL: s.url}}
}
