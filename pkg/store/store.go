// Package store defines the content-addressed key/blob backend contract
// (spec.md §4.2) and the byte-range router that multiplexes across a set of
// backends (spec.md §4.3). It is modeled on rclone's backend registry
// pattern (each backend/*.go exposes a constructor keyed by URL scheme)
// generalized from rclone's "remote" abstraction down to the simpler
// get/set/routes contract this spec needs.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// Sentinel errors from the store/router layer (spec.md §7). Callers compare
// with errors.Is; wrapping with github.com/pkg/errors preserves context
// while keeping the sentinel comparable.
var (
	// ErrKeyNotFound means the key is absent from this particular store.
	// Recoverable at the router: try the next candidate.
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidBlob means the stored blob was empty or otherwise not a
	// valid blob for this key. Not recoverable; indicates corruption.
	ErrInvalidBlob = errors.New("invalid blob")
	// ErrInvalidKey means the key itself is malformed (wrong length). A
	// caller bug, propagated as-is.
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnavailable means the backend could not be reached. Treated as
	// "try next" at the router, same as ErrKeyNotFound.
	ErrUnavailable = errors.New("store unavailable")
)

// KeyLen is the fixed key length used to address blocks (matches
// codec.HashSize).
const KeyLen = 16

// Route is an inclusive byte range [Start, End] over the first byte of a
// block hash, plus the store URL that answers for it (spec.md §3). A route
// whose range is [0,255] is catch-all.
type Route struct {
	Start uint8
	End   uint8
	URL   string
}

// Contains reports whether b falls inside the route's byte range.
func (r Route) Contains(b byte) bool {
	return b >= r.Start && b <= r.End
}

// Store is the contract every backend (zdb, http, dir, s3) implements
// (spec.md §4.2).
type Store interface {
	// Get returns the stored blob for key, or ErrKeyNotFound if absent.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Set stores blob under key. Implementations must be idempotent: the
	// same key may be written multiple times with the same contents.
	Set(ctx context.Context, key []byte, blob []byte) error
	// Routes returns the route descriptors this store answers for, used to
	// round-trip the route table into artifacts.
	Routes() []Route
}

// ValidateKey checks the fixed-length key contract shared by all backends.
func ValidateKey(key []byte) error {
	if len(key) != KeyLen {
		return errors.Wrapf(ErrInvalidKey, "want %d bytes, got %d", KeyLen, len(key))
	}
	return nil
}
