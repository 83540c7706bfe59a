package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// entry pairs an inclusive byte range with the constructed backend that
// serves it — the router's "ordered collection of (start, end, store) triples"
// from spec.md §4.3.
type entry struct {
	start uint8
	end   uint8
	store Store
}

// Router dispatches Get/Set to member stores by the first byte of the key,
// trying candidates in insertion order for reads and fanning out to all
// candidates for writes (spec.md §4.3).
type Router struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRouter returns an empty router; use Add to register backends.
func NewRouter() *Router {
	return &Router{}
}

// Add registers store to answer for the inclusive byte range [start, end].
func (r *Router) Add(start, end uint8, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{start: start, end: end, store: s})
}

// candidates returns the member stores whose range contains b, in
// insertion order.
func (r *Router) candidates(b byte) []Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Store
	for _, e := range r.entries {
		if b >= e.start && b <= e.end {
			out = append(out, e.store)
		}
	}
	return out
}

// Get tries every store whose range covers key's first byte, in order. The
// first success wins. ErrKeyNotFound and transport errors are both "try
// next"; once every candidate is exhausted, Get surfaces the last
// non-ErrKeyNotFound error seen, or ErrKeyNotFound if that was the only kind
// (spec.md §4.3, §9 open question resolved as "try all, report last
// non-KeyNotFound").
func (r *Router) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	candidates := r.candidates(key[0])
	if len(candidates) == 0 {
		return nil, ErrKeyNotFound
	}

	var lastErr error = ErrKeyNotFound
	for _, s := range candidates {
		blob, err := s.Get(ctx, key)
		if err == nil {
			return blob, nil
		}
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		lastErr = err
	}
	return nil, lastErr
}

// Set writes to every store whose range covers key's first byte and
// succeeds only if all of them do (fan-out replication, spec.md §4.3). If
// no route covers the key, Set fails with ErrKeyNotFound rather than
// silently discarding the write.
func (r *Router) Set(ctx context.Context, key []byte, blob []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	candidates := r.candidates(key[0])
	if len(candidates) == 0 {
		return ErrKeyNotFound
	}

	for _, s := range candidates {
		if err := s.Set(ctx, key, blob); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns one Route per registered entry, built from the byte range
// it was Add-ed with rather than the member store's own Routes() (every
// backend reports its own range as the [0,255] catch-all, since a backend
// has no idea which slice of the key space it was assigned at the router
// level). The URL is taken from the member store's Routes()[0], the one
// part of that call still meaningful here. This is what lets a route table
// round-trip through an artifact without losing the byte-range partition a
// sharded "--store" configuration relies on (spec.md §4.3, §9).
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.entries))
	for _, e := range r.entries {
		var url string
		if memberRoutes := e.store.Routes(); len(memberRoutes) > 0 {
			url = memberRoutes[0].URL
		}
		out = append(out, Route{Start: e.start, End: e.end, URL: url})
	}
	return out
}
