package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Factory constructs a Store from its URL. Each backend registers one under
// its scheme via Register, mirroring rclone's per-backend fs.Register
// call — generalized here to a plain map since the store contract has no
// per-backend config surface beyond the URL itself.
type Factory func(ctx context.Context, rawURL string) (Store, error)

var factories = map[string]Factory{}

// Register associates scheme (e.g. "zdb", "http", "dir", "s3") with a
// Factory. Backend packages call this from an init() func, the same way
// rclone backends call fs.Register in their package init.
func Register(scheme string, f Factory) {
	factories[scheme] = f
}

// Make constructs a Store for rawURL by dispatching on its scheme (spec.md
// §4.2 "Backends are instantiated by a factory keyed on URL scheme").
func Make(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing store url %q", rawURL)
	}
	f, ok := factories[u.Scheme]
	if !ok {
		// fall back to the non-TLS scheme (e.g. "https" -> "http") for a
		// backend that registered only its plain scheme
		f, ok = factories[strings.TrimSuffix(u.Scheme, "s")]
		if !ok {
			return nil, errors.Errorf("no store backend registered for scheme %q", u.Scheme)
		}
	}
	return f(ctx, rawURL)
}

// ParseRouteSpec parses a single "--store" flag value in the grammar
// "[<lo>-<hi>=]<url>" (spec.md §6). An absent range means the full
// [0,255] catch-all range. lo/hi are hex byte values.
func ParseRouteSpec(spec string) (start, end uint8, rawURL string, err error) {
	eq := strings.Index(spec, "=")
	if eq == -1 {
		return 0x00, 0xFF, spec, nil
	}

	prefix := spec[:eq]
	rest := spec[eq+1:]

	// A prefix is only a range if it parses as "HEX-HEX"; otherwise it's
	// part of the URL itself (e.g. a scheme containing "=" is not
	// supported, but some URLs legitimately carry "=" in the query/path
	// well past the first "=", so restrict detection to "dash-delimited
	// hex pair immediately before the first equals").
	dash := strings.Index(prefix, "-")
	if dash == -1 {
		return 0x00, 0xFF, spec, nil
	}

	loHex, hiHex := prefix[:dash], prefix[dash+1:]
	lo, errLo := strconv.ParseUint(loHex, 16, 8)
	hi, errHi := strconv.ParseUint(hiHex, 16, 8)
	if errLo != nil || errHi != nil {
		return 0x00, 0xFF, spec, nil
	}

	return uint8(lo), uint8(hi), rest, nil
}

// BuildRouter constructs a Router from a list of raw "--store" flag values,
// parsing each with ParseRouteSpec and instantiating its backend via Make.
// This is the Go equivalent of the Rust converter's store::parse_router.
func BuildRouter(ctx context.Context, specs []string) (*Router, error) {
	r := NewRouter()
	for _, spec := range specs {
		start, end, rawURL, err := ParseRouteSpec(spec)
		if err != nil {
			return nil, err
		}
		s, err := Make(ctx, rawURL)
		if err != nil {
			return nil, errors.Wrapf(err, "initializing store %q", rawURL)
		}
		r.Add(start, end, s)
	}
	return r, nil
}

// BuildRouterFromRoutes reconstructs a Router from routes recovered from a
// metadata artifact at mount time (spec.md "control flow on mount").
func BuildRouterFromRoutes(ctx context.Context, routes []Route) (*Router, error) {
	r := NewRouter()
	for _, rt := range routes {
		s, err := Make(ctx, rt.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "initializing store %q", rt.URL)
		}
		r.Add(rt.Start, rt.End, s)
	}
	return r, nil
}

// FormatRouteSpec is the inverse of ParseRouteSpec, used by tests and by
// any tooling that needs to print a route back out in "--store" form.
func FormatRouteSpec(r Route) string {
	if r.Start == 0x00 && r.End == 0xFF {
		return r.URL
	}
	return fmt.Sprintf("%02x-%02x=%s", r.Start, r.End, r.URL)
}
