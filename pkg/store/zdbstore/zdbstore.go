// Package zdbstore implements the store.Store contract over 0-db ("zdb"), a
// Redis-wire-protocol key/blob database. It is grounded on the original
// converter's src/store/zdb.rs, which speaks to zdb through bb8_redis; the Go
// equivalent is github.com/go-redis/redis/v8, the same client the pack's
// juicefs manifest depends on for its own Redis-backed metadata engine.
package zdbstore

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/threefoldtech/rfs/pkg/store"
)

func init() {
	store.Register("zdb", func(ctx context.Context, rawURL string) (store.Store, error) {
		return New(rawURL)
	})
}

// Store is a store.Store backed by a single zdb namespace reached over
// Redis's RESP protocol.
type Store struct {
	url    string
	client *redis.Client
}

// connectionInfo mirrors the Rust get_connection_info: a zdb:// URL with a
// host selects TCP on the given (or default 9900) port, with the last path
// segment naming a namespace; a zdb:// URL with no host is a Unix socket
// path and carries no namespace.
type connectionInfo struct {
	network  string // "tcp" or "unix"
	addr     string
	username string
	password string
	namespace string
}

const defaultPort = "9900"

func parseConnectionInfo(rawURL string) (connectionInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return connectionInfo{}, errors.Wrapf(err, "parsing zdb url %q", rawURL)
	}

	var info connectionInfo
	if u.Host != "" {
		host := u.Hostname()
		port := u.Port()
		if port == "" {
			port = defaultPort
		}
		info.network = "tcp"
		info.addr = host + ":" + port

		if seg := strings.Trim(u.Path, "/"); seg != "" {
			parts := strings.Split(seg, "/")
			info.namespace = parts[len(parts)-1]
		}
	} else {
		info.network = "unix"
		info.addr = u.Path
	}

	if u.User != nil {
		info.username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			info.password = pw
		}
	}
	return info, nil
}

// New dials a zdb backend described by rawURL (scheme "zdb").
//
// Namespace selection happens out of band from the connection pool's normal
// AUTH handshake: zdb speaks Redis's SELECT command with the namespace name
// (optionally followed by its own password) to switch a connection onto a
// non-default namespace, the same sequence WithNamespace::on_acquire issues
// per pooled connection in the Rust source. go-redis re-issues that exact
// SELECT on every new pooled connection via OnConnect, which is the
// connection-pool-customizer equivalent of bb8's CustomizeConnection.
func New(rawURL string) (*Store, error) {
	info, err := parseConnectionInfo(rawURL)
	if err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Network:  info.network,
		Addr:     info.addr,
		Username: info.username,
		Password: info.password,
		PoolSize: 20,
	}

	if info.namespace != "" && info.namespace != "default" {
		ns, pw := info.namespace, info.password
		opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
			args := []interface{}{"SELECT", ns}
			if pw != "" {
				args = append(args, pw)
			}
			return cn.Do(ctx, args...).Err()
		}
	}

	return &Store{url: rawURL, client: redis.NewClient(opts)}, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	blob, err := s.client.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
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

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key []byte, blob []byte) error {
	if err := s.client.Set(ctx, string(key), blob, 0).Err(); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return nil
}

// Routes implements store.Store.
func (s *Store) Routes() []store.Route {
	return []store.Route{{Start: 0x00, End: 0xFF, URL: s.url}}
}
