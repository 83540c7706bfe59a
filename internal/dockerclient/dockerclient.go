// Package dockerclient is a minimal Docker Engine API client: enough to
// pull an image and export its filesystem layers as a tar stream. No
// corpus example repo imports a Docker SDK directly (rclone's go.mod only
// carries github.com/docker/go-units and opencontainers/runtime-spec as
// indirect, transitively-pulled dependencies, which doesn't meet this
// module's own bar for grounding a dependency choice), so this talks to
// the daemon the way every Docker SDK does underneath: plain HTTP over the
// daemon's UNIX socket. The *http.Client-with-a-custom-Transport shape
// mirrows rclone's backend/http (`fshttp.NewClient`) — here the only
// customization the transport needs is dialing a Unix socket instead of
// TCP.
package dockerclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Credentials mirrors the registry auth fields the original Rust
// converter threads through from its CLI flags (bollard's
// DockerCredentials).
type Credentials struct {
	Username      string
	Password      string
	Auth          string
	Email         string
	ServerAddress string
	IdentityToken string
	RegistryToken string
}

// encode renders credentials as the base64url-encoded JSON payload the
// Engine API expects in its X-Registry-Auth header.
func (c Credentials) encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Client talks to a single Docker daemon over its UNIX socket.
type Client struct {
	http *http.Client
}

// New returns a Client dialing the daemon at socketPath (typically
// "/var/run/docker.sock").
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// do issues a request against the Engine API. The host in the URL is
// ignored by the unix-socket dialer above, so "docker" is just a
// placeholder to keep net/url happy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header) (*http.Response, error) {
	u := url.URL{Scheme: "http", Host: "docker", Path: path, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "calling docker engine API %s %s", method, path)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("docker engine API %s %s: %s: %s", method, path, resp.Status, string(body))
	}
	return resp, nil
}

// Pull pulls image (e.g. "docker.io/library/alpine:latest") from its
// registry, draining the streamed progress response the way the Engine
// API's /images/create always returns one regardless of whether the
// caller cares about progress.
func (c *Client) Pull(ctx context.Context, image string, creds *Credentials) error {
	query := url.Values{"fromImage": {image}}

	headers := http.Header{}
	if creds != nil {
		encoded, err := creds.encode()
		if err != nil {
			return errors.Wrap(err, "encoding registry credentials")
		}
		headers.Set("X-Registry-Auth", encoded)
	}

	resp, err := c.do(ctx, http.MethodPost, "/images/create", query, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The response body is a stream of JSON progress objects; this client
	// has no progress UI to feed, so just drain it to completion.
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// Save streams image's filesystem as a tar archive (manifest.json plus one
// directory per layer), the same payload `docker save` produces, via
// GET /images/{name}/get.
func (c *Client) Save(ctx context.Context, image string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/images/%s/get", url.PathEscape(image)), nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// RemoveImage removes a previously pulled image from the daemon's local
// image store. The converter in cmd/docker2fl does not call it.
func (c *Client) RemoveImage(ctx context.Context, image string) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/images/%s", url.PathEscape(image)), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
