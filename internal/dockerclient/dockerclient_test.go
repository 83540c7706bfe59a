package dockerclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUnixServer starts an httptest-style server listening on a UNIX socket
// so Client's custom DialContext can be exercised end to end.
func newUnixServer(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "docker.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()

	return New(sock), srv.Close
}

func TestPullSendsFromImageQueryAndDrainsProgress(t *testing.T) {
	var gotPath, gotQuery string
	client, closeFn := newUnixServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("fromImage")
		w.Write([]byte(`{"status":"Pulling"}`))
	}))
	defer closeFn()

	err := client.Pull(context.Background(), "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)
	assert.Equal(t, "/images/create", gotPath)
	assert.Equal(t, "docker.io/library/alpine:latest", gotQuery)
}

func TestPullSetsRegistryAuthHeaderWhenCredentialsGiven(t *testing.T) {
	var gotHeader string
	client, closeFn := newUnixServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Registry-Auth")
	}))
	defer closeFn()

	err := client.Pull(context.Background(), "alpine:latest", &Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.NotEmpty(t, gotHeader)
}

func TestDoReturnsErrorOnNon2xxStatus(t *testing.T) {
	client, closeFn := newUnixServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such image"}`))
	}))
	defer closeFn()

	err := client.Pull(context.Background(), "missing:latest", nil)
	assert.Error(t, err)
}

func TestSaveStreamsResponseBody(t *testing.T) {
	client, closeFn := newUnixServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/alpine:latest/get", r.URL.Path)
		w.Write([]byte("tar-bytes"))
	}))
	defer closeFn()

	rc, err := client.Save(context.Background(), "alpine:latest")
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "tar-bytes", string(buf[:n]))
}
