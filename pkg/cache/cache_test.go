package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threefoldtech/rfs/pkg/codec"
	"github.com/threefoldtech/rfs/pkg/store"
)

type countingStore struct {
	mu    sync.Mutex
	calls int32
	blob  []byte
	err   error
}

func (s *countingStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.blob, nil
}

func (s *countingStore) Set(ctx context.Context, key []byte, blob []byte) error { return nil }
func (s *countingStore) Routes() []store.Route                                 { return nil }

// encodedPayload returns the (hash, key, ciphertext) triple for plaintext,
// as a backing store would hold it.
func encodedPayload(t *testing.T, plaintext string) (codec.Hash, codec.Key, []byte) {
	t.Helper()
	hash, key, blob, err := codec.Encode([]byte(plaintext))
	require.NoError(t, err)
	return hash, key, blob
}

func TestGetFetchesFromBackingOnMiss(t *testing.T) {
	hash, key, blob := encodedPayload(t, "payload")
	backing := &countingStore{blob: blob}
	c, err := New(t.TempDir(), backing)
	require.NoError(t, err)

	got, err := c.Get(context.Background(), hash, key)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.EqualValues(t, 1, backing.calls)
}

func TestGetServesFromLocalCacheOnSecondCall(t *testing.T) {
	hash, key, blob := encodedPayload(t, "payload")
	backing := &countingStore{blob: blob}
	c, err := New(t.TempDir(), backing)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), hash, key)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), hash, key)
	require.NoError(t, err)

	assert.EqualValues(t, 1, backing.calls)
}

func TestConcurrentMissesCoalesceIntoOneFetch(t *testing.T) {
	hash, key, blob := encodedPayload(t, "payload")
	backing := &countingStore{blob: blob}
	c, err := New(t.TempDir(), backing)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), hash, key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, backing.calls, int32(2))
}

func TestPutWritesWithoutBackingCall(t *testing.T) {
	backing := &countingStore{}
	c, err := New(t.TempDir(), backing)
	require.NoError(t, err)

	var hash codec.Hash
	var key codec.Key

	require.NoError(t, c.Put(hash, []byte("direct")))
	assert.True(t, c.Has(hash))
	assert.EqualValues(t, 0, backing.calls)

	got, err := c.Get(context.Background(), hash, key)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(got))
}

func TestGetDoesNotCacheBlobThatFailsDecoding(t *testing.T) {
	hash, key, _ := encodedPayload(t, "payload")
	backing := &countingStore{blob: []byte("not a valid secretbox blob at all")}
	c, err := New(t.TempDir(), backing)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), hash, key)
	assert.Error(t, err)
	assert.False(t, c.Has(hash))

	// A later, valid fetch for the same hash must still succeed: the
	// earlier corrupt blob was never persisted.
	_, realKey, realBlob, err := codec.Encode([]byte("payload"))
	require.NoError(t, err)
	backing.blob = realBlob

	got, err := c.Get(context.Background(), hash, realKey)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}
