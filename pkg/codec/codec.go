// Package codec implements the fixed-size block chunking, content hashing
// and per-block symmetric encryption used to turn a file's byte stream into
// the FileBlock list stored in the metadata database.
//
// The framing mirrors backend/crypt's use of nacl/secretbox for authenticated
// block encryption, but where crypt derives one file-wide key from a
// password, codec derives a fresh key per block from the plaintext itself so
// that identical plaintext blocks always produce identical ciphertext blobs
// (content-addressed dedup across unrelated files and images).
package codec

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

// HashSize and KeySize are fixed by the on-disk FileBlock format: exactly
// 16 bytes each (spec.md §3).
const (
	HashSize = 16
	KeySize  = 16

	nonceSize = 24
)

// Hash is the first 16 bytes of the plaintext's content address.
type Hash [HashSize]byte

// Key is the per-block symmetric encryption key.
type Key [KeySize]byte

// ErrInvalidBlob is returned whenever decryption or hash verification fails,
// signalling corruption rather than a transient failure (spec.md §4.1, §7).
var ErrInvalidBlob = errors.New("invalid blob")

// Encode encrypts and hashes a single already-chunked plaintext block.
//
// It is deterministic: the same plaintext always yields the same (hash, key,
// ciphertext) triple, which is what lets two unrelated files (or two
// container image layers) that happen to share a block dedup onto one
// stored blob. The returned blob is self-contained (nonce || sealed data);
// only hash and key need to travel alongside it in the FileBlock record.
func Encode(plaintext []byte) (hash Hash, key Key, blob []byte, err error) {
	full := blake2b.Sum512(plaintext)
	copy(hash[:], full[:HashSize])
	copy(key[:], full[HashSize:HashSize+KeySize])

	secretKey := deriveSecretboxKey(key)
	nonce := deriveNonce(full)

	sealed := secretbox.Seal(nil, plaintext, &nonce, &secretKey)
	blob = make([]byte, 0, nonceSize+len(sealed))
	blob = append(blob, nonce[:]...)
	blob = append(blob, sealed...)
	return hash, key, blob, nil
}

// Decode reverses Encode: it decrypts blob with key, then verifies that the
// recomputed plaintext hash matches hash. Any authentication or hash
// mismatch is reported as ErrInvalidBlob (spec.md §4.1).
func Decode(hash Hash, key Key, blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+secretbox.Overhead {
		return nil, ErrInvalidBlob
	}

	secretKey := deriveSecretboxKey(key)

	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])

	plaintext, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &secretKey)
	if !ok {
		return nil, ErrInvalidBlob
	}

	full := blake2b.Sum512(plaintext)
	var gotHash Hash
	copy(gotHash[:], full[:HashSize])
	if gotHash != hash {
		return nil, ErrInvalidBlob
	}
	return plaintext, nil
}

func deriveSecretboxKey(key Key) (secretKey [32]byte) {
	digest := blake2b.Sum256(append([]byte("rfs-block-key:"), key[:]...))
	copy(secretKey[:], digest[:])
	return secretKey
}

func deriveNonce(plaintextDigest [64]byte) (nonce [nonceSize]byte) {
	digest := blake2b.Sum256(append([]byte("rfs-block-nonce:"), plaintextDigest[:]...))
	copy(nonce[:], digest[:nonceSize])
	return nonce
}

// Chunks splits size bytes (governed by blockSize) into the half-open byte
// ranges each FileBlock covers (spec.md §3, §8 invariant 4): block i covers
// [i*blockSize, min((i+1)*blockSize, size)). An empty file yields no ranges.
func Chunks(size int64, blockSize uint16) [][2]int64 {
	if size <= 0 || blockSize == 0 {
		return nil
	}
	bs := int64(blockSize)
	n := (size + bs - 1) / bs
	ranges := make([][2]int64, 0, n)
	for i := int64(0); i < n; i++ {
		start := i * bs
		end := start + bs
		if end > size {
			end = size
		}
		ranges = append(ranges, [2]int64{start, end})
	}
	return ranges
}
