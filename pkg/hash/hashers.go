package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// HashFunc fingerprints a key down to 32 bits. Only its low bits are ever
// consulted, so the quality of its low-order bit distribution matters more
// than its full-width avalanche behavior.
type HashFunc func(key int64) uint32

// KeyComparator decides whether two keys are equal. The index only ever asks
// for equality, never ordering.
type KeyComparator func(a, b int64) bool

// DefaultComparator compares keys by native int64 equality.
func DefaultComparator(a, b int64) bool {
	return a == b
}

// keyBytes serializes a key the same way HashBucket entries do, so that the
// fingerprint of a key is stable across process restarts.
func keyBytes(key int64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, key)
	return buf[:n]
}

// getHash uses the given 64-bit hasher to compute a key's hash, bounded by size.
func getHash(hasher func(b []byte) uint64, key int64, size int64) uint {
	hash := int64(hasher(keyBytes(key)))
	if hash < 0 {
		hash *= -1
	}
	return uint(hash % size)
}

// XxHasher returns the xxHash hash of the given key, bounded by size.
func XxHasher(key int64, size int64) uint {
	return getHash(xxhash.Sum64, key, size)
}

// MurmurHasher returns the MurmurHash3 hash of the given key, bounded by size.
func MurmurHasher(key int64, size int64) uint {
	return getHash(murmur3.Sum64, key, size)
}

// XxFingerprint truncates the xxHash of key to 32 bits.
func XxFingerprint(key int64) uint32 {
	return uint32(xxhash.Sum64(keyBytes(key)))
}

// MurmurFingerprint truncates the MurmurHash3 of key to 32 bits. It exists
// alongside XxFingerprint so a HashTable can be constructed with either hash
// family, matching the pluggable "hash function" collaborator named in the
// index's external interface.
func MurmurFingerprint(key int64) uint32 {
	return uint32(murmur3.Sum64(keyBytes(key)))
}

// DefaultHashFunc is used by NewHashTable/OpenTable when no HashFunc is supplied.
var DefaultHashFunc HashFunc = XxFingerprint

// Hasher returns the directory index that key routes to at the given depth:
// the low `depth` bits of its fingerprint under DefaultHashFunc.
func Hasher(key int64, depth int64) int64 {
	if depth <= 0 {
		return 0
	}
	mask := (int64(1) << depth) - 1
	return int64(DefaultHashFunc(key)) & mask
}
