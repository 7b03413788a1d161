package raibin

import (
	"fmt"
	"hash/fnv"

	"github.com/relab/bbhash"
)

// KeyIndex resolves key strings to keyIds through a minimal perfect hash.
// Every hit is verified against a fingerprint and the key itself, so
// strings outside the table never resolve.
//
// KeyIndex is immutable and safe for concurrent use.
type KeyIndex struct {
	keys         []string
	mph          *bbhash.BBHash2
	fingerprints []uint64 // indexed by MPHF position
	ids          []uint32 // keyId at each MPHF position
}

// NewKeyIndex builds an index over keys, where keys[i] has keyId i.
func NewKeyIndex(keys []string) (*KeyIndex, error) {
	x := &KeyIndex{keys: keys}
	if len(keys) == 0 {
		return x, nil
	}

	hashes := make([]uint64, len(keys))
	for i, k := range keys {
		hashes[i] = hashKey(k)
	}

	// gamma=2.0 as a space/time tradeoff
	mph, err := bbhash.New(hashes, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build key MPHF: %w", err)
	}

	x.mph = mph
	x.fingerprints = make([]uint64, len(keys))
	x.ids = make([]uint32, len(keys))
	for i, k := range keys {
		// BBHash returns 1-indexed values
		pos := mph.Find(hashes[i])
		if pos == 0 || pos > uint64(len(keys)) {
			return nil, fmt.Errorf("key MPHF lookup failed for %q", k)
		}
		x.fingerprints[pos-1] = keyFingerprint(k)
		x.ids[pos-1] = uint32(i)
	}
	return x, nil
}

// Lookup returns the keyId of key.
func (x *KeyIndex) Lookup(key string) (uint32, bool) {
	if x.mph == nil {
		return 0, false
	}
	pos := x.mph.Find(hashKey(key))
	if pos == 0 || pos > uint64(len(x.ids)) {
		return 0, false
	}
	pos--
	if x.fingerprints[pos] != keyFingerprint(key) {
		return 0, false
	}
	id := x.ids[pos]
	if x.keys[id] != key {
		return 0, false
	}
	return id, true
}

// Len returns the number of indexed keys.
func (x *KeyIndex) Len() int {
	return len(x.keys)
}

func hashKey(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// keyFingerprint uses a different hash than hashKey to reduce collisions.
func keyFingerprint(s string) uint64 {
	h := fnv.New64()
	h.Write([]byte(s))
	return h.Sum64()
}
