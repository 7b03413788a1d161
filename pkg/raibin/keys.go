package raibin

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// KeyDictionary maps object keys to dense keyIds in first-seen order.
//
// Intern is not safe for concurrent use. Once interning is finished the
// dictionary may be read (Resolve, Lookup) from any number of goroutines.
type KeyDictionary struct {
	keys []string
	ids  map[string]uint32
}

// NewKeyDictionary returns an empty dictionary.
func NewKeyDictionary() *KeyDictionary {
	return &KeyDictionary{ids: make(map[string]uint32)}
}

// Intern returns the keyId for key, assigning the next id on first sight.
func (d *KeyDictionary) Intern(key string) uint32 {
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := uint32(len(d.keys))
	d.keys = append(d.keys, key)
	d.ids[key] = id
	return id
}

// Lookup returns the keyId of key without assigning one.
func (d *KeyDictionary) Lookup(key string) (uint32, bool) {
	id, ok := d.ids[key]
	return id, ok
}

// Resolve returns the key string for id.
func (d *KeyDictionary) Resolve(id uint32) (string, error) {
	if uint64(id) >= uint64(len(d.keys)) {
		return "", fmt.Errorf("%w: %d >= %d", ErrOutOfRangeKeyID, id, len(d.keys))
	}
	return d.keys[id], nil
}

// Len returns the number of keys.
func (d *KeyDictionary) Len() int {
	return len(d.keys)
}

// Keys returns the key strings indexed by keyId. The slice must not be modified.
func (d *KeyDictionary) Keys() []string {
	return d.keys
}

// appendKeyTable encodes the KeyStringTable section.
func (d *KeyDictionary) appendKeyTable(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(d.keys)))
	for _, k := range d.keys {
		if uint64(len(k)) > math.MaxUint32 {
			return dst, fmt.Errorf("%w: key of %d bytes", ErrUnrepresentable, len(k))
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(k)))
		dst = append(dst, k...)
	}
	return dst, nil
}

// decodeKeyTable parses a KeyStringTable section. Keys must be unique
// valid UTF-8.
func decodeKeyTable(buf []byte, base int) (*KeyDictionary, error) {
	c := newCursor("keys", buf, base)
	n, err := c.count(4, "key count")
	if err != nil {
		return nil, err
	}
	d := &KeyDictionary{
		keys: make([]string, 0, n),
		ids:  make(map[string]uint32, n),
	}
	for i := 0; i < n; i++ {
		size, err := c.u32("key length")
		if err != nil {
			return nil, err
		}
		raw, err := c.bytes(int(size), "key bytes")
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, c.errorf(ErrInvalidUTF8, "key %d", i)
		}
		key := string(raw)
		if _, dup := d.ids[key]; dup {
			return nil, c.errorf(ErrCorruptContainer, "duplicate key %q", key)
		}
		d.ids[key] = uint32(i)
		d.keys = append(d.keys, key)
	}
	if err := c.expectEnd("key table"); err != nil {
		return nil, err
	}
	return d, nil
}
