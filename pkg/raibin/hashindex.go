package raibin

import "sort"

// hashIndex is a sorted array of (hash, id) slots. Entries with the same
// hash form a contiguous run kept in insertion order, so callers probe
// linearly only within a run and first-inserted wins ties.
type hashIndex struct {
	slots []hashSlot
}

type hashSlot struct {
	hash uint64
	id   uint32
}

// insert places id at the end of the run for hash.
func (x *hashIndex) insert(hash uint64, id uint32) {
	i := sort.Search(len(x.slots), func(i int) bool { return x.slots[i].hash > hash })
	x.slots = append(x.slots, hashSlot{})
	copy(x.slots[i+1:], x.slots[i:])
	x.slots[i] = hashSlot{hash: hash, id: id}
}

// run returns the slots whose hash equals hash.
func (x *hashIndex) run(hash uint64) []hashSlot {
	lo := sort.Search(len(x.slots), func(i int) bool { return x.slots[i].hash >= hash })
	hi := lo
	for hi < len(x.slots) && x.slots[hi].hash == hash {
		hi++
	}
	return x.slots[lo:hi]
}

// FNV-1a, 64-bit.
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

type fnv64a uint64

func newFNV64a() fnv64a { return fnvOffset64 }

func (h *fnv64a) addByte(b byte) {
	*h ^= fnv64a(b)
	*h *= fnvPrime64
}

func (h *fnv64a) addU32(v uint32) {
	h.addByte(byte(v))
	h.addByte(byte(v >> 8))
	h.addByte(byte(v >> 16))
	h.addByte(byte(v >> 24))
}

// hashKeyIDs hashes an ordered list of keyIds.
func hashKeyIDs(ids []uint32) uint64 {
	h := newFNV64a()
	for _, id := range ids {
		h.addU32(id)
	}
	return uint64(h)
}

// hashFields hashes an ordered (keyId, valueType) sequence.
func hashFields(fields []Field) uint64 {
	h := newFNV64a()
	for _, f := range fields {
		h.addU32(f.KeyID)
		h.addByte(byte(f.Type))
	}
	return uint64(h)
}
