package raibin

import (
	"encoding/binary"
	"fmt"
)

// Field is one entry of a LayoutDefinition.
type Field struct {
	KeyID uint32
	Type  ValueType
}

// LayoutDefinition is the ordered field list shared by the records of a
// LayoutGroup. Field order is the column order.
type LayoutDefinition struct {
	Fields []Field
}

// IsScalar reports whether the layout describes non-object items.
func (d *LayoutDefinition) IsScalar() bool {
	return len(d.Fields) == 1 && d.Fields[0].KeyID == ScalarKeyID
}

func (d *LayoutDefinition) equal(fields []Field) bool {
	if len(d.Fields) != len(fields) {
		return false
	}
	for i := range fields {
		if d.Fields[i] != fields[i] {
			return false
		}
	}
	return true
}

// LayoutTable holds deduplicated layout definitions indexed by layoutId.
//
// Register is not safe for concurrent use; Lookup is once registration is done.
type LayoutTable struct {
	defs  []LayoutDefinition
	index hashIndex
}

// NewLayoutTable returns an empty table.
func NewLayoutTable() *LayoutTable {
	return &LayoutTable{}
}

// Register returns the layoutId of the field sequence, adding it if no
// structurally identical definition exists.
func (t *LayoutTable) Register(fields []Field) uint32 {
	h := hashFields(fields)
	if id, ok := t.find(h, fields); ok {
		return id
	}
	id := uint32(len(t.defs))
	t.defs = append(t.defs, LayoutDefinition{Fields: append([]Field(nil), fields...)})
	t.index.insert(h, id)
	return id
}

func (t *LayoutTable) find(h uint64, fields []Field) (uint32, bool) {
	for _, s := range t.index.run(h) {
		if t.defs[s.id].equal(fields) {
			return s.id, true
		}
	}
	return 0, false
}

// Lookup returns the definition for id.
func (t *LayoutTable) Lookup(id uint32) (*LayoutDefinition, error) {
	if uint64(id) >= uint64(len(t.defs)) {
		return nil, fmt.Errorf("%w: %d >= %d", ErrUnknownLayout, id, len(t.defs))
	}
	return &t.defs[id], nil
}

// Len returns the number of definitions.
func (t *LayoutTable) Len() int {
	return len(t.defs)
}

// Definitions returns all definitions indexed by layoutId.
func (t *LayoutTable) Definitions() []LayoutDefinition {
	return t.defs
}

func (t *LayoutTable) appendTable(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(t.defs)))
	for _, d := range t.defs {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(d.Fields)))
		for _, f := range d.Fields {
			dst = binary.LittleEndian.AppendUint32(dst, f.KeyID)
			dst = append(dst, byte(f.Type))
		}
	}
	return dst
}

// decodeLayoutTable parses a LayoutDefinitionTable section, validating
// every keyId and valueType tag and the deduplication invariant.
func decodeLayoutTable(buf []byte, base int, keys *KeyDictionary) (*LayoutTable, error) {
	c := newCursor("layouts", buf, base)
	n, err := c.count(4, "layout count")
	if err != nil {
		return nil, err
	}
	t := &LayoutTable{defs: make([]LayoutDefinition, 0, n)}
	for i := 0; i < n; i++ {
		fieldCount, err := c.count(5, "field count")
		if err != nil {
			return nil, err
		}
		fields := make([]Field, fieldCount)
		seen := make(map[uint32]struct{}, fieldCount)
		for j := range fields {
			keyID, err := c.u32("key id")
			if err != nil {
				return nil, err
			}
			tag, err := c.u8("value type")
			if err != nil {
				return nil, err
			}
			typ, err := parseValueType(tag)
			if err != nil {
				return nil, c.errorf(err, "layout %d field %d", i, j)
			}
			if keyID == ScalarKeyID {
				if fieldCount != 1 {
					return nil, c.errorf(ErrCorruptContainer, "layout %d: scalar key in %d-field layout", i, fieldCount)
				}
			} else if _, err := keys.Resolve(keyID); err != nil {
				return nil, c.errorf(err, "layout %d field %d", i, j)
			}
			if _, dup := seen[keyID]; dup {
				return nil, c.errorf(ErrCorruptContainer, "layout %d repeats key %d", i, keyID)
			}
			seen[keyID] = struct{}{}
			fields[j] = Field{KeyID: keyID, Type: typ}
		}
		h := hashFields(fields)
		if prev, dup := t.find(h, fields); dup {
			return nil, c.errorf(ErrCorruptContainer, "layout %d duplicates layout %d", i, prev)
		}
		t.defs = append(t.defs, LayoutDefinition{Fields: fields})
		t.index.insert(h, uint32(i))
	}
	if err := c.expectEnd("layout table"); err != nil {
		return nil, err
	}
	return t, nil
}
