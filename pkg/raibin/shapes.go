package raibin

import (
	"fmt"
	"math"

	"github.com/eunmann/raibinary/pkg/value"
)

// coarseKind is the type class of a value before width normalization.
type coarseKind uint8

const (
	kindUnset coarseKind = iota // only nulls seen
	kindBool
	kindInt
	kindFloat
	kindString
	kindArray
	kindObject
)

func coarseOf(v value.Value) coarseKind {
	switch v.Kind() {
	case value.KindBool:
		return kindBool
	case value.KindInt, value.KindUint:
		return kindInt
	case value.KindFloat:
		return kindFloat
	case value.KindString:
		return kindString
	case value.KindArray:
		return kindArray
	case value.KindObject:
		return kindObject
	default:
		return kindUnset
	}
}

// fieldStats accumulates what the encoder needs to pick a field's ValueType.
type fieldStats struct {
	kind     coarseKind
	nullable bool
	negative bool
	min      int64  // smallest negative value seen
	max      uint64 // largest non-negative value seen
	wide     bool   // some float does not survive a float32 round trip
}

func (s *fieldStats) add(v value.Value) {
	if v.IsNull() {
		s.nullable = true
		return
	}
	if s.kind == kindUnset {
		s.kind = coarseOf(v)
	}
	switch v.Kind() {
	case value.KindInt:
		if i := v.AsInt(); i < 0 {
			s.negative = true
			s.min = min(s.min, i)
		} else {
			s.max = max(s.max, uint64(i))
		}
	case value.KindUint:
		s.max = max(s.max, v.AsUint())
	case value.KindFloat:
		f := v.AsFloat()
		if float64(float32(f)) != f {
			s.wide = true
		}
	}
}

// valueType applies width normalization: the smallest integer width that
// holds every observed value (signed iff any value is negative), float32
// iff every float survives the round trip exactly.
func (s *fieldStats) valueType() (ValueType, error) {
	var base BaseType
	switch s.kind {
	case kindUnset:
		return MakeValueType(TypeNull, true), nil
	case kindBool:
		base = TypeBool
	case kindInt:
		if s.negative {
			if s.max > math.MaxInt64 {
				return 0, fmt.Errorf("%w: column spans %d and %d", ErrUnrepresentable, s.min, s.max)
			}
			base = signedWidth(s.min, int64(s.max))
		} else {
			base = unsignedWidth(s.max)
		}
	case kindFloat:
		base = TypeFloat32
		if s.wide {
			base = TypeFloat64
		}
	case kindString:
		base = TypeString
	case kindArray:
		base = TypeArray
	case kindObject:
		base = TypeObject
	}
	return MakeValueType(base, s.nullable), nil
}

func unsignedWidth(max uint64) BaseType {
	switch {
	case max <= math.MaxUint8:
		return TypeUint8
	case max <= math.MaxUint16:
		return TypeUint16
	case max <= math.MaxUint32:
		return TypeUint32
	default:
		return TypeUint64
	}
}

func signedWidth(lo, hi int64) BaseType {
	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		return TypeInt8
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		return TypeInt16
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		return TypeInt32
	default:
		return TypeInt64
	}
}

// shape is a provisional layout: an ordered key list plus the coarse kind
// of every field. A null value fits any kind.
type shape struct {
	keys     []uint32
	fields   []fieldStats
	layoutID uint32
}

// fits reports whether an item with matching keys can join the shape.
func (sh *shape) fits(v value.Value) bool {
	for i := range sh.fields {
		fv := fieldValue(v, i)
		if fv.IsNull() {
			continue
		}
		if k := sh.fields[i].kind; k != kindUnset && k != coarseOf(fv) {
			return false
		}
	}
	return true
}

// fieldValue returns field i of an item: the member value of an object,
// or the item itself for a scalar layout.
func fieldValue(v value.Value, i int) value.Value {
	if v.Kind() == value.KindObject {
		return v.Members()[i].Value
	}
	return v
}

// shapeSet is the layout registry's encode-side pre-pass. observe runs
// sequentially while records are added; after freeze the set is read-only
// and classify may be called from any number of chunk workers.
type shapeSet struct {
	keys    *KeyDictionary
	shapes  []*shape
	index   hashIndex
	scratch []uint32
	frozen  bool
}

func newShapeSet(keys *KeyDictionary) *shapeSet {
	return &shapeSet{keys: keys}
}

// itemKeys appends the keyIds of an item to dst. With intern=false a key
// missing from the dictionary reports ok=false.
func (s *shapeSet) itemKeys(dst []uint32, v value.Value, intern bool) ([]uint32, bool) {
	dst = dst[:0]
	if v.Kind() != value.KindObject {
		return append(dst, ScalarKeyID), true
	}
	for _, m := range v.Members() {
		if intern {
			dst = append(dst, s.keys.Intern(m.Key))
			continue
		}
		id, ok := s.keys.Lookup(m.Key)
		if !ok {
			return dst, false
		}
		dst = append(dst, id)
	}
	return dst, true
}

// match returns the first shape with the same keys that v fits.
func (s *shapeSet) match(ids []uint32, v value.Value) (*shape, uint64) {
	h := hashKeyIDs(ids)
	for _, slot := range s.index.run(h) {
		sh := s.shapes[slot.id]
		if equalIDs(sh.keys, ids) && sh.fits(v) {
			return sh, h
		}
	}
	return nil, h
}

// observe registers v and, recursively, every nested item. The record
// must already have passed validateRecord.
func (s *shapeSet) observe(v value.Value) {
	var ids []uint32
	ids, _ = s.itemKeys(s.scratch, v, true)
	s.scratch = ids

	sh, h := s.match(ids, v)
	if sh == nil {
		sh = &shape{
			keys:   append([]uint32(nil), ids...),
			fields: make([]fieldStats, len(ids)),
		}
		s.index.insert(h, uint32(len(s.shapes)))
		s.shapes = append(s.shapes, sh)
	}

	// Every field joins the shape before any nested item is observed: a
	// nested item with the same keys may match this shape and must see its
	// kinds already set.
	for i := range sh.fields {
		sh.fields[i].add(fieldValue(v, i))
	}
	for i := range sh.fields {
		fv := fieldValue(v, i)
		switch fv.Kind() {
		case value.KindArray:
			for _, item := range fv.Items() {
				s.observe(item)
			}
		case value.KindObject:
			s.observe(fv)
		}
	}
}

// freeze derives a LayoutDefinition for every shape and registers it.
func (s *shapeSet) freeze(layouts *LayoutTable) error {
	for i, sh := range s.shapes {
		fields := make([]Field, len(sh.keys))
		for j := range sh.fields {
			typ, err := sh.fields[j].valueType()
			if err != nil {
				return fmt.Errorf("shape %d field %d: %w", i, j, err)
			}
			fields[j] = Field{KeyID: sh.keys[j], Type: typ}
		}
		sh.layoutID = layouts.Register(fields)
	}
	s.frozen = true
	s.scratch = nil
	return nil
}

// classify returns the frozen shape of v using the same first-fit rule as
// observe. scratch is caller-owned so workers do not share buffers.
func (s *shapeSet) classify(v value.Value, scratch *[]uint32) (*shape, error) {
	ids, ok := s.itemKeys(*scratch, v, false)
	*scratch = ids
	if !ok {
		return nil, fmt.Errorf("%w: item has an unregistered key", ErrUnknownLayout)
	}
	sh, _ := s.match(ids, v)
	if sh == nil {
		return nil, fmt.Errorf("%w: item matches no registered shape", ErrUnknownLayout)
	}
	return sh, nil
}

func equalIDs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
