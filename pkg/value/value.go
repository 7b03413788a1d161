// Package value defines the JSON-compatible value tree that containers are
// encoded from and decoded into.
package value

import (
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Member is one key/value pair of an object. Object members keep their
// insertion order.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON-compatible value. The zero Value is null.
//
// Integers are canonical: KindUint is only used for values above
// math.MaxInt64, everything else that is integral is KindInt.
type Value struct {
	kind    Kind
	bits    uint64 // bool, int, uint and float payloads
	str     string
	items   []Value
	members []Member
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

// Int returns a signed integer value.
func Int(i int64) Value {
	return Value{kind: KindInt, bits: uint64(i)}
}

// Uint returns an unsigned integer value. Values that fit in int64 are
// stored as KindInt.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, bits: u}
}

// Float returns a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Array returns an array value. The slice is retained, not copied.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: items}
}

// Object returns an object value. Keys are expected to be unique; the
// slice is retained, not copied.
func Object(members ...Member) Value {
	return Value{kind: KindObject, members: members}
}

// M is shorthand for building a Member.
func M(key string, v Value) Member {
	return Member{Key: key, Value: v}
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.bits != 0 }

// AsInt returns the signed payload of an int value.
func (v Value) AsInt() int64 { return int64(v.bits) }

// AsUint returns the unsigned payload of a uint value, or the int payload
// reinterpreted as unsigned.
func (v Value) AsUint() uint64 { return v.bits }

// AsFloat returns the float payload.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.bits) }

// Bits returns the raw 64-bit payload of a bool, int, uint or float value.
func (v Value) Bits() uint64 { return v.bits }

// AsString returns the string payload.
func (v Value) AsString() string { return v.str }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Members returns the members of an object value in insertion order.
func (v Value) Members() []Member { return v.members }

// Len returns the number of elements or members, or the byte length of a
// string.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	case KindString:
		return len(v.str)
	default:
		return 0
	}
}

// Get returns the member value for key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether a and b are structurally identical: same kinds,
// member order, element order and bit-exact numbers.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool, KindInt, KindUint, KindFloat:
		return a.bits == b.bits
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
