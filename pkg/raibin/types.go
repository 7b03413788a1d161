package raibin

import "fmt"

// BaseType is the 7-bit type tag of a field.
type BaseType uint8

const (
	TypeNull BaseType = iota
	TypeBool
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeArray
	TypeObject
)

const nullableFlag = 0x80

// ValueType packs a BaseType with a nullable flag in the high bit.
type ValueType uint8

// MakeValueType builds a ValueType.
func MakeValueType(base BaseType, nullable bool) ValueType {
	t := ValueType(base)
	if nullable {
		t |= nullableFlag
	}
	return t
}

// parseValueType validates a tag read from a container.
func parseValueType(b byte) (ValueType, error) {
	t := ValueType(b)
	if !t.Base().valid() {
		return 0, fmt.Errorf("%w: %#x", ErrUnknownValueType, b)
	}
	return t, nil
}

// Base returns the base type.
func (t ValueType) Base() BaseType { return BaseType(t &^ nullableFlag) }

// Nullable reports whether the column carries a null bitmap.
func (t ValueType) Nullable() bool { return t&nullableFlag != 0 }

func (t ValueType) String() string {
	if t.Nullable() {
		return "optional<" + t.Base().String() + ">"
	}
	return t.Base().String()
}

func (b BaseType) valid() bool {
	switch b {
	case TypeNull, TypeBool,
		TypeUint8, TypeUint16, TypeUint32, TypeUint64,
		TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeFloat32, TypeFloat64,
		TypeString, TypeArray, TypeObject:
		return true
	default:
		return false
	}
}

func (b BaseType) String() string {
	switch b {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("type(%#x)", uint8(b))
	}
}

// width returns the fixed byte width, or 0 for null and variable-length types.
func (b BaseType) width() int {
	switch b {
	case TypeBool, TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

func (b BaseType) signed() bool {
	return b >= TypeInt8 && b <= TypeInt64
}

func (b BaseType) unsigned() bool {
	return b >= TypeUint8 && b <= TypeUint64
}

// encoding returns the column encoding used for the base type.
func (b BaseType) encoding() EncodingType {
	switch b {
	case TypeString:
		return EncodingString
	case TypeArray:
		return EncodingNestedArray
	case TypeObject:
		return EncodingNestedObject
	default:
		return EncodingFixedWidth
	}
}

// EncodingType tags a ColumnDirectory entry.
type EncodingType uint8

const (
	EncodingFixedWidth   EncodingType = 1
	EncodingString       EncodingType = 2
	EncodingNestedArray  EncodingType = 3
	EncodingNestedObject EncodingType = 4
)

func parseEncodingType(b byte) (EncodingType, error) {
	switch e := EncodingType(b); e {
	case EncodingFixedWidth, EncodingString, EncodingNestedArray, EncodingNestedObject:
		return e, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownEncodingType, b)
	}
}

func (e EncodingType) String() string {
	switch e {
	case EncodingFixedWidth:
		return "fixed"
	case EncodingString:
		return "string"
	case EncodingNestedArray:
		return "array"
	case EncodingNestedObject:
		return "object"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}
