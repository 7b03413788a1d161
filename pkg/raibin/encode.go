package raibin

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/eunmann/raibinary/pkg/value"
)

// batchEncoder writes batches and their columns. It reads the frozen shape
// set and layout table and owns only its scratch buffers, so one encoder
// per chunk worker needs no synchronization.
type batchEncoder struct {
	shapes   *shapeSet
	layouts  *LayoutTable
	maxDepth int
	scratch  []uint32
}

func newBatchEncoder(shapes *shapeSet, layouts *LayoutTable, maxDepth int) *batchEncoder {
	return &batchEncoder{shapes: shapes, layouts: layouts, maxDepth: maxDepth}
}

type encodeGroup struct {
	layoutID uint32
	rows     []value.Value
}

// appendBatch writes items as layout groups in first-seen layout order,
// followed by the order table when more than one group is present.
func (e *batchEncoder) appendBatch(dst []byte, items []value.Value, depth int) ([]byte, error) {
	if depth > e.maxDepth {
		return dst, fmt.Errorf("%w: deeper than %d", ErrDepthExceeded, e.maxDepth)
	}
	if uint64(len(items)) > math.MaxUint32 {
		return dst, fmt.Errorf("%w: batch of %d items", ErrUnrepresentable, len(items))
	}

	var groups []encodeGroup
	byLayout := make(map[uint32]int)
	order := make([]uint32, len(items))
	for i, item := range items {
		sh, err := e.shapes.classify(item, &e.scratch)
		if err != nil {
			return dst, err
		}
		gi, ok := byLayout[sh.layoutID]
		if !ok {
			gi = len(groups)
			byLayout[sh.layoutID] = gi
			groups = append(groups, encodeGroup{layoutID: sh.layoutID})
		}
		groups[gi].rows = append(groups[gi].rows, item)
		order[i] = uint32(gi)
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(items)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(groups)))
	for gi := range groups {
		var err error
		if dst, err = e.appendGroup(dst, &groups[gi], depth); err != nil {
			return dst, err
		}
	}
	if len(groups) > 1 {
		for _, gi := range order {
			dst = binary.LittleEndian.AppendUint32(dst, gi)
		}
	}
	return dst, nil
}

// appendGroup writes one LayoutGroup: header, column directory, and the
// columns in field declaration order. Directory entries and the data size
// are backpatched once the columns are written.
func (e *batchEncoder) appendGroup(dst []byte, g *encodeGroup, depth int) ([]byte, error) {
	def, err := e.layouts.Lookup(g.layoutID)
	if err != nil {
		return dst, err
	}
	n := len(g.rows)

	dst = binary.LittleEndian.AppendUint32(dst, g.layoutID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(n))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(def.Fields)))
	dirStart := len(dst)
	dst = append(dst, make([]byte, len(def.Fields)*ColumnEntrySize+4)...)
	dataStart := len(dst)

	vals := make([]value.Value, n)
	for fi, f := range def.Fields {
		for r, row := range g.rows {
			vals[r] = fieldValue(row, fi)
		}
		colStart := len(dst)
		if dst, err = e.appendColumn(dst, f.Type, vals, depth); err != nil {
			return dst, fmt.Errorf("layout %d field %d: %w", g.layoutID, fi, err)
		}
		if uint64(len(dst)-dataStart) > math.MaxUint32 {
			return dst, fmt.Errorf("%w: layout group exceeds 4 GiB", ErrUnrepresentable)
		}

		entry := dst[dirStart+fi*ColumnEntrySize:]
		binary.LittleEndian.PutUint32(entry[0:], uint32(fi))
		entry[4] = byte(f.Type.Base().encoding())
		binary.LittleEndian.PutUint32(entry[8:], uint32(colStart-dataStart))
		binary.LittleEndian.PutUint32(entry[12:], uint32(len(dst)-colStart))
	}
	binary.LittleEndian.PutUint32(dst[dataStart-4:], uint32(len(dst)-dataStart))
	return dst, nil
}

// appendColumn writes one column payload: the null bitmap for nullable
// types, then the encoding-specific buffers.
func (e *batchEncoder) appendColumn(dst []byte, typ ValueType, vals []value.Value, depth int) ([]byte, error) {
	if typ.Nullable() {
		dst = appendBitmap(dst, vals)
	} else {
		for i, v := range vals {
			if v.IsNull() {
				return dst, fmt.Errorf("%w: null at record %d of non-nullable column", ErrUnrepresentable, i)
			}
		}
	}

	base := typ.Base()
	switch base.encoding() {
	case EncodingFixedWidth:
		return appendFixed(dst, base, vals)
	case EncodingString:
		return appendStrings(dst, vals)
	case EncodingNestedArray:
		return e.appendNested(dst, vals, value.KindArray, depth)
	case EncodingNestedObject:
		return e.appendNested(dst, vals, value.KindObject, depth)
	default:
		return dst, fmt.Errorf("%w: %s", ErrUnknownValueType, typ)
	}
}

// appendBitmap writes a validity bitmap, LSB first: bit i set means
// record i is present.
func appendBitmap(dst []byte, vals []value.Value) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, (len(vals)+7)/8)...)
	for i, v := range vals {
		if !v.IsNull() {
			dst[start+i/8] |= 1 << (i % 8)
		}
	}
	return dst
}

// appendFixed writes present values only, in record order.
func appendFixed(dst []byte, base BaseType, vals []value.Value) ([]byte, error) {
	width := base.width()
	for i, v := range vals {
		if v.IsNull() {
			continue
		}
		bits, ok := fixedBits(base, v)
		if !ok {
			return dst, fmt.Errorf("%w: %s value at record %d in %s column", ErrUnrepresentable, v.Kind(), i, base)
		}
		switch width {
		case 1:
			dst = append(dst, byte(bits))
		case 2:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(bits))
		case 4:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(bits))
		case 8:
			dst = binary.LittleEndian.AppendUint64(dst, bits)
		}
	}
	return dst, nil
}

// fixedBits returns the little-endian payload of v for base, or ok=false
// if v does not fit.
func fixedBits(base BaseType, v value.Value) (uint64, bool) {
	switch {
	case base == TypeBool:
		if v.Kind() != value.KindBool {
			return 0, false
		}
		if v.AsBool() {
			return 1, true
		}
		return 0, true
	case base.unsigned():
		var u uint64
		switch v.Kind() {
		case value.KindInt:
			if v.AsInt() < 0 {
				return 0, false
			}
			u = uint64(v.AsInt())
		case value.KindUint:
			u = v.AsUint()
		default:
			return 0, false
		}
		if w := base.width(); w < 8 && u>>(8*w) != 0 {
			return 0, false
		}
		return u, true
	case base.signed():
		if v.Kind() != value.KindInt {
			return 0, false
		}
		i := v.AsInt()
		if w := base.width(); w < 8 {
			lim := int64(1) << (8*w - 1)
			if i < -lim || i >= lim {
				return 0, false
			}
		}
		return uint64(i), true
	case base == TypeFloat32:
		if v.Kind() != value.KindFloat {
			return 0, false
		}
		f := v.AsFloat()
		f32 := float32(f)
		if float64(f32) != f {
			return 0, false
		}
		return uint64(math.Float32bits(f32)), true
	case base == TypeFloat64:
		if v.Kind() != value.KindFloat {
			return 0, false
		}
		return v.Bits(), true
	default:
		// TypeNull columns hold no present values.
		return 0, false
	}
}

// appendStrings writes recordCount+1 byte offsets followed by the bytes.
// A null record is a zero-length span.
func appendStrings(dst []byte, vals []value.Value) ([]byte, error) {
	offStart := len(dst)
	dst = append(dst, make([]byte, (len(vals)+1)*4)...)
	var total uint64
	for i, v := range vals {
		if !v.IsNull() {
			if v.Kind() != value.KindString {
				return dst, fmt.Errorf("%w: %s value at record %d in string column", ErrUnrepresentable, v.Kind(), i)
			}
			s := v.AsString()
			total += uint64(len(s))
			if total > math.MaxUint32 {
				return dst, fmt.Errorf("%w: string column exceeds 4 GiB", ErrUnrepresentable)
			}
			dst = append(dst, s...)
		}
		binary.LittleEndian.PutUint32(dst[offStart+(i+1)*4:], uint32(total))
	}
	return dst, nil
}

// appendNested writes recordCount+1 item offsets followed by a nested
// batch of the children: the elements of every array, or the objects
// themselves.
func (e *batchEncoder) appendNested(dst []byte, vals []value.Value, kind value.Kind, depth int) ([]byte, error) {
	offStart := len(dst)
	dst = append(dst, make([]byte, (len(vals)+1)*4)...)
	var children []value.Value
	for i, v := range vals {
		if !v.IsNull() {
			if v.Kind() != kind {
				return dst, fmt.Errorf("%w: %s value at record %d in %s column", ErrUnrepresentable, v.Kind(), i, kind)
			}
			if kind == value.KindArray {
				children = append(children, v.Items()...)
			} else {
				children = append(children, v)
			}
			if uint64(len(children)) > math.MaxUint32 {
				return dst, fmt.Errorf("%w: nested column exceeds %d items", ErrUnrepresentable, uint32(math.MaxUint32))
			}
		}
		binary.LittleEndian.PutUint32(dst[offStart+(i+1)*4:], uint32(len(children)))
	}
	return e.appendBatch(dst, children, depth+1)
}
