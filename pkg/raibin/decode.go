package raibin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"unicode/utf8"

	"github.com/eunmann/raibinary/pkg/value"
)

// DefaultMaxChunkItems bounds the number of items (records plus nested
// elements) a single chunk may declare. Zero-width items cost no bytes, so
// counts alone could otherwise force unbounded allocations.
const DefaultMaxChunkItems = 1 << 26

var errItemBudget = errors.New("chunk declares more items than allowed")

// decoder decodes one chunk. It reads the shared key and layout tables
// and is not shared between goroutines.
type decoder struct {
	keys     *KeyDictionary
	layouts  *LayoutTable
	maxDepth int
	budget   int
}

type columnView struct {
	data []byte
	base int // offset of data within the chunk
}

type groupView struct {
	layoutID uint32
	def      *LayoutDefinition
	count    int
	cols     []columnView
}

type batchView struct {
	count  int
	groups []groupView
	order  []byte // count × u32 group index, nil for a single group
}

// parseBatch validates a batch's structure (counts, directories, column
// bounds, order table) without touching column payloads. The batch must
// span all of buf.
func (d *decoder) parseBatch(buf []byte, base, depth int) (*batchView, error) {
	c := newCursor("chunk", buf, base)
	if depth > d.maxDepth {
		return nil, c.errorf(ErrDepthExceeded, "deeper than %d", d.maxDepth)
	}
	count, err := c.u32("record count")
	if err != nil {
		return nil, err
	}
	if d.budget -= int(count); d.budget < 0 {
		return nil, c.errorf(ErrCorruptContainer, "%v", errItemBudget)
	}
	groupCount, err := c.count(16, "layout group count")
	if err != nil {
		return nil, err
	}
	if (groupCount == 0) != (count == 0) {
		return nil, c.errorf(ErrCorruptContainer, "%d records in %d layout groups", count, groupCount)
	}

	bv := &batchView{count: int(count), groups: make([]groupView, groupCount)}
	seen := make(map[uint32]struct{}, groupCount)
	total := 0
	for gi := range bv.groups {
		g := &bv.groups[gi]
		if err := d.parseGroup(c, g); err != nil {
			return nil, err
		}
		if _, dup := seen[g.layoutID]; dup {
			return nil, c.errorf(ErrCorruptContainer, "layout %d appears in two groups", g.layoutID)
		}
		seen[g.layoutID] = struct{}{}
		total += g.count
	}
	if total != int(count) {
		return nil, c.errorf(ErrCorruptContainer, "groups hold %d records, batch declares %d", total, count)
	}

	if groupCount > 1 {
		if bv.order, err = c.bytes(int(count)*4, "order table"); err != nil {
			return nil, err
		}
		tally := make([]int, groupCount)
		for r := 0; r < int(count); r++ {
			gi := binary.LittleEndian.Uint32(bv.order[r*4:])
			if uint64(gi) >= uint64(groupCount) {
				return nil, c.errorf(ErrOffsetOutOfRange, "order entry %d names group %d of %d", r, gi, groupCount)
			}
			tally[gi]++
		}
		for gi, n := range tally {
			if n != bv.groups[gi].count {
				return nil, c.errorf(ErrCorruptContainer, "order table assigns %d records to group %d of %d", n, gi, bv.groups[gi].count)
			}
		}
	}
	if err := c.expectEnd("batch"); err != nil {
		return nil, err
	}
	return bv, nil
}

func (d *decoder) parseGroup(c *cursor, g *groupView) error {
	var err error
	if g.layoutID, err = c.u32("layout id"); err != nil {
		return err
	}
	if g.def, err = d.layouts.Lookup(g.layoutID); err != nil {
		return c.errorf(err, "layout group")
	}
	count, err := c.u32("group record count")
	if err != nil {
		return err
	}
	if count == 0 {
		return c.errorf(ErrCorruptContainer, "empty layout group")
	}
	g.count = int(count)
	colCount, err := c.count(ColumnEntrySize, "column count")
	if err != nil {
		return err
	}
	if colCount != len(g.def.Fields) {
		return c.errorf(ErrCorruptContainer, "layout %d has %d fields, group has %d columns", g.layoutID, len(g.def.Fields), colCount)
	}

	type entry struct{ off, size uint32 }
	entries := make([]entry, colCount)
	var next uint32
	for j := range entries {
		fieldIndex, err := c.u32("field index")
		if err != nil {
			return err
		}
		if fieldIndex != uint32(j) {
			return c.errorf(ErrCorruptContainer, "column %d has field index %d", j, fieldIndex)
		}
		tag, err := c.u8("encoding type")
		if err != nil {
			return err
		}
		enc, err := parseEncodingType(tag)
		if err != nil {
			return inField(c.errorf(err, "column directory"), j)
		}
		if want := g.def.Fields[j].Type.Base().encoding(); enc != want {
			return inField(c.errorf(ErrCorruptContainer, "%s column for %s field", enc, g.def.Fields[j].Type), j)
		}
		reserved, err := c.bytes(3, "reserved")
		if err != nil {
			return err
		}
		if reserved[0]|reserved[1]|reserved[2] != 0 {
			return c.errorf(ErrCorruptContainer, "reserved column bytes set")
		}
		off, err := c.u32("column offset")
		if err != nil {
			return err
		}
		size, err := c.u32("column size")
		if err != nil {
			return err
		}
		if off < next {
			return inField(c.errorf(ErrOffsetRegression, "column at %d before previous end %d", off, next), j)
		}
		if off > next {
			return inField(c.errorf(ErrCorruptContainer, "gap before column at %d", off), j)
		}
		if uint64(off)+uint64(size) > math.MaxUint32 {
			return inField(c.errorf(ErrOffsetOutOfRange, "column [%d,+%d)", off, size), j)
		}
		next = off + size
		entries[j] = entry{off, size}
	}

	dataSize, err := c.u32("column data size")
	if err != nil {
		return err
	}
	dataBase := c.pos()
	data, err := c.bytes(int(dataSize), "column data")
	if err != nil {
		return err
	}
	if next > dataSize {
		return c.errorf(ErrOffsetOutOfRange, "columns end at %d, data holds %d bytes", next, dataSize)
	}
	if next < dataSize {
		return c.errorf(ErrCorruptContainer, "%d unused column data bytes", dataSize-next)
	}
	g.cols = make([]columnView, colCount)
	for j, e := range entries {
		g.cols[j] = columnView{data: data[e.off : e.off+e.size : e.off+e.size], base: dataBase + int(e.off)}
	}
	return nil
}

// selection lists the keyIds to decode for object layouts; nil decodes all.
type selection map[uint32]struct{}

// materialize rebuilds the batch's items in input order.
func (d *decoder) materialize(bv *batchView, depth int, sel selection) ([]value.Value, error) {
	rows := make([][]value.Value, len(bv.groups))
	for gi := range bv.groups {
		var err error
		if rows[gi], err = d.groupRows(&bv.groups[gi], depth, sel); err != nil {
			return nil, err
		}
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	}
	out := make([]value.Value, bv.count)
	next := make([]int, len(rows))
	for r := range out {
		gi := binary.LittleEndian.Uint32(bv.order[r*4:])
		out[r] = rows[gi][next[gi]]
		next[gi]++
	}
	return out, nil
}

// groupRows decodes the selected columns of a group and zips them into rows.
func (d *decoder) groupRows(g *groupView, depth int, sel selection) ([]value.Value, error) {
	if g.def.IsScalar() {
		return d.decodeColumn(g.cols[0], g.def.Fields[0].Type, g.count, depth)
	}

	type column struct {
		key  string
		vals []value.Value
	}
	cols := make([]column, 0, len(g.def.Fields))
	for fi, f := range g.def.Fields {
		if sel != nil {
			if _, ok := sel[f.KeyID]; !ok {
				continue
			}
		}
		key, err := d.keys.Resolve(f.KeyID)
		if err != nil {
			return nil, inField(err, fi)
		}
		vals, err := d.decodeColumn(g.cols[fi], f.Type, g.count, depth)
		if err != nil {
			return nil, inField(err, fi)
		}
		cols = append(cols, column{key: key, vals: vals})
	}

	k := len(cols)
	members := make([]value.Member, g.count*k)
	rows := make([]value.Value, g.count)
	for r := range rows {
		ms := members[r*k : (r+1)*k : (r+1)*k]
		for j := range cols {
			ms[j] = value.Member{Key: cols[j].key, Value: cols[j].vals[r]}
		}
		rows[r] = value.Object(ms...)
	}
	return rows, nil
}

// decodeColumn validates and decodes one column payload. The ValueType
// from the layout is authoritative.
func (d *decoder) decodeColumn(col columnView, typ ValueType, n, depth int) ([]value.Value, error) {
	c := newCursor("chunk", col.data, col.base)
	var bitmap []byte
	present := n
	if typ.Nullable() {
		var err error
		if bitmap, err = c.bytes((n+7)/8, "null bitmap"); err != nil {
			return nil, err
		}
		if present, err = countPresent(bitmap, n); err != nil {
			return nil, c.errorf(err, "null bitmap")
		}
	}
	isPresent := func(i int) bool {
		return bitmap == nil || bitmap[i/8]&(1<<(i%8)) != 0
	}

	base := typ.Base()
	switch base.encoding() {
	case EncodingFixedWidth:
		return decodeFixed(c, base, n, present, isPresent)
	case EncodingString:
		return decodeStrings(c, n, isPresent)
	case EncodingNestedArray, EncodingNestedObject:
		return d.decodeNested(c, base, n, depth, isPresent)
	default:
		return nil, c.errorf(ErrUnknownValueType, "%s", typ)
	}
}

// countPresent returns the number of set bits, requiring bits past n to be zero.
func countPresent(bitmap []byte, n int) (int, error) {
	total := 0
	for _, b := range bitmap {
		total += bits.OnesCount8(b)
	}
	if rem := n % 8; rem != 0 && bitmap[len(bitmap)-1]>>rem != 0 {
		return 0, fmt.Errorf("%w: bits set past record %d", ErrCorruptContainer, n)
	}
	return total, nil
}

func decodeFixed(c *cursor, base BaseType, n, present int, isPresent func(int) bool) ([]value.Value, error) {
	if base == TypeNull && present != 0 {
		return nil, c.errorf(ErrCorruptContainer, "%d present values in null column", present)
	}
	width := base.width()
	raw, err := c.bytes(present*width, "fixed-width values")
	if err != nil {
		return nil, err
	}
	if err := c.expectEnd("fixed-width column"); err != nil {
		return nil, err
	}

	vals := make([]value.Value, n)
	k := 0
	for i := range vals {
		if !isPresent(i) {
			continue
		}
		p := raw[k*width:]
		k++
		switch base {
		case TypeBool:
			switch p[0] {
			case 0:
				vals[i] = value.Bool(false)
			case 1:
				vals[i] = value.Bool(true)
			default:
				return nil, c.errorf(ErrCorruptContainer, "bool byte %#x at record %d", p[0], i)
			}
		case TypeUint8:
			vals[i] = value.Uint(uint64(p[0]))
		case TypeUint16:
			vals[i] = value.Uint(uint64(binary.LittleEndian.Uint16(p)))
		case TypeUint32:
			vals[i] = value.Uint(uint64(binary.LittleEndian.Uint32(p)))
		case TypeUint64:
			vals[i] = value.Uint(binary.LittleEndian.Uint64(p))
		case TypeInt8:
			vals[i] = value.Int(int64(int8(p[0])))
		case TypeInt16:
			vals[i] = value.Int(int64(int16(binary.LittleEndian.Uint16(p))))
		case TypeInt32:
			vals[i] = value.Int(int64(int32(binary.LittleEndian.Uint32(p))))
		case TypeInt64:
			vals[i] = value.Int(int64(binary.LittleEndian.Uint64(p)))
		case TypeFloat32:
			vals[i] = value.Float(float64(math.Float32frombits(binary.LittleEndian.Uint32(p))))
		case TypeFloat64:
			vals[i] = value.Float(math.Float64frombits(binary.LittleEndian.Uint64(p)))
		}
	}
	return vals, nil
}

// readOffsets reads and validates an offset table of n+1 entries: starting
// at zero, non-decreasing, and empty for null records.
func readOffsets(c *cursor, n int, isPresent func(int) bool) ([]uint32, error) {
	raw, err := c.bytes((n+1)*4, "offset table")
	if err != nil {
		return nil, err
	}
	offs := make([]uint32, n+1)
	for i := range offs {
		offs[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if offs[0] != 0 {
		return nil, c.errorf(ErrCorruptContainer, "offset table starts at %d", offs[0])
	}
	for i := 0; i < n; i++ {
		if offs[i+1] < offs[i] {
			return nil, c.errorf(ErrOffsetRegression, "offset %d (%d) < offset %d (%d)", i+1, offs[i+1], i, offs[i])
		}
		if !isPresent(i) && offs[i+1] != offs[i] {
			return nil, c.errorf(ErrCorruptContainer, "null record %d spans %d", i, offs[i+1]-offs[i])
		}
	}
	return offs, nil
}

func decodeStrings(c *cursor, n int, isPresent func(int) bool) ([]value.Value, error) {
	offs, err := readOffsets(c, n, isPresent)
	if err != nil {
		return nil, err
	}
	data, err := c.bytes(c.remaining(), "string bytes")
	if err != nil {
		return nil, err
	}
	if end := offs[n]; uint64(end) > uint64(len(data)) {
		return nil, c.errorf(ErrOffsetOutOfRange, "strings end at %d, column holds %d bytes", end, len(data))
	} else if int(end) < len(data) {
		return nil, c.errorf(ErrCorruptContainer, "%d bytes after last string", len(data)-int(end))
	}
	if !utf8.Valid(data) {
		return nil, c.errorf(ErrInvalidUTF8, "string column")
	}

	vals := make([]value.Value, n)
	for i := range vals {
		if isPresent(i) {
			vals[i] = value.String(string(data[offs[i]:offs[i+1]]))
		}
	}
	return vals, nil
}

func (d *decoder) decodeNested(c *cursor, base BaseType, n, depth int, isPresent func(int) bool) ([]value.Value, error) {
	offs, err := readOffsets(c, n, isPresent)
	if err != nil {
		return nil, err
	}
	if base == TypeObject {
		for i := 0; i < n; i++ {
			if isPresent(i) && offs[i+1]-offs[i] != 1 {
				return nil, c.errorf(ErrCorruptContainer, "object record %d spans %d items", i, offs[i+1]-offs[i])
			}
		}
	}

	base0 := c.pos()
	rest, err := c.bytes(c.remaining(), "nested batch")
	if err != nil {
		return nil, err
	}
	child, err := d.parseBatch(rest, base0, depth+1)
	if err != nil {
		return nil, err
	}
	if uint64(child.count) != uint64(offs[n]) {
		return nil, c.errorf(ErrOffsetOutOfRange, "offsets address %d items, nested batch holds %d", offs[n], child.count)
	}
	items, err := d.materialize(child, depth+1, nil)
	if err != nil {
		return nil, err
	}

	vals := make([]value.Value, n)
	for i := range vals {
		if !isPresent(i) {
			continue
		}
		if base == TypeArray {
			lo, hi := offs[i], offs[i+1]
			vals[i] = value.Array(items[lo:hi:hi]...)
			continue
		}
		item := items[offs[i]]
		if item.Kind() != value.KindObject {
			return nil, c.errorf(ErrCorruptContainer, "object record %d decodes to %s", i, item.Kind())
		}
		vals[i] = item
	}
	return vals, nil
}
