package raibin

import "encoding/binary"

// cursor reads little-endian values from a bounded region. Every read is
// checked against the remaining bytes; nothing is interpreted past the end.
type cursor struct {
	buf     []byte
	off     int
	base    int // offset of buf[0] within the enclosing section, for errors
	section string
}

func newCursor(section string, buf []byte, base int) *cursor {
	return &cursor{buf: buf, base: base, section: section}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) pos() int {
	return c.base + c.off
}

func (c *cursor) need(n int, what string) error {
	if n < 0 || n > c.remaining() {
		return formatErrf(c.section, c.pos(), ErrTruncatedInput, "%s needs %d bytes, %d remain", what, n, c.remaining())
	}
	return nil
}

func (c *cursor) u8(what string) (uint8, error) {
	if err := c.need(1, what); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) u32(what string) (uint32, error) {
	if err := c.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) u64(what string) (uint64, error) {
	if err := c.need(8, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

func (c *cursor) bytes(n int, what string) ([]byte, error) {
	if err := c.need(n, what); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return b, nil
}

// count reads a u32 element count and verifies that count elements of at
// least minSize bytes each can still fit, so hostile counts cannot drive
// large allocations.
func (c *cursor) count(minSize int, what string) (int, error) {
	n, err := c.u32(what)
	if err != nil {
		return 0, err
	}
	if minSize > 0 && uint64(n)*uint64(minSize) > uint64(c.remaining()) {
		return 0, formatErrf(c.section, c.pos()-4, ErrTruncatedInput, "%s %d × %d bytes exceeds %d remaining", what, n, minSize, c.remaining())
	}
	return int(n), nil
}

func (c *cursor) errorf(err error, format string, args ...any) error {
	return formatErrf(c.section, c.pos(), err, format, args...)
}

func (c *cursor) expectEnd(what string) error {
	if c.remaining() != 0 {
		return c.errorf(ErrCorruptContainer, "%d trailing bytes after %s", c.remaining(), what)
	}
	return nil
}
