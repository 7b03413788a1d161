// Package raibin implements the RaiBinary/Simple container: a schema-less,
// columnar binary format for JSON-compatible records.
//
// File layout (all integers little-endian):
//
//	FileHeader        20 bytes
//	SectionDirectory  sectionCount × 24 bytes
//	KeyStringTable    deduplicated object keys, indexed by keyId
//	LayoutTable       deduplicated record shapes, indexed by layoutId
//	ChunkDirectory    chunk count, then (offset, size) of every chunk
//	ChunkData         independently decodable chunks
//
// A chunk holds a batch of records grouped by layout and stored column-wise.
// Nested arrays and objects are stored as nested batches inside their column.
package raibin

import (
	"encoding/binary"
	"fmt"
)

// Magic is "RAIS" with every byte shifted left one bit.
var Magic = [4]byte{0xA4, 0x82, 0x92, 0xA6}

const (
	// Version is the only format version this package reads and writes.
	Version uint8 = 0x02

	// HeaderSize is the size of the FileHeader in bytes.
	HeaderSize = 4 + 1 + 1 + 2 + 4 + 8 // 20 bytes

	// SectionEntrySize is the size of one SectionDirectory entry.
	SectionEntrySize = 4 + 4 + 8 + 8 // 24 bytes

	// ChunkEntrySize is the size of one ChunkDirectory entry.
	ChunkEntrySize = 8 + 4

	// ColumnEntrySize is the size of one ColumnDirectory entry.
	ColumnEntrySize = 4 + 1 + 3 + 4 + 4

	// ScalarKeyID marks the single field of a layout describing non-object
	// items: the item is the field's value itself.
	ScalarKeyID uint32 = 0xFFFFFFFF

	// DefaultMaxDepth bounds nesting of arrays and objects on encode and decode.
	DefaultMaxDepth = 64
)

// SectionType tags a SectionDirectory entry.
type SectionType uint32

const (
	SectionKeyStrings SectionType = 1
	SectionLayouts    SectionType = 2
	SectionChunkDir   SectionType = 3
	SectionChunkData  SectionType = 4
)

// sectionOrder is the order sections are written in.
var sectionOrder = [...]SectionType{SectionKeyStrings, SectionLayouts, SectionChunkDir, SectionChunkData}

func (t SectionType) String() string {
	switch t {
	case SectionKeyStrings:
		return "keys"
	case SectionLayouts:
		return "layouts"
	case SectionChunkDir:
		return "chunk-directory"
	case SectionChunkData:
		return "chunk-data"
	default:
		return fmt.Sprintf("section(%d)", uint32(t))
	}
}

// FileHeader is the fixed-size container header.
type FileHeader struct {
	Magic        [4]byte
	Version      uint8
	Flags        uint8
	HeaderSize   uint16
	SectionCount uint32
	RecordCount  uint64
}

// EncodeHeader appends the header to dst.
func EncodeHeader(dst []byte, h FileHeader) []byte {
	dst = append(dst, h.Magic[:]...)
	dst = append(dst, h.Version, h.Flags)
	dst = binary.LittleEndian.AppendUint16(dst, h.HeaderSize)
	dst = binary.LittleEndian.AppendUint32(dst, h.SectionCount)
	dst = binary.LittleEndian.AppendUint64(dst, h.RecordCount)
	return dst
}

// DecodeHeader reads and validates a header from the start of buf.
func DecodeHeader(buf []byte) (FileHeader, error) {
	if len(buf) < HeaderSize {
		return FileHeader{}, formatErrf("header", 0, ErrTruncatedInput, "need %d bytes, have %d", HeaderSize, len(buf))
	}
	var h FileHeader
	copy(h.Magic[:], buf[0:4])
	h.Version = buf[4]
	h.Flags = buf[5]
	h.HeaderSize = binary.LittleEndian.Uint16(buf[6:8])
	h.SectionCount = binary.LittleEndian.Uint32(buf[8:12])
	h.RecordCount = binary.LittleEndian.Uint64(buf[12:20])

	if h.Magic != Magic {
		return h, formatErrf("header", 0, ErrCorruptContainer, "bad magic %x", h.Magic[:])
	}
	if h.Version != Version {
		return h, formatErrf("header", 4, ErrCorruptContainer, "unsupported version %#x", h.Version)
	}
	if h.Flags != 0 {
		return h, formatErrf("header", 5, ErrCorruptContainer, "reserved flags %#x set", h.Flags)
	}
	if h.HeaderSize != HeaderSize {
		return h, formatErrf("header", 6, ErrCorruptContainer, "header size %d", h.HeaderSize)
	}
	if h.SectionCount != uint32(len(sectionOrder)) {
		return h, formatErrf("header", 8, ErrCorruptContainer, "section count %d", h.SectionCount)
	}
	return h, nil
}

// SectionEntry is one SectionDirectory entry.
type SectionEntry struct {
	Type   SectionType
	Offset uint64
	Size   uint64
}

func appendSectionEntry(dst []byte, e SectionEntry) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(e.Type))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	dst = binary.LittleEndian.AppendUint64(dst, e.Offset)
	dst = binary.LittleEndian.AppendUint64(dst, e.Size)
	return dst
}

// decodeSections reads the section directory and checks every entry
// against the buffer bounds. Exactly one entry per type is required.
func decodeSections(buf []byte, count uint32) (map[SectionType]SectionEntry, error) {
	dirEnd := uint64(HeaderSize) + uint64(count)*SectionEntrySize
	if dirEnd > uint64(len(buf)) {
		return nil, formatErrf("sections", 0, ErrTruncatedInput, "directory needs %d bytes, have %d", dirEnd, len(buf))
	}

	sections := make(map[SectionType]SectionEntry, count)
	for i := uint32(0); i < count; i++ {
		off := HeaderSize + int(i)*SectionEntrySize
		e := SectionEntry{
			Type:   SectionType(binary.LittleEndian.Uint32(buf[off:])),
			Offset: binary.LittleEndian.Uint64(buf[off+8:]),
			Size:   binary.LittleEndian.Uint64(buf[off+16:]),
		}
		if !e.Type.valid() {
			return nil, formatErrf("sections", off, ErrUnknownSectionType, "entry %d has type %d", i, uint32(e.Type))
		}
		if binary.LittleEndian.Uint32(buf[off+4:]) != 0 {
			return nil, formatErrf("sections", off+4, ErrCorruptContainer, "reserved bytes set in entry %d", i)
		}
		if _, dup := sections[e.Type]; dup {
			return nil, formatErrf("sections", off, ErrCorruptContainer, "duplicate %s section", e.Type)
		}
		if e.Offset < dirEnd {
			return nil, formatErrf("sections", off, ErrOffsetOutOfRange, "%s section at %d overlaps directory", e.Type, e.Offset)
		}
		if e.Offset > uint64(len(buf)) || e.Size > uint64(len(buf))-e.Offset {
			return nil, formatErrf("sections", off, ErrTruncatedInput, "%s section [%d,+%d) exceeds %d bytes", e.Type, e.Offset, e.Size, len(buf))
		}
		sections[e.Type] = e
	}
	return sections, nil
}

func (t SectionType) valid() bool {
	switch t {
	case SectionKeyStrings, SectionLayouts, SectionChunkDir, SectionChunkData:
		return true
	default:
		return false
	}
}

// ChunkEntry is one ChunkDirectory entry.
type ChunkEntry struct {
	Offset uint64
	Size   uint32
}
