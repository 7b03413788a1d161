package raibin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorruptContainer indicates a bad magic, version or header, or any
	// structural inconsistency not covered by a more specific error.
	ErrCorruptContainer = errors.New("corrupt container")
	// ErrUnknownSectionType indicates an unrecognized section directory tag.
	ErrUnknownSectionType = errors.New("unknown section type")
	// ErrUnknownEncodingType indicates an unrecognized column encoding tag.
	ErrUnknownEncodingType = errors.New("unknown encoding type")
	// ErrUnknownValueType indicates an unrecognized value type tag.
	ErrUnknownValueType = errors.New("unknown value type")
	// ErrOffsetOutOfRange indicates an offset+size past the addressable region.
	ErrOffsetOutOfRange = errors.New("offset out of range")
	// ErrOffsetRegression indicates a non-monotonic offset table or directory.
	ErrOffsetRegression = errors.New("offset regression")
	// ErrTruncatedInput indicates a declared size larger than the remaining bytes.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrOutOfRangeKeyID indicates a keyId past the key string table.
	ErrOutOfRangeKeyID = errors.New("key id out of range")
	// ErrUnknownLayout indicates a layoutId past the layout definition table.
	ErrUnknownLayout = errors.New("unknown layout")
	// ErrChunkIndexOutOfRange indicates a chunk index >= ChunkCount().
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
	// ErrEmptyContainer indicates Seal was called with no records.
	ErrEmptyContainer = errors.New("empty container")
	// ErrQueueFull indicates the worker pool had no free slot and the
	// caller asked not to wait.
	ErrQueueFull = errors.New("worker queue full")
	// ErrDepthExceeded indicates nesting deeper than the configured limit.
	ErrDepthExceeded = errors.New("nesting depth exceeded")
	// ErrUnrepresentable indicates a value the column type cannot hold.
	ErrUnrepresentable = errors.New("value not representable")
	// ErrInvalidUTF8 indicates a string or key that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
	// ErrDuplicateKey indicates an object that repeats a key.
	ErrDuplicateKey = errors.New("duplicate object key")
	// ErrSealed indicates use of a writer after Seal.
	ErrSealed = errors.New("writer already sealed")
)

// FormatError locates a decode failure inside a container. It unwraps to
// one of the sentinel errors above.
type FormatError struct {
	Section string // "header", "sections", "keys", "layouts", "chunks", "chunk"
	Chunk   int    // chunk index, -1 if not applicable
	Field   int    // field index within the layout group, -1 if not applicable
	Offset  int    // byte offset relative to the section or chunk start
	Msg     string
	Err     error
}

func (e *FormatError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Section)
	if e.Chunk >= 0 {
		fmt.Fprintf(&sb, " %d", e.Chunk)
	}
	if e.Field >= 0 {
		fmt.Fprintf(&sb, " field %d", e.Field)
	}
	fmt.Fprintf(&sb, " at +%d: ", e.Offset)
	if e.Msg != "" {
		sb.WriteString(e.Msg)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrf(section string, off int, err error, format string, args ...any) error {
	return &FormatError{
		Section: section,
		Chunk:   -1,
		Field:   -1,
		Offset:  off,
		Msg:     fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// inChunk annotates err with a chunk index. Errors that already carry a
// location keep it.
func inChunk(err error, chunk int) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Chunk < 0 {
			cp := *fe
			cp.Chunk = chunk
			return &cp
		}
		return err
	}
	return &FormatError{Section: "chunk", Chunk: chunk, Field: -1, Err: err}
}

// inField annotates err with a field index.
func inField(err error, field int) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Field < 0 {
			cp := *fe
			cp.Field = field
			return &cp
		}
		return err
	}
	return &FormatError{Section: "chunk", Chunk: -1, Field: field, Err: err}
}
