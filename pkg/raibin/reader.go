package raibin

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/eunmann/raibinary/internal/logctx"
	"github.com/eunmann/raibinary/pkg/logging"
	"github.com/eunmann/raibinary/pkg/value"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Workers bounds the number of chunks ReadAll decodes concurrently.
	// Default min(NumCPU, 8).
	Workers int
	// MaxDepth bounds array and object nesting. Default 64.
	MaxDepth int
	// MaxChunkItems bounds the records plus nested items a single chunk may
	// declare. Default DefaultMaxChunkItems.
	MaxChunkItems int
	// FailWhenBusy makes ReadAll return ErrQueueFull instead of waiting for
	// a free worker. Only one chunk per worker is submitted before that
	// check, so a container with more chunks than Workers almost always
	// fails.
	FailWhenBusy bool
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers()
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxChunkItems <= 0 {
		o.MaxChunkItems = DefaultMaxChunkItems
	}
	return o
}

// ChunkStats describes one chunk without decoding its columns.
type ChunkStats struct {
	Index   int
	Offset  uint64
	Size    uint32
	Records uint32
	Groups  uint32
}

// Reader decodes a sealed container held in memory. Open validates the
// header, section directory, key and layout tables, and chunk directory;
// chunk payloads are validated as they are read.
//
// A Reader is safe for concurrent use.
type Reader struct {
	opts     ReaderOptions
	data     []byte
	header   FileHeader
	sections map[SectionType]SectionEntry
	keys     *KeyDictionary
	layouts  *LayoutTable
	chunks   []ChunkEntry
	mmap     *MmapFile

	keyIndexOnce sync.Once
	keyIndex     *KeyIndex
}

// Open validates data with default options. The Reader references data,
// which must not be modified while the Reader is in use.
func Open(data []byte) (*Reader, error) {
	return OpenWithOptions(data, ReaderOptions{})
}

// OpenWithOptions is Open with explicit options.
func OpenWithOptions(data []byte, opts ReaderOptions) (*Reader, error) {
	r := &Reader{opts: opts.withDefaults(), data: data}

	var err error
	if r.header, err = DecodeHeader(data); err != nil {
		return nil, err
	}
	if r.sections, err = decodeSections(data, r.header.SectionCount); err != nil {
		return nil, err
	}
	if err := r.checkSectionOrder(); err != nil {
		return nil, err
	}

	ks := r.sections[SectionKeyStrings]
	if r.keys, err = decodeKeyTable(r.section(ks), 0); err != nil {
		return nil, err
	}
	ls := r.sections[SectionLayouts]
	if r.layouts, err = decodeLayoutTable(r.section(ls), 0, r.keys); err != nil {
		return nil, err
	}
	if err := r.readChunkDirectory(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) section(e SectionEntry) []byte {
	return r.data[e.Offset : e.Offset+e.Size : e.Offset+e.Size]
}

// checkSectionOrder requires sections to follow one another without
// overlapping, in the order they are written.
func (r *Reader) checkSectionOrder() error {
	var prevEnd uint64
	for _, t := range sectionOrder {
		e := r.sections[t]
		if e.Offset < prevEnd {
			return formatErrf("sections", int(e.Offset), ErrOffsetRegression, "%s section at %d overlaps previous section ending at %d", t, e.Offset, prevEnd)
		}
		prevEnd = e.Offset + e.Size
	}
	return nil
}

// readChunkDirectory decodes the chunk directory (a u32 count followed by
// count entries) and checks that chunks tile the chunk data section in
// order and that their record counts add up to the header's.
func (r *Reader) readChunkDirectory() error {
	ds := r.sections[SectionChunkDir]
	dataSec := r.sections[SectionChunkData]
	c := newCursor("chunks", r.section(ds), 0)

	n, err := c.count(ChunkEntrySize, "chunk count")
	if err != nil {
		return err
	}
	if c.remaining() != n*ChunkEntrySize {
		return c.errorf(ErrCorruptContainer, "directory holds %d bytes of entries, count %d needs %d", c.remaining(), n, n*ChunkEntrySize)
	}
	r.chunks = make([]ChunkEntry, n)

	next := dataSec.Offset
	var records uint64
	for i := range r.chunks {
		off, err := c.u64("chunk offset")
		if err != nil {
			return err
		}
		size, err := c.u32("chunk size")
		if err != nil {
			return err
		}
		if off < next {
			return inChunk(c.errorf(ErrOffsetRegression, "chunk at %d before %d", off, next), i)
		}
		if off > next {
			return inChunk(c.errorf(ErrCorruptContainer, "gap before chunk at %d", off), i)
		}
		if size < chunkHeaderSize {
			return inChunk(c.errorf(ErrCorruptContainer, "chunk of %d bytes", size), i)
		}
		if end := dataSec.Offset + dataSec.Size; off+uint64(size) > end {
			return inChunk(c.errorf(ErrOffsetOutOfRange, "chunk [%d,+%d) past chunk data end %d", off, size, end), i)
		}
		next = off + uint64(size)

		buf := r.data[off : off+uint64(size)]
		if got := binary.LittleEndian.Uint32(buf); got != size {
			return inChunk(c.errorf(ErrCorruptContainer, "chunk declares %d bytes, directory %d", got, size), i)
		}
		count, _ := peekChunk(buf)
		records += uint64(count)
		r.chunks[i] = ChunkEntry{Offset: off, Size: size}
	}
	if end := dataSec.Offset + dataSec.Size; next != end {
		return formatErrf("chunks", int(next), ErrCorruptContainer, "%d bytes of chunk data not covered by the directory", end-next)
	}
	if records != r.header.RecordCount {
		return formatErrf("chunks", 0, ErrCorruptContainer, "chunks hold %d records, header declares %d", records, r.header.RecordCount)
	}
	return nil
}

// ChunkCount returns the number of chunks.
func (r *Reader) ChunkCount() int {
	return len(r.chunks)
}

// RecordCount returns the total number of top-level records.
func (r *Reader) RecordCount() uint64 {
	return r.header.RecordCount
}

// Header returns the decoded file header.
func (r *Reader) Header() FileHeader {
	return r.header
}

// Keys returns the key dictionary.
func (r *Reader) Keys() *KeyDictionary {
	return r.keys
}

// Layouts returns the layout definition table.
func (r *Reader) Layouts() *LayoutTable {
	return r.layouts
}

// KeyID resolves a key string through the container's key index. The
// index is built on first use.
func (r *Reader) KeyID(key string) (uint32, bool) {
	r.keyIndexOnce.Do(func() {
		x, err := NewKeyIndex(r.keys.Keys())
		if err != nil {
			logging.L().Warn().Err(err).Msg("key index build failed, using dictionary lookup")
			return
		}
		r.keyIndex = x
	})
	if r.keyIndex == nil {
		return r.keys.Lookup(key)
	}
	return r.keyIndex.Lookup(key)
}

func (r *Reader) newDecoder() *decoder {
	return &decoder{
		keys:     r.keys,
		layouts:  r.layouts,
		maxDepth: r.opts.MaxDepth,
		budget:   r.opts.MaxChunkItems,
	}
}

func (r *Reader) openChunk(i int) (*chunkReader, error) {
	if i < 0 || i >= len(r.chunks) {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkIndexOutOfRange, i, len(r.chunks))
	}
	e := r.chunks[i]
	cr, err := openChunk(r.newDecoder(), r.data[e.Offset:e.Offset+uint64(e.Size)])
	if err != nil {
		return nil, inChunk(err, i)
	}
	return cr, nil
}

// ReadChunk decodes the records of chunk i in the order they were added.
func (r *Reader) ReadChunk(i int) ([]value.Value, error) {
	cr, err := r.openChunk(i)
	if err != nil {
		return nil, err
	}
	recs, err := cr.records(nil)
	if err != nil {
		return nil, inChunk(err, i)
	}
	return recs, nil
}

// ReadChunkFields decodes chunk i keeping only the named top-level object
// fields; other columns are never decoded. Non-object records are
// returned whole. Names absent from the container select nothing.
func (r *Reader) ReadChunkFields(i int, fields []string) ([]value.Value, error) {
	sel := make(selection, len(fields))
	for _, f := range fields {
		if id, ok := r.KeyID(f); ok {
			sel[id] = struct{}{}
		}
	}
	cr, err := r.openChunk(i)
	if err != nil {
		return nil, err
	}
	recs, err := cr.records(sel)
	if err != nil {
		return nil, inChunk(err, i)
	}
	return recs, nil
}

// ReadAll decodes every chunk on the worker pool and returns all records
// in container order.
func (r *Reader) ReadAll(ctx context.Context) ([]value.Value, error) {
	return r.readAll(ctx, nil)
}

// ReadAllFields is ReadAll with the projection of ReadChunkFields.
func (r *Reader) ReadAllFields(ctx context.Context, fields []string) ([]value.Value, error) {
	if fields == nil {
		fields = []string{}
	}
	return r.readAll(ctx, fields)
}

func (r *Reader) readAll(ctx context.Context, fields []string) ([]value.Value, error) {
	log := logctx.FromContext(ctx)
	start := time.Now()

	parts := make([][]value.Value, len(r.chunks))
	err := runIndexed(ctx, len(r.chunks), r.opts.Workers, r.opts.FailWhenBusy, func(ctx context.Context, i int) error {
		chunkStart := time.Now()
		var err error
		if fields == nil {
			parts[i], err = r.ReadChunk(i)
		} else {
			parts[i], err = r.ReadChunkFields(i, fields)
		}
		if err != nil {
			return err
		}
		chunkLog := logctx.FromContext(logctx.WithInt(ctx, "chunk_index", i))
		logging.ChunkComplete(chunkLog, "decode", time.Since(chunkStart)).
			Int("records", len(parts[i])).
			LogDebug("chunk decoded")
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]value.Value, 0, r.header.RecordCount)
	for _, p := range parts {
		out = append(out, p...)
	}
	logging.PhaseComplete(log, "decode", time.Since(start)).
		Int("records", len(out)).
		Int("chunks", len(r.chunks)).
		Bytes("bytes", int64(len(r.data))).
		Throughput(int64(len(r.data))).
		LogDebug("container decoded")
	return out, nil
}

// Stats returns per-chunk sizes and counts from the chunk headers.
func (r *Reader) Stats() []ChunkStats {
	out := make([]ChunkStats, len(r.chunks))
	for i, e := range r.chunks {
		records, groups := peekChunk(r.data[e.Offset : e.Offset+uint64(e.Size)])
		out[i] = ChunkStats{Index: i, Offset: e.Offset, Size: e.Size, Records: records, Groups: groups}
	}
	return out
}

// Close releases the file mapping of a Reader returned by OpenFile. Records
// already decoded stay valid.
func (r *Reader) Close() error {
	if r.mmap == nil {
		return nil
	}
	return r.mmap.Close()
}
