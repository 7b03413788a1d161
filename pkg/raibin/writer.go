package raibin

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/eunmann/raibinary/internal/logctx"
	"github.com/eunmann/raibinary/pkg/logging"
	"github.com/eunmann/raibinary/pkg/value"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// MaxChunkRecords cuts a chunk after this many records. Default 65536.
	MaxChunkRecords int
	// MaxChunkBytes cuts a chunk once the estimated encoded size of its
	// records reaches this many bytes. Default 4 MiB.
	MaxChunkBytes int
	// Workers bounds the number of chunks encoded concurrently.
	// Default min(NumCPU, 8).
	Workers int
	// MaxDepth bounds array and object nesting. Default 64.
	MaxDepth int
	// AllowEmpty lets Seal produce a valid container with no chunks instead
	// of returning ErrEmptyContainer.
	AllowEmpty bool
	// FailWhenBusy makes Seal return ErrQueueFull instead of waiting for a
	// free worker. Only one chunk per worker is submitted before that check,
	// so a batch with more chunks than Workers almost always fails.
	FailWhenBusy bool
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.MaxChunkRecords <= 0 {
		o.MaxChunkRecords = 65536
	}
	if o.MaxChunkBytes <= 0 {
		o.MaxChunkBytes = 4 << 20
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers()
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

type writerState uint8

const (
	stateEmpty writerState = iota
	stateHeaderReserved
	stateKeysWritten
	stateLayoutsWritten
	stateChunksWritten
	stateDirectoriesFinalized
	stateSealed
	stateFailed
)

func (s writerState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateHeaderReserved:
		return "header-reserved"
	case stateKeysWritten:
		return "keys-written"
	case stateLayoutsWritten:
		return "layouts-written"
	case stateChunksWritten:
		return "chunks-written"
	case stateDirectoriesFinalized:
		return "directories-finalized"
	case stateSealed:
		return "sealed"
	default:
		return "failed"
	}
}

// pendingChunk is a run of records that will become one chunk.
type pendingChunk struct {
	records []value.Value
	size    int // estimated encoded bytes
}

// Writer accumulates records and seals them into a container.
//
// AddRecord registers keys and shapes as records arrive, so every layout
// is known file-wide before any chunk is encoded. A Writer is not safe for
// concurrent use.
type Writer struct {
	opts    WriterOptions
	keys    *KeyDictionary
	layouts *LayoutTable
	shapes  *shapeSet
	chunks  []pendingChunk
	records uint64
	state   writerState
}

// NewWriter returns an empty writer.
func NewWriter(opts WriterOptions) *Writer {
	keys := NewKeyDictionary()
	return &Writer{
		opts:    opts.withDefaults(),
		keys:    keys,
		layouts: NewLayoutTable(),
		shapes:  newShapeSet(keys),
	}
}

// AddRecord appends one top-level record. Invalid records are rejected
// without changing the writer.
func (w *Writer) AddRecord(v value.Value) error {
	if w.state != stateEmpty {
		return fmt.Errorf("add record in state %s: %w", w.state, ErrSealed)
	}
	size, err := validateRecord(v, w.opts.MaxDepth)
	if err != nil {
		return fmt.Errorf("record %d: %w", w.records, err)
	}
	w.shapes.observe(v)

	n := len(w.chunks)
	if n == 0 || len(w.chunks[n-1].records) >= w.opts.MaxChunkRecords || w.chunks[n-1].size >= w.opts.MaxChunkBytes {
		w.chunks = append(w.chunks, pendingChunk{})
		n++
	}
	c := &w.chunks[n-1]
	c.records = append(c.records, v)
	c.size += size
	w.records++
	return nil
}

// RecordCount returns the number of records added so far.
func (w *Writer) RecordCount() uint64 {
	return w.records
}

// Seal encodes the container. Chunks are encoded in parallel and written
// in the order their records were added, so the output does not depend
// on Workers. After Seal returns, with or without an error, the writer
// accepts no more records. On error no bytes are returned.
func (w *Writer) Seal(ctx context.Context) ([]byte, error) {
	if w.state != stateEmpty {
		return nil, fmt.Errorf("seal in state %s: %w", w.state, ErrSealed)
	}
	out, err := w.seal(ctx)
	if err != nil {
		w.state = stateFailed
		return nil, err
	}
	w.state = stateSealed
	w.chunks = nil
	return out, nil
}

func (w *Writer) seal(ctx context.Context) ([]byte, error) {
	log := logctx.FromContext(ctx)
	start := time.Now()

	if w.records == 0 && !w.opts.AllowEmpty {
		return nil, ErrEmptyContainer
	}
	if uint64(len(w.chunks)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d chunks", ErrUnrepresentable, len(w.chunks))
	}

	dirEnd := HeaderSize + len(sectionOrder)*SectionEntrySize
	buf := make([]byte, dirEnd, dirEnd+w.estimate())
	w.state = stateHeaderReserved

	var sections [len(sectionOrder)]SectionEntry
	begin := func(i int) { sections[i] = SectionEntry{Type: sectionOrder[i], Offset: uint64(len(buf))} }
	end := func(i int) { sections[i].Size = uint64(len(buf)) - sections[i].Offset }

	var err error
	begin(0)
	if buf, err = w.keys.appendKeyTable(buf); err != nil {
		return nil, err
	}
	end(0)
	w.state = stateKeysWritten

	if err := w.shapes.freeze(w.layouts); err != nil {
		return nil, err
	}
	begin(1)
	buf = w.layouts.appendTable(buf)
	end(1)
	w.state = stateLayoutsWritten

	chunks, err := w.buildChunks(ctx)
	if err != nil {
		return nil, err
	}
	w.state = stateChunksWritten

	begin(2)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(chunks)))
	dirStart := len(buf)
	buf = append(buf, make([]byte, len(chunks)*ChunkEntrySize)...)
	end(2)

	begin(3)
	for i, c := range chunks {
		e := buf[dirStart+i*ChunkEntrySize:]
		binary.LittleEndian.PutUint64(e, uint64(len(buf)))
		binary.LittleEndian.PutUint32(e[8:], uint32(len(c)))
		buf = append(buf, c...)
	}
	end(3)

	hdr := EncodeHeader(buf[:0], FileHeader{
		Magic:        Magic,
		Version:      Version,
		HeaderSize:   HeaderSize,
		SectionCount: uint32(len(sectionOrder)),
		RecordCount:  w.records,
	})
	for _, s := range sections {
		hdr = appendSectionEntry(hdr, s)
	}
	w.state = stateDirectoriesFinalized

	logging.PhaseComplete(log, "seal", time.Since(start)).
		CountUint64("records", w.records).
		Int("chunks", len(chunks)).
		Int("keys", w.keys.Len()).
		Int("layouts", w.layouts.Len()).
		Bytes("bytes", int64(len(buf))).
		Throughput(int64(len(buf))).
		Log("container sealed")
	return buf, nil
}

// buildChunks encodes every pending chunk on the worker pool. Each worker
// owns its encoder; results are stored by chunk index.
func (w *Writer) buildChunks(ctx context.Context) ([][]byte, error) {
	out := make([][]byte, len(w.chunks))
	progress := logging.NewProgressTracker("seal", int64(len(w.chunks)))

	err := runIndexed(ctx, len(w.chunks), w.opts.Workers, w.opts.FailWhenBusy, func(ctx context.Context, i int) error {
		start := time.Now()
		enc := newBatchEncoder(w.shapes, w.layouts, w.opts.MaxDepth)
		c, err := buildChunk(enc, w.chunks[i].records, w.chunks[i].size)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		out[i] = c
		progress.RecordCompletion(time.Since(start))

		chunkLog := logctx.FromContext(logctx.WithInt(ctx, "chunk_index", i))
		logging.ChunkComplete(chunkLog, "seal", time.Since(start)).
			Int("records", len(w.chunks[i].records)).
			Bytes("bytes", int64(len(c))).
			ProgressFromTracker(progress).
			LogDebug("chunk encoded")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Writer) estimate() int {
	total := 0
	for _, c := range w.chunks {
		total += c.size + chunkHeaderSize + ChunkEntrySize
	}
	return total + 4
}

// Encode seals records into a container in one call.
func Encode(ctx context.Context, records []value.Value, opts WriterOptions) ([]byte, error) {
	w := NewWriter(opts)
	for _, r := range records {
		if err := w.AddRecord(r); err != nil {
			return nil, err
		}
	}
	return w.Seal(ctx)
}
