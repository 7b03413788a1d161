package raibin

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/eunmann/raibinary/pkg/value"
)

// chunkHeaderSize covers chunkSize, recordCount and layoutGroupCount.
const chunkHeaderSize = 12

// buildChunk encodes records into one self-contained chunk:
// chunkSize u32 followed by the record batch.
func buildChunk(enc *batchEncoder, records []value.Value, sizeHint int) ([]byte, error) {
	dst := make([]byte, 4, 4+sizeHint)
	dst, err := enc.appendBatch(dst, records, 0)
	if err != nil {
		return nil, err
	}
	if uint64(len(dst)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: chunk of %d bytes", ErrUnrepresentable, len(dst))
	}
	binary.LittleEndian.PutUint32(dst, uint32(len(dst)))
	return dst, nil
}

// chunkReader exposes a validated chunk whose columns are decoded on demand.
type chunkReader struct {
	dec   *decoder
	batch *batchView
}

// openChunk validates the chunk envelope and the structure of its batch.
func openChunk(dec *decoder, buf []byte) (*chunkReader, error) {
	c := newCursor("chunk", buf, 0)
	size, err := c.u32("chunk size")
	if err != nil {
		return nil, err
	}
	if uint64(size) != uint64(len(buf)) {
		return nil, c.errorf(ErrCorruptContainer, "chunk declares %d bytes, directory %d", size, len(buf))
	}
	batch, err := dec.parseBatch(buf[4:], 4, 0)
	if err != nil {
		return nil, err
	}
	return &chunkReader{dec: dec, batch: batch}, nil
}

// records materializes rows, decoding only the selected columns.
func (r *chunkReader) records(sel selection) ([]value.Value, error) {
	return r.dec.materialize(r.batch, 0, sel)
}

// peekChunk reads the record and group counts from a chunk header.
func peekChunk(buf []byte) (records, groups uint32) {
	return binary.LittleEndian.Uint32(buf[4:]), binary.LittleEndian.Uint32(buf[8:])
}
