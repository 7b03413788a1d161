package ingest

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/raibinary/pkg/value"
)

// parquetSource reads Parquet rows as objects keyed by column name.
// It streams by iterating through row groups.
type parquetSource struct {
	file     *parquet.File
	names    []string
	unsigned []bool

	// Row group iteration state
	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

// NewParquetSource opens a Parquet file. Only flat schemas are supported:
// every top-level field must be a non-repeated leaf column.
func NewParquetSource(r io.ReaderAt, size int64) (Source, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	s := &parquetSource{
		file:         file,
		names:        make([]string, len(fields)),
		unsigned:     make([]bool, len(fields)),
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 1024), // Buffer 1024 rows at a time
	}
	for i, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("parquet column %q is a group; only flat schemas are supported", f.Name())
		}
		if f.Repeated() {
			return nil, fmt.Errorf("parquet column %q is repeated; only flat schemas are supported", f.Name())
		}
		s.names[i] = f.Name()
		if lt := f.Type().LogicalType(); lt != nil && lt.Integer != nil && !lt.Integer.IsSigned {
			s.unsigned[i] = true
		}
	}
	return s, nil
}

// Next returns the next row.
func (s *parquetSource) Next() (value.Value, error) {
	for {
		if s.bufIdx < s.bufLen {
			row := s.rowBuf[s.bufIdx]
			s.bufIdx++
			return s.rowToRecord(row)
		}

		if s.currentRows != nil {
			n, err := s.currentRows.ReadRows(s.rowBuf)
			if n > 0 {
				s.bufIdx = 0
				s.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return value.Value{}, fmt.Errorf("read parquet rows: %w", err)
			}
			// Current row group exhausted
			s.currentRows.Close()
			s.currentRows = nil
		}

		s.currentRGIdx++
		if s.currentRGIdx >= len(s.rowGroups) {
			return value.Value{}, io.EOF
		}
		s.currentRows = s.rowGroups[s.currentRGIdx].Rows()
	}
}

// rowToRecord converts a parquet.Row to an object with one member per
// column, in schema order. Missing and null cells are null.
func (s *parquetSource) rowToRecord(row parquet.Row) (value.Value, error) {
	members := make([]value.Member, len(s.names))
	for i, name := range s.names {
		members[i].Key = name
	}

	for _, val := range row {
		col := val.Column()
		if col < 0 || col >= len(members) || val.IsNull() {
			continue
		}
		v, err := s.convert(col, val)
		if err != nil {
			return value.Value{}, err
		}
		members[col].Value = v
	}
	return value.Object(members...), nil
}

func (s *parquetSource) convert(col int, val parquet.Value) (value.Value, error) {
	switch val.Kind() {
	case parquet.Boolean:
		return value.Bool(val.Boolean()), nil
	case parquet.Int32:
		if s.unsigned[col] {
			return value.Uint(uint64(uint32(val.Int32()))), nil
		}
		return value.Int(int64(val.Int32())), nil
	case parquet.Int64:
		if s.unsigned[col] {
			return value.Uint(uint64(val.Int64())), nil
		}
		return value.Int(val.Int64()), nil
	case parquet.Float:
		return value.Float(float64(val.Float())), nil
	case parquet.Double:
		return value.Float(val.Double()), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := val.ByteArray()
		if !utf8.Valid(b) {
			return value.Value{}, fmt.Errorf("parquet column %q holds non-UTF-8 bytes", s.names[col])
		}
		return value.String(string(b)), nil
	default:
		return value.String(val.String()), nil
	}
}

// Close releases resources.
func (s *parquetSource) Close() error {
	if s.currentRows != nil {
		err := s.currentRows.Close()
		s.currentRows = nil
		return err
	}
	return nil
}
