package ingest

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/raibinary/pkg/value"
)

// csvSource reads rows under a header row as objects keyed by column name.
// Empty cells are null; other cells are strings.
type csvSource struct {
	csvReader *csv.Reader
	header    []string
	closers   []io.Closer
	row       int
}

// NewCSVSource reads CSV from r. Gzip input is detected from its magic
// bytes and decompressed.
func NewCSVSource(r io.Reader) (Source, error) {
	br := bufio.NewReader(r)
	var reader io.Reader = br
	var closers []io.Closer

	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		reader = gzr
	}

	csvr := csv.NewReader(reader)
	csvr.FieldsPerRecord = -1 // Variable field count
	csvr.LazyQuotes = true    // Handle malformed quotes

	header, err := csvr.Read()
	if errors.Is(err, io.EOF) {
		return &csvSource{csvReader: csvr, closers: closers}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("CSV header repeats column %q", h)
		}
		seen[h] = struct{}{}
	}
	return &csvSource{csvReader: csvr, header: header, closers: closers, row: 1}, nil
}

// Next returns the next row. Short rows are padded with nulls; extra
// cells past the header are an error.
func (s *csvSource) Next() (value.Value, error) {
	if s.header == nil {
		return value.Value{}, io.EOF
	}
	fields, err := s.csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return value.Value{}, io.EOF
		}
		return value.Value{}, fmt.Errorf("read CSV row: %w", err)
	}
	s.row++
	if len(fields) > len(s.header) {
		return value.Value{}, fmt.Errorf("CSV row %d has %d cells, header has %d", s.row, len(fields), len(s.header))
	}

	members := make([]value.Member, len(s.header))
	for i, key := range s.header {
		members[i].Key = key
		if i < len(fields) && fields[i] != "" {
			members[i].Value = value.String(fields[i])
		}
	}
	return value.Object(members...), nil
}

// Close releases resources.
func (s *csvSource) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
