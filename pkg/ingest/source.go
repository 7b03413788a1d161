// Package ingest reads records from JSON, CSV and Parquet inputs.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eunmann/raibinary/internal/logctx"
	"github.com/eunmann/raibinary/pkg/logging"
	"github.com/eunmann/raibinary/pkg/value"
)

// Format identifies an input encoding.
type Format int

const (
	// FormatAuto picks a format from the input name.
	FormatAuto Format = iota
	// FormatJSONL is a stream of JSON values, one record each.
	FormatJSONL
	// FormatJSON is one JSON document: an array of records or a single record.
	FormatJSON
	// FormatCSV is comma-separated rows under a header row, optionally gzipped.
	FormatCSV
	// FormatParquet is a Parquet file with a flat schema.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	default:
		return "auto"
	}
}

// ParseFormat maps a --format flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return FormatAuto, fmt.Errorf("unsupported input format %q (supported: jsonl, json, csv, parquet)", s)
	}
}

// DetectFormat determines the format from a file name or object key.
// Unknown extensions read as JSON Lines.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	lower = strings.TrimSuffix(lower, ".gz")
	switch filepath.Ext(lower) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	default:
		return FormatJSONL
	}
}

// Source yields records one at a time.
type Source interface {
	// Next returns the next record. Returns io.EOF when done.
	Next() (value.Value, error)
	// Close releases resources.
	Close() error
}

// NewSource reads records of format f from r. Parquet needs random access
// and is rejected here; use NewParquetSource or FromBytes.
func NewSource(r io.Reader, f Format) (Source, error) {
	switch f {
	case FormatJSONL:
		return &jsonLinesSource{dec: value.NewDecoder(r)}, nil
	case FormatJSON:
		return &jsonDocumentSource{dec: value.NewDocumentDecoder(r)}, nil
	case FormatCSV:
		return NewCSVSource(r)
	case FormatParquet:
		return nil, errors.New("parquet input needs random access")
	default:
		return nil, errors.New("no input format given")
	}
}

// FromBytes reads records of format f from an in-memory input.
func FromBytes(data []byte, name string, f Format) (Source, error) {
	if f == FormatAuto {
		f = DetectFormat(name)
	}
	if f == FormatParquet {
		return NewParquetSource(bytes.NewReader(data), int64(len(data)))
	}
	return NewSource(bytes.NewReader(data), f)
}

// OpenFile opens a local input. FormatAuto detects the format from path.
func OpenFile(path string, f Format) (Source, error) {
	if f == FormatAuto {
		f = DetectFormat(path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	var src Source
	if f == FormatParquet {
		info, statErr := file.Stat()
		if statErr != nil {
			file.Close()
			return nil, fmt.Errorf("stat input: %w", statErr)
		}
		src, err = NewParquetSource(file, info.Size())
	} else {
		src, err = NewSource(file, f)
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %s input %s: %w", f, path, err)
	}
	return &fileSource{Source: src, file: file}, nil
}

// fileSource closes the underlying file after the source.
type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// RecordSink accepts records. *raibin.Writer implements it.
type RecordSink interface {
	AddRecord(v value.Value) error
}

// Copy drains src into sink and returns the number of records copied. The
// context is checked between records.
func Copy(ctx context.Context, sink RecordSink, src Source) (int64, error) {
	start := time.Now()
	var n int64
	for {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		v, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read record %d: %w", n, err)
		}
		if err := sink.AddRecord(v); err != nil {
			return n, err
		}
		n++
	}

	logging.NewCompletionEvent(logctx.FromContext(ctx), "input_read", "ingest", time.Since(start)).
		Count("records", n).
		LogDebug("input read")
	return n, nil
}

// jsonLinesSource reads whitespace-separated JSON values.
type jsonLinesSource struct {
	dec *value.Decoder
}

func (s *jsonLinesSource) Next() (value.Value, error) {
	return s.dec.Decode()
}

func (s *jsonLinesSource) Close() error { return nil }

// jsonDocumentSource reads the elements of one JSON document.
type jsonDocumentSource struct {
	dec *value.DocumentDecoder
}

func (s *jsonDocumentSource) Next() (value.Value, error) {
	return s.dec.Next()
}

func (s *jsonDocumentSource) Close() error { return nil }
