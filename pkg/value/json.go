package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// maxJSONDepth bounds nesting while parsing text input.
const maxJSONDepth = 10000

var (
	// ErrDuplicateKey indicates an object that repeats a key.
	ErrDuplicateKey = errors.New("duplicate object key")
	// ErrUnsupportedFloat indicates a NaN or infinity, which JSON cannot represent.
	ErrUnsupportedFloat = errors.New("unsupported float value")
)

// Decoder reads a stream of JSON values, such as JSON Lines or a sequence
// of concatenated documents.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Decoder{dec: dec}
}

// Decode reads the next value. It returns io.EOF when the stream is exhausted.
func (d *Decoder) Decode() (Value, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return Value{}, err
	}
	return d.parse(tok, 0)
}

func (d *Decoder) parse(tok json.Token, depth int) (Value, error) {
	if depth > maxJSONDepth {
		return Value{}, fmt.Errorf("json nesting exceeds %d levels", maxJSONDepth)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return ParseNumber(string(t))
	case json.Delim:
		switch t {
		case '[':
			return d.parseArray(depth)
		case '{':
			return d.parseObject(depth)
		}
	}
	return Value{}, fmt.Errorf("unexpected json token %v", tok)
}

func (d *Decoder) parseArray(depth int) (Value, error) {
	var items []Value
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return Value{}, truncated("read array element", err)
		}
		item, err := d.parse(tok, depth+1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	if _, err := d.dec.Token(); err != nil {
		return Value{}, truncated("read array end", err)
	}
	return Array(items...), nil
}

func (d *Decoder) parseObject(depth int) (Value, error) {
	var members []Member
	seen := make(map[string]struct{})
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return Value{}, truncated("read object key", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("unexpected object key token %v", tok)
		}
		if _, dup := seen[key]; dup {
			return Value{}, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		tok, err = d.dec.Token()
		if err != nil {
			return Value{}, truncated(fmt.Sprintf("read value of %q", key), err)
		}
		v, err := d.parse(tok, depth+1)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: key, Value: v})
	}
	if _, err := d.dec.Token(); err != nil {
		return Value{}, truncated("read object end", err)
	}
	return Object(members...), nil
}

// truncated wraps a tokenizer error met inside a value. End of input there
// is io.ErrUnexpectedEOF: only the end between top-level values is io.EOF.
func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ParseNumber converts a JSON number literal into an Int, Uint or Float
// value. Integral literals that overflow uint64 become floats.
func ParseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Uint(u), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse number %q: %w", s, err)
	}
	return Float(f), nil
}

// Unmarshal parses a single JSON document.
func Unmarshal(data []byte) (Value, error) {
	d := NewDecoder(bytes.NewReader(data))
	v, err := d.Decode()
	if err != nil {
		return Value{}, err
	}
	if _, err := d.dec.Token(); err != io.EOF {
		return Value{}, errors.New("trailing data after json value")
	}
	return v, nil
}

// DocumentDecoder reads a single JSON document and yields its elements
// one at a time when it is an array, or the document itself otherwise.
// Array elements are parsed as they are reached, so the document is never
// materialized whole.
type DocumentDecoder struct {
	d     *Decoder
	state uint8 // 0 start, 1 inside top-level array, 2 done
}

// NewDocumentDecoder returns a document decoder reading from r.
func NewDocumentDecoder(r io.Reader) *DocumentDecoder {
	return &DocumentDecoder{d: NewDecoder(r)}
}

// Next returns the next element. It returns io.EOF after the last one;
// an empty input holds no elements.
func (dd *DocumentDecoder) Next() (Value, error) {
	switch dd.state {
	case 0:
		tok, err := dd.d.dec.Token()
		if err != nil {
			return Value{}, err
		}
		if tok == json.Delim('[') {
			dd.state = 1
			return dd.Next()
		}
		v, err := dd.d.parse(tok, 0)
		if err != nil {
			return Value{}, err
		}
		dd.state = 2
		if err := dd.expectEOF(); err != nil {
			return Value{}, err
		}
		return v, nil
	case 1:
		if !dd.d.dec.More() {
			if _, err := dd.d.dec.Token(); err != nil {
				return Value{}, truncated("read array end", err)
			}
			dd.state = 2
			if err := dd.expectEOF(); err != nil {
				return Value{}, err
			}
			return Value{}, io.EOF
		}
		tok, err := dd.d.dec.Token()
		if err != nil {
			return Value{}, truncated("read array element", err)
		}
		return dd.d.parse(tok, 1)
	default:
		return Value{}, io.EOF
	}
}

func (dd *DocumentDecoder) expectEOF() error {
	if _, err := dd.d.dec.Token(); err != io.EOF {
		return errors.New("trailing data after json document")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return AppendJSON(nil, v)
}

// AppendJSON appends the JSON text of v to dst. Floats always carry a
// fraction or exponent so they parse back as floats.
func AppendJSON(dst []byte, v Value) ([]byte, error) {
	var err error
	switch v.kind {
	case KindNull:
		dst = append(dst, "null"...)
	case KindBool:
		dst = strconv.AppendBool(dst, v.AsBool())
	case KindInt:
		dst = strconv.AppendInt(dst, v.AsInt(), 10)
	case KindUint:
		dst = strconv.AppendUint(dst, v.AsUint(), 10)
	case KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return dst, ErrUnsupportedFloat
		}
		start := len(dst)
		dst = strconv.AppendFloat(dst, f, 'g', -1, 64)
		if !strings.ContainsAny(string(dst[start:]), ".eE") {
			dst = append(dst, ".0"...)
		}
	case KindString:
		dst, err = appendString(dst, v.str)
	case KindArray:
		dst = append(dst, '[')
		for i, item := range v.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			if dst, err = AppendJSON(dst, item); err != nil {
				return dst, err
			}
		}
		dst = append(dst, ']')
	case KindObject:
		dst = append(dst, '{')
		for i, m := range v.members {
			if i > 0 {
				dst = append(dst, ',')
			}
			if dst, err = appendString(dst, m.Key); err != nil {
				return dst, err
			}
			dst = append(dst, ':')
			if dst, err = AppendJSON(dst, m.Value); err != nil {
				return dst, err
			}
		}
		dst = append(dst, '}')
	}
	return dst, err
}

func appendString(dst []byte, s string) ([]byte, error) {
	quoted, err := json.Marshal(s)
	if err != nil {
		return dst, err
	}
	return append(dst, quoted...), nil
}
