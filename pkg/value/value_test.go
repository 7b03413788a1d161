package value

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func TestUintCanonical(t *testing.T) {
	if v := Uint(5); v.Kind() != KindInt || v.AsInt() != 5 {
		t.Errorf("Uint(5) = %v kind %s, want int 5", v.AsInt(), v.Kind())
	}
	if v := Uint(math.MaxInt64); v.Kind() != KindInt {
		t.Errorf("Uint(MaxInt64) kind = %s, want int", v.Kind())
	}
	if v := Uint(math.MaxInt64 + 1); v.Kind() != KindUint || v.AsUint() != math.MaxInt64+1 {
		t.Errorf("Uint(MaxInt64+1) kind = %s, want uint", v.Kind())
	}
	if !Equal(Uint(7), Int(7)) {
		t.Error("Uint(7) and Int(7) must be equal")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nulls", Null(), Null(), true},
		{"bool", Bool(true), Bool(false), false},
		{"int vs float", Int(1), Float(1), false},
		{"negative zero", Float(0), Float(math.Copysign(0, -1)), false},
		{"nan bits", Float(math.NaN()), Float(math.NaN()), true},
		{"strings", String("a"), String("a"), true},
		{"array order", Array(Int(1), Int(2)), Array(Int(2), Int(1)), false},
		{"empty arrays", Array(), Array([]Value{}...), true},
		{"member order", Object(M("a", Int(1)), M("b", Int(2))), Object(M("b", Int(2)), M("a", Int(1))), false},
		{"nested", Object(M("a", Array(Null()))), Object(M("a", Array(Null()))), true},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGetAndLen(t *testing.T) {
	v := Object(M("a", Int(1)), M("b", String("xyz")))
	if got, ok := v.Get("b"); !ok || got.AsString() != "xyz" {
		t.Errorf("Get(b) = %v, %v", got, ok)
	}
	if _, ok := v.Get("c"); ok {
		t.Error("Get(c) must miss")
	}
	if v.Len() != 2 {
		t.Errorf("Len() = %d, want 2", v.Len())
	}
	if String("héllo").Len() != 6 {
		t.Error("string Len counts bytes")
	}
	if Int(3).Len() != 0 {
		t.Error("scalar Len must be 0")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	docs := []string{
		`null`,
		`true`,
		`-12`,
		`18446744073709551615`,
		`1.5`,
		`2.0`,
		`1e+300`,
		`"a \"quoted\" string\n"`,
		`[]`,
		`{}`,
		`[1,"x",null,[{}]]`,
		`{"b":1,"a":{"c":[true,false]}}`,
	}
	for _, doc := range docs {
		v, err := Unmarshal([]byte(doc))
		if err != nil {
			t.Errorf("Unmarshal(%s): %v", doc, err)
			continue
		}
		out, err := AppendJSON(nil, v)
		if err != nil {
			t.Errorf("AppendJSON(%s): %v", doc, err)
			continue
		}
		back, err := Unmarshal(out)
		if err != nil {
			t.Errorf("Unmarshal(%s): %v", out, err)
			continue
		}
		if !Equal(v, back) {
			t.Errorf("%s -> %s does not round trip", doc, out)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{"0", KindInt},
		{"-9223372036854775808", KindInt},
		{"9223372036854775808", KindUint},
		{"18446744073709551616", KindFloat},
		{"1.0", KindFloat},
		{"1e2", KindFloat},
	}
	for _, tt := range tests {
		v, err := ParseNumber(tt.in)
		if err != nil {
			t.Errorf("ParseNumber(%s): %v", tt.in, err)
			continue
		}
		if v.Kind() != tt.kind {
			t.Errorf("ParseNumber(%s) kind = %s, want %s", tt.in, v.Kind(), tt.kind)
		}
	}
}

func TestAppendJSON_Floats(t *testing.T) {
	out, err := AppendJSON(nil, Array(Float(2), Float(0.5)))
	if err != nil {
		t.Fatalf("AppendJSON failed: %v", err)
	}
	if string(out) != "[2.0,0.5]" {
		t.Errorf("got %s, want [2.0,0.5]", out)
	}
	if _, err := AppendJSON(nil, Float(math.Inf(1))); !errors.Is(err, ErrUnsupportedFloat) {
		t.Errorf("infinity: got %v, want ErrUnsupportedFloat", err)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	for _, doc := range []string{``, `{"a":1,"a":2}`, `[1,`, `1 2`, `{"a"}`} {
		if _, err := Unmarshal([]byte(doc)); err == nil {
			t.Errorf("Unmarshal(%q) succeeded, want error", doc)
		}
	}
	if _, err := Unmarshal([]byte(`{"a":1,"a":2}`)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("duplicate key: got %v, want ErrDuplicateKey", err)
	}
}

func TestDecoder_Stream(t *testing.T) {
	d := NewDecoder(strings.NewReader("1 {\"a\":2}\n[3]"))
	var n int
	for {
		_, err := d.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("decoded %d values, want 3", n)
	}
}

func TestDocumentDecoder(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`[1,{"a":2},[3]]`, []string{`1`, `{"a":2}`, `[3]`}},
		{`{"a":[1,2]}`, []string{`{"a":[1,2]}`}},
		{`[]`, nil},
		{``, nil},
		{`"x"`, []string{`"x"`}},
	}
	for _, tt := range tests {
		d := NewDocumentDecoder(strings.NewReader(tt.in))
		var got []string
		for {
			v, err := d.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("%q: Next failed: %v", tt.in, err)
			}
			out, _ := AppendJSON(nil, v)
			got = append(got, string(out))
		}
		if strings.Join(got, " ") != strings.Join(tt.want, " ") {
			t.Errorf("%q: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDocumentDecoder_TrailingData(t *testing.T) {
	d := NewDocumentDecoder(strings.NewReader(`{"a":1} {"b":2}`))
	if _, err := d.Next(); err == nil {
		t.Error("expected error for trailing document")
	}
}

func TestDecoder_TruncatedValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"object value", "{\"a\":1}\n{\"a\":"},
		{"object key", "{\"a\":1}\n{"},
		{"object end", "{\"a\":1}\n{\"a\":1"},
		{"array end", "{\"a\":1}\n[1,2"},
		{"nested array", "{\"a\":[1,{\"b\":["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(strings.NewReader(tt.in))
			var err error
			for err == nil {
				_, err = d.Decode()
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("got %v, want io.ErrUnexpectedEOF", err)
			}
			if errors.Is(err, io.EOF) {
				t.Errorf("truncated value reported as end of stream: %v", err)
			}
		})
	}
}

func TestDocumentDecoder_TruncatedArray(t *testing.T) {
	for _, in := range []string{`[{"a":1},{"a":`, `[{"a":1},`, `[{"a":1}`, `[`} {
		d := NewDocumentDecoder(strings.NewReader(in))
		var err error
		for err == nil {
			_, err = d.Next()
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			t.Errorf("%q: got %v, want io.ErrUnexpectedEOF", in, err)
		}
	}
}
