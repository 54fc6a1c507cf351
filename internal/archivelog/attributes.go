package archivelog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Well-known attribute keys.
const (
	KeyCompressor  = "compressor"
	KeyLastModUnix = "lastmodunix"
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyProtect     = "protect"
	KeyTrigger     = "trigger"
	KeyFilepath    = "filepath"
	KeySize        = "size"
	KeyFileCount   = "file_count"
	KeyDuration    = "duration"
	KeySHA256      = "sha256"
	KeySiteDir     = "site_dir"
)

// ErrMalformed is returned when log content is not a JSON object.
var ErrMalformed = errors.New("malformed archive log")

// Kind is the type of an attribute value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	// KindRaw holds an unknown non-scalar value (object or array) verbatim.
	KindRaw
)

// Value is a single attribute value.
type Value struct {
	kind Kind
	text string
	b    bool
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Int returns a number value.
func Int(n int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(n, 10)} }

// Number returns a number value from its JSON text.
func Number(n json.Number) Value { return Value{kind: KindNumber, text: string(n)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Null returns the null value.
func Null() Value { return Value{} }

// Kind returns the value's type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the value as display text. Null is the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	default:
		return v.text
	}
}

// Int64 returns the value as an integer. Numeric strings are accepted.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindNumber, KindString:
		if n, err := strconv.ParseInt(v.text, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(v.text, 64); err == nil {
			return int64(f), true
		}
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truthy reports whether the value is set to something other than
// "", "0", false or null.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	default:
		return v.text != "" && v.text != "0" && v.text != "false"
	}
}

// MarshalJSON encodes the value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.text)
	case KindNumber, KindRaw:
		return []byte(v.text), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

// Attributes is an ordered mapping of attribute keys to values. Keys keep
// their first insertion order; unknown keys survive a read/write cycle.
type Attributes struct {
	keys   []string
	values map[string]Value
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]Value)}
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the attribute keys in order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Get returns the value for key.
func (a *Attributes) Get(key string) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Set stores value under key. Existing keys keep their position.
func (a *Attributes) Set(key string, value Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Delete removes key.
func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (a *Attributes) Clone() *Attributes {
	c := NewAttributes()
	for _, k := range a.Keys() {
		c.Set(k, a.values[k])
	}
	return c
}

// Equal reports whether both sets hold the same keys, in the same order,
// with the same values.
func (a *Attributes) Equal(b *Attributes) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i, k := range a.Keys() {
		if b.keys[i] != k || a.values[k] != b.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the attributes as a JSON object in key order.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := a.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order of its keys.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return ErrMalformed
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: not an object", ErrMalformed)
	}

	parsed := NewAttributes()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key %v", ErrMalformed, tok)
		}
		val, err := readValue(dec)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		parsed.Set(key, val)
	}

	*a = *parsed
	return nil
}

func readValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		var buf bytes.Buffer
		if err := writeComposite(dec, t, &buf); err != nil {
			return Value{}, err
		}
		return Value{kind: KindRaw, text: buf.String()}, nil
	case string:
		return String(t), nil
	case json.Number:
		// The token aliases the decoder's buffer.
		return Number(json.Number(strings.Clone(string(t)))), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// writeComposite re-encodes the object or array opened by open into buf.
func writeComposite(dec *json.Decoder, open json.Delim, buf *bytes.Buffer) error {
	buf.WriteByte(byte(open))
	isObject := open == '{'
	first := true
	for dec.More() {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		if isObject {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := tok.(string)
			if !ok {
				return fmt.Errorf("unexpected key %v", tok)
			}
			if err := writeScalar(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
		}

		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			if err := writeComposite(dec, d, buf); err != nil {
				return err
			}
			continue
		}
		if err := writeScalar(buf, tok); err != nil {
			return err
		}
	}

	tok, err := dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	buf.WriteByte(byte(tok.(json.Delim)))
	return nil
}

func writeScalar(buf *bytes.Buffer, tok json.Token) error {
	switch t := tok.(type) {
	case json.Number:
		buf.WriteString(string(t))
		return nil
	case nil:
		buf.WriteString("null")
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
