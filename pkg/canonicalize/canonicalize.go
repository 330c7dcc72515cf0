// Package canonicalize produces the deterministic JSON form used to hash
// execution plans.
//
// Canonical form:
//  1. Object keys are sorted by code point (byte order of their UTF-8 encoding).
//  2. Array order and length are preserved.
//  3. Scalars pass through unchanged; numbers keep the text the JSON encoder
//     produced for them and are never re-normalized. Numerically equal
//     values written differently, such as 90 and 90.0, hash differently.
//  4. Output is compact: no insignificant whitespace and no HTML escaping.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Member is a single key/value pair of a canonical object.
type Member struct {
	Key   string
	Value any
}

// Object is a canonical JSON object: members in sorted key order.
type Object []Member

// MarshalJSON writes the object in its canonical, compact form.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Canonicalize returns the normalized form of v. Go values are first lowered
// to their JSON shape (struct tags apply), then rebuilt recursively so that
// every object becomes an Object with sorted keys. The result contains only
// nil, bool, json.Number, string, []any and Object.
func Canonicalize(v any) (any, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	return normalize(generic), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		obj := make(Object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, Member{Key: k, Value: normalize(t[k])})
		}
		return obj
	default:
		return v
	}
}

// Marshal returns the canonical serialization of v.
func Marshal(v any) ([]byte, error) {
	normalized, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalString returns the canonical serialization of v as a string.
func MarshalString(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the lowercase hex SHA-256 digest of the canonical
// serialization of v.
func CanonicalHash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes computes the SHA-256 digest of data and returns it hex-encoded.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Key)
			buf.WriteByte(':')
			if err := encode(buf, m.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unexpected value of type %T", v)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString quotes s the way ECMAScript JSON.stringify does: only the
// quote, the backslash and C0 controls are escaped. Invalid UTF-8 is replaced
// with U+FFFD, matching encoding/json.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				if c < 0x20 {
					buf.WriteString(`\u00`)
					buf.WriteByte(hexDigits[c>>4])
					buf.WriteByte(hexDigits[c&0xF])
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString("�")
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
