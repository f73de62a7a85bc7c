package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Record is one unit fetched from a source API: a mapping from field
// name to a dynamically typed value. No fixed schema is assumed; fields
// may appear or disappear between runs.
//
// Values follow the shapes produced by DecodeRecord: string,
// json.Number, bool, nil, []any and map[string]any. Numbers keep their
// original textual form so re-encoding never alters precision.
type Record map[string]any

// DecodeRecord parses a JSON object into a Record. Numbers are kept as
// json.Number rather than float64 so the original digits survive a
// round trip through EncodeCanonical.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// DecodeRecords parses a JSON array of objects, the shape a source API
// returns for one page.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var recs []Record
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return recs, nil
}

// EncodeCanonical serializes a record into its canonical textual form:
// valid JSON with object keys sorted at every nesting level, no
// insignificant whitespace, and every control or non-ASCII character
// escaped. Structurally equal records always encode to identical bytes,
// and decoding the result yields a value structurally equal to the
// input.
//
// Escaping is a hard requirement of the staging format, not cosmetics:
// embedded newlines, delimiters and multibyte runes must never reach
// the staging store raw. The output contains only bytes in
// [0x20, 0x7E].
func EncodeCanonical(rec Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("encode record: nil record")
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, map[string]any(rec)); err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return buf.String(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return encodeString(buf, val)
	case json.Number:
		// Written verbatim to preserve the source's digits, but
		// validated first: a hand-built record could carry arbitrary
		// text here.
		if _, err := val.Float64(); err != nil {
			return fmt.Errorf("invalid number %q", val.String())
		}
		buf.WriteString(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite number %v", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

// encodeString writes a JSON string literal with the short escapes for
// quote, backslash and common control characters, \u00XX for the rest
// of the control range, and \uXXXX (surrogate pairs above the BMP) for
// every rune outside printable ASCII.
func encodeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 in string %q", s)
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				buf.WriteRune(r)
			case r <= 0xffff:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}
