package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON serializes v into one fixed byte representation: UTF-8
// input, ASCII output, keys sorted lexicographically at every nesting
// level, separators "," and ":" with no extra whitespace, numbers in their
// original decimal form. Hashing requires a representation that is
// self-consistent across writer and verifier regardless of map iteration
// order or platform default encoder behavior — any two encoders of the
// same logical document must produce identical bytes, or a chain verified
// by a different binary than the one that wrote it would never match.
//
// v is first passed through the standard encoding/json marshaler (so
// struct tags and field order are respected on the way in), then
// re-decoded with UseNumber to avoid float64 precision loss on large
// integers such as block numbers and epoch timestamps, then walked and
// re-encoded with keys sorted at every level.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("ledger: decode for canonicalization: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
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
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case json.Number:
		buf.WriteString(val.String())

	case string:
		writeJSONString(buf, val)

	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case nil:
		buf.WriteString("null")

	default:
		return fmt.Errorf("ledger: canonical json: unsupported type %T", v)
	}
	return nil
}

// writeJSONString writes s as a double-quoted JSON string with every
// non-ASCII or control rune escaped as \uXXXX, forcing ASCII-only output
// regardless of the platform's default json encoder behaviour.
func writeJSONString(buf *bytes.Buffer, s string) {
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
		default:
			if r < 0x20 || r > 0x7e {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteByte(byte(r))
			}
		}
	}
	buf.WriteByte('"')
}
