package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyPayload = errors.New("jsonutil: empty payload")

// MarshalNoEscape encodes v without escaping <, > and & so card text and
// chat replies keep their original characters on the wire.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalFlex decodes raw into v with best effort:
//  1. direct unmarshal
//  2. the payload is a JSON string holding JSON (double-encoded frames)
//  3. double-escaped unicode sequences are unescaped and decoding retried
func UnmarshalFlex(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ErrEmptyPayload
	}
	firstErr := json.Unmarshal(raw, v)
	if firstErr == nil {
		return nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		inner = strings.TrimSpace(inner)
		if inner != "" && json.Unmarshal([]byte(inner), v) == nil {
			return nil
		}
	}
	norm, err := normalizeUnicode(raw)
	if err != nil {
		return firstErr
	}
	if err := json.Unmarshal(norm, v); err != nil {
		return firstErr
	}
	return nil
}

func normalizeUnicode(raw []byte) ([]byte, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return nil, err
	}
	return MarshalNoEscape(deepUnescape(anyVal))
}

func unescapeUnicodeString(s string) (string, error) {
	esc := strings.ReplaceAll(s, `\`, `\\`)
	esc = strings.ReplaceAll(esc, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := unescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}
