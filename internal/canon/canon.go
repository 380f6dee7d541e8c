// Package canon produces deterministic JSON for golden files and recorded
// traces: object keys are sorted, strings are NFC-normalized, and the
// output is byte-for-byte stable across runs and platforms.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Marshal serializes v deterministically.
//
// Differences from encoding/json:
//  1. Object keys sorted bytewise
//  2. Strings NFC-normalized before escaping
//  3. No HTML escaping
//  4. Only trace-shaped values are accepted: nil, bool, integers, finite
//     floats, strings, []any, map[string]any
//
// Arbitrary structs are rejected rather than guessed at; callers encode
// their values to maps first (see looptest.Codec).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshal(buf *bytes.Buffer, v any) error {
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
		return marshalString(buf, val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		return marshalFloat(buf, val)
	case float32:
		return marshalFloat(buf, float64(val))
	case json.Number:
		buf.WriteString(val.String())
	case []any:
		return marshalArray(buf, val)
	case map[string]any:
		return marshalObject(buf, val)
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
	return nil
}

func marshalString(buf *bytes.Buffer, s string) error {
	// NFC first so visually identical strings canonicalize identically.
	enc, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	buf.Write(enc)
	return nil
}

func marshalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canon: non-finite float %v", f)
	}
	// Integral floats print without an exponent or trailing fraction, so
	// values round-tripped through YAML stay stable.
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func marshalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshal(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func marshalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := marshal(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
