// Package domain defines the uniform metric value model shared by every
// monitor and both transport surfaces.
package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the payload types a metric value can carry.
type Kind int

const (
	// KindInt is a signed 64-bit integer value.
	KindInt Kind = iota
	// KindFloat is a 64-bit floating point value.
	KindFloat
	// KindString is a text value.
	KindString
	// KindBool is a boolean value.
	KindBool
)

// Value is an immutable tagged union over int64, float64, string and bool.
// The zero Value is an int64 zero.
type Value struct {
	s    string
	i    int64
	f    float64
	b    bool
	kind Kind
}

// IntValue wraps a signed integer metric.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue wraps a floating point metric.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// StringValue wraps a text metric.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// BoolValue wraps a boolean metric.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// Kind reports which payload the value carries.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload, coercing a float payload by truncation.
// The second result is false when the value holds neither numeric kind.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	default:
		return 0, false
	}
}

// Float returns the floating point payload, coercing an integer payload.
// The second result is false when the value holds neither numeric kind.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// String returns the text payload, or "" when the value is not a string.
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Bool returns the boolean payload, or false when the value is not a bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// MarshalJSON encodes the payload as a bare JSON value. Int64 and Float64
// payloads round-trip losslessly; floats keep the shortest representation
// that parses back to the same bits.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	default:
		return nil, ErrInvalidKind
	}
}

// Snapshot maps dot-segmented metric keys (e.g. "cpu.core3.usage_percent")
// to values. A snapshot is produced fresh on every sample call and never
// mutated after being returned.
type Snapshot map[string]Value

// Float looks up key and returns its numeric payload as a float,
// or 0 when the key is absent or non-numeric.
func (s Snapshot) Float(key string) float64 {
	if v, ok := s[key]; ok {
		if f, ok := v.Float(); ok {
			return f
		}
	}
	return 0
}

// FloatOpt is like Float but distinguishes an absent key from a zero value.
func (s Snapshot) FloatOpt(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Int looks up key and returns its numeric payload as an integer,
// or 0 when the key is absent or non-numeric.
func (s Snapshot) Int(key string) int64 {
	if v, ok := s[key]; ok {
		if i, ok := v.Int(); ok {
			return i
		}
	}
	return 0
}

// Str looks up key and returns its text payload, or "" when absent.
func (s Snapshot) Str(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.String(); ok {
			return str
		}
	}
	return ""
}

// Merge copies every entry of other into s, overwriting duplicates.
func (s Snapshot) Merge(other Snapshot) {
	for k, v := range other {
		s[k] = v
	}
}

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Percent divides used by total and clamps the result to [0, 100].
// A non-positive total yields exactly 0 so snapshots never carry NaN or Inf.
func Percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := used / total * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// IsInternal reports whether key is reserved for internal bookkeeping
// (a leading underscore, e.g. "_timestamp").
func IsInternal(key string) bool {
	return strings.HasPrefix(key, "_")
}
