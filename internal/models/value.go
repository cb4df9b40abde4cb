package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies which variant a Value holds
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBool
)

// Value is a single forecast field value: a number, a string, a bool or null.
// The zero Value is null.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
}

// NumberValue wraps a float
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// StringValue wraps a string
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// BoolValue wraps a bool
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// NullValue returns the null Value
func NullValue() Value {
	return Value{}
}

// Kind returns the variant held by v
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull reports whether v carries no data
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Number returns the numeric payload, ok is false for other kinds
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Str returns the string payload, ok is false for other kinds
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Bool returns the bool payload, ok is false for other kinds
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String renders v for logs and the terminal UI
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// MarshalJSON encodes v as the matching JSON scalar
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON scalar into v. Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case 'n':
		*v = NullValue()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decoding bool: %w", err)
		}
		*v = BoolValue(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding string: %w", err)
		}
		*v = StringValue(s)
		return nil
	case '[', '{':
		return fmt.Errorf("unsupported composite value %q", data)
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*v = NumberValue(f)
	return nil
}
