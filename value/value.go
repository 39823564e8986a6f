// Package value implements the tagged value codec used for keys and values.
//
// Wire format is one tag byte followed by a payload:
//
//	'l' Int          zig-zag varint
//	's' String       uvarint byte length, UTF-8 bytes
//	'b' Blob         uvarint length, raw bytes
//	'm' MutableLong  8 bytes big-endian
//
// The tag 'd' is reserved for data pages and never decodes.
package value

import (
	"cmp"
	"fmt"
	"strconv"
)

// Kind identifies the variant of a Value. The constant is its wire tag.
type Kind byte

// Value kinds.
const (
	KindInvalid     Kind = 0
	KindInt         Kind = 'l'
	KindString      Kind = 's'
	KindBlob        Kind = 'b'
	KindMutableLong Kind = 'm'

	// kindData is the reserved data-page tag.
	kindData Kind = 'd'
)

// ordinal gives the cross-kind sort order.
func (k Kind) ordinal() int {
	switch k {
	case KindInt:
		return 0
	case KindString:
		return 1
	case KindBlob:
		return 2
	case KindMutableLong:
		return 3
	default:
		return -1
	}
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindMutableLong:
		return "mutable-long"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Kind(%q)", byte(k))
	}
}

// Value is an immutable tagged union. The zero Value is invalid.
type Value struct {
	kind Kind
	num  int64
	str  string // String and Blob payloads
}

// Int returns a signed integer value.
func Int(v int64) Value { return Value{kind: KindInt, num: v} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Blob returns an opaque byte value. b is copied.
func Blob(b []byte) Value { return Value{kind: KindBlob, str: string(b)} }

// MutableLong returns a fixed-width integer that can be updated in place.
func MutableLong(v int64) Value { return Value{kind: KindMutableLong, num: v} }

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v is not the zero Value.
func (v Value) IsValid() bool { return v.kind.ordinal() >= 0 }

// AsInt returns the integer payload of an Int or MutableLong.
func (v Value) AsInt() int64 { return v.num }

// AsString returns the payload of a String or Blob as a string.
func (v Value) AsString() string { return v.str }

// AsBytes returns a copy of the payload of a String or Blob.
func (v Value) AsBytes() []byte { return []byte(v.str) }

// Equal reports whether a and b hold the same variant and payload.
func Equal(a, b Value) bool { return a == b }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindMutableLong:
		return "mutable(" + strconv.FormatInt(v.num, 10) + ")"
	case KindString:
		return strconv.Quote(v.str)
	case KindBlob:
		return fmt.Sprintf("blob(%x)", v.str)
	default:
		return "<invalid>"
	}
}

// CompareValues orders two decoded values: by kind first, then numerically
// or byte-wise within a kind.
func CompareValues(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind.ordinal(), b.kind.ordinal())
	}
	switch a.kind {
	case KindInt, KindMutableLong:
		return cmp.Compare(a.num, b.num)
	default:
		return cmp.Compare(a.str, b.str)
	}
}
