package value

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned when encoding the zero Value.
	ErrInvalid = errors.New("value: invalid value")
	// ErrReservedTag is returned when decoding the reserved data-page tag.
	ErrReservedTag = errors.New("value: reserved tag")
	// ErrUnknownTag is returned for a tag byte that names no kind.
	ErrUnknownTag = errors.New("value: unknown tag")
	// ErrTruncated is returned when the payload runs past the input.
	ErrTruncated = errors.New("value: truncated")
)

// MutableLongSize is the encoded size of a MutableLong.
const MutableLongSize = 1 + 8

// Size returns the exact number of bytes Append writes for v.
func Size(v Value) int {
	switch v.kind {
	case KindInt:
		return 1 + varintLen(v.num)
	case KindString, KindBlob:
		return 1 + uvarintLen(uint64(len(v.str))) + len(v.str)
	case KindMutableLong:
		return MutableLongSize
	default:
		return 0
	}
}

// Append encodes v onto dst.
func Append(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindInt:
		dst = append(dst, byte(KindInt))
		return binary.AppendVarint(dst, v.num), nil
	case KindString, KindBlob:
		dst = append(dst, byte(v.kind))
		dst = binary.AppendUvarint(dst, uint64(len(v.str)))
		return append(dst, v.str...), nil
	case KindMutableLong:
		dst = append(dst, byte(KindMutableLong))
		return binary.BigEndian.AppendUint64(dst, uint64(v.num)), nil
	default:
		return dst, ErrInvalid
	}
}

// Encode returns the encoding of v in a new slice.
func Encode(v Value) ([]byte, error) {
	return Append(make([]byte, 0, Size(v)), v)
}

// Decode reads one value from the start of b and returns it with the number
// of bytes consumed. String and Blob payloads are copied out of b.
func Decode(b []byte) (Value, int, error) {
	kind, payload, n, err := split(b)
	if err != nil {
		return Value{}, 0, err
	}
	switch kind {
	case KindInt:
		v, _ := binary.Varint(payload)
		return Int(v), n, nil
	case KindMutableLong:
		return MutableLong(int64(binary.BigEndian.Uint64(payload))), n, nil
	default:
		return Value{kind: kind, str: string(payload)}, n, nil
	}
}

// EncodedLen returns the length of the value encoded at the start of b.
func EncodedLen(b []byte) (int, error) {
	_, _, n, err := split(b)
	return n, err
}

// KindOf returns the kind of the value encoded at the start of b.
func KindOf(b []byte) (Kind, error) {
	if len(b) == 0 {
		return KindInvalid, ErrTruncated
	}
	k := Kind(b[0])
	if k == kindData {
		return KindInvalid, ErrReservedTag
	}
	if k.ordinal() < 0 {
		return KindInvalid, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, b[0])
	}
	return k, nil
}

// Compare orders the value encoded at the start of encoded against probe
// without materializing it. The result is negative, zero or positive as the
// stored value sorts before, equal to or after probe.
func Compare(encoded []byte, probe Value) (int, error) {
	kind, payload, _, err := split(encoded)
	if err != nil {
		return 0, err
	}
	if kind != probe.kind {
		return cmp.Compare(kind.ordinal(), probe.kind.ordinal()), nil
	}
	switch kind {
	case KindInt:
		v, _ := binary.Varint(payload)
		return cmp.Compare(v, probe.num), nil
	case KindMutableLong:
		return cmp.Compare(int64(binary.BigEndian.Uint64(payload)), probe.num), nil
	default:
		return compareBytes(payload, probe.str), nil
	}
}

// split validates the encoding at the start of b and returns the kind, the
// raw payload (without any length prefix) and the total encoded length.
func split(b []byte) (Kind, []byte, int, error) {
	kind, err := KindOf(b)
	if err != nil {
		return KindInvalid, nil, 0, err
	}
	rest := b[1:]

	switch kind {
	case KindInt:
		_, n := binary.Varint(rest)
		if n <= 0 {
			return KindInvalid, nil, 0, ErrTruncated
		}
		return kind, rest[:n], 1 + n, nil
	case KindMutableLong:
		if len(rest) < 8 {
			return KindInvalid, nil, 0, ErrTruncated
		}
		return kind, rest[:8], MutableLongSize, nil
	default:
		l, n := binary.Uvarint(rest)
		if n <= 0 || l > uint64(len(rest)-n) {
			return KindInvalid, nil, 0, ErrTruncated
		}
		end := n + int(l)
		return kind, rest[n:end], 1 + end, nil
	}
}

func compareBytes(a []byte, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return cmp.Compare(a[i], b[i])
		}
	}
	return cmp.Compare(len(a), len(b))
}

func varintLen(v int64) int {
	ux := uint64(v) << 1
	if v < 0 {
		ux = ^ux
	}
	return uvarintLen(ux)
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
