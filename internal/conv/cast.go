package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit its on-page field.
var ErrOverflow = errors.New("conv: value overflows field")

// Ref narrows an in-page offset to a reference field of width bytes (2 or 4).
func Ref(off, width int) (uint32, error) {
	var limit uint64
	switch width {
	case 2:
		limit = math.MaxUint16
	case 4:
		limit = math.MaxUint32
	default:
		return 0, fmt.Errorf("conv: invalid ref width %d", width)
	}
	if off < 0 || uint64(off) > limit {
		return 0, fmt.Errorf("%w: offset %d in a %d-byte ref", ErrOverflow, off, width)
	}
	return uint32(off), nil
}

// PageNum checks that n fits a page number field of width bytes (4 or 8).
func PageNum(n uint64, width int) (uint64, error) {
	switch width {
	case 4:
		if n > math.MaxUint32 {
			return 0, fmt.Errorf("%w: page %d in a 4-byte page number", ErrOverflow, n)
		}
	case 8:
	default:
		return 0, fmt.Errorf("conv: invalid page number width %d", width)
	}
	return n, nil
}

// Int64ToInt32 narrows a virtual-space offset to a 32-bit link.
func Int64ToInt32(v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d in an int32 link", ErrOverflow, v)
	}
	return int32(v), nil
}
