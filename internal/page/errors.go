package page

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is the family of out-of-space conditions.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrPageFull means a leaf page cannot hold the entry; it needs a split.
	ErrPageFull = fmt.Errorf("%w: page full, needs split", ErrCapacity)
	// ErrNoSpace means the address space has no unallocated pages left.
	ErrNoSpace = fmt.Errorf("%w: no free pages", ErrCapacity)
	// ErrTooLarge means a single allocation exceeds a page heap.
	ErrTooLarge = fmt.Errorf("%w: allocation larger than a page heap", ErrCapacity)

	// ErrCorrupt matches every *CorruptError.
	ErrCorrupt = errors.New("corrupt page")
	// ErrUnsupported is returned for the reserved inner-node page kind.
	ErrUnsupported = errors.New("unsupported page kind")
)

// CorruptError reports a page whose contents violate the format.
type CorruptError struct {
	Page   uint64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt page %d: %s", e.Page, e.Reason)
}

// Is makes errors.Is(err, ErrCorrupt) match.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// Corruptf returns a *CorruptError for page n.
func Corruptf(n uint64, format string, args ...any) error {
	return &CorruptError{Page: n, Reason: fmt.Sprintf(format, args...)}
}
