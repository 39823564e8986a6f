package pagetree

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagetree/internal/leaf"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/paging"
	"github.com/hupe1980/pagetree/value"
)

var (
	// ErrInvalidValue is returned for a zero key or value.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidName is returned for an empty tree name.
	ErrInvalidName = errors.New("invalid tree name")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("db is closed")

	// ErrReadOnly is returned by writes on a read-only space.
	ErrReadOnly = errors.New("db is read-only")

	// ErrCapacity matches every out-of-space condition.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrPageFull means a tree's data page cannot hold the entry.
	// Trees do not split, so the tree has reached its ceiling.
	ErrPageFull = fmt.Errorf("%w: page full", ErrCapacity)

	// ErrNoSpace means every page of the address space is allocated.
	ErrNoSpace = fmt.Errorf("%w: no free pages", ErrCapacity)

	// ErrTooLarge means a single key, value or name does not fit in a page.
	ErrTooLarge = fmt.Errorf("%w: too large for a page", ErrCapacity)

	// ErrCorrupt matches every *CorruptError.
	ErrCorrupt = errors.New("corrupt store")

	// ErrUnsupported is returned when a tree root is a reserved inner-node page.
	ErrUnsupported = errors.New("unsupported page kind")

	// ErrNotMutable is returned by Increment and Update when the stored value
	// is not a MutableLong.
	ErrNotMutable = errors.New("value is not a mutable long")
)

// CorruptError reports a page whose bytes violate the format.
//
// The original underlying error can be accessed via errors.Unwrap.
type CorruptError struct {
	Page   uint64
	Reason string
	cause  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt page %d: %s", e.Page, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrCorrupt) match.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// translatedError pairs a public sentinel with the internal error it stands
// for. The message is the internal one; both match errors.Is.
type translatedError struct {
	public error
	cause  error
}

func (e *translatedError) Error() string   { return e.cause.Error() }
func (e *translatedError) Unwrap() []error { return []error{e.public, e.cause} }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ce *page.CorruptError
	if errors.As(err, &ce) {
		return &CorruptError{Page: ce.Page, Reason: ce.Reason, cause: err}
	}

	// Capacity family, most specific first.
	for _, m := range []struct{ internal, public error }{
		{page.ErrPageFull, ErrPageFull},
		{page.ErrNoSpace, ErrNoSpace},
		{page.ErrTooLarge, ErrTooLarge},
		{page.ErrCapacity, ErrCapacity},
		{page.ErrUnsupported, ErrUnsupported},
		{leaf.ErrNotMutable, ErrNotMutable},
		{value.ErrInvalid, ErrInvalidValue},
		{paging.ErrClosed, ErrClosed},
	} {
		if errors.Is(err, m.internal) {
			return &translatedError{public: m.public, cause: err}
		}
	}

	return err
}
