package cas

import (
	"runtime"
	"time"
)

const (
	spinRounds = 64
	maxBackoff = time.Millisecond
)

// CriticalSection is a spinlock over an Int32 field.
//
// It is meant for rare, short sections such as one-time page bootstrap. The
// lock word is shared memory, so it also excludes other processes mapping
// the same page.
type CriticalSection struct {
	lock     Int32
	unlocked int32
	locked   int32
}

// NewCriticalSection returns a section guarded by lock, where unlocked is the
// value the field holds when nobody is inside.
func NewCriticalSection(lock Int32, unlocked int32) *CriticalSection {
	return &CriticalSection{
		lock:     lock,
		unlocked: unlocked,
		locked:   ^unlocked,
	}
}

// Do runs fn while holding the lock and returns its result. The lock is
// released even if fn panics.
func (c *CriticalSection) Do(fn func() error) error {
	c.acquire()
	defer c.lock.Store(c.unlocked)

	return fn()
}

func (c *CriticalSection) acquire() {
	backoff := time.Microsecond
	for i := 0; ; i++ {
		if c.lock.CompareAndSwap(c.unlocked, c.locked) {
			return
		}
		if i < spinRounds {
			runtime.Gosched()
			continue
		}
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
