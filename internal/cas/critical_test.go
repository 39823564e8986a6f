package cas

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriticalSectionExcludes(t *testing.T) {
	page := alignedPage(16)
	cs := NewCriticalSection(NewInt32(page, 0), 0)

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = cs.Do(func() error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4000, counter)
	assert.Equal(t, int32(0), NewInt32(page, 0).Load())
}

func TestCriticalSectionReleasesOnError(t *testing.T) {
	page := alignedPage(16)
	lock := NewInt32(page, 4)
	cs := NewCriticalSection(lock, 0)

	boom := errors.New("boom")
	err := cs.Do(func() error {
		assert.NotEqual(t, int32(0), lock.Load())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), lock.Load())
}

func TestCriticalSectionReleasesOnPanic(t *testing.T) {
	page := alignedPage(16)
	lock := NewInt32(page, 8)
	cs := NewCriticalSection(lock, 0)

	assert.Panics(t, func() {
		_ = cs.Do(func() error { panic("boom") })
	})
	assert.Equal(t, int32(0), lock.Load())

	assert.NoError(t, cs.Do(func() error { return nil }))
}
