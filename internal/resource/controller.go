package resource

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits of a Controller.
type Config struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// If 0, defaults to 1.
	MaxWorkers int64

	// IOBytesPerSec is the maximum IO throughput.
	// If 0, unlimited.
	IOBytesPerSec int64
}

// Controller bounds the workers and IO throughput of a bulk operation.
// A nil *Controller imposes no limits.
type Controller struct {
	workers *semaphore.Weighted
	io      *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}
	if cfg.IOBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}
	return c
}

// AcquireWorker reserves a worker slot, blocking while all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// TryAcquireWorker reserves a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	return c.workers.TryAcquire(1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// AcquireIO waits until the IO limit allows n bytes. Requests larger than
// the limiter's burst are split.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for n > 0 {
		k := min(n, burst)
		if err := c.io.WaitN(ctx, k); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// TryAcquireIO takes IO tokens for n bytes without blocking.
func (c *Controller) TryAcquireIO(n int) bool {
	if c == nil || c.io == nil {
		return true
	}
	return c.io.AllowN(time.Now(), n)
}
