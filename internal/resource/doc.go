// Package resource limits the workers and IO bandwidth of bulk operations
// such as snapshot export and import.
//
//	rc := resource.NewController(resource.Config{
//	    MaxWorkers:    4,
//	    IOBytesPerSec: 64 << 20,
//	})
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
//	w = resource.NewRateLimitedWriter(ctx, w, rc)
//
// Workers are a weighted semaphore; IO is a token bucket refilled at
// IOBytesPerSec with a burst of one second. All methods accept a nil
// *Controller and then do nothing.
package resource
