package pagetree

import (
	"log/slog"

	"github.com/hupe1980/pagetree/paging"
)

// DefaultTreeCacheSize is the number of tree handles kept by default.
const DefaultTreeCacheSize = 1024

type options struct {
	metricsCollector    MetricsCollector
	logger              *Logger
	treeCacheSize       int
	concurrentBootstrap bool
	paging              []func(*paging.Options)
}

// Option configures Open behavior.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagetree.BasicMetricsCollector{}
//	db, _ := pagetree.Open(space, pagetree.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg latency: %dns\n", stats.PutCount, stats.PutAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pagetree.NewJSONLogger(slog.LevelInfo)
//	db, _ := pagetree.Open(space, pagetree.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithTreeCache sets how many tree handles the DB keeps so repeated Tree
// calls skip the registry walk. A size <= 0 disables the cache.
func WithTreeCache(size int) Option {
	return func(o *options) {
		o.treeCacheSize = size
	}
}

// WithConcurrentBootstrap selects how a blank space gets its master record.
// When enabled (the default) creation is guarded by the lock word on page 0,
// so openers in other goroutines or processes may race safely. Disable it
// only when a single opener is guaranteed.
func WithConcurrentBootstrap(enabled bool) Option {
	return func(o *options) {
		o.concurrentBootstrap = enabled
	}
}

// WithPaging passes options to the paging provider used by OpenFile and
// OpenMemory. Open ignores them.
//
// Example:
//
//	db, _ := pagetree.OpenFile("store.pt", 64<<20, pagetree.WithPaging(func(o *paging.Options) {
//	    o.PageSize = 16 << 10
//	    o.PageNums = paging.PageNum64
//	}))
func WithPaging(optFns ...func(*paging.Options)) Option {
	return func(o *options) {
		o.paging = append(o.paging, optFns...)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
		treeCacheSize:       DefaultTreeCacheSize,
		concurrentBootstrap: true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
