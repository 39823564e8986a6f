package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/pagetree"
	"github.com/hupe1980/pagetree/value"
)

type benchConfig struct {
	workers int
	ops     int
	rate    float64
	keys    int
	tree    string
}

func cmdBench(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(e.stderr)

	var cfg benchConfig
	fs.IntVar(&cfg.workers, "workers", 4, "concurrent workers")
	fs.IntVar(&cfg.ops, "ops", 10000, "total operations")
	fs.Float64Var(&cfg.rate, "rate", 0, "operations per second (0 = unlimited)")
	fs.IntVar(&cfg.keys, "keys", 64, "distinct keys")
	fs.StringVar(&cfg.tree, "tree", "bench", "tree name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if cfg.workers <= 0 || cfg.ops <= 0 || cfg.keys <= 0 {
		return fmt.Errorf("%w: workers, ops and keys must be positive", errUsage)
	}

	metrics := &pagetree.BasicMetricsCollector{}
	db, err := e.open(pagetree.WithMetricsCollector(metrics))
	if err != nil {
		return err
	}
	defer db.Close()

	elapsed, err := runBench(ctx, db, cfg)
	if err != nil {
		return err
	}

	s := metrics.GetStats()
	fmt.Fprintf(e.stdout, "%d ops in %s (%.0f ops/s)\n", cfg.ops, elapsed.Round(time.Millisecond), float64(cfg.ops)/elapsed.Seconds())
	fmt.Fprintf(e.stdout, "gets:     %d (%d hits, avg %dns)\n", s.GetCount, s.GetHits, s.GetAvgNanos)
	fmt.Fprintf(e.stdout, "puts:     %d (avg %dns)\n", s.PutCount, s.PutAvgNanos)
	fmt.Fprintf(e.stdout, "replaces: %d (%d swapped)\n", s.ReplaceCount, s.ReplaceSwapped)
	fmt.Fprintf(e.stdout, "errors:   %d get, %d put, %d capacity\n", s.GetErrors, s.PutErrors, s.CapacityErrors)
	return nil
}

// runBench spreads cfg.ops over cfg.workers goroutines. Each operation is a
// Get, a counter Increment or a Put on a key drawn from a fixed key set, so
// the leaf stops growing once every key exists.
func runBench(ctx context.Context, db *pagetree.DB, cfg benchConfig) (time.Duration, error) {
	tree, err := db.Tree(cfg.tree)
	if err != nil {
		return 0, err
	}

	var limiter *rate.Limiter
	if cfg.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rate), cfg.workers)
	}

	var next atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w) + 1))
			for next.Add(1) <= int64(cfg.ops) {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
				} else if err := gctx.Err(); err != nil {
					return err
				}

				k := rng.Intn(cfg.keys)
				switch op := rng.Intn(10); {
				case op < 6:
					if _, _, err := tree.Get(value.Int(int64(k))); err != nil {
						return err
					}
				case op < 9:
					if _, err := tree.Increment(value.Int(int64(k)), 1); err != nil {
						return err
					}
				default:
					if _, _, err := tree.Put(value.String(fmt.Sprintf("last-%d", w)), value.MutableLong(int64(k))); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
