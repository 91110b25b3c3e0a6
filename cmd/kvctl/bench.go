package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/relkv/pkg/kv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	benchWorkers  int
	benchRequests int
	benchKeys     int
	benchRate     float64
	benchOps      string

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Runs a small load test against the configured backend",
		Long: `bench drives concurrent set, get, incr and hincr commands against
throwaway keys and prints throughput and mean latency per command.
Keys are prefixed with a random id and deleted afterwards.`,
		Args: cobra.NoArgs,
		RunE: runBench,
	}
)

func init() {
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 10, "number of concurrent workers")
	benchCmd.Flags().IntVar(&benchRequests, "requests", 1000, "requests per command")
	benchCmd.Flags().IntVar(&benchKeys, "keys", 100, "number of distinct keys to spread requests over")
	benchCmd.Flags().Float64Var(&benchRate, "rate", 0, "maximum requests per second (0 for unlimited)")
	benchCmd.Flags().StringVar(&benchOps, "ops", "set,get,incr,hincr", "commands to run (comma separated)")
}

type benchOp func(ctx context.Context, key string) error

func benchCommands() map[string]benchOp {
	return map[string]benchOp{
		"set": func(ctx context.Context, key string) error {
			return store.Set(ctx, key, "bench")
		},
		"get": func(ctx context.Context, key string) error {
			_, _, err := store.Get(ctx, key)
			return err
		},
		"incr": func(ctx context.Context, key string) error {
			_, err := store.Increment(ctx, key)
			return err
		},
		"hincr": func(ctx context.Context, key string) error {
			_, err := store.HIncrBy(ctx, key, "n", 1)
			return err
		},
	}
}

type benchResult struct {
	requests int64
	failures int64
	elapsed  time.Duration
	latency  time.Duration
}

func runBench(cmd *cobra.Command, _ []string) error {
	if benchWorkers < 1 || benchRequests < 1 || benchKeys < 1 {
		return fmt.Errorf("workers, requests and keys must be positive")
	}

	available := benchCommands()
	prefix := "__bench:" + uuid.NewString()
	fmt.Printf("Benchmarking with %d workers, %d requests per command, prefix %s\n\n", benchWorkers, benchRequests, prefix)

	for _, name := range strings.Split(benchOps, ",") {
		name = strings.TrimSpace(name)
		op, ok := available[name]
		if !ok {
			return fmt.Errorf("unknown bench command %q", name)
		}

		keys := make([]string, benchKeys)
		for i := range keys {
			keys[i] = fmt.Sprintf("%s:%s:%d", prefix, name, i)
		}

		res, err := benchOne(cmd.Context(), op, keys)
		if cleanupErr := store.DeleteAll(cmd.Context(), keys); cleanupErr != nil {
			logger.Warnw("Failed to clean up bench keys", "op", name, "error", cleanupErr)
		}
		if err != nil {
			return err
		}
		printBenchResult(name, res)
	}
	return nil
}

func benchOne(ctx context.Context, op benchOp, keys []string) (benchResult, error) {
	limit := rate.Inf
	if benchRate > 0 {
		limit = rate.Limit(benchRate)
	}
	limiter := rate.NewLimiter(limit, benchWorkers)

	var (
		next     atomic.Int64
		failures atomic.Int64
		latency  atomic.Int64
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < benchWorkers; w++ {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if i >= int64(benchRequests) {
					return nil
				}
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				t := time.Now()
				err := op(ctx, keys[i%int64(len(keys))])
				latency.Add(int64(time.Since(t)))
				if err != nil {
					// A lost connection ends the run; anything else is counted.
					if errors.Is(err, kv.ErrBackendUnavailable) {
						return err
					}
					failures.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	return benchResult{
		requests: int64(benchRequests),
		failures: failures.Load(),
		elapsed:  time.Since(start),
		latency:  time.Duration(latency.Load() / int64(benchRequests)),
	}, nil
}

func printBenchResult(name string, r benchResult) {
	opsPerSec := float64(r.requests) / r.elapsed.Seconds()
	fmt.Printf("%-6s %8d req  %10.1f ops/s  %12s avg  %d failed\n", name, r.requests, opsPerSec, r.latency, r.failures)
}
