package cli

import (
	"context"
	"fmt"
	"sync/atomic"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	maxFib       = 90
	maxTreeNodes = 1 << 24
)

func (a *app) newFibCommand() *cobra.Command {
	var n, cutoff int

	cmd := &cobra.Command{
		Use:   "fib",
		Short: "Compute a Fibonacci number by recursive forking",
		Long: `fib forks two children per call until n drops below the cutoff, then
computes sequentially. Every join happens through WaitChildren.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 0 || n > maxFib {
				return errors.Errorf("n must be between 0 and %d, got %d", maxFib, n)
			}
			if cutoff < 2 {
				cutoff = 2
			}
			return a.run(cmd, func(ctx context.Context, pool *forkjoin.Pool) (string, error) {
				var result uint64
				err := pool.Go(ctx, func(ctx context.Context) {
					result = parallelFib(ctx, pool, n, cutoff)
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("fib(%d) = %d", n, result), nil
			})
		},
	}

	cmd.Flags().IntVar(&n, "n", 25, "which Fibonacci number to compute")
	cmd.Flags().IntVar(&cutoff, "cutoff", 12, "below this n, compute without forking")
	return cmd
}

func parallelFib(ctx context.Context, pool *forkjoin.Pool, n, cutoff int) uint64 {
	if n < cutoff {
		return sequentialFib(n)
	}

	var x, y uint64
	pool.Submit(ctx, func(ctx context.Context) { x = parallelFib(ctx, pool, n-1, cutoff) })
	pool.Submit(ctx, func(ctx context.Context) { y = parallelFib(ctx, pool, n-2, cutoff) })
	if err := pool.WaitChildren(ctx); err != nil {
		// the failure is already recorded on every ancestor
		return 0
	}
	return x + y
}

func sequentialFib(n int) uint64 {
	var a, b uint64 = 0, 1
	for range n {
		a, b = b, a+b
	}
	return a
}

func (a *app) newCounterCommand() *cobra.Command {
	var tasks int

	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Increment a shared counter from many orphan tasks",
		Long: `counter submits one orphan task per increment, in batches that fit the
orphan queue, and drains the pool's barrier after every batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tasks < 0 {
				return errors.Errorf("tasks must not be negative, got %d", tasks)
			}
			batch := a.cfg.Pool.OrphanQueueCapacity

			return a.run(cmd, func(ctx context.Context, pool *forkjoin.Pool) (string, error) {
				var counter atomic.Int64
				for submitted := 0; submitted < tasks; {
					size := min(batch, tasks-submitted)
					for range size {
						pool.SubmitOrphan(func(context.Context) { counter.Add(1) })
					}
					submitted += size
					pool.DrainBarrier()

					if err := ctx.Err(); err != nil {
						return "", err
					}
				}

				got := counter.Load()
				if got != int64(tasks) {
					return "", errors.Errorf("counter = %d, expected %d", got, tasks)
				}
				return fmt.Sprintf("counter = %d (expected %d)", got, tasks), nil
			})
		},
	}

	cmd.Flags().IntVar(&tasks, "tasks", 10000, "number of increment tasks")
	return cmd
}

func (a *app) newTreeCommand() *cobra.Command {
	var depth, fanout int

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Fork a uniform task tree and count its leaves",
		Long: `tree forks fanout children per node down to depth levels. Leaves
increment a counter; inner nodes join their children with WaitChildren.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 || fanout < 1 {
				return errors.Errorf("depth must be >= 0 and fanout >= 1, got depth=%d fanout=%d", depth, fanout)
			}
			if fanout > a.cfg.Pool.ChildQueueCapacity {
				return errors.Errorf("fanout %d exceeds the child queue capacity %d", fanout, a.cfg.Pool.ChildQueueCapacity)
			}
			expected := 1
			for range depth {
				expected *= fanout
				if expected > maxTreeNodes {
					return errors.Errorf("tree would have more than %d leaves", maxTreeNodes)
				}
			}

			return a.run(cmd, func(ctx context.Context, pool *forkjoin.Pool) (string, error) {
				var leaves atomic.Int64
				err := pool.Go(ctx, func(ctx context.Context) {
					forkTree(ctx, pool, depth, fanout, &leaves)
				})
				if err != nil {
					return "", err
				}

				got := leaves.Load()
				if got != int64(expected) {
					return "", errors.Errorf("leaves = %d, expected %d", got, expected)
				}
				return fmt.Sprintf("leaves = %d (expected %d)", got, expected), nil
			})
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 4, "levels below the root")
	cmd.Flags().IntVar(&fanout, "fanout", 8, "children per inner node")
	return cmd
}

func forkTree(ctx context.Context, pool *forkjoin.Pool, depth, fanout int, leaves *atomic.Int64) {
	if depth == 0 {
		leaves.Add(1)
		return
	}
	for range fanout {
		pool.Submit(ctx, func(ctx context.Context) {
			forkTree(ctx, pool, depth-1, fanout, leaves)
		})
	}
	_ = pool.WaitChildren(ctx)
}
