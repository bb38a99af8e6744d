package forkjoin_test

import (
	"context"
	"fmt"
	"sync/atomic"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/core"
)

// ExampleNewPool demonstrates orphan submission and the drain barrier.
func ExampleNewPool() {
	pool := forkjoin.NewPool(4, forkjoin.WithLogger(core.NewNoOpLogger()))
	defer pool.Destroy()

	var counter atomic.Int64
	for range 1000 {
		pool.SubmitOrphan(func(ctx context.Context) {
			counter.Add(1)
		})
	}

	pool.DrainBarrier()
	fmt.Println("counter:", counter.Load())

	// Output:
	// counter: 1000
}

// ExampleWaitChildren demonstrates joining children from inside a task.
func ExampleWaitChildren() {
	pool := forkjoin.NewPool(2, forkjoin.WithLogger(core.NewNoOpLogger()))
	defer pool.Destroy()

	h := pool.SubmitOrphan(func(ctx context.Context) {
		results := make([]int, 3)
		for i := range results {
			pool.Submit(ctx, func(ctx context.Context) {
				results[i] = (i + 1) * 10
			})
		}
		forkjoin.WaitChildren(ctx)
		fmt.Println("results:", results)
	})
	h.Wait()

	// Output:
	// results: [10 20 30]
}

func fib(pool *forkjoin.Pool, ctx context.Context, n int) int {
	if n < 2 {
		return n
	}
	var a, b int
	left := pool.Submit(ctx, func(ctx context.Context) { a = fib(pool, ctx, n-1) })
	b = fib(pool, ctx, n-2)
	left.WaitContext(ctx)
	return a + b
}

// ExampleTaskHandle_WaitContext demonstrates recursive fork-join.
func ExampleTaskHandle_WaitContext() {
	pool := forkjoin.NewPool(4, forkjoin.WithLogger(core.NewNoOpLogger()))
	defer pool.Destroy()

	var result int
	pool.SubmitOrphan(func(ctx context.Context) {
		result = fib(pool, ctx, 20)
	}).Wait()

	fmt.Println("fib(20) =", result)

	// Output:
	// fib(20) = 6765
}
