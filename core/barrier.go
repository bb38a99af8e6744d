package core

import (
	"context"
	"sync"
)

// CompletionBarrier counts outstanding tasks. Every task creation adds one,
// every task completion removes one, and Wait blocks until the count is zero.
//
// Unlike sync.WaitGroup, Add may be called concurrently with Wait while the
// counter is already zero, since new orphans can arrive at any time.
type CompletionBarrier struct {
	mu    sync.Mutex
	count int
	// idle is closed while count is zero and replaced when it leaves zero
	idle chan struct{}
}

func NewCompletionBarrier() *CompletionBarrier {
	idle := make(chan struct{})
	close(idle)
	return &CompletionBarrier{idle: idle}
}

func (b *CompletionBarrier) Add(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.count
	b.count += delta
	if b.count < 0 {
		panic("forkjoin: negative completion barrier counter")
	}
	switch {
	case prev == 0 && b.count > 0:
		b.idle = make(chan struct{})
	case prev > 0 && b.count == 0:
		close(b.idle)
	}
}

func (b *CompletionBarrier) Done() {
	b.Add(-1)
}

// Wait blocks until no task is queued or executing.
func (b *CompletionBarrier) Wait() {
	_ = b.WaitContext(context.Background())
}

// WaitContext is Wait that gives up when ctx is done. It leaves nothing
// behind on cancellation.
func (b *CompletionBarrier) WaitContext(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.count == 0 {
			b.mu.Unlock()
			return nil
		}
		idle := b.idle
		b.mu.Unlock()

		select {
		case <-idle:
			// The count may have left zero again; recheck
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Count returns the number of outstanding tasks.
func (b *CompletionBarrier) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
