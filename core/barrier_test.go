package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestCompletionBarrier_WaitAtZero verifies an idle barrier never blocks
func TestCompletionBarrier_WaitAtZero(t *testing.T) {
	b := NewCompletionBarrier()

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on an idle barrier")
	}
}

// TestCompletionBarrier_WaitsForOutstanding verifies Wait releases on the last Done
// Given: A barrier with 3 outstanding tasks
// When: They complete one by one
// Then: Wait returns only after the last one
func TestCompletionBarrier_WaitsForOutstanding(t *testing.T) {
	b := NewCompletionBarrier()
	b.Add(3)

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	b.Done()
	b.Done()
	select {
	case <-done:
		t.Fatal("Wait returned with a task outstanding")
	case <-time.After(20 * time.Millisecond):
	}
	if got := b.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	b.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last Done")
	}
}

// TestCompletionBarrier_Reuse verifies the barrier can go back up after reaching zero
func TestCompletionBarrier_Reuse(t *testing.T) {
	b := NewCompletionBarrier()

	for range 3 {
		var wg sync.WaitGroup
		for range 100 {
			b.Add(1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Done()
			}()
		}
		b.Wait()
		wg.Wait()
		if got := b.Count(); got != 0 {
			t.Fatalf("Count() = %d, want 0", got)
		}
	}
}

func TestCompletionBarrier_NegativePanics(t *testing.T) {
	b := NewCompletionBarrier()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on negative counter")
		}
	}()
	b.Done()
}

// TestCompletionBarrier_WaitContext verifies a bounded wait gives up and leaves the barrier usable
// Given: A barrier with 1 outstanding task
// When: WaitContext runs with a short deadline, then the task completes
// Then: The first wait reports the deadline and a later Wait returns
func TestCompletionBarrier_WaitContext(t *testing.T) {
	b := NewCompletionBarrier()
	b.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitContext() = %v, want DeadlineExceeded", err)
	}

	b.Done()
	if err := b.WaitContext(context.Background()); err != nil {
		t.Errorf("WaitContext() after Done = %v", err)
	}

	// Leaving zero and coming back closes a fresh channel
	b.Add(2)
	go func() {
		b.Done()
		b.Done()
	}()
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the counter dropped back to zero")
	}
}
