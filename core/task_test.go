package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with non-empty string
func TestTaskID_StringAndIsZero(t *testing.T) {
	// Arrange
	var zero TaskID

	// Act and Assert
	if !zero.IsZero() {
		t.Fatal("zero TaskID should report IsZero() == true")
	}

	// Act
	id := GenerateTaskID()

	// Assert
	if id.IsZero() {
		t.Fatal("generated TaskID should not be zero")
	}
	if len(id.String()) != 36 {
		t.Fatalf("TaskID.String() = %q, want canonical uuid form", id.String())
	}
	if id == GenerateTaskID() {
		t.Fatal("generated TaskIDs should be unique")
	}
}

func TestTaskState_String(t *testing.T) {
	tests := map[TaskState]string{
		TaskStateCreated:   "created",
		TaskStateQueued:    "queued",
		TaskStateRunning:   "running",
		TaskStateDraining:  "draining",
		TaskStateCompleted: "completed",
		TaskState(42):      "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("TaskState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestTaskTraits(t *testing.T) {
	if DefaultTaskTraits().Orphan {
		t.Error("default traits should not be orphan")
	}
	if !TraitsOrphan().Orphan {
		t.Error("TraitsOrphan() should set Orphan")
	}
}

// TestTaskNode_Claim verifies only one caller can claim a queued node
// Given: A queued node and 16 concurrent claimers
// When: All of them call claim
// Then: Exactly one wins and the node is running
func TestTaskNode_Claim(t *testing.T) {
	n := newTaskNode(func(ctx context.Context) {}, "claim", nil, 1)
	n.setState(TaskStateQueued)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n.claim() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("claims won = %d, want 1", wins)
	}
	if n.State() != TaskStateRunning {
		t.Errorf("state = %v, want running", n.State())
	}
	if n.claim() {
		t.Error("a running node must not be claimable")
	}
}

// TestTaskNode_PendingChildren verifies the join counter and first-failure propagation
func TestTaskNode_PendingChildren(t *testing.T) {
	n := newTaskNode(func(ctx context.Context) {}, "parent", nil, 4)
	n.addChild()
	n.addChild()

	first := &TaskPanicError{Name: "first", PanicValue: 1}
	second := &TaskPanicError{Name: "second", PanicValue: 2}

	waited := make(chan struct{})
	go func() {
		n.waitPending()
		close(waited)
	}()

	n.childFinished(first)
	select {
	case <-waited:
		t.Fatal("waitPending returned with a child still pending")
	case <-time.After(20 * time.Millisecond):
	}

	n.childFinished(second)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("waitPending did not return after the last child finished")
	}

	if n.pendingChildren() != 0 {
		t.Errorf("pendingChildren() = %d, want 0", n.pendingChildren())
	}
	if n.Err() != first {
		t.Errorf("Err() = %v, want the first failure", n.Err())
	}
}

func TestTaskNode_ChildFinishedUnderflowPanics(t *testing.T) {
	n := newTaskNode(func(ctx context.Context) {}, "", nil, 1)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on negative child counter")
		}
	}()
	n.childFinished(nil)
}

// TestTaskNode_ResolvedName verifies explicit names win over function names
func TestTaskNode_ResolvedName(t *testing.T) {
	named := newTaskNode(func(ctx context.Context) {}, "explicit", nil, 1)
	if named.name != "explicit" {
		t.Errorf("name = %q, want explicit", named.name)
	}

	anon := newTaskNode(func(ctx context.Context) {}, "", nil, 1)
	if anon.name == "" || anon.name == "anonymous" {
		t.Errorf("name = %q, want the function name", anon.name)
	}
}

// TestWorkerPool_ReleaseGate verifies a queued node does not start before it is released
// Given: A node pushed into the orphan queue with its release gate still open
// When: A worker claims it
// Then: The body only runs after the gate is closed
func TestWorkerPool_ReleaseGate(t *testing.T) {
	p := NewWorkerPool(&PoolConfig{Workers: 2, Logger: NewNoOpLogger()})
	defer p.Destroy()

	ran := make(chan struct{})
	n := newTaskNode(func(ctx context.Context) { close(ran) }, "gated", nil, 1)
	n.setState(TaskStateQueued)
	p.barrier.Add(1)
	p.awaiting.Add(1)
	p.orphans.TryPush(n)
	p.wakeOne()

	select {
	case <-ran:
		t.Fatal("body ran before the node was released")
	case <-time.After(30 * time.Millisecond):
	}
	if n.isBodyDone() {
		t.Fatal("body should not be done before release")
	}

	close(n.released)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("body did not run after release")
	}
	p.DrainBarrier()
	if !n.isBodyDone() || n.State() != TaskStateCompleted {
		t.Errorf("state = %v, want completed", n.State())
	}
}

// TestWorkerPool_ForkOrdering verifies a child observes its parent's finished Submit
// Given: Parents forking children on a busy pool
// When: Each child body starts
// Then: The parent already counts it as pending and its own gate is closed
func TestWorkerPool_ForkOrdering(t *testing.T) {
	p := NewWorkerPool(&PoolConfig{Workers: 4, Logger: NewNoOpLogger()})
	defer p.Destroy()

	var mu sync.Mutex
	var violations int

	for range 50 {
		p.SubmitOrphan(func(ctx context.Context) {
			parent := executionFrom(ctx).node
			for range 10 {
				p.Submit(ctx, func(ctx context.Context) {
					self := executionFrom(ctx).node
					select {
					case <-self.released:
					default:
						mu.Lock()
						violations++
						mu.Unlock()
					}
					if self.parent != parent || parent.pendingChildren() < 1 {
						mu.Lock()
						violations++
						mu.Unlock()
					}
				})
			}
		})
	}
	p.DrainBarrier()

	if violations != 0 {
		t.Errorf("fork ordering violations = %d, want 0", violations)
	}
}

// TestCurrentTaskID_PlainContext verifies the helpers outside a task
func TestCurrentTaskID_PlainContext(t *testing.T) {
	if _, ok := CurrentTaskID(context.Background()); ok {
		t.Error("CurrentTaskID(background) should report false")
	}
	if executionFrom(nil) != nil {
		t.Error("executionFrom(nil) should be nil")
	}
	if id := CurrentWorkerID(context.Background()); id != -1 {
		t.Errorf("CurrentWorkerID(background) = %d, want -1", id)
	}
}
