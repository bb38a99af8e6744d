package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler writing to a buffer
	var buf bytes.Buffer
	handler := &DefaultPanicHandler{Logger: NewLogrusLogger("info", &buf)}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-pool", 3, "test panic", []byte("stack trace"))

	// Then: The panic is logged with pool, worker and stack fields
	out := buf.String()
	for _, want := range []string{"task panicked", "pool=test-pool", "worker=3", "test panic", "stack trace"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestDefaultPanicHandler_NilLogger(t *testing.T) {
	// Given: A DefaultPanicHandler without a logger
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	// Then: No panic should occur
	handler.HandlePanic(context.Background(), "test-pool", -1, "test panic", nil)
}

// =============================================================================
// Test Metrics
// =============================================================================

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics instance
	m := &NilMetrics{}

	// When: Every method is called
	// Then: No panic should occur
	m.RecordTaskDuration("pool", time.Second)
	m.RecordTaskPanic("pool", "panic")
	m.RecordQueueDepth("pool", QueueOrphan, 10)
	m.RecordTaskStolen("pool", 1)
	m.RecordQueueOverflow("pool", QueueChild)
}

// =============================================================================
// Test PoolConfig
// =============================================================================

func TestDefaultPoolConfig(t *testing.T) {
	// Given/When: DefaultPoolConfig is called
	cfg := DefaultPoolConfig()

	// Then: Every handler is set and capacities use package defaults
	if cfg.PanicHandler == nil || cfg.Metrics == nil || cfg.Logger == nil {
		t.Fatal("default config should set every handler")
	}
	if _, ok := cfg.PanicHandler.(*DefaultPanicHandler); !ok {
		t.Errorf("PanicHandler = %T, want *DefaultPanicHandler", cfg.PanicHandler)
	}
	if _, ok := cfg.Metrics.(*NilMetrics); !ok {
		t.Errorf("Metrics = %T, want *NilMetrics", cfg.Metrics)
	}
	if cfg.OrphanQueueCapacity != DefaultOrphanQueueCapacity {
		t.Errorf("OrphanQueueCapacity = %d, want %d", cfg.OrphanQueueCapacity, DefaultOrphanQueueCapacity)
	}
	if cfg.ChildQueueCapacity != DefaultChildQueueCapacity {
		t.Errorf("ChildQueueCapacity = %d, want %d", cfg.ChildQueueCapacity, DefaultChildQueueCapacity)
	}
	if cfg.Workers > 0 {
		t.Errorf("Workers = %d, want hardware default", cfg.Workers)
	}
}

func TestPoolConfig_WithDefaults(t *testing.T) {
	// Given: A nil config and a partial config with a custom logger
	logger := NewNoOpLogger()
	partial := &PoolConfig{ID: "custom", ChildQueueCapacity: 8, Logger: logger}

	// When: Defaults are applied
	fromNil := (*PoolConfig)(nil).withDefaults()
	filled := partial.withDefaults()

	// Then: Unset fields are filled and set fields are kept
	if fromNil.ID != "forkjoin" || fromNil.Logger == nil || fromNil.Metrics == nil || fromNil.PanicHandler == nil {
		t.Errorf("nil config defaults = %+v", fromNil)
	}
	if filled.ID != "custom" || filled.ChildQueueCapacity != 8 {
		t.Errorf("partial config overwritten: %+v", filled)
	}
	if filled.OrphanQueueCapacity != DefaultOrphanQueueCapacity {
		t.Errorf("OrphanQueueCapacity = %d, want default", filled.OrphanQueueCapacity)
	}
	h, ok := filled.PanicHandler.(*DefaultPanicHandler)
	if !ok || h.Logger != logger {
		t.Error("default panic handler should log through the configured logger")
	}
	if partial.PanicHandler != nil {
		t.Error("withDefaults must not modify the original config")
	}
}
