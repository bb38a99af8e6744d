package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-forkjoin/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("pool-a", 250*time.Millisecond)
	exporter.RecordTaskPanic("pool-a", "panic")
	exporter.RecordQueueDepth("pool-a", core.QueueOrphan, 7)
	exporter.RecordTaskStolen("pool-a", 3)
	exporter.RecordTaskStolen("pool-a", 3)
	exporter.RecordQueueOverflow("pool-a", core.QueueChild)

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("pool-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("pool-a", "orphan"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	stolen := testutil.ToFloat64(exporter.taskStolenTotal.WithLabelValues("pool-a", "3"))
	if stolen != 2 {
		t.Fatalf("stolen total = %v, want 2", stolen)
	}

	overflow := testutil.ToFloat64(exporter.queueOverflowTotal.WithLabelValues("pool-a", "child"))
	if overflow != 1 {
		t.Fatalf("overflow total = %v, want 1", overflow)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("pool-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_EmptyLabels(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordQueueOverflow("", "")

	if got := testutil.ToFloat64(exporter.queueOverflowTotal.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("overflow total = %v, want 1", got)
	}

	var nilExporter *MetricsExporter
	nilExporter.RecordTaskPanic("pool-a", nil)
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("pool-a", nil)
	second.RecordTaskPanic("pool-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("pool-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

// TestMetricsExporter_WorkerPool verifies a live pool reports through the exporter
func TestMetricsExporter_WorkerPool(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("forkjoin", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	pool := core.NewWorkerPool(&core.PoolConfig{
		ID:           "metrics-pool",
		Workers:      2,
		Metrics:      exporter,
		Logger:       core.NewNoOpLogger(),
		PanicHandler: &core.DefaultPanicHandler{Logger: core.NewNoOpLogger()},
	})
	defer pool.Destroy()

	for range 10 {
		pool.SubmitOrphan(func(ctx context.Context) {})
	}
	pool.SubmitOrphan(func(ctx context.Context) { panic("boom") })
	pool.DrainBarrier()

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("metrics-pool"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 11 {
		t.Fatalf("duration sample count = %d, want 11", histCount)
	}
	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("metrics-pool")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(exporter.queueDepth); got != 1 {
		t.Fatalf("queue depth series = %d, want 1 (orphan)", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
