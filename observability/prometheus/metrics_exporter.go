package prometheus

import (
	"strconv"
	"time"

	"github.com/Swind/go-forkjoin/core"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector unless a namespace is given.
const DefaultNamespace = "forkjoin"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskStolenTotal     *prom.CounterVec
	queueOverflowTotal  *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
// Exporters created on the same registry share their collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		// Task bodies are typically short; start at 10µs
		buckets = prom.ExponentialBuckets(0.00001, 4, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task body execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"pool"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"pool"})
	stolenVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_stolen_total",
		Help:      "Total number of tasks stolen from another worker's current task.",
	}, []string{"pool", "worker"})
	overflowVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queue_overflow_total",
		Help:      "Total number of pushes into a full queue.",
	}, []string{"pool", "queue"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queue depth after the last push.",
	}, []string{"pool", "queue"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if stolenVec, err = registerCollector(reg, stolenVec); err != nil {
		return nil, err
	}
	if overflowVec, err = registerCollector(reg, overflowVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskStolenTotal:     stolenVec,
		queueOverflowTotal:  overflowVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskDuration records task body duration.
func (m *MetricsExporter) RecordTaskDuration(poolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(poolID, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(poolID string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(poolID, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolID string, queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(queue, "unknown")).Set(float64(depth))
}

// RecordTaskStolen records a successful steal by workerID.
func (m *MetricsExporter) RecordTaskStolen(poolID string, workerID int) {
	if m == nil {
		return
	}
	m.taskStolenTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), strconv.Itoa(workerID)).Inc()
}

// RecordQueueOverflow records a push into a full queue.
func (m *MetricsExporter) RecordQueueOverflow(poolID string, queue string) {
	if m == nil {
		return
	}
	m.queueOverflowTotal.WithLabelValues(normalizeLabel(poolID, "unknown"), normalizeLabel(queue, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, errors.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, errors.Wrap(err, "register collector")
}
