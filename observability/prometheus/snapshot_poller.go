package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-forkjoin/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// taskKinds label the pool_tasks gauge, in PoolStats field order.
var taskKinds = []string{"submitted", "completed", "stolen", "panicked"}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolOutstanding *prom.GaugeVec
	poolAwaiting    *prom.GaugeVec
	poolActive      *prom.GaugeVec
	poolOrphans     *prom.GaugeVec
	poolWorkers     *prom.GaugeVec
	poolRunning     *prom.GaugeVec
	poolTasks       *prom.GaugeVec // submitted/completed/stolen/panicked totals

	workerExecuted *prom.GaugeVec
	workerStolen   *prom.GaugeVec
	workerBusy     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: DefaultNamespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:        interval,
		pools:           make(map[string]PoolSnapshotProvider),
		poolOutstanding: gauge("pool_outstanding_tasks", "Submitted tasks not yet completed per pool.", "pool"),
		poolAwaiting:    gauge("pool_awaiting_tasks", "Queued tasks not yet claimed per pool.", "pool"),
		poolActive:      gauge("pool_active", "Task bodies executing per pool.", "pool"),
		poolOrphans:     gauge("pool_orphan_queued", "Orphan queue depth per pool.", "pool"),
		poolWorkers:     gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning:     gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
		poolTasks:       gauge("pool_tasks", "Task counter snapshot per pool and kind.", "pool", "kind"),
		workerExecuted:  gauge("worker_executed", "Tasks executed per worker.", "pool", "worker"),
		workerStolen:    gauge("worker_stolen", "Tasks stolen per worker.", "pool", "worker"),
		workerBusy:      gauge("worker_busy", "Worker busy state (1=running a task, 0=idle).", "pool", "worker"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolOutstanding, &p.poolAwaiting, &p.poolActive, &p.poolOrphans,
		&p.poolWorkers, &p.poolRunning, &p.poolTasks,
		&p.workerExecuted, &p.workerStolen, &p.workerBusy,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// RemovePool stops exporting a pool and drops its series.
func (p *SnapshotPoller) RemovePool(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()

	provider, ok := p.pools[name]
	delete(p.pools, name)
	if !ok {
		return
	}

	for _, g := range []*prom.GaugeVec{
		p.poolOutstanding, p.poolAwaiting, p.poolActive, p.poolOrphans,
		p.poolWorkers, p.poolRunning,
	} {
		g.DeleteLabelValues(name)
	}
	for _, kind := range taskKinds {
		p.poolTasks.DeleteLabelValues(name, kind)
	}
	for _, w := range provider.Stats().WorkerStats {
		id := strconv.Itoa(w.ID)
		p.workerExecuted.DeleteLabelValues(name, id)
		p.workerStolen.DeleteLabelValues(name, id)
		p.workerBusy.DeleteLabelValues(name, id)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	defer p.poolsMu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolOutstanding.WithLabelValues(name).Set(float64(stats.TotalTasks))
		p.poolAwaiting.WithLabelValues(name).Set(float64(stats.AwaitingTasks))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolOrphans.WithLabelValues(name).Set(float64(stats.OrphanQueued))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))

		counts := []uint64{stats.Submitted, stats.Completed, stats.Stolen, stats.Panicked}
		for i, kind := range taskKinds {
			p.poolTasks.WithLabelValues(name, kind).Set(float64(counts[i]))
		}

		for _, w := range stats.WorkerStats {
			id := strconv.Itoa(w.ID)
			p.workerExecuted.WithLabelValues(name, id).Set(float64(w.Executed))
			p.workerStolen.WithLabelValues(name, id).Set(float64(w.Stolen))
			p.workerBusy.WithLabelValues(name, id).Set(boolGauge(w.Busy))
		}
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
