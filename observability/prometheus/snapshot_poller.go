package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-graph/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const snapshotNamespace = "taskgraph"

// PoolSnapshotProvider provides current scheduler stats snapshots.
// *core.Scheduler implements it.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

var _ PoolSnapshotProvider = (*core.Scheduler)(nil)

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolQueued      *prom.GaugeVec
	poolActive      *prom.GaugeVec
	poolOutstanding *prom.GaugeVec
	poolWorkers     *prom.GaugeVec
	poolRunning     *prom.GaugeVec
	poolTasks       *prom.GaugeVec

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

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_queued",
		Help:      "Ready tasks waiting for a worker, by queue.",
	}, []string{"pool", "queue"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_active",
		Help:      "Payloads executing per pool.",
	}, []string{"pool"})
	poolOutstanding := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_outstanding",
		Help:      "Submitted tasks not yet resolved per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_running",
		Help:      "Pool running state (1=accepting work, 0=shutting down or stopped).",
	}, []string{"pool"})
	poolTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: snapshotNamespace,
		Name:      "pool_tasks",
		Help:      "Lifetime task counts snapshot per pool, by outcome.",
	}, []string{"pool", "outcome"})

	var err error
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolOutstanding, err = registerCollector(reg, poolOutstanding); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if poolTasks, err = registerCollector(reg, poolTasks); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		pools:           make(map[string]PoolSnapshotProvider),
		poolQueued:      poolQueued,
		poolActive:      poolActive,
		poolOutstanding: poolOutstanding,
		poolWorkers:     poolWorkers,
		poolRunning:     poolRunning,
		poolTasks:       poolTasks,
	}, nil
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

// RemovePool stops exporting the named pool and deletes its series.
func (p *SnapshotPoller) RemovePool(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	delete(p.pools, name)
	p.poolsMu.Unlock()

	labels := prom.Labels{"pool": name}
	p.poolQueued.DeletePartialMatch(labels)
	p.poolActive.DeletePartialMatch(labels)
	p.poolOutstanding.DeletePartialMatch(labels)
	p.poolWorkers.DeletePartialMatch(labels)
	p.poolRunning.DeletePartialMatch(labels)
	p.poolTasks.DeletePartialMatch(labels)
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

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling after one final collection; repeated calls are safe.
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

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			p.collectOnce()
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
		p.poolQueued.WithLabelValues(name, "injector").Set(float64(stats.Injected))
		p.poolQueued.WithLabelValues(name, "local").Set(float64(stats.Local))
		p.poolQueued.WithLabelValues(name, "pinned").Set(float64(stats.Pinned))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolOutstanding.WithLabelValues(name).Set(float64(stats.Outstanding))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
		p.poolTasks.WithLabelValues(name, "submitted").Set(float64(stats.Submitted))
		p.poolTasks.WithLabelValues(name, "completed").Set(float64(stats.Completed))
		p.poolTasks.WithLabelValues(name, "failed").Set(float64(stats.Failed))
		p.poolTasks.WithLabelValues(name, "cancelled").Set(float64(stats.Cancelled))
		p.poolTasks.WithLabelValues(name, "stolen").Set(float64(stats.Steals))
	}
}
