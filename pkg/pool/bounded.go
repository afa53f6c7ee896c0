package pool

import (
	"context"
	"sync"
	"time"

	"github.com/masvboston/concurrent-aspects/pkg/common/rollingid"
)

// BoundedConfig configures a bounded Pool.
type BoundedConfig struct {
	// Core is the number of workers started immediately and kept around
	// as long as work keeps arriving. Core workers are still allowed to
	// time out when idle so process teardown is never blocked on them.
	// Zero means defaultCore().
	Core int

	// Max is the ceiling the pool expands to when the queue is full.
	// Zero means defaultMax().
	Max int

	// QueueCapacity bounds how many tasks may wait for a worker before
	// the caller-runs saturation policy kicks in. Zero means
	// DefaultQueueCapacity.
	QueueCapacity int

	// IdleTTL is how long an idle worker waits for a task before exiting.
	// Zero means DefaultIdleTTL.
	IdleTTL time.Duration
}

func (c BoundedConfig) withDefaults() BoundedConfig {
	if c.Core <= 0 {
		c.Core = defaultCore()
	}
	if c.Max <= 0 {
		c.Max = defaultMax()
	}
	if c.Max < c.Core {
		c.Max = c.Core
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	return c
}

// boundedPool is a fixed-capacity worker pool with a bounded queue and a
// caller-runs saturation policy: once the queue is full and the pool is
// already at Max workers, Submit executes the task inline on the caller's
// goroutine, producing natural backpressure.
type boundedPool struct {
	name    string
	cfg     BoundedConfig
	id      int64
	tID     rollingid.Generator
	metrics *metricsSet

	queue chan taskItem

	mu         sync.Mutex
	workers    int
	shutdown   bool
	drained    chan struct{}
	inflight   map[int64]context.CancelFunc
	inflightID int64
}

// NewBounded creates a bounded pool named name.
func NewBounded(name string, cfg BoundedConfig) Pool {
	cfg = cfg.withDefaults()
	p := &boundedPool{
		name:     name,
		cfg:      cfg,
		id:       poolID.Next(),
		queue:    make(chan taskItem, cfg.QueueCapacity),
		drained:  make(chan struct{}),
		inflight: make(map[int64]context.CancelFunc),
	}
	p.metrics = metricsFor(name)
	p.metrics.setWorkers(name, 0)
	p.metrics.setQueued(name, 0)
	for i := 0; i < cfg.Core; i++ {
		p.spawnWorkerLocked()
	}
	return p
}

func (p *boundedPool) Name() string { return p.name }

func (p *boundedPool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *boundedPool) QueueSize() int { return len(p.queue) }

func (p *boundedPool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, errAlreadyShutdown(p.name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	item := taskItem{ctx: taskCtx, cancel: cancel, task: task, handle: h}

	select {
	case p.queue <- item:
		if p.workers == 0 {
			p.spawnWorkerLocked()
		}
		p.mu.Unlock()
		p.metrics.incSubmitted(p.name)
		p.metrics.setQueued(p.name, p.QueueSize())
		return h, nil
	default:
	}

	if p.workers < p.cfg.Max {
		// The new worker takes a task off the full queue before it ever
		// needs p.mu, so this send completes while p.mu is held.
		p.spawnWorkerLocked()
		p.queue <- item
		p.mu.Unlock()
		p.metrics.incSubmitted(p.name)
		p.metrics.setQueued(p.name, p.QueueSize())
		return h, nil
	}
	p.mu.Unlock()

	// Caller-runs: the queue is full and the pool is already at Max, so
	// the submitting goroutine executes the task itself.
	p.metrics.incCallerRuns(p.name)
	id := p.registerInflight(item.cancel)
	item.run("callerRuns-" + p.name)
	p.unregisterInflight(id)
	p.recordOutcome(item)
	return h, nil
}

// recordOutcome increments the completed or failed counter for item once
// it has finished running, based on the error its handle finished with.
func (p *boundedPool) recordOutcome(item taskItem) {
	if item.handle.Err() != nil {
		p.metrics.incFailed(p.name)
	} else {
		p.metrics.incCompleted(p.name)
	}
}

func (p *boundedPool) spawnWorkerLocked() {
	p.workers++
	p.metrics.setWorkers(p.name, p.workers)
	name := workerName("bounded", p.id, p.tID.Next())
	go p.runWorker(name)
}

func (p *boundedPool) runWorker(name string) {
	defer func() {
		p.mu.Lock()
		p.workers--
		p.metrics.setWorkers(p.name, p.workers)
		shuttingDown := p.shutdown
		workers := p.workers
		p.mu.Unlock()
		if shuttingDown && workers == 0 {
			close(p.drained)
		}
	}()

	idle := time.NewTimer(p.cfg.IdleTTL)
	defer idle.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			idle.Stop()
			if !ok {
				return
			}
			p.metrics.setQueued(p.name, p.QueueSize())
			p.execute(name, item)
			idle.Reset(p.cfg.IdleTTL)
		case <-idle.C:
			return
		}
	}
}

func (p *boundedPool) execute(name string, item taskItem) {
	id := p.registerInflight(item.cancel)
	defer p.unregisterInflight(id)

	start := time.Now()
	item.run(name)
	p.metrics.observeDuration(p.name, time.Since(start))
	p.recordOutcome(item)
}

// registerInflight records cancel under a fresh id so ShutdownNow can find
// and call it even while the task it belongs to is still running.
func (p *boundedPool) registerInflight(cancel context.CancelFunc) int64 {
	p.mu.Lock()
	id := p.inflightID
	p.inflightID++
	p.inflight[id] = cancel
	p.mu.Unlock()
	return id
}

func (p *boundedPool) unregisterInflight(id int64) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *boundedPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	remaining := p.workers
	close(p.queue)
	if remaining == 0 {
		close(p.drained)
	}
	p.mu.Unlock()

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *boundedPool) ShutdownNow() {
	p.mu.Lock()
	if !p.shutdown {
		p.shutdown = true
		close(p.queue)
	}
	pending := drainQueue(p.queue)
	inflight := make([]context.CancelFunc, 0, len(p.inflight))
	for _, cancel := range p.inflight {
		inflight = append(inflight, cancel)
	}
	p.mu.Unlock()

	for _, item := range pending {
		item.cancel()
		item.handle.finish(item.ctx.Err())
	}
	for _, cancel := range inflight {
		cancel()
	}
}

// drainQueue empties a (closed or about-to-close) queue without blocking,
// returning whatever was left in it so their contexts can be cancelled.
func drainQueue(queue chan taskItem) []taskItem {
	var pending []taskItem
	for {
		select {
		case item, ok := <-queue:
			if !ok {
				return pending
			}
			pending = append(pending, item)
		default:
			return pending
		}
	}
}
