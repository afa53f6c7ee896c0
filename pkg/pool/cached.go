package pool

import (
	"context"
	"sync"
	"time"

	"github.com/masvboston/concurrent-aspects/pkg/common/rollingid"
)

// CachedConfig configures an unbounded cached Pool.
type CachedConfig struct {
	// IdleTTL is how long an idle worker waits to be handed a new task
	// before it exits. Zero means DefaultIdleTTL.
	IdleTTL time.Duration
}

func (c CachedConfig) withDefaults() CachedConfig {
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	return c
}

// cachedPool has no queue capacity limit and no worker ceiling: every
// Submit either hands the task to an idle worker waiting to be reused or
// spawns a brand-new one, mirroring Executors.newCachedThreadPool in the
// original. Idle workers that go unused for IdleTTL exit on their own.
type cachedPool struct {
	name    string
	cfg     CachedConfig
	id      int64
	tID     rollingid.Generator
	metrics *metricsSet

	mu          sync.Mutex
	idle        []chan taskItem
	workers     int
	shutdown    bool
	drained     chan struct{}
	drainedOnce sync.Once
	inflight    map[int64]context.CancelFunc
	inflightID  int64
}

// NewCached creates an unbounded cached pool named name.
func NewCached(name string, cfg CachedConfig) Pool {
	cfg = cfg.withDefaults()
	p := &cachedPool{
		name:     name,
		cfg:      cfg,
		id:       poolID.Next(),
		drained:  make(chan struct{}),
		inflight: make(map[int64]context.CancelFunc),
	}
	p.metrics = metricsFor(name)
	p.metrics.setWorkers(name, 0)
	p.metrics.setQueued(name, 0)
	return p
}

func (p *cachedPool) Name() string { return p.name }

func (p *cachedPool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *cachedPool) QueueSize() int { return 0 }

func (p *cachedPool) closeDrained() {
	p.drainedOnce.Do(func() { close(p.drained) })
}

func (p *cachedPool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, errAlreadyShutdown(p.name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	item := taskItem{ctx: taskCtx, cancel: cancel, task: task, handle: h}

	if n := len(p.idle); n > 0 {
		ch := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		ch <- item
		p.metrics.incSubmitted(p.name)
		return h, nil
	}

	p.workers++
	p.metrics.setWorkers(p.name, p.workers)
	name := workerName("cached", p.id, p.tID.Next())
	p.mu.Unlock()

	ch := make(chan taskItem, 1)
	ch <- item
	go p.runWorker(name, ch)
	p.metrics.incSubmitted(p.name)
	return h, nil
}

func (p *cachedPool) runWorker(name string, first chan taskItem) {
	ch := first
	for {
		item, ok := p.awaitNext(ch)
		if !ok {
			return
		}

		id := p.registerInflight(item.cancel)
		start := time.Now()
		item.run(name)
		p.metrics.observeDuration(p.name, time.Since(start))
		p.unregisterInflight(id)
		if item.handle.Err() != nil {
			p.metrics.incFailed(p.name)
		} else {
			p.metrics.incCompleted(p.name)
		}

		p.mu.Lock()
		if p.shutdown {
			p.workers--
			p.metrics.setWorkers(p.name, p.workers)
			workers := p.workers
			p.mu.Unlock()
			if workers == 0 {
				p.closeDrained()
			}
			return
		}
		ch = make(chan taskItem, 1)
		p.idle = append(p.idle, ch)
		p.mu.Unlock()
	}
}

// awaitNext waits for a task on ch, retiring the worker on idle timeout or
// on ch being closed by Shutdown. A timeout only retires the worker if ch
// is still present in the idle list at the moment the timer fires — if a
// concurrent Submit already claimed ch (popped it from the idle list to
// send on it), the worker keeps waiting for that send instead of racing
// an exit against it.
func (p *cachedPool) awaitNext(ch chan taskItem) (taskItem, bool) {
	timer := time.NewTimer(p.cfg.IdleTTL)
	defer timer.Stop()
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				p.retire(ch, false)
				return taskItem{}, false
			}
			return item, true
		case <-timer.C:
			if p.retire(ch, true) {
				return taskItem{}, false
			}
			timer.Reset(p.cfg.IdleTTL)
		}
	}
}

// retire decrements the worker count and, for a timeout-triggered retire,
// only if ch is still idle; it reports whether the worker should exit.
func (p *cachedPool) retire(ch chan taskItem, fromTimeout bool) bool {
	p.mu.Lock()
	if fromTimeout {
		idx := -1
		for i, c := range p.idle {
			if c == ch {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.mu.Unlock()
			return false
		}
		p.idle = append(p.idle[:idx], p.idle[idx+1:]...)
	}
	p.workers--
	p.metrics.setWorkers(p.name, p.workers)
	shuttingDown := p.shutdown
	workers := p.workers
	p.mu.Unlock()
	if shuttingDown && workers == 0 {
		p.closeDrained()
	}
	return true
}

// registerInflight records cancel under a fresh id so ShutdownNow can find
// and call it even while the task it belongs to is still running.
func (p *cachedPool) registerInflight(cancel context.CancelFunc) int64 {
	p.mu.Lock()
	id := p.inflightID
	p.inflightID++
	p.inflight[id] = cancel
	p.mu.Unlock()
	return id
}

func (p *cachedPool) unregisterInflight(id int64) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *cachedPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	remaining := p.workers
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ch := range idle {
		close(ch)
	}
	if remaining == 0 {
		p.closeDrained()
	}

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *cachedPool) ShutdownNow() {
	p.mu.Lock()
	p.shutdown = true
	idle := p.idle
	p.idle = nil
	inflight := make([]context.CancelFunc, 0, len(p.inflight))
	for _, cancel := range p.inflight {
		inflight = append(inflight, cancel)
	}
	p.mu.Unlock()

	for _, ch := range idle {
		close(ch)
	}
	for _, cancel := range inflight {
		cancel()
	}
}
