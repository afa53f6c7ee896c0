/*
Package concurrentaspects provides a process-wide concurrency framework for
call sites that want one of four execution policies applied transparently:
run-on-timer (periodic), run-once (memoized), bounded-timeout, and
thread-managed (pooled, groupable, shutdown-aware).

This root package is documentation only; the framework lives in its
sub-packages:

Dispatch and lifecycle (the core):
  - pkg/machine: central dispatcher — pools, groups, shutdown
  - pkg/pool: bounded and cached worker pools
  - pkg/latch: per-call-context thread-group latch
  - pkg/listener: before/after/exception hooks around every task
  - pkg/runonce: at-most-once execution per (instance, call site)
  - pkg/runtimer: periodic callbacks bound to an instance's lifetime
  - pkg/timeout: deadline-bounded execution
  - pkg/registry: weak instance-keyed attribute storage
  - pkg/ttl: deadline-ordered expiring collection
  - pkg/autottl: a ttl.Collection that drains itself on a timer

Ambient support:
  - pkg/common/errors: shared error taxonomy
  - pkg/common/validation: boundary-check helpers
  - pkg/common/rollingid: wrapping id generator used to name pools/workers
  - pkg/singleton: process-wide controller accessors

Example usage:

	m := machine.New()
	defer m.Shutdown(context.Background(), 10*time.Second)

	ctx, err := m.CreateThreadGroup(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.ExecuteInThread(ctx, true, "workers", true, func(ctx context.Context) error {
			return doWork(ctx)
		}); err != nil {
			log.Fatal(err)
		}
	}
	n, err := m.AwaitCurrentThreadGroup(ctx, 30*time.Second)
*/
package concurrentaspects
