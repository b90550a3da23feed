package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
	"github.com/jpequegn/parallelcache/internal/registry"
)

// jobState tracks one dispatched batch's completion, adapted from
// executor.DefaultExecutor's per-job result channel but reshaped for
// poll-based completion (Prune) instead of a blocking collect loop.
type jobState struct {
	done chan struct{}
	err  error
}

// PoolBackend is the reference multiprocessing-shaped backend: a
// fixed-size worker pool. Submit enqueues, Prune filters completed jobs.
// Grounded on executor.DefaultExecutor's worker pool,
// rebuilt on github.com/sourcegraph/conc/pool instead of hand-rolled
// channel/WaitGroup plumbing since conc's pool is exactly this shape
// (bounded concurrency, fire-and-forget submission).
type PoolBackend struct {
	registry *registry.Registry
	pool     *pool.Pool

	mu      sync.Mutex
	jobs    map[JobHandle]*jobState
	counter uint64
}

// NewPoolBackend creates a backend dispatching onto a pool of at most
// size concurrent goroutines, resolving functions by name through reg.
func NewPoolBackend(reg *registry.Registry, size int) *PoolBackend {
	if size <= 0 {
		size = 1
	}
	return &PoolBackend{
		registry: reg,
		pool:     pool.New().WithMaxGoroutines(size),
		jobs:     make(map[JobHandle]*jobState),
	}
}

func (b *PoolBackend) nextHandle() JobHandle {
	n := atomic.AddUint64(&b.counter, 1)
	return JobHandle(fmt.Sprintf("job-%d", n))
}

// Submit resolves batch.Function.Name through the registry, then runs its
// batcher on the pool, persisting results to cacheHandle as the batcher's
// side effect.
func (b *PoolBackend) Submit(ctx context.Context, cacheHandle cache.Oracle, batch *call.Batch) (JobHandle, error) {
	handle := b.nextHandle()
	state := &jobState{done: make(chan struct{})}

	b.mu.Lock()
	b.jobs[handle] = state
	b.mu.Unlock()

	b.pool.Go(func() {
		defer close(state.done)

		fn, err := b.registry.Resolve(batch.Function.Name)
		if err != nil {
			state.err = err
			return
		}

		batcherCtx := cache.WithStore(ctx, cacheHandle)
		if err := call.Resolve(fn)(batcherCtx, batch.Calls); err != nil {
			state.err = fmt.Errorf("batch %v: %w", batch.Key, err)
		}
	})

	return handle, nil
}

// Prune reports which of handles are still running. A handle whose job
// finished with an error is surfaced as a BackendError the first time it
// is pruned, then dropped from tracking.
func (b *PoolBackend) Prune(ctx context.Context, handles []JobHandle) ([]JobHandle, error) {
	var incomplete []JobHandle
	var firstErr error

	for _, h := range handles {
		b.mu.Lock()
		state, ok := b.jobs[h]
		b.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case <-state.done:
			if state.err != nil && firstErr == nil {
				firstErr = state.err
				b.mu.Lock()
				delete(b.jobs, h)
				b.mu.Unlock()
			}
		default:
			incomplete = append(incomplete, h)
		}
	}

	if firstErr != nil {
		return incomplete, &pcerrors.BackendError{Reason: "batch execution failed", Cause: firstErr}
	}
	return incomplete, nil
}
