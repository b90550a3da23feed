package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
	"github.com/jpequegn/parallelcache/internal/registry"
)

// InlineBackend runs every batch synchronously inside Submit, with no
// goroutines. Useful for tests that need deterministic ordering of batch
// execution, where concurrent dispatch order would otherwise be
// nondeterministic.
type InlineBackend struct {
	registry *registry.Registry

	mu      sync.Mutex
	counter uint64
	failed  map[JobHandle]error
}

// NewInlineBackend creates a synchronous backend resolving functions by
// name through reg.
func NewInlineBackend(reg *registry.Registry) *InlineBackend {
	return &InlineBackend{
		registry: reg,
		failed:   make(map[JobHandle]error),
	}
}

func (b *InlineBackend) nextHandle() JobHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter++
	return JobHandle(fmt.Sprintf("inline-job-%d", b.counter))
}

// Submit runs batch.Function's batcher immediately. A failure is both
// recorded against the returned handle (so a later Prune surfaces it) and
// need not be returned here, matching the driver's practice of waiting on
// every submitted handle regardless of how quickly it completed.
func (b *InlineBackend) Submit(ctx context.Context, cacheHandle cache.Oracle, batch *call.Batch) (JobHandle, error) {
	handle := b.nextHandle()

	fn, err := b.registry.Resolve(batch.Function.Name)
	if err != nil {
		b.recordFailure(handle, err)
		return handle, nil
	}

	batcherCtx := cache.WithStore(ctx, cacheHandle)
	if err := call.Resolve(fn)(batcherCtx, batch.Calls); err != nil {
		b.recordFailure(handle, fmt.Errorf("batch %v: %w", batch.Key, err))
	}

	return handle, nil
}

func (b *InlineBackend) recordFailure(handle JobHandle, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[handle] = err
}

// Prune always reports every handle complete, since Submit runs to
// completion before returning. A handle whose run failed surfaces a
// BackendError once.
func (b *InlineBackend) Prune(ctx context.Context, handles []JobHandle) ([]JobHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range handles {
		if err, ok := b.failed[h]; ok {
			delete(b.failed, h)
			return nil, &pcerrors.BackendError{Reason: "batch execution failed", Cause: err}
		}
	}
	return nil, nil
}
