// Package call implements the decoration contract of the capture/replay
// system: the data model for parallelizable functions, their recorded
// calls, and the batches those calls are grouped into, plus the default
// batcher that persists each call's result to the active cache oracle.
//
// The wrapper itself, driver.Call, lives in internal/driver, since it
// needs direct access to the driver's mode and pending registry; this
// package stays a leaf with no dependency on the driver.
package call

import (
	"context"
	"fmt"

	"github.com/jpequegn/parallelcache/internal/cache"
)

// Args is the positional/keyword argument tuple of a single call, shared
// verbatim with the batch key function, the placeholder factory, and the
// underlying computation.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Placeholder produces a stand-in value for a not-yet-computed call,
// sufficient for capture-phase code to progress without crashing.
type Placeholder func(args Args) (any, error)

// BatchKeyFunc maps call arguments to a hashable key grouping calls that
// should execute together. The returned value must be usable as a Go map
// key; a slice, map, or func returned here produces a ContractError from
// the driver.
type BatchKeyFunc func(args Args) (any, error)

// BatcherFunc executes every call sharing one batch key. It is expected
// to persist each call's result to the cache oracle reachable via
// cache.StoreFrom(ctx) — the backend arranges for that context value
// before invoking the batcher.
type BatcherFunc func(ctx context.Context, calls []Args) error

// Function is a ParallelizableFunction: the decoration's identity,
// callbacks, and the underlying computation it wraps.
type Function struct {
	// Name is the stable, globally resolvable identity used to look the
	// function back up on a remote worker. Required for cross-process
	// dispatch.
	Name string

	// Placeholder and BatchKey are required; Batcher defaults to
	// DefaultBatcher(fn) if unset.
	Placeholder Placeholder
	BatchKey    BatchKeyFunc
	Batcher     BatcherFunc

	// Compute is the underlying per-call computation, invoked directly
	// outside a driver scope and by batchers during the COMPUTING phase.
	Compute func(ctx context.Context, args Args) (any, error)
}

// Record is a single captured call awaiting dispatch.
type Record struct {
	Function *Function
	Args     Args
	BatchKey any
}

// Batch is an ordered group of calls to one Function sharing one batch
// key, arrival order preserved.
type Batch struct {
	Key      any
	Function *Function
	Calls    []Args
}

// Append adds a call's arguments to the batch, preserving arrival order.
func (b *Batch) Append(args Args) {
	b.Calls = append(b.Calls, args)
}

// DefaultBatcher invokes fn.Compute once per call tuple, sequentially, in
// arrival order, persisting each result under its fingerprint to the
// cache oracle active on the batcher's context. Correct but unoptimised:
// a user-supplied batcher exists to coalesce shared setup across calls in
// the same batch (e.g. loading a dataset once for the whole batch).
func DefaultBatcher(fn *Function) BatcherFunc {
	return func(ctx context.Context, calls []Args) error {
		store, ok := cache.StoreFrom(ctx)
		if !ok {
			return fmt.Errorf("default batcher: no cache oracle active on context")
		}

		for i, args := range calls {
			value, err := fn.Compute(ctx, args)
			if err != nil {
				return fmt.Errorf("default batcher: call %d: %w", i, err)
			}

			fp, err := store.Fingerprint(fn.Name, args.Positional, args.Keyword)
			if err != nil {
				return fmt.Errorf("default batcher: fingerprint call %d: %w", i, err)
			}

			if err := store.Put(ctx, fp, value); err != nil {
				return fmt.Errorf("default batcher: persist call %d: %w", i, err)
			}
		}
		return nil
	}
}

// Resolve returns the batcher for fn: fn.Batcher if set, else
// DefaultBatcher(fn). Exported for backends that resolve a Function by
// name and need to run its batcher without reaching into call internals.
func Resolve(fn *Function) BatcherFunc {
	if fn.Batcher != nil {
		return fn.Batcher
	}
	return DefaultBatcher(fn)
}
