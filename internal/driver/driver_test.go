package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/jpequegn/parallelcache/internal/backend"
	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
	"github.com/jpequegn/parallelcache/internal/registry"
)

func addFunction() *call.Function {
	return &call.Function{
		Name: "add",
		Placeholder: func(args call.Args) (any, error) {
			return 0, nil
		},
		BatchKey: func(args call.Args) (any, error) {
			return args.Positional[0], nil
		},
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			return args.Positional[0].(int) + args.Positional[1].(int), nil
		},
	}
}

func newTestScope(t *testing.T, b backend.Backend, oracle cache.Oracle) *Driver {
	t.Helper()
	d, closer, err := Scope(b, oracle)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	t.Cleanup(closer)
	return d
}

// TestTwoCallsOneBatch covers two calls that share a batch key: one batch
// is dispatched and both results resolve correctly on replay.
func TestTwoCallsOneBatch(t *testing.T) {
	reg := registry.New()
	fn := addFunction()
	reg.Register(fn)

	oracle := cache.NewMemoryOracle()
	d := newTestScope(t, backend.NewInlineBackend(reg), oracle)

	var x, y int
	iterations := 0
	for {
		more, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !more {
			break
		}
		iterations++

		xv, err := Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})
		if err != nil {
			t.Fatalf("Call(add, 1, 2) error = %v", err)
		}
		x = xv

		yv, err := Call[int](context.Background(), fn, call.Args{Positional: []any{1, 4}})
		if err != nil {
			t.Fatalf("Call(add, 1, 4) error = %v", err)
		}
		y = yv
	}

	if iterations != 2 {
		t.Errorf("loop ran %d iterations, want 2 (capture + replay)", iterations)
	}
	if x != 3 || y != 5 {
		t.Errorf("final values x=%d y=%d, want x=3 y=5", x, y)
	}

	summary := d.Summary()
	if summary.BatchesDispatched != 1 {
		t.Errorf("BatchesDispatched = %d, want 1 (both calls share batch key 1)", summary.BatchesDispatched)
	}
	if summary.CallsRegistered != 2 {
		t.Errorf("CallsRegistered = %d, want 2", summary.CallsRegistered)
	}
}

// TestTwoBatches covers calls under two distinct batch keys, each
// dispatched as its own batch.
func TestTwoBatches(t *testing.T) {
	reg := registry.New()
	fn := addFunction()
	reg.Register(fn)

	oracle := cache.NewMemoryOracle()
	d := newTestScope(t, backend.NewInlineBackend(reg), oracle)

	var x, y, z int
	for {
		more, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !more {
			break
		}

		x, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})
		y, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 4}})
		z, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{2, 6}})
	}

	if x != 3 || y != 5 || z != 8 {
		t.Errorf("final values x=%d y=%d z=%d, want x=3 y=5 z=8", x, y, z)
	}
	if got := d.Summary().BatchesDispatched; got != 2 {
		t.Errorf("BatchesDispatched = %d, want 2 (keys 1 and 2)", got)
	}
}

// TestFullyCachedRunSkipsReplay covers re-entering a scope with a cache
// already populated by a prior run: every call hits on the first pass and
// the driver never enters REPLAYING.
func TestFullyCachedRunSkipsReplay(t *testing.T) {
	reg := registry.New()
	fn := addFunction()
	reg.Register(fn)

	oracle := cache.NewMemoryOracle()

	// First scope populates the cache.
	func() {
		d, closer, err := Scope(backend.NewInlineBackend(reg), oracle)
		if err != nil {
			t.Fatalf("Scope() error = %v", err)
		}
		defer closer()
		for {
			more, err := d.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !more {
				break
			}
			_, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})
			_, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 4}})
		}
	}()

	// Second scope, same body, should resolve entirely from cache.
	d := newTestScope(t, backend.NewInlineBackend(reg), oracle)

	var x, y int
	first, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !first {
		t.Fatal("first Run() = false, want true (capture phase always runs once)")
	}

	x, err = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})
	if err != nil {
		t.Fatalf("Call(add, 1, 2) error = %v", err)
	}
	y, err = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 4}})
	if err != nil {
		t.Fatalf("Call(add, 1, 4) error = %v", err)
	}

	if x != 3 || y != 5 {
		t.Errorf("capture-phase values x=%d y=%d, want x=3 y=5 (both should hit the cache)", x, y)
	}

	second, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second {
		t.Error("second Run() = true, want false (no pending calls to replay)")
	}

	if got := d.Summary().BatchesDispatched; got != 0 {
		t.Errorf("BatchesDispatched = %d, want 0", got)
	}
	if got := d.Summary().CacheHitsAtCapture; got != 2 {
		t.Errorf("CacheHitsAtCapture = %d, want 2", got)
	}
}

// TestPassthroughOutsideScope covers calling a parallelizable function
// with no active driver scope: it behaves as a plain function call.
func TestPassthroughOutsideScope(t *testing.T) {
	fn := addFunction()

	result, err := Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != 3 {
		t.Errorf("Call() = %d, want 3", result)
	}
}

// failingBackend raises on its first Prune call, standing in for a
// backend whose polling mechanism fails mid-run.
type failingBackend struct {
	reg     *registry.Registry
	pruned  bool
	handles int
}

func (b *failingBackend) Submit(ctx context.Context, cacheHandle cache.Oracle, batch *call.Batch) (backend.JobHandle, error) {
	b.handles++
	return backend.JobHandle("h"), nil
}

func (b *failingBackend) Prune(ctx context.Context, handles []backend.JobHandle) ([]backend.JobHandle, error) {
	b.pruned = true
	return nil, errors.New("backend unavailable")
}

func TestBackendFailureEndsRunWithError(t *testing.T) {
	reg := registry.New()
	fn := addFunction()
	reg.Register(fn)

	oracle := cache.NewMemoryOracle()
	fb := &failingBackend{reg: reg}
	d := newTestScope(t, fb, oracle)

	first, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if !first {
		t.Fatal("first Run() = false, want true")
	}

	_, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{1, 2}})

	_, err = d.Run(context.Background())
	if err == nil {
		t.Fatal("second Run() error = nil, want a backend error")
	}

	if d.Mode() != Done {
		t.Errorf("Mode() = %v, want Done after a failed dispatch", d.Mode())
	}
}

// TestDefaultBatcherInvokesComputePerCall covers a function with no
// custom batcher: two distinct calls under one key are each computed and
// cached individually.
func TestDefaultBatcherInvokesComputePerCall(t *testing.T) {
	reg := registry.New()

	computeCalls := 0
	fn := &call.Function{
		Name: "square",
		Placeholder: func(args call.Args) (any, error) {
			return 0, nil
		},
		BatchKey: func(args call.Args) (any, error) {
			return "all", nil
		},
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			computeCalls++
			n := args.Positional[0].(int)
			return n * n, nil
		},
	}
	reg.Register(fn)

	oracle := cache.NewMemoryOracle()
	d := newTestScope(t, backend.NewInlineBackend(reg), oracle)

	var a, b int
	for {
		more, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !more {
			break
		}

		a, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{2}})
		b, _ = Call[int](context.Background(), fn, call.Args{Positional: []any{3}})
	}

	if computeCalls != 2 {
		t.Errorf("Compute invoked %d times, want 2", computeCalls)
	}
	if a != 4 || b != 9 {
		t.Errorf("final values a=%d b=%d, want a=4 b=9", a, b)
	}
}

func TestScope_RejectsNestedScope(t *testing.T) {
	reg := registry.New()
	oracle := cache.NewMemoryOracle()
	b := backend.NewInlineBackend(reg)

	_, closer, err := Scope(b, oracle)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	defer closer()

	_, _, err = Scope(b, oracle)
	if err == nil {
		t.Fatal("expected nested Scope() call to fail")
	}
}

func TestScope_AllowsReuseAfterClose(t *testing.T) {
	reg := registry.New()
	oracle := cache.NewMemoryOracle()
	b := backend.NewInlineBackend(reg)

	_, closer, err := Scope(b, oracle)
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	closer()

	_, closer2, err := Scope(b, oracle)
	if err != nil {
		t.Fatalf("second Scope() error = %v", err)
	}
	closer2()
}

func TestScope_RequiresBackendAndOracle(t *testing.T) {
	reg := registry.New()
	oracle := cache.NewMemoryOracle()
	b := backend.NewInlineBackend(reg)

	if _, _, err := Scope(nil, oracle); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, _, err := Scope(b, nil); err == nil {
		t.Error("expected error for nil cache oracle")
	}
}
