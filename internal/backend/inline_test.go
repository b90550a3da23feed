package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
	"github.com/jpequegn/parallelcache/internal/registry"
)

func TestInlineBackend_SubmitRunsSynchronously(t *testing.T) {
	reg := registry.New()
	store := cache.NewMemoryOracle()

	fn := &call.Function{
		Name: "add-one",
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			return args.Positional[0].(int) + 1, nil
		},
	}
	reg.Register(fn)

	b := NewInlineBackend(reg)
	batch := &call.Batch{Key: "k", Function: fn, Calls: []call.Args{{Positional: []any{1}}}}

	handle, err := b.Submit(context.Background(), store, batch)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	remaining, err := b.Prune(context.Background(), []JobHandle{handle})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Prune() remaining = %v, want none (inline backend completes inline)", remaining)
	}

	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1 (Submit should persist synchronously)", store.Len())
	}
}

func TestInlineBackend_PruneSurfacesBatcherFailure(t *testing.T) {
	reg := registry.New()
	store := cache.NewMemoryOracle()

	fn := &call.Function{
		Name: "always-fails",
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			return nil, errors.New("boom")
		},
	}
	reg.Register(fn)

	b := NewInlineBackend(reg)
	batch := &call.Batch{Key: "k", Function: fn, Calls: []call.Args{{}}}

	handle, err := b.Submit(context.Background(), store, batch)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = b.Prune(context.Background(), []JobHandle{handle})
	if err == nil {
		t.Fatal("expected Prune() to surface the batcher failure")
	}
}

func TestInlineBackend_SubmitUnknownFunction(t *testing.T) {
	reg := registry.New()
	store := cache.NewMemoryOracle()
	b := NewInlineBackend(reg)

	batch := &call.Batch{Key: "k", Function: &call.Function{Name: "never-registered"}, Calls: []call.Args{{}}}

	handle, err := b.Submit(context.Background(), store, batch)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = b.Prune(context.Background(), []JobHandle{handle})
	if err == nil {
		t.Fatal("expected Prune() to surface the registry resolution failure")
	}
}
