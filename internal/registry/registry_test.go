package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/jpequegn/parallelcache/internal/call"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := New()
	fn := &call.Function{
		Name: "double",
		Compute: func(ctx context.Context, args call.Args) (any, error) {
			return args.Positional[0].(int) * 2, nil
		},
	}

	reg.Register(fn)

	got, err := reg.Resolve("double")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != fn {
		t.Error("Resolve() returned a different *Function than was registered")
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := New()

	_, err := reg.Resolve("missing")
	if err == nil {
		t.Fatal("expected error resolving an unregistered name")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error = %v, want it to mention the missing name", err)
	}
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	reg := New()
	first := &call.Function{Name: "f"}
	second := &call.Function{Name: "f"}

	reg.Register(first)
	reg.Register(second)

	got, err := reg.Resolve("f")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != second {
		t.Error("Resolve() should return the most recently registered function for a reused name")
	}
}
