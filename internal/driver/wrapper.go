package driver

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jpequegn/parallelcache/internal/call"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
)

// Call wraps a parallelizable function so its callers see a single typed
// return value regardless of which phase the active driver is in. It is
// generic over the result type T so callers get back a concretely typed
// value even though the driver's pending registry and cache oracle
// traffic in `any` internally; T should be constrained, per call site, to
// whatever algebraic surface downstream code in the capture phase needs
// from fn.Placeholder's result.
func Call[T any](ctx context.Context, fn *call.Function, args call.Args) (T, error) {
	var zero T

	if fn == nil || fn.Compute == nil {
		return zero, &pcerrors.ContractError{Reason: "parallelized function has no underlying computation"}
	}

	d := activeDriver()
	if d == nil {
		return passthrough[T](ctx, fn, args)
	}

	switch d.Mode() {
	case Idle, Done:
		return passthrough[T](ctx, fn, args)

	case Capturing:
		if fn.Placeholder == nil || fn.BatchKey == nil {
			return zero, &pcerrors.ContractError{
				Reason: fmt.Sprintf("parallelized function %q is missing a placeholder or batch key", fn.Name),
			}
		}
		return captureCall[T](ctx, d, fn, args)

	case Replaying:
		return replayCall[T](ctx, d, fn, args)

	case Computing:
		// Not expected: the driver does not execute user code while
		// COMPUTING. Fail loudly rather than silently corrupting the
		// pending registry or returning a stale value.
		return zero, &pcerrors.ConfigurationError{
			Reason: "parallelized call invoked while the driver is COMPUTING",
		}

	default:
		return zero, &pcerrors.ConfigurationError{Reason: "driver in unknown mode"}
	}
}

func passthrough[T any](ctx context.Context, fn *call.Function, args call.Args) (T, error) {
	var zero T
	value, err := fn.Compute(ctx, args)
	if err != nil {
		return zero, err
	}
	return convert[T](value)
}

func captureCall[T any](ctx context.Context, d *Driver, fn *call.Function, args call.Args) (T, error) {
	var zero T

	fp, err := d.cache.Fingerprint(fn.Name, args.Positional, args.Keyword)
	if err != nil {
		return zero, fmt.Errorf("parallelcache: fingerprint %q: %w", fn.Name, err)
	}

	hit, err := d.cache.Contains(ctx, fp)
	if err != nil {
		return zero, fmt.Errorf("parallelcache: cache lookup for %q: %w", fn.Name, err)
	}
	if hit {
		value, err := d.cache.Get(ctx, fp)
		if err != nil {
			return zero, fmt.Errorf("parallelcache: cache get for %q: %w", fn.Name, err)
		}
		d.recordCacheHitAtCapture()
		return convert[T](value)
	}

	key, err := fn.BatchKey(args)
	if err != nil {
		return zero, &pcerrors.ContractError{
			Reason: fmt.Sprintf("batch key function for %q failed: %v", fn.Name, err),
		}
	}
	if !hashable(key) {
		return zero, &pcerrors.ContractError{
			Reason: fmt.Sprintf("batch key for %q is not hashable: %v", fn.Name, key),
		}
	}

	d.registerPending(fn, key, args)

	value, err := fn.Placeholder(args)
	if err != nil {
		return zero, err
	}
	return convert[T](value)
}

func replayCall[T any](ctx context.Context, d *Driver, fn *call.Function, args call.Args) (T, error) {
	var zero T

	fp, err := d.cache.Fingerprint(fn.Name, args.Positional, args.Keyword)
	if err != nil {
		return zero, fmt.Errorf("parallelcache: fingerprint %q: %w", fn.Name, err)
	}

	hit, err := d.cache.Contains(ctx, fp)
	if err != nil {
		return zero, fmt.Errorf("parallelcache: cache lookup for %q: %w", fn.Name, err)
	}
	if !hit {
		var key any
		if fn.BatchKey != nil {
			key, _ = fn.BatchKey(args)
		}
		if hashable(key) {
			d.mu.Lock()
			_, recorded := d.pending[pendingKey{functionName: fn.Name, batchKey: key}]
			d.mu.Unlock()
			if recorded {
				return passthrough[T](ctx, fn, args)
			}
		}
		return zero, &pcerrors.CaptureDeterminismError{FunctionName: fn.Name, BatchKey: key}
	}

	value, err := d.cache.Get(ctx, fp)
	if err != nil {
		return zero, fmt.Errorf("parallelcache: cache get for %q: %w", fn.Name, err)
	}
	return convert[T](value)
}

// convert coerces a value retrieved from the cache oracle (which may have
// round-tripped through JSON, turning e.g. an int into a float64) or
// returned directly from a placeholder/compute into T.
func convert[T any](value any) (T, error) {
	var zero T

	if v, ok := value.(T); ok {
		return v, nil
	}

	rv := reflect.ValueOf(value)
	rt := reflect.TypeOf(zero)
	if rv.IsValid() && rt != nil && rv.Type().ConvertibleTo(rt) {
		return rv.Convert(rt).Interface().(T), nil
	}

	return zero, fmt.Errorf("parallelcache: result type %T is not convertible to %T", value, zero)
}

// hashable reports whether v can be used as a Go map key. A batch key
// function returning a slice, map, or func raises a ContractError rather
// than panicking the first time it's used as a map key.
func hashable(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Map, reflect.Func:
		return false
	default:
		return true
	}
}
