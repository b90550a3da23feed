// Package cache defines the persistent memoization oracle the core
// consumes: a membership test and a value retrieval keyed by a call
// fingerprint, plus two reference implementations (in-memory and SQLite)
// so the driver is runnable end to end without an external store.
//
// The core's correctness depends on, but does not enforce, the oracle's
// write-visibility property: an entry written by any backend worker
// before a batch is reported complete must be visible to the driver on
// its next query.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint is the oracle's identity for a specific call: function name
// plus argument-derived key. Ownership of fingerprint construction lives
// with the oracle, not the core.
type Fingerprint string

// Oracle is the persistent cache contract consumed by the driver and by
// backend workers. It deliberately takes plain positional/keyword slices
// rather than a call.Args so this package never needs to import the call
// package that in turn depends on it.
type Oracle interface {
	// Contains reports whether an entry exists for fp.
	Contains(ctx context.Context, fp Fingerprint) (bool, error)

	// Get retrieves the value stored for fp. Callers must check Contains
	// (or tolerate an error) before relying on the result.
	Get(ctx context.Context, fp Fingerprint) (any, error)

	// Put persists value under fp. Called by backend workers as a side
	// effect of running a batcher.
	Put(ctx context.Context, fp Fingerprint, value any) error

	// Fingerprint derives the cache identity for a call to functionName
	// with the given positional and keyword arguments.
	Fingerprint(functionName string, positional []any, keyword map[string]any) (Fingerprint, error)
}

// deriveFingerprint computes a fingerprint from functionName and
// arguments using the md5-over-serialized-tuple technique, shared by
// MemoryOracle and SQLiteOracle so both oracles fingerprint identically
// and are interchangeable mid-pipeline.
func deriveFingerprint(functionName string, positional []any, keyword map[string]any) (Fingerprint, error) {
	h := md5.New()
	fmt.Fprintf(h, "%s:", functionName)

	for _, v := range positional {
		fmt.Fprintf(h, "%v|", v)
	}

	keys := make([]string, 0, len(keyword))
	for k := range keyword {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v|", k, keyword[k])
	}

	return Fingerprint(fmt.Sprintf("%x", h.Sum(nil))), nil
}

// marshalValue and unmarshalValue round-trip a cached value through JSON
// so both oracles can store arbitrary results without reflection tricks
// beyond what encoding/json already does.
func marshalValue(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal value: %w", err)
	}
	return b, nil
}

func unmarshalValue(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("cache: unmarshal value: %w", err)
	}
	return value, nil
}
