// Package backend defines the abstract dispatch protocol a
// parallelization backend must satisfy: submit a batch for asynchronous
// execution, and poll for completion. Two reference implementations are
// provided: PoolBackend, a fixed-size worker pool modeled on
// executor.DefaultExecutor's concurrent ExecuteBatch, and InlineBackend,
// a synchronous backend useful for deterministic tests.
package backend

import (
	"context"

	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
)

// JobHandle is an opaque identifier for a dispatched batch.
type JobHandle string

// Backend is the contract a parallelization backend must satisfy. It is
// intentionally minimal: no result channel, no error channel beyond
// raising from Prune to abort a run. The only observable outcome is
// through the cache oracle batch.Function's batcher writes to.
type Backend interface {
	// Submit accepts a single batch for asynchronous execution. The
	// backend is responsible for resolving batch.Function by its stable
	// name, invoking its batcher with the batch's ordered call list, and
	// ensuring results are persisted to cacheHandle before the job is
	// reported complete.
	Submit(ctx context.Context, cacheHandle cache.Oracle, batch *call.Batch) (JobHandle, error)

	// Prune returns the subset of handles still incomplete. Called
	// repeatedly by the driver until it returns an empty set, or returns
	// an error to abort the run.
	Prune(ctx context.Context, handles []JobHandle) ([]JobHandle, error)
}
