// Package driver implements the capture/replay driver: a scoped execution
// harness that runs user code twice, grouping parallelizable calls into
// batches during the first pass and resolving them from a persistent
// cache during the second.
//
// Grounded on executor.DefaultExecutor.ExecuteBatch's worker-pool
// orchestration (internal/backend carries that part forward) and on
// executor/registry.go's mutex-guarded singleton pattern for the
// process-wide active-driver slot.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpequegn/parallelcache/internal/backend"
	"github.com/jpequegn/parallelcache/internal/cache"
	"github.com/jpequegn/parallelcache/internal/call"
	pcerrors "github.com/jpequegn/parallelcache/internal/errors"
	"github.com/jpequegn/parallelcache/internal/telemetry"
)

// Mode is one of the driver's five lifecycle states.
type Mode int

const (
	Idle Mode = iota
	Capturing
	Computing
	Replaying
	Done
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case Capturing:
		return "CAPTURING"
	case Computing:
		return "COMPUTING"
	case Replaying:
		return "REPLAYING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// pendingKey groups calls into a batch by (function identity, batch key).
type pendingKey struct {
	functionName string
	batchKey     any
}

// RunSummary reports what one driver scope did, for the reporter package
// and for tests asserting batch-grouping behavior.
type RunSummary struct {
	BatchesDispatched  int
	CallsRegistered    int
	CacheHitsAtCapture int
	CaptureDuration    time.Duration
	ComputeDuration    time.Duration
	ReplayDuration     time.Duration
}

// Driver is the orchestrator owning mode, the pending registry, and the
// active backend/cache handles for one scope.
type Driver struct {
	backend      backend.Backend
	cache        cache.Oracle
	logger       *slog.Logger
	pollInterval time.Duration
	events       telemetry.EventHandler
	metrics      *telemetry.Metrics

	mu      sync.Mutex
	mode    Mode
	pending map[pendingKey]*call.Batch
	summary RunSummary

	phaseStart time.Time
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithPollInterval overrides the cadence at which the driver polls the
// backend for batch completion during the COMPUTING phase. Default 50ms.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) { d.pollInterval = interval }
}

// WithEvents attaches a lifecycle event handler, invoked at capture
// start, once when the batches are dispatched, once when they have all
// completed, at replay start, and when the replay phase ends. A run that
// skips replay or fails during dispatch emits no run-done event.
func WithEvents(handler telemetry.EventHandler) Option {
	return func(d *Driver) { d.events = handler }
}

// WithMetrics attaches Prometheus collectors the driver reports batch
// counts, batch duration, and cache hit/miss counts against.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(d *Driver) { d.metrics = metrics }
}

// New constructs a Driver around the given backend and cache oracle. No
// I/O occurs at construction.
func New(b backend.Backend, oracle cache.Oracle, opts ...Option) *Driver {
	d := &Driver{
		backend:      b,
		cache:        oracle,
		mode:         Idle,
		pending:      make(map[pendingKey]*call.Batch),
		logger:       slog.Default(),
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) emit(ev telemetry.Event) {
	if d.events != nil {
		d.events(ev)
	}
}

// Mode returns the driver's current state.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Summary returns a snapshot of this scope's run statistics so far.
func (d *Driver) Summary() RunSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary
}

func (d *Driver) registerPending(fn *call.Function, key any, args call.Args) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pk := pendingKey{functionName: fn.Name, batchKey: key}
	b, ok := d.pending[pk]
	if !ok {
		b = &call.Batch{Key: key, Function: fn}
		d.pending[pk] = b
	}
	b.Append(args)
	d.summary.CallsRegistered++
	if d.metrics != nil {
		d.metrics.CacheMisses.Inc()
	}
}

func (d *Driver) recordCacheHitAtCapture() {
	d.mu.Lock()
	d.summary.CacheHitsAtCapture++
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.CacheHits.Inc()
	}
}

// Run drives the three-call loop primitive: the caller runs body() each
// time Run returns true and stops when it returns false or an error;
// body executes once in CAPTURING mode
// and, unless every call hit the cache at capture time, once more in
// REPLAYING mode.
func (d *Driver) Run(ctx context.Context) (bool, error) {
	d.mu.Lock()
	mode := d.mode
	d.mu.Unlock()

	switch mode {
	case Idle:
		return d.enterCapturing(), nil

	case Capturing:
		return d.enterComputing(ctx)

	case Replaying:
		d.mu.Lock()
		d.summary.ReplayDuration = time.Since(d.phaseStart)
		d.mode = Done
		summary := d.summary
		d.mu.Unlock()
		d.logger.Debug("parallelcache: replay phase complete")
		d.emit(telemetry.Event{
			Type:    telemetry.EventRunDone,
			Message: "replay phase complete",
			Fields: map[string]any{
				"batches_dispatched": summary.BatchesDispatched,
				"calls_registered":   summary.CallsRegistered,
			},
		})
		return false, nil

	case Done:
		return false, nil

	default:
		return false, &pcerrors.ConfigurationError{Reason: fmt.Sprintf("driver in unexpected mode %s", mode)}
	}
}

func (d *Driver) enterCapturing() bool {
	d.mu.Lock()
	d.mode = Capturing
	d.pending = make(map[pendingKey]*call.Batch)
	d.summary = RunSummary{}
	d.phaseStart = time.Now()
	d.mu.Unlock()
	d.logger.Debug("parallelcache: capture phase started")
	d.emit(telemetry.Event{Type: telemetry.EventCaptureStarted, Message: "capture phase started"})
	return true
}

func (d *Driver) enterComputing(ctx context.Context) (bool, error) {
	d.mu.Lock()
	d.summary.CaptureDuration = time.Since(d.phaseStart)
	batches := make([]*call.Batch, 0, len(d.pending))
	for _, b := range d.pending {
		batches = append(batches, b)
	}
	d.mode = Computing
	d.mu.Unlock()

	if len(batches) == 0 {
		d.mu.Lock()
		d.mode = Done
		d.mu.Unlock()
		d.logger.Debug("parallelcache: every call hit the cache at capture, skipping replay")
		return false, nil
	}

	d.logger.Info("parallelcache: dispatching batches", "count", len(batches))
	d.emit(telemetry.Event{
		Type:    telemetry.EventBatchDispatched,
		Message: "dispatching batches",
		Fields:  map[string]any{"count": len(batches)},
	})
	computeStart := time.Now()

	if err := d.dispatch(ctx, batches); err != nil {
		d.mu.Lock()
		d.summary.ComputeDuration = time.Since(computeStart)
		d.mode = Done
		d.mu.Unlock()
		d.logger.Error("parallelcache: batch dispatch failed", "error", err)
		return false, err
	}

	batchDuration := time.Since(computeStart)
	if d.metrics != nil {
		for range batches {
			d.metrics.ObserveBatch(batchDuration)
		}
	}

	d.mu.Lock()
	d.summary.BatchesDispatched = len(batches)
	d.summary.ComputeDuration = batchDuration
	d.mode = Replaying
	d.phaseStart = time.Now()
	d.mu.Unlock()
	d.logger.Debug("parallelcache: replay phase started")
	d.emit(telemetry.Event{
		Type:    telemetry.EventBatchCompleted,
		Message: "batches completed, entering replay",
		Fields:  map[string]any{"count": len(batches), "duration": batchDuration.String()},
	})
	d.emit(telemetry.Event{Type: telemetry.EventReplayStarted, Message: "replay phase started"})
	return true, nil
}

// dispatch submits every batch and blocks until the backend reports all
// of them complete, polling at d.pollInterval. This is the driver's only
// blocking operation.
func (d *Driver) dispatch(ctx context.Context, batches []*call.Batch) error {
	handles := make([]backend.JobHandle, 0, len(batches))
	for _, b := range batches {
		h, err := d.backend.Submit(ctx, d.cache, b)
		if err != nil {
			return &pcerrors.BackendError{Reason: "submit failed", Cause: err}
		}
		handles = append(handles, h)
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		remaining, err := d.backend.Prune(ctx, handles)
		if err != nil {
			var be *pcerrors.BackendError
			if errors.As(err, &be) {
				return err
			}
			return &pcerrors.BackendError{Reason: "prune failed", Cause: err}
		}
		if len(remaining) == 0 {
			return nil
		}
		handles = remaining

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
