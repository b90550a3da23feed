// Package telemetry provides structured logging and Prometheus metrics
// for driver lifecycle events, adapted from internal/cmd/root.go's slog
// handler setup and internal/executor's ProgressEvent/ProgressHandler
// pattern (there keyed on benchmark execution events, here on capture/
// compute/replay phase transitions).
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger builds a text-handler slog.Logger writing to stderr, gated to
// Debug level when verbose is set, matching root.go's initLogger.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// EventType identifies a driver lifecycle event, mirroring
// executor.EventType's shape but for capture/replay phases instead of
// benchmark execution.
type EventType int

const (
	EventCaptureStarted EventType = iota
	EventBatchDispatched
	EventBatchCompleted
	EventReplayStarted
	EventRunDone
)

func (e EventType) String() string {
	switch e {
	case EventCaptureStarted:
		return "capture_started"
	case EventBatchDispatched:
		return "batch_dispatched"
	case EventBatchCompleted:
		return "batch_completed"
	case EventReplayStarted:
		return "replay_started"
	case EventRunDone:
		return "run_done"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle notification, passed to an EventHandler.
type Event struct {
	Type    EventType
	Message string
	Fields  map[string]any
}

// EventHandler is called for each lifecycle event; a nil handler is
// tolerated by the driver, which then emits nothing.
type EventHandler func(Event)

// LogHandler returns an EventHandler that logs each event through
// logger, matching executor.sendProgressEvent's level-per-type mapping.
func LogHandler(logger *slog.Logger) EventHandler {
	return func(ev Event) {
		args := make([]any, 0, len(ev.Fields)*2+2)
		args = append(args, "event", ev.Type.String())
		for k, v := range ev.Fields {
			args = append(args, k, v)
		}

		switch ev.Type {
		case EventBatchDispatched, EventBatchCompleted:
			logger.Info(ev.Message, args...)
		default:
			logger.Debug(ev.Message, args...)
		}
	}
}
