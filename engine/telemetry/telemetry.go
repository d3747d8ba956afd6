// Package telemetry defines the logging and metrics abstractions the engine
// records through, with implementations backed by goa.design/clue/log and
// OpenTelemetry metrics, plus noop implementations for tests.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages. Implementations must be safe
	// for concurrent use.
	Logger interface {
		// Debug emits a debug-level message with key-value pairs.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level message with key-value pairs.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warning-level message with key-value pairs.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level message with key-value pairs.
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records engine instrumentation. Implementations must be safe
	// for concurrent use and must never fail the caller.
	Metrics interface {
		// IncCounter increments a counter metric by value. Tags are
		// alternating key-value pairs.
		IncCounter(name string, value float64, tags ...string)
		// RecordTimer records a duration metric. Tags are alternating
		// key-value pairs.
		RecordTimer(name string, duration time.Duration, tags ...string)
	}
)
