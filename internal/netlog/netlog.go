// Package netlog centralizes the structured log events an AttemptManager
// and its attempts emit, so every call site writes the same attribute
// names instead of ad hoc slog.With calls drifting apart over time.
package netlog

import (
	"log/slog"
	"time"
)

// Sink receives the same events EventLogger writes to slog, so a caller
// can additionally persist them (e.g. internal/attemptlog's SQLite-backed
// event log) without EventLogger needing to know persistence exists.
type Sink interface {
	AttemptStarted(streamKey, endpoint, family string)
	AttemptFinished(streamKey, endpoint string, err error, connectMillis int64)
	AttemptRetried(streamKey, endpoint, kind string)
	AttemptCancelled(streamKey, endpoint, reason string)
	SessionEstablished(streamKey, alpn string, totalLatency time.Duration)
	ManagerClosed(streamKey, reason string)
}

// EventLogger wraps a *slog.Logger with the attempt-manager observability
// vocabulary, optionally fanning each event out to a durable Sink.
type EventLogger struct {
	logger *slog.Logger
	sink   Sink
}

// New wraps logger. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger}
}

// WithSink returns a copy of e that also forwards every event to sink. A
// nil sink disables forwarding.
func (e *EventLogger) WithSink(sink Sink) *EventLogger {
	return &EventLogger{logger: e.logger, sink: sink}
}

// AttemptStarted records a new TCP-based attempt beginning against an
// endpoint.
func (e *EventLogger) AttemptStarted(streamKey, endpoint, family string) {
	e.logger.Debug("attempt started",
		"event", "attempt_started",
		"stream_key", streamKey,
		"endpoint", endpoint,
		"family", family,
	)
	if e.sink != nil {
		e.sink.AttemptStarted(streamKey, endpoint, family)
	}
}

// AttemptFinished records a terminal attempt outcome, successful or not.
func (e *EventLogger) AttemptFinished(streamKey, endpoint string, err error, connectMillis int64) {
	attrs := []any{
		"event", "attempt_finished",
		"stream_key", streamKey,
		"endpoint", endpoint,
		"connect_ms", connectMillis,
	}
	if err != nil {
		e.logger.Debug("attempt finished", append(attrs, "error", err.Error())...)
	} else {
		e.logger.Debug("attempt finished", attrs...)
	}
	if e.sink != nil {
		e.sink.AttemptFinished(streamKey, endpoint, err, connectMillis)
	}
}

// AttemptRetried records a one-shot ECH or trust-anchor-id restart.
func (e *EventLogger) AttemptRetried(streamKey, endpoint, kind string) {
	e.logger.Info("attempt retried",
		"event", "attempt_retried",
		"stream_key", streamKey,
		"endpoint", endpoint,
		"retry_kind", kind,
	)
	if e.sink != nil {
		e.sink.AttemptRetried(streamKey, endpoint, kind)
	}
}

// AttemptCancelled records a slot or manager tearing an attempt down for a
// reason other than the attempt's own failure.
func (e *EventLogger) AttemptCancelled(streamKey, endpoint, reason string) {
	e.logger.Debug("attempt cancelled",
		"event", "attempt_cancelled",
		"stream_key", streamKey,
		"endpoint", endpoint,
		"reason", reason,
	)
	if e.sink != nil {
		e.sink.AttemptCancelled(streamKey, endpoint, reason)
	}
}

// SessionEstablished records a manager resolving its waiting requests with
// a usable connection.
func (e *EventLogger) SessionEstablished(streamKey, alpn string, totalLatency time.Duration) {
	e.logger.Info("session established",
		"event", "session_established",
		"stream_key", streamKey,
		"alpn", alpn,
		"latency_ms", totalLatency.Milliseconds(),
	)
	if e.sink != nil {
		e.sink.SessionEstablished(streamKey, alpn, totalLatency)
	}
}

// ManagerClosed records a manager's event loop exiting, successfully or on
// shutdown.
func (e *EventLogger) ManagerClosed(streamKey string, reason string) {
	e.logger.Debug("manager closed",
		"event", "manager_closed",
		"stream_key", streamKey,
		"reason", reason,
	)
	if e.sink != nil {
		e.sink.ManagerClosed(streamKey, reason)
	}
}
