package attemptlog

import (
	"log/slog"
	"time"

	"github.com/lhauspie/streampool/internal/netlog"
)

// Sink adapts a *DB to netlog.Sink, persisting every event
// internal/attemptmgr emits to the attempt_events table. Record failures
// are logged and swallowed: a write-path failure on the observability
// sink must never affect connection attempts in flight.
type Sink struct {
	db     *DB
	logger *slog.Logger
}

var _ netlog.Sink = (*Sink)(nil)

// NewSink wraps db as a netlog.Sink. A nil logger falls back to
// slog.Default().
func NewSink(db *DB, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, logger: logger}
}

func (s *Sink) record(ev Event) {
	if err := s.db.Record(ev); err != nil {
		s.logger.Warn("attempt log write failed", "err", err, "event", ev.EventType)
	}
}

func (s *Sink) AttemptStarted(streamKey, endpoint, family string) {
	s.record(Event{ManagerKey: streamKey, EventType: EventAttemptStarted, Endpoint: endpoint, Family: family})
}

func (s *Sink) AttemptFinished(streamKey, endpoint string, err error, connectMillis int64) {
	ev := Event{
		ManagerKey:    streamKey,
		EventType:     EventAttemptFinished,
		Endpoint:      endpoint,
		ConnectMillis: connectMillis,
		Outcome:       "success",
	}
	if err != nil {
		ev.Outcome = "error"
		ev.ErrorClass = err.Error()
	}
	s.record(ev)
}

func (s *Sink) AttemptRetried(streamKey, endpoint, kind string) {
	s.record(Event{ManagerKey: streamKey, EventType: EventAttemptRetried, Endpoint: endpoint, Outcome: kind})
}

func (s *Sink) AttemptCancelled(streamKey, endpoint, reason string) {
	s.record(Event{ManagerKey: streamKey, EventType: EventAttemptCancelled, Endpoint: endpoint, CancelReason: reason})
}

func (s *Sink) SessionEstablished(streamKey, alpn string, totalLatency time.Duration) {
	s.record(Event{
		ManagerKey:    streamKey,
		EventType:     EventSessionEstablished,
		ALPN:          alpn,
		ConnectMillis: totalLatency.Milliseconds(),
	})
}

func (s *Sink) ManagerClosed(streamKey, reason string) {
	s.record(Event{ManagerKey: streamKey, EventType: EventManagerClosed, CancelReason: reason})
}
