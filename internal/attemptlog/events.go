package attemptlog

import (
	"database/sql"
	"fmt"
	"time"
)

// EventType names the attempt lifecycle moments recorded to the log,
// mirroring the events internal/netlog emits live.
type EventType string

const (
	EventAttemptStarted     EventType = "attempt_started"
	EventAttemptFinished    EventType = "attempt_finished"
	EventAttemptRetried     EventType = "attempt_retried"
	EventAttemptCancelled   EventType = "attempt_cancelled"
	EventSessionEstablished EventType = "session_established"
	EventManagerClosed      EventType = "manager_closed"
)

// Event is a single row of the attempt_events table.
type Event struct {
	ID            int64
	ManagerKey    string
	AttemptID     uint64
	EventType     EventType
	Family        string
	Endpoint      string
	Outcome       string
	ErrorClass    string
	ConnectMillis int64
	ALPN          string
	CancelReason  string
	OccurredAt    time.Time
}

// Record inserts a single attempt event.
func (db *DB) Record(ev Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO attempt_events
			(manager_key, attempt_id, event_type, family, endpoint, outcome, error_class, connect_millis, alpn, cancel_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ManagerKey, ev.AttemptID, string(ev.EventType), ev.Family, ev.Endpoint,
		ev.Outcome, ev.ErrorClass, ev.ConnectMillis, ev.ALPN, ev.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("record attempt event: %w", err)
	}
	return nil
}

// EventsForManager returns the most recent events for a given manager key,
// newest first, bounded by limit.
func (db *DB) EventsForManager(managerKey string, limit int) ([]Event, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT id, manager_key, attempt_id, event_type, family, endpoint, outcome, error_class, connect_millis, alpn, cancel_reason, occurred_at
		FROM attempt_events
		WHERE manager_key = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, managerKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempt events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// RecentEvents returns the most recently recorded events across all
// managers, newest first, bounded by limit.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT id, manager_key, attempt_id, event_type, family, endpoint, outcome, error_class, connect_millis, alpn, cancel_reason, occurred_at
		FROM attempt_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempt events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var eventType string
		if err := rows.Scan(
			&ev.ID, &ev.ManagerKey, &ev.AttemptID, &eventType, &ev.Family, &ev.Endpoint,
			&ev.Outcome, &ev.ErrorClass, &ev.ConnectMillis, &ev.ALPN, &ev.CancelReason, &ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt event row: %w", err)
		}
		ev.EventType = EventType(eventType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt event rows: %w", err)
	}
	return events, nil
}

// PruneOlderThan deletes events recorded before cutoff, returning the
// number of rows removed.
func (db *DB) PruneOlderThan(cutoff time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM attempt_events WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempt events: %w", err)
	}
	return res.RowsAffected()
}
