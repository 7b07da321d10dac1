package models

import "time"

// AttemptInfo mirrors attemptmgr.AttemptInfo for API responses.
type AttemptInfo struct {
	ID        uint64 `json:"id"`
	Endpoint  string `json:"endpoint"`
	Family    string `json:"family"`
	LoadState string `json:"load_state"`
	Slow      bool   `json:"slow"`
}

// ManagerSnapshot mirrors attemptmgr.Snapshot for API responses.
type ManagerSnapshot struct {
	StreamKey  string        `json:"stream_key"`
	Waiting    int           `json:"waiting_requests"`
	StartedAt  time.Time     `json:"started_at"`
	Resolved   bool          `json:"winner_resolved"`
	QuicActive bool          `json:"quic_active"`
	Attempts   []AttemptInfo `json:"attempts"`
}

// ManagersResponse is the response body for GET /api/v1/pools/managers.
type ManagersResponse struct {
	Count    int               `json:"count"`
	Managers []ManagerSnapshot `json:"managers"`
}

// AttemptEvent mirrors attemptlog.Event for API responses.
type AttemptEvent struct {
	ID            int64     `json:"id"`
	ManagerKey    string    `json:"manager_key"`
	AttemptID     uint64    `json:"attempt_id"`
	EventType     string    `json:"event_type"`
	Family        string    `json:"family"`
	Endpoint      string    `json:"endpoint"`
	Outcome       string    `json:"outcome"`
	ErrorClass    string    `json:"error_class,omitempty"`
	ConnectMillis int64     `json:"connect_millis"`
	ALPN          string    `json:"alpn,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventsResponse is the response body for GET /api/v1/pools/events.
type EventsResponse struct {
	Count  int            `json:"count"`
	Events []AttemptEvent `json:"events"`
}
