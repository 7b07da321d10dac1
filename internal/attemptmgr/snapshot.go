package attemptmgr

import "time"

// AttemptInfo is a read-only view of one in-flight attempt, for
// introspection endpoints (internal/poolapi) and debugging.
type AttemptInfo struct {
	ID        uint64 `json:"id"`
	Endpoint  string `json:"endpoint"`
	Family    string `json:"family"`
	LoadState string `json:"load_state"`
	Slow      bool   `json:"slow"`
}

// Snapshot is a point-in-time view of one AttemptManager's state.
type Snapshot struct {
	StreamKey  string        `json:"stream_key"`
	Waiting    int           `json:"waiting_requests"`
	StartedAt  time.Time     `json:"started_at"`
	Resolved   bool          `json:"winner_resolved"`
	QuicActive bool          `json:"quic_active"`
	Attempts   []AttemptInfo `json:"attempts"`
}

// Snapshot returns a read-only view of the manager's current state. Safe
// to call from any goroutine; the request is served by the manager's own
// event loop so it never races with loop-owned state.
func (m *AttemptManager) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case m.events <- event{kind: eventSnapshotRequest, snapshotReply: reply}:
	case <-m.doneCh:
		return Snapshot{StreamKey: m.key.String(), Resolved: true}
	}
	select {
	case snap := <-reply:
		return snap
	case <-m.doneCh:
		return Snapshot{StreamKey: m.key.String(), Resolved: true}
	}
}

func (m *AttemptManager) buildSnapshot() Snapshot {
	snap := Snapshot{
		StreamKey:  m.key.String(),
		Waiting:    len(m.waiting),
		StartedAt:  m.startedAt,
		Resolved:   m.winnerResolved,
		QuicActive: m.quicAttempt != nil,
	}
	for _, t := range m.attempts {
		snap.Attempts = append(snap.Attempts, AttemptInfo{
			ID:        t.id,
			Endpoint:  t.attempt.IpEndpoint().String(),
			Family:    t.attempt.IpEndpoint().Family().String(),
			LoadState: t.attempt.LoadState().String(),
			Slow:      t.attempt.IsSlow(),
		})
	}
	return snap
}
