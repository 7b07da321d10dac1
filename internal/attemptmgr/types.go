// Package attemptmgr implements AttemptManager, the single-goroutine
// sequence that owns every in-flight attempt for one destination: it pulls
// endpoints from a resolver, pairs TCP-based attempts into attemptslot
// slots, races a QUIC attempt alongside them, and hands the first winner to
// every caller waiting at that moment.
package attemptmgr

import (
	"fmt"
	"net"
	"time"

	"github.com/lhauspie/streampool/internal/netlog"
)

// PrivacyMode partitions connections the same way the pool partitions
// sockets: attempts for different privacy modes never share a manager even
// if the destination is identical.
type PrivacyMode int

const (
	PrivacyModeDirect PrivacyMode = iota
	PrivacyModeAnonymous
)

func (p PrivacyMode) String() string {
	if p == PrivacyModeAnonymous {
		return "anonymous"
	}
	return "direct"
}

// StreamKey identifies the destination and partition an AttemptManager
// serves. Two requests with equal StreamKeys are served by the same
// manager; unequal keys always get distinct managers.
type StreamKey struct {
	HostPort         string
	Privacy          PrivacyMode
	NetworkPartition string
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.HostPort, k.Privacy, k.NetworkPartition)
}

// Priority is recorded on each Request. The manager resolves every waiting
// request with the same result, so priority does not change the order or
// the outcome of service.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// SessionInfo describes a usable connection handed back to a caller or
// reported to a manager by the pool when some other path (a concurrent
// manager, an existing pooled session) wins the race first.
type SessionInfo struct {
	Conn       net.Conn
	ALPN       string
	ResolvedAt time.Time
}

// Config bounds an AttemptManager's behavior; every field except EventSink
// is filled from an internal/poolconfig setting applied pool-wide.
type Config struct {
	TCPConnectTimeout    time.Duration
	TLSHandshakeTimeout  time.Duration
	HappyEyeballsDelay   time.Duration
	MaxConcurrentAttempts int
	ECHEnabled           bool
	TrustAnchorIDsEnabled bool
	QUICEnabled          bool
	TrustAnchorPolicy    [][]byte

	// EventSink, when set, receives a copy of every lifecycle event the
	// manager's netlog.EventLogger emits, in addition to the slog output.
	EventSink netlog.Sink
}
