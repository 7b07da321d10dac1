// Package streamattempt implements the per-endpoint attempt state machines
// that an attemptslot races against each other: a TcpStreamAttempt dials a
// single IP endpoint, and a TlsStreamAttempt layers a TLS handshake (with
// ECH and trust-anchor-id one-shot retries) on top of one.
package streamattempt

import (
	"net"
	"time"

	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

// LoadState mirrors the coarse progress states a caller cares about for
// slow-timer and slot bookkeeping decisions.
type LoadState int

const (
	LoadStateIdle LoadState = iota
	LoadStateConnecting
	LoadStateWaitingForCryptoReady
	LoadStateSslHandshake
	LoadStateComplete
)

func (s LoadState) String() string {
	switch s {
	case LoadStateConnecting:
		return "connecting"
	case LoadStateSslHandshake:
		return "ssl_handshake"
	case LoadStateWaitingForCryptoReady:
		return "waiting_for_crypto_ready"
	case LoadStateComplete:
		return "complete"
	default:
		return "idle"
	}
}

// ConnectTiming records the wall-clock milestones of an attempt, reported
// upward for observability (see internal/netlog).
type ConnectTiming struct {
	ConnectStart time.Time
	TCPEnd       time.Time
	SSLStart     time.Time
	SSLEnd       time.Time
	OverallEnd   time.Time
}

// Result is what an attempt hands back to its completion callback: either a
// usable connection or the classified error that ended the attempt.
type Result struct {
	Conn net.Conn
	Err  error
}

// CompletionFunc is invoked exactly once when an attempt reaches a terminal
// state, successful or not.
type CompletionFunc func(Result)

// StreamAttempt is the common surface attemptslot.TcpBasedAttemptSlot and
// attemptmgr.AttemptManager drive, regardless of whether the concrete type
// is a bare TCP attempt or a TLS attempt layered on top of one.
type StreamAttempt interface {
	IpEndpoint() serviceendpoint.IpEndpoint

	// Start begins the attempt. completion is invoked from the attempt's
	// internal goroutine once the attempt reaches a terminal state.
	Start(completion CompletionFunc)

	LoadState() LoadState
	ConnectTiming() ConnectTiming

	// CertRequestInfo returns the client-certificate request captured
	// during a TLS handshake, nil for bare TCP attempts or when no
	// certificate was requested.
	CertRequestInfo() *streamsocket.CertRequestInfo

	// IsSlow reports whether this attempt has run long enough that its
	// sibling in the attempt slot should no longer be considered
	// cancellable on its account alone. Monotone: once true, never false.
	IsSlow() bool
	MarkSlow()

	// Cancel aborts the attempt if it hasn't already completed. Safe to
	// call multiple times and safe to call after natural completion.
	Cancel()

	// ReleaseSocket detaches and returns the attempt's connection after a
	// successful completion. Returns nil if the attempt failed or the
	// socket was already released.
	ReleaseSocket() net.Conn
}
