// Package attemptslot implements the two-attempt-wide pairing structure an
// AttemptManager uses to race one IPv4 and one IPv6 TCP-based attempt
// against each other: at most one attempt per address family, with a
// "slow" flag that is set while every occupant has been marked slow.
package attemptslot

// CancelReason records why a slot's attempts were torn down, surfaced to
// observability so a cancelled-but-not-failed attempt doesn't read as an
// error in logs or metrics.
type CancelReason int

const (
	CancelReasonUnspecified CancelReason = iota
	// CancelReasonSpdySessionCreated means a competing attempt produced a
	// reusable HTTP/2 session before this one finished.
	CancelReasonSpdySessionCreated
	// CancelReasonQuicSessionCreated means a competing QUIC attempt won the
	// race.
	CancelReasonQuicSessionCreated
	// CancelReasonUsingExistingSession means the pool found an existing
	// session to reuse after the attempt had already started.
	CancelReasonUsingExistingSession
	// CancelReasonPoolClosed means the owning pool shut down.
	CancelReasonPoolClosed
	// CancelReasonNetworkChanged means the host's network configuration
	// changed mid-attempt.
	CancelReasonNetworkChanged
)

func (r CancelReason) String() string {
	switch r {
	case CancelReasonSpdySessionCreated:
		return "spdy_session_created"
	case CancelReasonQuicSessionCreated:
		return "quic_session_created"
	case CancelReasonUsingExistingSession:
		return "using_existing_session"
	case CancelReasonPoolClosed:
		return "pool_closed"
	case CancelReasonNetworkChanged:
		return "network_changed"
	default:
		return "unspecified"
	}
}
