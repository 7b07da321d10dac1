package streamattempt

import "github.com/lhauspie/streampool/internal/serviceendpoint"

// Delegate lets a TlsStreamAttempt coordinate with its owning manager
// without importing it: pausing its progress until crypto metadata (ECH
// config, trust anchor ids) has settled, and reading the manager's current
// best-known endpoint snapshot when it needs to compute TLS parameters.
type Delegate interface {
	// OnTCPHandshakeComplete notifies the manager the TCP leg finished, so
	// it can pause the attempt's slow timer while the attempt waits for
	// crypto metadata before the TLS leg.
	OnTCPHandshakeComplete()

	// OnTLSHandshakeStart notifies the manager the TLS leg is beginning,
	// so it can re-arm the slow timer it paused after OnTCPHandshakeComplete.
	OnTLSHandshakeStart()

	// WaitForServiceEndpointReady reports true if crypto metadata is
	// already settled. If false, ready is invoked exactly once, from
	// whatever goroutine the manager uses, once it becomes settled or the
	// attempt is aborted (in which case GetServiceEndpoint will then
	// return an error).
	WaitForServiceEndpointReady(ready func()) bool

	// GetServiceEndpoint returns the manager's current best-known endpoint
	// snapshot, or an error if the attempt has been aborted.
	GetServiceEndpoint() (serviceendpoint.ServiceEndpoint, error)
}
