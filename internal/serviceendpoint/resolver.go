package serviceendpoint

import "context"

// Resolver is a cursor over the growing set of service endpoints for a
// single destination. An AttemptManager polls Next until it returns
// finished=true or an error; each call may block waiting on the
// next DNS answer or HTTPS-record update. EndpointsCryptoReady reports a
// monotone fact: once the crypto metadata (ECH config, trust anchor IDs,
// ALPN set) a resolution round produced has settled, it never reverts to
// "still pending" for that round.
//
// An AttemptManager calls Next from a dedicated polling goroutine and
// EndpointsCryptoReady from its event loop, so those two calls may overlap;
// Next is never called concurrently with itself.
type Resolver interface {
	// Next returns the latest accumulated ServiceEndpoint snapshot. It
	// blocks until new data arrives, ctx is done, or resolution finishes.
	// finished=true means no further snapshots will follow; the returned
	// snapshot is final.
	Next(ctx context.Context) (snapshot ServiceEndpoint, finished bool, err error)

	// EndpointsCryptoReady reports whether the crypto metadata on the most
	// recent snapshot is final for this resolution round.
	EndpointsCryptoReady() bool

	// Done returns a channel closed when the resolver will produce no
	// further snapshots, because it was aborted or has finished, letting
	// callers select on it without polling Next from a second
	// goroutine.
	Done() <-chan struct{}
}
