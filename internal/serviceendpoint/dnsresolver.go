package serviceendpoint

import (
	"context"
	"net"
	"strconv"
)

// DNSResolver is the production Resolver, backed by the stdlib resolver.
// It performs one A/AAAA lookup round and yields a single, immediately
// "finished" snapshot; it does not discover HTTPS/SVCB crypto metadata
// (ECH config, trust anchor IDs), so every snapshot it yields reports
// EndpointsCryptoReady() true with an empty Metadata — there is simply
// nothing more to wait for.
type DNSResolver struct {
	host string
	port uint16

	netResolver *net.Resolver
	alpn        []string

	done chan struct{}
}

// NewDNSResolver builds a Resolver for hostPort (e.g. "example.com:443"),
// using r (or net.DefaultResolver if nil) to look up addresses. alpn is the
// protocol set advertised to downstream TLS/QUIC attempts when the origin's
// own preference can't be discovered another way.
func NewDNSResolver(hostPort string, r *net.Resolver, alpn []string) (*DNSResolver, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = net.DefaultResolver
	}
	if len(alpn) == 0 {
		alpn = []string{"h2", "http/1.1"}
	}
	return &DNSResolver{
		host:        host,
		port:        uint16(port),
		netResolver: r,
		alpn:        alpn,
		done:        make(chan struct{}),
	}, nil
}

// Next performs the lookup and returns the single accumulated snapshot.
// Callers must not call Next again after finished=true; a fresh DNSResolver
// is created per resolution round, matching the interface's documented
// per-manager ownership.
func (d *DNSResolver) Next(ctx context.Context) (ServiceEndpoint, bool, error) {
	defer close(d.done)

	addrs, err := d.netResolver.LookupNetIP(ctx, "ip", d.host)
	if err != nil {
		return ServiceEndpoint{}, true, err
	}

	snap := ServiceEndpoint{Metadata: Metadata{ALPNProtocols: d.alpn}}
	for _, addr := range addrs {
		addr = addr.Unmap()
		ep := NewIpEndpoint(addr, d.port)
		switch ep.Family() {
		case FamilyIPv4:
			snap.IPv4Endpoints = append(snap.IPv4Endpoints, ep)
		case FamilyIPv6:
			snap.IPv6Endpoints = append(snap.IPv6Endpoints, ep)
		}
	}
	return snap, true, nil
}

func (d *DNSResolver) EndpointsCryptoReady() bool { return true }

func (d *DNSResolver) Done() <-chan struct{} { return d.done }
