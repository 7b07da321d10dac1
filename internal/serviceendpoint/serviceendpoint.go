// Package serviceendpoint models the DNS-derived destination data an
// AttemptManager races against: an IP endpoint per address family plus the
// crypto metadata (ECH config, trust anchor IDs, ALPN set) that travels
// alongside it in HTTPS/SVCB records.
package serviceendpoint

import (
	"fmt"
	"net/netip"
)

// AddressFamily distinguishes the two address families Happy Eyeballs races
// against each other.
type AddressFamily int

const (
	FamilyUnknown AddressFamily = iota
	FamilyIPv4
	FamilyIPv6
)

func (f AddressFamily) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// IpEndpoint is a single dial target: one address, one port.
type IpEndpoint struct {
	addr netip.Addr
	port uint16
}

// NewIpEndpoint builds an IpEndpoint from an address and port.
func NewIpEndpoint(addr netip.Addr, port uint16) IpEndpoint {
	return IpEndpoint{addr: addr, port: port}
}

func (e IpEndpoint) Addr() netip.Addr { return e.addr }
func (e IpEndpoint) Port() uint16     { return e.port }

// Family reports which Happy Eyeballs family this endpoint belongs to.
func (e IpEndpoint) Family() AddressFamily {
	switch {
	case e.addr.Is4() || e.addr.Is4In6():
		return FamilyIPv4
	case e.addr.Is6():
		return FamilyIPv6
	default:
		return FamilyUnknown
	}
}

func (e IpEndpoint) String() string {
	return fmt.Sprintf("%s:%d", e.addr, e.port)
}

// IsValid reports whether the endpoint carries a usable address.
func (e IpEndpoint) IsValid() bool {
	return e.addr.IsValid()
}

// Metadata is the crypto and protocol-negotiation data attached to a
// resolved service endpoint, typically sourced from an HTTPS/SVCB record.
type Metadata struct {
	// EchConfigList is the wire-format ECHConfigList advertised by the
	// origin, empty when the origin does not support ECH.
	EchConfigList []byte
	// TrustAnchorIDs are the origin's acceptable trust anchors, in the
	// origin's preference order.
	TrustAnchorIDs [][]byte
	// ALPNProtocols are the application protocols the origin advertises,
	// e.g. "h2", "http/1.1", "h3".
	ALPNProtocols []string
}

// HasECH reports whether the origin advertised an ECH configuration.
func (m Metadata) HasECH() bool {
	return len(m.EchConfigList) > 0
}

// SupportsALPN reports whether proto appears in the advertised ALPN set.
func (m Metadata) SupportsALPN(proto string) bool {
	for _, p := range m.ALPNProtocols {
		if p == proto {
			return true
		}
	}
	return false
}

// ServiceEndpoint is the accumulated, possibly still-growing view of a
// destination's resolved addresses and crypto metadata. A Resolver yields a
// sequence of these as more data becomes available (e.g. IPv6 glue arrives
// after IPv4, or crypto metadata arrives in a later HTTPS record update).
type ServiceEndpoint struct {
	IPv4Endpoints []IpEndpoint
	IPv6Endpoints []IpEndpoint
	Metadata      Metadata
}

// EndpointsFor returns the endpoints belonging to the given family.
func (s ServiceEndpoint) EndpointsFor(family AddressFamily) []IpEndpoint {
	switch family {
	case FamilyIPv4:
		return s.IPv4Endpoints
	case FamilyIPv6:
		return s.IPv6Endpoints
	default:
		return nil
	}
}

// Empty reports whether the endpoint carries no addresses in either family.
func (s ServiceEndpoint) Empty() bool {
	return len(s.IPv4Endpoints) == 0 && len(s.IPv6Endpoints) == 0
}
