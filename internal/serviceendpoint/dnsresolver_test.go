package serviceendpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDNSResolver_RejectsMissingPort(t *testing.T) {
	_, err := NewDNSResolver("example.com", nil, nil)
	assert.Error(t, err)
}

func TestNewDNSResolver_RejectsBadPort(t *testing.T) {
	_, err := NewDNSResolver("example.com:notaport", nil, nil)
	assert.Error(t, err)
}

func TestNewDNSResolver_DefaultsALPN(t *testing.T) {
	r, err := NewDNSResolver("localhost:443", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "http/1.1"}, r.alpn)
}

func TestDNSResolver_Next_ResolvesLocalhost(t *testing.T) {
	r, err := NewDNSResolver("localhost:443", nil, []string{"h3"})
	require.NoError(t, err)

	snap, finished, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, finished)
	assert.True(t, r.EndpointsCryptoReady())
	assert.Equal(t, []string{"h3"}, snap.Metadata.ALPNProtocols)
	assert.NotEmpty(t, append(snap.IPv4Endpoints, ipv6AsEndpoints(snap)...))

	select {
	case <-r.Done():
	default:
		t.Fatal("expected Done() to be closed after Next returns")
	}
}

func ipv6AsEndpoints(s ServiceEndpoint) []IpEndpoint {
	return s.IPv6Endpoints
}

func TestDNSResolver_Next_UnresolvableHost(t *testing.T) {
	r, err := NewDNSResolver("this-host-does-not-resolve.invalid:443", nil, nil)
	require.NoError(t, err)

	_, finished, err := r.Next(context.Background())
	assert.True(t, finished)
	assert.Error(t, err)
}
