// Package streamsocket is the boundary between the attempt state machines
// in internal/streamattempt and the network: it dials raw TCP connections
// and wraps them in TLS, surfacing the handful of post-handshake facts
// (ECH retry configs, server trust anchor ids, client certificate requests)
// that drive the one-shot retry paths above it.
package streamsocket

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
)

// CertRequestInfo captures what a server asked for when it requested a
// client certificate during a TLS handshake the caller did not configure
// one for.
type CertRequestInfo struct {
	Host                          string
	SupportedSignatureAlgorithms []tls.SignatureScheme
	AcceptableCAs                [][]byte
}

// TLSSocket wraps a completed or failed TLS connection attempt, exposing
// the retry-relevant facts alongside the usual net.Conn surface.
type TLSSocket interface {
	net.Conn

	// HandshakeContext runs the TLS handshake, honoring ctx's deadline and
	// cancellation.
	HandshakeContext(ctx context.Context) error

	// EchRetryConfigs returns the server-supplied retry configuration list
	// after a rejected ECH handshake. A nil, non-empty-vs-nil distinction
	// matters: nil means the server declined to supply one (ECH must be
	// disabled on retry), non-nil-empty never occurs, non-empty means retry
	// with the new list.
	EchRetryConfigs() []byte

	// ServerTrustAnchorIDsForRetry returns the trust anchors the server
	// offered during the handshake, for use in a retry after a certificate
	// verification failure; empty if none were offered.
	ServerTrustAnchorIDsForRetry() [][]byte

	// CertRequestInfo returns the captured client-certificate request, or
	// nil if the server never asked for one.
	CertRequestInfo() *CertRequestInfo

	// ReleaseUnderlying detaches and returns the raw TCP connection,
	// leaving the TLSSocket unusable.
	ReleaseUnderlying() net.Conn
}

// Factory creates the raw and TLS-wrapped sockets an attempt needs. It is
// the seam tests substitute with fakes.
type Factory interface {
	// DialStream opens a TCP connection to ep, honoring ctx's deadline.
	DialStream(ctx context.Context, ep serviceendpoint.IpEndpoint) (net.Conn, error)

	// WrapTLS upgrades conn to TLS for hostPort using cfg. The returned
	// TLSSocket's handshake has not necessarily completed; call
	// HandshakeContext to drive it.
	WrapTLS(ctx context.Context, conn net.Conn, hostPort string, cfg sslconfig.SslConfig) (TLSSocket, error)
}

// Dialer is the production Factory, backed by net.Dialer and crypto/tls.
//
// Go's net.Dialer fuses socket creation and connection into a single
// DialContext call; there is no stdlib equivalent of creating an unbound
// socket and connecting it in two steps, so DialStream models both stages
// as one, timed by ctx's deadline exactly as the two-step version would be.
type Dialer struct {
	NetDialer *net.Dialer

	// TrustAnchorIDExtractor pulls the server's offered trust anchor ids
	// out of a completed tls.ConnectionState. The production TLS stack has
	// no stable public surface for this experimental extension, so it is
	// supplied by the caller (typically wired from a vendored or forked
	// crypto/tls build); the zero value returns no ids, which simply
	// disables the trust-anchor-id retry path.
	TrustAnchorIDExtractor func(*tls.ConnectionState) [][]byte
}

// NewDialer returns a Dialer with reasonable defaults.
func NewDialer() *Dialer {
	return &Dialer{NetDialer: &net.Dialer{}}
}

func (d *Dialer) DialStream(ctx context.Context, ep serviceendpoint.IpEndpoint) (net.Conn, error) {
	nd := d.NetDialer
	if nd == nil {
		nd = &net.Dialer{}
	}
	conn, err := nd.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, classifyDialErr(ctx, err)
	}
	return conn, nil
}

func classifyDialErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return attempterr.ErrTimedOut
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Timeout() {
		return attempterr.ErrTimedOut
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return attempterr.ErrConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return attempterr.ErrConnectionReset
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return attempterr.ErrNetworkUnreachable
	default:
		return err
	}
}

func (d *Dialer) WrapTLS(ctx context.Context, conn net.Conn, hostPort string, cfg sslconfig.SslConfig) (TLSSocket, error) {
	host := hostPort
	if h, _, err := net.SplitHostPort(hostPort); err == nil {
		host = h
	}
	tlsCfg := &tls.Config{
		ServerName:                     host,
		NextProtos:                     cfg.ALPNProtocols,
		MinVersion:                     cfg.MinVersion,
		MaxVersion:                     cfg.MaxVersion,
		EncryptedClientHelloConfigList: cfg.EchConfigList,
	}
	sock := &tlsSocket{
		conn:      tls.Client(conn, tlsCfg),
		raw:       conn,
		host:      host,
		extractor: d.TrustAnchorIDExtractor,
	}
	tlsCfg.GetClientCertificate = sock.onClientCertificateRequested
	return sock, nil
}

type tlsSocket struct {
	conn      *tls.Conn
	raw       net.Conn
	host      string
	extractor func(*tls.ConnectionState) [][]byte

	mu             sync.Mutex
	certReq        *CertRequestInfo
	echRetryConfig []byte
	sawEchReject   bool
}

func (s *tlsSocket) onClientCertificateRequested(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	s.mu.Lock()
	s.certReq = &CertRequestInfo{
		Host:                         s.host,
		SupportedSignatureAlgorithms: info.SignatureSchemes,
		AcceptableCAs:                info.AcceptableCAs,
	}
	s.mu.Unlock()
	return nil, attempterr.ErrClientAuthCertNeeded
}

func (s *tlsSocket) HandshakeContext(ctx context.Context) error {
	err := s.conn.HandshakeContext(ctx)
	if err == nil {
		return nil
	}
	var echErr *tls.ECHRejectionError
	if errors.As(err, &echErr) {
		s.mu.Lock()
		s.sawEchReject = true
		s.echRetryConfig = echErr.RetryConfigList
		s.mu.Unlock()
		return attempterr.ErrEchRejected
	}
	if errors.Is(err, attempterr.ErrClientAuthCertNeeded) {
		// CertRequestInfo was already populated by onClientCertificateRequested.
		return attempterr.ErrClientAuthCertNeeded
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return attempterr.ErrCertificateInvalid
	}
	if ctx.Err() != nil {
		return attempterr.ErrTimedOut
	}
	return err
}

func (s *tlsSocket) EchRetryConfigs() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.echRetryConfig
}

func (s *tlsSocket) ServerTrustAnchorIDsForRetry() [][]byte {
	if s.extractor == nil {
		return nil
	}
	state := s.conn.ConnectionState()
	return s.extractor(&state)
}

func (s *tlsSocket) CertRequestInfo() *CertRequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certReq
}

func (s *tlsSocket) ReleaseUnderlying() net.Conn {
	raw := s.raw
	s.raw = nil
	return raw
}

func (s *tlsSocket) Read(b []byte) (int, error)             { return s.conn.Read(b) }
func (s *tlsSocket) Write(b []byte) (int, error)            { return s.conn.Write(b) }
func (s *tlsSocket) Close() error                           { return s.conn.Close() }
func (s *tlsSocket) LocalAddr() net.Addr                    { return s.conn.LocalAddr() }
func (s *tlsSocket) RemoteAddr() net.Addr                   { return s.conn.RemoteAddr() }
func (s *tlsSocket) SetDeadline(t time.Time) error          { return s.conn.SetDeadline(t) }
func (s *tlsSocket) SetReadDeadline(t time.Time) error      { return s.conn.SetReadDeadline(t) }
func (s *tlsSocket) SetWriteDeadline(t time.Time) error     { return s.conn.SetWriteDeadline(t) }
