// Package quicattempt races a QUIC/HTTP3 handshake against the TCP-based
// attempts an AttemptManager is running for the same destination. Only one
// QuicAttempt ever runs per manager, gated on the destination advertising
// "h3" in its ALPN set; it shares the TLS leg's ECH configuration rather
// than negotiating its own.
package quicattempt

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
)

// DefaultHandshakeTimeout bounds a QUIC attempt, shorter than the TCP-based
// timeouts since a QUIC handshake that hasn't completed this fast is
// unlikely to win the race anyway.
const DefaultHandshakeTimeout = 10 * time.Second

// ALPNProtocol is the protocol string gating QUIC eligibility.
const ALPNProtocol = "h3"

// Eligible reports whether ep advertises QUIC/HTTP3 support.
func Eligible(ep serviceendpoint.ServiceEndpoint) bool {
	return ep.Metadata.SupportsALPN(ALPNProtocol)
}

// Session is an established, 0-RTT-eligible QUIC connection ready to back
// an HTTP/3 session.
type Session struct {
	Conn quic.Connection
}

// Close tears the QUIC connection down.
func (s Session) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.CloseWithError(0, "")
}

// Factory creates QUIC sessions, the seam tests substitute with fakes.
type Factory interface {
	DialEarly(ctx context.Context, ep serviceendpoint.IpEndpoint, hostPort string, cfg sslconfig.SslConfig) (Session, error)
}

// Dialer is the production Factory, backed by quic-go.
type Dialer struct {
	QuicConfig *quic.Config
}

// NewDialer returns a Dialer with reasonable defaults.
func NewDialer() *Dialer {
	return &Dialer{QuicConfig: &quic.Config{}}
}

func (d *Dialer) DialEarly(ctx context.Context, ep serviceendpoint.IpEndpoint, hostPort string, cfg sslconfig.SslConfig) (Session, error) {
	host := hostPort
	if h, _, err := net.SplitHostPort(hostPort); err == nil {
		host = h
	}
	tlsCfg := &tls.Config{
		ServerName:                     host,
		NextProtos:                     []string{ALPNProtocol},
		EncryptedClientHelloConfigList: cfg.EchConfigList,
	}
	conn, err := quic.DialAddrEarly(ctx, ep.String(), tlsCfg, d.QuicConfig)
	if err != nil {
		if ctx.Err() != nil {
			return Session{}, attempterr.ErrTimedOut
		}
		return Session{}, err
	}
	return Session{Conn: conn}, nil
}

// Result is what a QuicAttempt hands back on completion.
type Result struct {
	Session Session
	Err     error
}

// CompletionFunc is invoked exactly once when a QuicAttempt reaches a
// terminal state.
type CompletionFunc func(Result)

// QuicAttempt drives a single QUIC handshake attempt.
type QuicAttempt struct {
	factory   Factory
	endpoint  serviceendpoint.IpEndpoint
	hostPort  string
	sslConfig sslconfig.SslConfig
	timeout   time.Duration

	mu         sync.Mutex
	done       bool
	aborted    bool
	session    Session
	cancel     context.CancelFunc
	completion CompletionFunc
	once       sync.Once
}

// New builds an idle QUIC attempt. cfg should be the TLS attempt's
// resolved SslConfig so ECH configuration is shared rather than
// renegotiated independently.
func New(factory Factory, ep serviceendpoint.IpEndpoint, hostPort string, cfg sslconfig.SslConfig) *QuicAttempt {
	return &QuicAttempt{
		factory:   factory,
		endpoint:  ep,
		hostPort:  hostPort,
		sslConfig: cfg,
		timeout:   DefaultHandshakeTimeout,
	}
}

func (a *QuicAttempt) Start(completion CompletionFunc) {
	a.mu.Lock()
	a.completion = completion
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	a.cancel = cancel
	a.mu.Unlock()

	go a.run(ctx)
}

func (a *QuicAttempt) run(ctx context.Context) {
	session, err := a.factory.DialEarly(ctx, a.endpoint, a.hostPort, a.sslConfig)

	a.mu.Lock()
	a.done = true
	var res Result
	if err != nil {
		if a.aborted {
			res = Result{Err: attempterr.ErrAborted}
		} else {
			res = Result{Err: err}
		}
	} else {
		a.session = session
		res = Result{Session: session}
	}
	completion := a.completion
	a.mu.Unlock()

	a.once.Do(func() {
		if completion != nil {
			completion(res)
		}
	})
}

// Cancel aborts the attempt if it hasn't already completed.
func (a *QuicAttempt) Cancel() {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return
	}
	a.aborted = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ReleaseSession detaches the established session after a successful
// completion.
func (a *QuicAttempt) ReleaseSession() (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess := a.session
	a.session = Session{}
	return sess, sess.Conn != nil
}
