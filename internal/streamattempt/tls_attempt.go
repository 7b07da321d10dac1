package streamattempt

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

// DefaultTLSHandshakeTimeout bounds how long the TLS leg of an attempt may
// run, separately from the TCP connect timeout.
const DefaultTLSHandshakeTimeout = 30 * time.Second

// TrustAnchorPolicy is the operator-configured set of trust anchors
// eligible for the trust-anchor-id retry, in preference order.
type TrustAnchorPolicy struct {
	TrustAnchorIDs [][]byte
}

// TlsStreamAttemptConfig configures a new TLS attempt.
type TlsStreamAttemptConfig struct {
	Factory       streamsocket.Factory
	Endpoint      serviceendpoint.IpEndpoint
	HostPort      string
	BaseSslConfig sslconfig.SslConfig
	Delegate      Delegate
	Policy        TrustAnchorPolicy
	ECHEnabled    bool
	TAIEnabled    bool
	TCPTimeout    time.Duration
	TLSTimeout    time.Duration
}

type tlsPhase int

const (
	tlsPhaseTCP tlsPhase = iota
	tlsPhaseWaitingForCrypto
	tlsPhaseTLS
	tlsPhaseComplete
)

// TlsStreamAttempt layers a TLS handshake on top of a nested TCP attempt.
// It restarts its TCP leg from scratch, at most once per retry kind, when
// the TLS leg is rejected for ECH, or fails certificate verification while
// the server's offered trust anchor ids intersect the operator's trust
// anchor policy. ECH is tried
// before trust-anchor-id retries, matching the server's own precedence:
// an ECH rejection is diagnosed before certificate validation ever runs.
type TlsStreamAttempt struct {
	cfg TlsStreamAttemptConfig

	mu            sync.Mutex
	phase         tlsPhase
	state         LoadState
	timing        ConnectTiming
	nested        *TcpStreamAttempt
	tlsSocket     streamsocket.TLSSocket
	sslConfig     sslconfig.SslConfig
	sslConfigInit bool
	echRetried    bool
	taiRetried    bool
	certReq       *streamsocket.CertRequestInfo
	slow          bool
	aborted       bool
	done          bool

	tlsCancel  context.CancelFunc
	completion CompletionFunc
	once       sync.Once
	runCtx     context.Context
}

// NewTlsStreamAttempt builds an idle TLS attempt.
func NewTlsStreamAttempt(cfg TlsStreamAttemptConfig) *TlsStreamAttempt {
	if cfg.TCPTimeout == 0 {
		cfg.TCPTimeout = DefaultTCPConnectTimeout
	}
	if cfg.TLSTimeout == 0 {
		cfg.TLSTimeout = DefaultTLSHandshakeTimeout
	}
	return &TlsStreamAttempt{cfg: cfg, state: LoadStateIdle}
}

func (a *TlsStreamAttempt) IpEndpoint() serviceendpoint.IpEndpoint { return a.cfg.Endpoint }

func (a *TlsStreamAttempt) Start(completion CompletionFunc) {
	a.mu.Lock()
	a.completion = completion
	a.runCtx = context.Background()
	a.mu.Unlock()
	a.startTCPAttempt()
}

func (a *TlsStreamAttempt) startTCPAttempt() {
	a.mu.Lock()
	a.phase = tlsPhaseTCP
	a.state = LoadStateConnecting
	nested := NewTcpStreamAttempt(a.cfg.Factory, a.cfg.Endpoint)
	nested.timeout = a.cfg.TCPTimeout
	a.nested = nested
	if a.slow {
		nested.slow = true
	}
	ctx := a.runCtx
	a.mu.Unlock()

	nested.StartWithContext(ctx, a.onTCPComplete)
}

func (a *TlsStreamAttempt) onTCPComplete(res Result) {
	if res.Err != nil {
		a.finish(res)
		return
	}

	a.mu.Lock()
	a.timing.ConnectStart = a.nested.ConnectTiming().ConnectStart
	a.timing.TCPEnd = a.nested.ConnectTiming().TCPEnd
	delegate := a.cfg.Delegate
	firstPass := !a.sslConfigInit
	a.mu.Unlock()

	if delegate != nil {
		delegate.OnTCPHandshakeComplete()
	}

	if !firstPass || delegate == nil {
		a.startTLSAttempt()
		return
	}

	a.mu.Lock()
	a.phase = tlsPhaseWaitingForCrypto
	a.state = LoadStateWaitingForCryptoReady
	a.mu.Unlock()

	ready := delegate.WaitForServiceEndpointReady(a.startTLSAttempt)
	if ready {
		a.startTLSAttempt()
	}
}

func (a *TlsStreamAttempt) ensureSslConfig(ep serviceendpoint.ServiceEndpoint) {
	if a.sslConfigInit {
		return
	}
	cfg := a.cfg.BaseSslConfig.Clone()
	if a.cfg.ECHEnabled && ep.Metadata.HasECH() {
		cfg.EchConfigList = ep.Metadata.EchConfigList
	}
	if a.cfg.TAIEnabled && len(a.cfg.Policy.TrustAnchorIDs) > 0 {
		cfg.TrustAnchorIDs = sslconfig.Select(ep.Metadata.TrustAnchorIDs, a.cfg.Policy.TrustAnchorIDs)
	}
	a.sslConfig = cfg
	a.sslConfigInit = true
}

func (a *TlsStreamAttempt) startTLSAttempt() {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return
	}
	delegate := a.cfg.Delegate
	a.mu.Unlock()

	if delegate != nil {
		delegate.OnTLSHandshakeStart()
	}

	var ep serviceendpoint.ServiceEndpoint
	if delegate != nil {
		var err error
		ep, err = delegate.GetServiceEndpoint()
		if err != nil {
			a.finish(Result{Err: attempterr.ErrAborted})
			return
		}
	}

	a.mu.Lock()
	a.ensureSslConfig(ep)
	a.phase = tlsPhaseTLS
	a.state = LoadStateSslHandshake
	a.timing.SSLStart = time.Now()
	conn := a.nested.ReleaseSocket()
	sslCfg := a.sslConfig
	ctx, cancel := context.WithTimeout(a.runCtx, a.cfg.TLSTimeout)
	a.tlsCancel = cancel
	a.mu.Unlock()

	go a.runTLS(ctx, conn, sslCfg)
}

func (a *TlsStreamAttempt) runTLS(ctx context.Context, conn net.Conn, cfg sslconfig.SslConfig) {
	sock, err := a.cfg.Factory.WrapTLS(ctx, conn, a.cfg.HostPort, cfg)
	if err == nil {
		err = sock.HandshakeContext(ctx)
	}

	now := time.Now()
	a.mu.Lock()
	a.timing.SSLEnd = now
	a.timing.OverallEnd = now
	a.tlsSocket = sock
	aborted := a.aborted
	a.mu.Unlock()

	if aborted {
		a.finish(Result{Err: attempterr.ErrAborted})
		return
	}
	a.onTLSComplete(ctx, sock, err)
}

func (a *TlsStreamAttempt) onTLSComplete(ctx context.Context, sock streamsocket.TLSSocket, err error) {
	if err == nil {
		a.finish(Result{Conn: sock})
		return
	}

	if ctx.Err() != nil {
		a.finish(Result{Err: attempterr.ErrTimedOut})
		return
	}

	switch attempterr.Classify(err) {
	case attempterr.ClassificationEchRetriable:
		a.mu.Lock()
		alreadyRetried := a.echRetried
		a.mu.Unlock()
		if !alreadyRetried && a.cfg.ECHEnabled && sock != nil {
			a.mu.Lock()
			a.echRetried = true
			a.sslConfig.EchConfigList = sock.EchRetryConfigs()
			a.mu.Unlock()
			a.restartForRetry()
			return
		}
	case attempterr.ClassificationTrustAnchorRetriable:
		a.mu.Lock()
		alreadyRetried := a.taiRetried
		a.mu.Unlock()
		if !alreadyRetried && a.cfg.TAIEnabled && sock != nil {
			serverIDs := sock.ServerTrustAnchorIDsForRetry()
			retryIDs := sslconfig.Select(serverIDs, a.cfg.Policy.TrustAnchorIDs)
			if len(retryIDs) > 0 {
				a.mu.Lock()
				a.taiRetried = true
				a.sslConfig.TrustAnchorIDs = retryIDs
				a.mu.Unlock()
				a.restartForRetry()
				return
			}
		}
	}

	if errors.Is(err, attempterr.ErrClientAuthCertNeeded) && sock != nil {
		a.mu.Lock()
		a.certReq = sock.CertRequestInfo()
		a.mu.Unlock()
	}
	a.finish(Result{Err: err})
}

func (a *TlsStreamAttempt) restartForRetry() {
	a.mu.Lock()
	a.nested = nil
	a.tlsSocket = nil
	a.mu.Unlock()
	a.startTCPAttempt()
}

func (a *TlsStreamAttempt) finish(res Result) {
	a.mu.Lock()
	a.phase = tlsPhaseComplete
	a.state = LoadStateComplete
	a.done = true
	completion := a.completion
	a.mu.Unlock()

	a.once.Do(func() {
		if completion != nil {
			completion(res)
		}
	})
}

func (a *TlsStreamAttempt) LoadState() LoadState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *TlsStreamAttempt) ConnectTiming() ConnectTiming {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timing
}

func (a *TlsStreamAttempt) CertRequestInfo() *streamsocket.CertRequestInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.certReq
}

func (a *TlsStreamAttempt) IsSlow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slow
}

func (a *TlsStreamAttempt) MarkSlow() {
	a.mu.Lock()
	a.slow = true
	nested := a.nested
	a.mu.Unlock()
	if nested != nil {
		nested.MarkSlow()
	}
}

func (a *TlsStreamAttempt) Cancel() {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return
	}
	a.aborted = true
	nested := a.nested
	cancel := a.tlsCancel
	a.mu.Unlock()

	if nested != nil {
		nested.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	a.finish(Result{Err: attempterr.ErrAborted})
}

func (a *TlsStreamAttempt) ReleaseSocket() net.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	sock := a.tlsSocket
	a.tlsSocket = nil
	if sock == nil {
		return nil
	}
	return sock
}
