package streamattempt

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

// DefaultTCPConnectTimeout bounds how long a bare TCP dial may run before
// it is classified as timed out.
const DefaultTCPConnectTimeout = 60 * time.Second

// TcpStreamAttempt dials a single IP endpoint over TCP. It is also used as
// the nested first leg of a TlsStreamAttempt.
type TcpStreamAttempt struct {
	factory  streamsocket.Factory
	endpoint serviceendpoint.IpEndpoint
	timeout  time.Duration

	mu      sync.Mutex
	state   LoadState
	timing  ConnectTiming
	conn    net.Conn
	slow    bool
	aborted bool
	done    bool

	cancel     context.CancelFunc
	completion CompletionFunc
	once       sync.Once
}

// NewTcpStreamAttempt builds an idle attempt against ep.
func NewTcpStreamAttempt(factory streamsocket.Factory, ep serviceendpoint.IpEndpoint) *TcpStreamAttempt {
	return &TcpStreamAttempt{
		factory:  factory,
		endpoint: ep,
		timeout:  DefaultTCPConnectTimeout,
		state:    LoadStateIdle,
	}
}

func (a *TcpStreamAttempt) IpEndpoint() serviceendpoint.IpEndpoint { return a.endpoint }

// StartWithContext is like Start but lets the caller supply the parent
// context, used by TlsStreamAttempt to chain its own lifetime into its
// nested TCP leg.
func (a *TcpStreamAttempt) StartWithContext(ctx context.Context, completion CompletionFunc) {
	a.mu.Lock()
	a.state = LoadStateConnecting
	a.timing.ConnectStart = time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	a.cancel = cancel
	a.completion = completion
	a.mu.Unlock()

	go a.run(attemptCtx)
}

func (a *TcpStreamAttempt) Start(completion CompletionFunc) {
	a.StartWithContext(context.Background(), completion)
}

func (a *TcpStreamAttempt) run(ctx context.Context) {
	conn, err := a.factory.DialStream(ctx, a.endpoint)

	now := time.Now()
	a.mu.Lock()
	a.timing.TCPEnd = now
	a.timing.OverallEnd = now
	a.state = LoadStateComplete
	a.done = true

	var res Result
	if err != nil {
		if a.aborted {
			res = Result{Err: attempterr.ErrAborted}
		} else if ctx.Err() != nil {
			res = Result{Err: attempterr.ErrTimedOut}
		} else {
			res = Result{Err: err}
		}
	} else {
		a.conn = conn
		res = Result{Conn: conn}
	}
	completion := a.completion
	a.mu.Unlock()

	a.once.Do(func() {
		if completion != nil {
			completion(res)
		}
	})
}

func (a *TcpStreamAttempt) LoadState() LoadState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *TcpStreamAttempt) ConnectTiming() ConnectTiming {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timing
}

func (a *TcpStreamAttempt) CertRequestInfo() *streamsocket.CertRequestInfo { return nil }

func (a *TcpStreamAttempt) IsSlow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slow
}

func (a *TcpStreamAttempt) MarkSlow() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slow = true
}

func (a *TcpStreamAttempt) Cancel() {
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

func (a *TcpStreamAttempt) ReleaseSocket() net.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn := a.conn
	a.conn = nil
	return conn
}
