package attemptmgr

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lhauspie/streampool/internal/attemptslot"
	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/netlog"
	"github.com/lhauspie/streampool/internal/quicattempt"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
	"github.com/lhauspie/streampool/internal/streamattempt"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

// Budget is the pool-wide attempt admission control an AttemptManager
// consults before launching a new attempt. The streampool package supplies
// the concrete implementation shared by every manager.
type Budget interface {
	TryAcquire() bool
	Release()
}

// SessionFactory lets the manager hand a winning connection off to
// whatever protocol session layer owns it (HTTP/2, HTTP/3, or plain
// HTTP/1.1), supplementing the socket hand-off the original attempt
// managers delegated to their stream pool.
type SessionFactory func(conn net.Conn, alpn string) (SessionInfo, error)

type eventKind int

const (
	eventResolverUpdate eventKind = iota
	eventAttemptComplete
	eventQuicComplete
	eventSlowTimer
	eventPauseSlowTimer
	eventResumeSlowTimer
	eventNewRequest
	eventCancelRequest
	eventSessionCreated
	eventNetworkChanged
	eventSnapshotRequest
)

type event struct {
	kind          eventKind
	attemptID     uint64
	attemptRes    streamattempt.Result
	quicRes       quicattempt.Result
	update        resolverUpdate
	req           *Request
	reqID         uint64
	sessionInfo   SessionInfo
	snapshotReply chan Snapshot
}

// resolverUpdate is pushed by the resolver-polling goroutine into the
// manager's single event loop.
type resolverUpdate struct {
	endpoint serviceendpoint.ServiceEndpoint
	finished bool
}

// trackedAttempt is the manager's private bookkeeping for one in-flight
// attempt: the attempt itself plus the slot it lives in and its slow
// timer.
type trackedAttempt struct {
	id     uint64
	attempt streamattempt.StreamAttempt
	slot   *attemptslot.TcpBasedAttemptSlot
	timer  *time.Timer
}

// AttemptManager owns every in-flight attempt toward one destination. All
// mutable state below run() is touched only from the manager's own
// goroutine; callers only ever send events or read through channels,
// mirroring a single logical sequence of execution per destination rather
// than lock-protected shared state.
type AttemptManager struct {
	key           StreamKey
	cfg           Config
	resolver      serviceendpoint.Resolver
	streamFactory streamsocket.Factory
	quicFactory   quicattempt.Factory
	sessionMaker  SessionFactory
	baseSsl       sslconfig.SslConfig
	budget        Budget
	logger        *slog.Logger
	elog          *netlog.EventLogger

	events  chan event
	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once

	gate *cryptoGate

	// loop-owned
	waiting        []*Request
	attempts       map[uint64]*trackedAttempt
	nextAttemptID  uint64
	quicAttempt    *quicattempt.QuicAttempt
	latestEndpoint serviceendpoint.ServiceEndpoint
	resolverDone   bool
	triedV4        int
	triedV6        int
	winnerResolved bool
	closed         bool
	startedAt      time.Time
}

// New constructs an AttemptManager and starts its event loop goroutine.
func New(key StreamKey, cfg Config, resolver serviceendpoint.Resolver, streamFactory streamsocket.Factory, quicFactory quicattempt.Factory, sessionMaker SessionFactory, baseSsl sslconfig.SslConfig, budget Budget, logger *slog.Logger) *AttemptManager {
	if logger == nil {
		logger = slog.Default()
	}
	elog := netlog.New(logger)
	if cfg.EventSink != nil {
		elog = elog.WithSink(cfg.EventSink)
	}
	m := &AttemptManager{
		key:           key,
		cfg:           cfg,
		resolver:      resolver,
		streamFactory: streamFactory,
		quicFactory:   quicFactory,
		sessionMaker:  sessionMaker,
		baseSsl:       baseSsl,
		budget:        budget,
		logger:        logger.With("stream_key", key.String()),
		elog:          elog,
		events:        make(chan event, 64),
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
		attempts:      make(map[uint64]*trackedAttempt),
		gate:          &cryptoGate{},
		startedAt:     time.Now(),
	}
	go m.pollResolver()
	go m.run()
	return m
}

// Request enqueues a new caller wanting a connection from this manager.
func (m *AttemptManager) Request(priority Priority) *Request {
	req := newRequest(m, priority)
	select {
	case m.events <- event{kind: eventNewRequest, req: req}:
	case <-m.doneCh:
		req.resultCh <- Result{Err: attempterr.ErrPoolClosed}
	}
	return req
}

func (m *AttemptManager) cancelRequest(id uint64) {
	select {
	case m.events <- event{kind: eventCancelRequest, reqID: id}:
	case <-m.doneCh:
	}
}

// NotifySessionCreated tells the manager a connection for this destination
// became available through some other path (a sibling manager, an
// existing pooled session), so in-flight attempts should be preempted.
func (m *AttemptManager) NotifySessionCreated(info SessionInfo) {
	select {
	case m.events <- event{kind: eventSessionCreated, sessionInfo: info}:
	case <-m.doneCh:
	}
}

// NotifyNetworkChanged tears down every in-flight attempt because the
// host's network configuration changed.
func (m *AttemptManager) NotifyNetworkChanged() {
	select {
	case m.events <- event{kind: eventNetworkChanged}:
	case <-m.doneCh:
	}
}

// Close shuts the manager down, failing every waiting request and
// cancelling every in-flight attempt.
func (m *AttemptManager) Close() {
	m.once.Do(func() { close(m.closeCh) })
	<-m.doneCh
}

// Done returns a channel closed once the manager's loop has exited.
func (m *AttemptManager) Done() <-chan struct{} { return m.doneCh }

func (m *AttemptManager) pollResolver() {
	ctx := context.Background()
	for {
		snap, finished, err := m.resolver.Next(ctx)
		select {
		case m.events <- event{kind: eventResolverUpdate, update: resolverUpdate{endpoint: snap, finished: finished}}:
		case <-m.doneCh:
			return
		}
		if finished || err != nil {
			return
		}
	}
}

func (m *AttemptManager) run() {
	defer close(m.doneCh)
	defer m.elog.ManagerClosed(m.key.String(), "loop_exit")
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.closeCh:
			m.shutdown(attempterr.ErrPoolClosed)
			return
		}
		if m.closed {
			return
		}
	}
}

func (m *AttemptManager) handle(ev event) {
	switch ev.kind {
	case eventNewRequest:
		m.waiting = append(m.waiting, ev.req)
		m.maybeLaunchMore()
	case eventCancelRequest:
		m.removeWaiting(ev.reqID)
	case eventResolverUpdate:
		m.latestEndpoint = ev.update.endpoint
		if m.resolver.EndpointsCryptoReady() {
			m.gate.setReady(ev.update.endpoint)
		} else {
			m.gate.updateEndpoint(ev.update.endpoint)
		}
		if ev.update.finished {
			m.resolverDone = true
		}
		m.maybeLaunchMore()
	case eventAttemptComplete:
		m.onAttemptComplete(ev.attemptID, ev.attemptRes)
	case eventQuicComplete:
		m.onQuicComplete(ev.quicRes)
	case eventSlowTimer:
		m.onSlowTimer(ev.attemptID)
	case eventPauseSlowTimer:
		if t, ok := m.attempts[ev.attemptID]; ok && t.timer != nil {
			t.timer.Stop()
		}
	case eventResumeSlowTimer:
		if t, ok := m.attempts[ev.attemptID]; ok {
			m.armSlowTimer(t)
		}
	case eventSessionCreated:
		m.resolveWinner(Result{Session: ev.sessionInfo})
		m.cancelEverything(attemptslot.CancelReasonUsingExistingSession)
	case eventNetworkChanged:
		m.cancelEverything(attemptslot.CancelReasonNetworkChanged)
		m.resolverDone = true
		for _, r := range m.waiting {
			r.resultCh <- Result{Err: attempterr.ErrNetworkChanged}
		}
		m.waiting = nil
	case eventSnapshotRequest:
		ev.snapshotReply <- m.buildSnapshot()
	}
}

func (m *AttemptManager) removeWaiting(id uint64) {
	for i, r := range m.waiting {
		if r.id == id {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			return
		}
	}
}

func (m *AttemptManager) shutdown(err error) {
	m.cancelEverything(attemptslot.CancelReasonPoolClosed)
	m.gate.abort()
	for _, r := range m.waiting {
		r.resultCh <- Result{Err: err}
	}
	m.waiting = nil
	m.closed = true
}

func (m *AttemptManager) cancelEverything(reason attemptslot.CancelReason) {
	for _, t := range m.attempts {
		if t.timer != nil {
			t.timer.Stop()
		}
		m.elog.AttemptCancelled(m.key.String(), t.attempt.IpEndpoint().String(), reason.String())
		t.attempt.Cancel()
	}
	if m.quicAttempt != nil {
		m.quicAttempt.Cancel()
		m.quicAttempt = nil
	}
}

func (m *AttemptManager) resolveWinner(res Result) {
	if m.winnerResolved {
		return
	}
	m.winnerResolved = true
	m.elog.SessionEstablished(m.key.String(), res.Session.ALPN, time.Since(m.startedAt))
	for _, r := range m.waiting {
		r.resultCh <- res
	}
	m.waiting = nil
	m.closed = true
}
