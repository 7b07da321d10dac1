package attemptmgr

import (
	"time"

	"github.com/lhauspie/streampool/internal/attemptslot"
	"github.com/lhauspie/streampool/internal/objpool"
	"github.com/lhauspie/streampool/internal/quicattempt"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/streamattempt"
)

// defaultHappyEyeballsDelay is used when the config leaves the stagger
// delay unset.
const defaultHappyEyeballsDelay = 250 * time.Millisecond

// slotPool recycles TcpBasedAttemptSlot values across the many attempts a
// single long-lived AttemptManager launches, the same way the teacher's
// server read loops recycle scratch buffers instead of allocating one per
// packet.
var slotPool = objpool.New(func() *attemptslot.TcpBasedAttemptSlot {
	return attemptslot.New()
})

// maybeLaunchMore starts new TCP-based attempts for as long as there are
// waiting requests, untried candidate endpoints, and budget to spend. It
// also gives the QUIC attempt a chance to start once endpoint metadata
// makes it eligible.
func (m *AttemptManager) maybeLaunchMore() {
	if m.closed {
		return
	}
	for len(m.waiting) > 0 {
		ep, ok := m.nextCandidateEndpoint()
		if !ok {
			break
		}
		if !m.budget.TryAcquire() {
			break
		}
		m.launchAttempt(ep)
	}
	m.maybeLaunchQuic()
}

// nextCandidateEndpoint returns the next untried endpoint, preferring
// whichever address family has fallen behind in attempt count so the two
// families stay roughly paced with each other, matching the dual-stack
// preference Happy Eyeballs racing expects.
func (m *AttemptManager) nextCandidateEndpoint() (serviceendpoint.IpEndpoint, bool) {
	v4 := m.latestEndpoint.IPv4Endpoints
	v6 := m.latestEndpoint.IPv6Endpoints

	if m.triedV6 <= m.triedV4 && m.triedV6 < len(v6) {
		return v6[m.triedV6], true
	}
	if m.triedV4 < len(v4) {
		return v4[m.triedV4], true
	}
	if m.triedV6 < len(v6) {
		return v6[m.triedV6], true
	}
	return serviceendpoint.IpEndpoint{}, false
}

func (m *AttemptManager) launchAttempt(ep serviceendpoint.IpEndpoint) {
	id := m.nextAttemptID
	m.nextAttemptID++

	var slot *attemptslot.TcpBasedAttemptSlot
	for _, t := range m.attempts {
		if !t.slot.HasFamily(ep.Family()) {
			slot = t.slot
			break
		}
	}
	if slot == nil {
		slot = slotPool.Get()
	}
	attempt := streamattempt.NewTlsStreamAttempt(streamattempt.TlsStreamAttemptConfig{
		Factory:       m.streamFactory,
		Endpoint:      ep,
		HostPort:      m.key.HostPort,
		BaseSslConfig: m.baseSsl,
		Delegate:      attemptDelegate{mgr: m, attemptID: id},
		Policy:        streamattempt.TrustAnchorPolicy{TrustAnchorIDs: m.cfg.TrustAnchorPolicy},
		ECHEnabled:    m.cfg.ECHEnabled,
		TAIEnabled:    m.cfg.TrustAnchorIDsEnabled,
		TCPTimeout:    m.cfg.TCPConnectTimeout,
		TLSTimeout:    m.cfg.TLSHandshakeTimeout,
	})

	if err := slot.Allocate(attempt); err != nil {
		m.budget.Release()
		m.logger.Warn("could not place attempt in a slot", "error", err, "endpoint", ep.String())
		return
	}

	tracked := &trackedAttempt{id: id, attempt: attempt, slot: slot}
	m.attempts[id] = tracked

	if ep.Family() == serviceendpoint.FamilyIPv4 {
		m.triedV4++
	} else {
		m.triedV6++
	}

	m.armSlowTimer(tracked)

	attempt.Start(func(res streamattempt.Result) {
		select {
		case m.events <- event{kind: eventAttemptComplete, attemptID: id, attemptRes: res}:
		case <-m.doneCh:
		}
	})

	m.elog.AttemptStarted(m.key.String(), ep.String(), ep.Family().String())
}

// armSlowTimer (re-)starts tracked's slow timer with a fresh
// connection_attempt_delay. Used both when an attempt is first launched
// and when its TLS leg begins, since the timer is paused for the
// wait-for-crypto-metadata gap in between and must resume from scratch
// rather than picking up where it left off.
func (m *AttemptManager) armSlowTimer(tracked *trackedAttempt) {
	delay := m.cfg.HappyEyeballsDelay
	if delay <= 0 {
		delay = defaultHappyEyeballsDelay
	}
	id := tracked.id
	tracked.timer = time.AfterFunc(delay, func() {
		select {
		case m.events <- event{kind: eventSlowTimer, attemptID: id}:
		case <-m.doneCh:
		}
	})
}

// maybeLaunchQuic starts the single QUIC attempt for this manager once the
// destination has advertised HTTP/3 support and at least one address is
// known, sharing ECH configuration with the TLS leg's base parameters
// rather than negotiating it independently.
func (m *AttemptManager) maybeLaunchQuic() {
	if !m.cfg.QUICEnabled || m.quicAttempt != nil || m.quicFactory == nil {
		return
	}
	if m.latestEndpoint.Empty() || !quicattempt.Eligible(m.latestEndpoint) {
		return
	}

	var ep serviceendpoint.IpEndpoint
	switch {
	case len(m.latestEndpoint.IPv6Endpoints) > 0:
		ep = m.latestEndpoint.IPv6Endpoints[0]
	case len(m.latestEndpoint.IPv4Endpoints) > 0:
		ep = m.latestEndpoint.IPv4Endpoints[0]
	default:
		return
	}

	cfg := m.baseSsl.Clone()
	if m.cfg.ECHEnabled {
		cfg.EchConfigList = m.latestEndpoint.Metadata.EchConfigList
	}

	attempt := quicattempt.New(m.quicFactory, ep, m.key.HostPort, cfg)
	m.quicAttempt = attempt
	attempt.Start(func(res quicattempt.Result) {
		select {
		case m.events <- event{kind: eventQuicComplete, quicRes: res}:
		case <-m.doneCh:
		}
	})

	m.logger.Debug("launched quic attempt", "endpoint", ep.String())
}

func (m *AttemptManager) onAttemptComplete(id uint64, res streamattempt.Result) {
	tracked, ok := m.attempts[id]
	if !ok {
		return
	}
	delete(m.attempts, id)
	if tracked.timer != nil {
		tracked.timer.Stop()
	}
	tracked.slot.Take(tracked.attempt)
	if tracked.slot.Empty() {
		tracked.slot.Reset()
		slotPool.Put(tracked.slot)
	}
	m.budget.Release()

	tim := tracked.attempt.ConnectTiming()
	connectMillis := int64(0)
	if !tim.OverallEnd.IsZero() && !tim.ConnectStart.IsZero() {
		connectMillis = tim.OverallEnd.Sub(tim.ConnectStart).Milliseconds()
	}

	if res.Err != nil {
		m.elog.AttemptFinished(m.key.String(), tracked.attempt.IpEndpoint().String(), res.Err, connectMillis)
		m.maybeLaunchMore()
		return
	}
	m.elog.AttemptFinished(m.key.String(), tracked.attempt.IpEndpoint().String(), nil, connectMillis)

	session := SessionInfo{Conn: res.Conn, ResolvedAt: time.Now()}
	if m.sessionMaker != nil {
		if s, err := m.sessionMaker(res.Conn, ""); err == nil {
			session = s
		}
	}
	m.resolveWinner(Result{Conn: res.Conn, Session: session})
	// A raw socket hand-off, not a multiplexed session: siblings are
	// cancelled as unspecified since no SPDY/H2 session exists yet.
	m.cancelEverything(attemptslot.CancelReasonUnspecified)
}

func (m *AttemptManager) onQuicComplete(res quicattempt.Result) {
	m.quicAttempt = nil
	if res.Err != nil {
		m.logger.Debug("quic attempt failed", "error", res.Err)
		return
	}
	session := SessionInfo{ALPN: quicattempt.ALPNProtocol, ResolvedAt: time.Now()}
	m.resolveWinner(Result{Session: session})
	m.cancelEverything(attemptslot.CancelReasonQuicSessionCreated)
}

func (m *AttemptManager) onSlowTimer(id uint64) {
	tracked, ok := m.attempts[id]
	if !ok {
		return
	}
	tracked.attempt.MarkSlow()
	tracked.slot.Refresh()
	m.maybeLaunchMore()
}
