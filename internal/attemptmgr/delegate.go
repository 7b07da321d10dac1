package attemptmgr

import (
	"sync"

	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
)

// cryptoGate is the thread-safe handoff point between the manager's own
// goroutine (which learns when crypto metadata settles from resolver
// updates) and the attempt goroutines that block waiting for it. It exists
// because streamattempt.Delegate methods are called from an attempt's own
// goroutine, not the manager's event loop, so they cannot safely touch
// loop-owned state directly.
type cryptoGate struct {
	mu       sync.Mutex
	ready    bool
	aborted  bool
	endpoint serviceendpoint.ServiceEndpoint
	waiters  []func()
}

func (g *cryptoGate) setReady(ep serviceendpoint.ServiceEndpoint) {
	g.mu.Lock()
	if g.ready {
		g.endpoint = ep
		g.mu.Unlock()
		return
	}
	g.ready = true
	g.endpoint = ep
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}

func (g *cryptoGate) updateEndpoint(ep serviceendpoint.ServiceEndpoint) {
	g.mu.Lock()
	g.endpoint = ep
	g.mu.Unlock()
}

func (g *cryptoGate) abort() {
	g.mu.Lock()
	g.aborted = true
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}

func (g *cryptoGate) waitForReady(cb func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready || g.aborted {
		return true
	}
	g.waiters = append(g.waiters, cb)
	return false
}

func (g *cryptoGate) snapshot() (serviceendpoint.ServiceEndpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return serviceendpoint.ServiceEndpoint{}, attempterr.ErrAborted
	}
	return g.endpoint, nil
}

// attemptDelegate adapts a manager's cryptoGate and slow-timer bookkeeping
// to the streamattempt.Delegate contract for one specific attempt.
type attemptDelegate struct {
	mgr       *AttemptManager
	attemptID uint64
}

func (d attemptDelegate) OnTCPHandshakeComplete() {
	select {
	case d.mgr.events <- event{kind: eventPauseSlowTimer, attemptID: d.attemptID}:
	case <-d.mgr.doneCh:
	}
}

func (d attemptDelegate) OnTLSHandshakeStart() {
	select {
	case d.mgr.events <- event{kind: eventResumeSlowTimer, attemptID: d.attemptID}:
	case <-d.mgr.doneCh:
	}
}

func (d attemptDelegate) WaitForServiceEndpointReady(ready func()) bool {
	return d.mgr.gate.waitForReady(ready)
}

func (d attemptDelegate) GetServiceEndpoint() (serviceendpoint.ServiceEndpoint, error) {
	return d.mgr.gate.snapshot()
}
