// Package streampool is the root of the connection-attempt subsystem: it
// owns one AttemptManager per destination, deduplicates concurrent
// first-requests for the same destination, enforces the pool-wide attempt
// budget, and fans session-creation and network-change notifications out
// to every manager that needs to hear about them.
package streampool

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lhauspie/streampool/internal/attemptmgr"
	"github.com/lhauspie/streampool/internal/attempterr"
	"github.com/lhauspie/streampool/internal/quicattempt"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

// ResolverFactory builds a fresh serviceendpoint.Resolver for a destination
// the first time a manager needs one.
type ResolverFactory func(ctx context.Context, key attemptmgr.StreamKey) (serviceendpoint.Resolver, error)

// Options configures a Pool.
type Options struct {
	Config          attemptmgr.Config
	ResolverFactory ResolverFactory
	StreamFactory   streamsocket.Factory
	QuicFactory     quicattempt.Factory
	SessionFactory  attemptmgr.SessionFactory
	BaseSslConfig   sslconfig.SslConfig
	MaxAttempts     int
	MaxAttemptsPerDestination int
	Logger          *slog.Logger
}

// Pool owns every AttemptManager for a single network context (equivalent
// to one HTTP transport's worth of connection reuse).
type Pool struct {
	opts   Options
	budget *Budget
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	managers map[string]*attemptmgr.AttemptManager
	closed   bool
}

// New builds a Pool from opts.
func New(opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		opts:     opts,
		budget:   NewBudget(opts.MaxAttempts, opts.MaxAttemptsPerDestination),
		logger:   logger,
		managers: make(map[string]*attemptmgr.AttemptManager),
	}
}

// RequestStream asks the pool for a connection to key, creating a manager
// for the destination if one doesn't already exist. Concurrent first
// requests for the same destination are deduplicated so only one manager
// and one resolver are ever created per key.
func (p *Pool) RequestStream(ctx context.Context, key attemptmgr.StreamKey, priority attemptmgr.Priority) (attemptmgr.Result, error) {
	mgr, err := p.getOrCreateManager(ctx, key)
	if err != nil {
		return attemptmgr.Result{}, err
	}
	req := mgr.Request(priority)
	return req.Wait(ctx)
}

func (p *Pool) getOrCreateManager(ctx context.Context, key attemptmgr.StreamKey) (*attemptmgr.AttemptManager, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, attempterr.ErrPoolClosed
	}
	if mgr, ok := p.managers[key.String()]; ok {
		p.mu.Unlock()
		return mgr, nil
	}
	p.mu.Unlock()

	result, err, _ := p.group.Do(key.String(), func() (interface{}, error) {
		p.mu.Lock()
		if mgr, ok := p.managers[key.String()]; ok {
			p.mu.Unlock()
			return mgr, nil
		}
		p.mu.Unlock()

		resolver, err := p.opts.ResolverFactory(ctx, key)
		if err != nil {
			return nil, err
		}

		mgr := attemptmgr.New(
			key,
			p.opts.Config,
			resolver,
			p.opts.StreamFactory,
			p.opts.QuicFactory,
			p.opts.SessionFactory,
			p.opts.BaseSslConfig,
			p.budget.ForManager(key.String()),
			p.logger,
		)

		p.mu.Lock()
		p.managers[key.String()] = mgr
		p.mu.Unlock()

		go p.reapWhenDone(key.String(), mgr)

		return mgr, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*attemptmgr.AttemptManager), nil
}

func (p *Pool) reapWhenDone(key string, mgr *attemptmgr.AttemptManager) {
	<-mgr.Done()
	p.mu.Lock()
	if p.managers[key] == mgr {
		delete(p.managers, key)
	}
	p.mu.Unlock()
}

// NotifySessionCreated tells every manager sharing key's destination that a
// connection became available through another path, so their in-flight
// attempts can be preempted.
func (p *Pool) NotifySessionCreated(key attemptmgr.StreamKey, conn net.Conn, alpn string) {
	p.mu.Lock()
	mgr, ok := p.managers[key.String()]
	p.mu.Unlock()
	if ok {
		mgr.NotifySessionCreated(attemptmgr.SessionInfo{Conn: conn, ALPN: alpn})
	}
}

// NotifyNetworkChanged tears every live manager's in-flight attempts down,
// used when the host's network configuration changes.
func (p *Pool) NotifyNetworkChanged() {
	p.mu.Lock()
	managers := make([]*attemptmgr.AttemptManager, 0, len(p.managers))
	for _, mgr := range p.managers {
		managers = append(managers, mgr)
	}
	p.mu.Unlock()
	for _, mgr := range managers {
		mgr.NotifyNetworkChanged()
	}
}

// Close shuts every manager down and rejects any further RequestStream
// calls.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	managers := make([]*attemptmgr.AttemptManager, 0, len(p.managers))
	for _, mgr := range p.managers {
		managers = append(managers, mgr)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, mgr := range managers {
		wg.Add(1)
		go func(m *attemptmgr.AttemptManager) {
			defer wg.Done()
			m.Close()
		}(mgr)
	}
	wg.Wait()
}

// InUse reports the pool-wide in-flight attempt count, used by the health
// and introspection endpoints in internal/poolapi.
func (p *Pool) InUse() int { return p.budget.InUse() }

// ManagerCount reports how many destinations currently have a live
// manager.
func (p *Pool) ManagerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.managers)
}

// Snapshots returns a point-in-time view of every live manager, for
// internal/poolapi's introspection endpoints.
func (p *Pool) Snapshots() []attemptmgr.Snapshot {
	p.mu.Lock()
	managers := make([]*attemptmgr.AttemptManager, 0, len(p.managers))
	for _, mgr := range p.managers {
		managers = append(managers, mgr)
	}
	p.mu.Unlock()

	snapshots := make([]attemptmgr.Snapshot, 0, len(managers))
	for _, mgr := range managers {
		snapshots = append(snapshots, mgr.Snapshot())
	}
	return snapshots
}

// ManagerSnapshot returns the snapshot for a single destination, and
// whether a manager for that key currently exists.
func (p *Pool) ManagerSnapshot(key attemptmgr.StreamKey) (attemptmgr.Snapshot, bool) {
	p.mu.Lock()
	mgr, ok := p.managers[key.String()]
	p.mu.Unlock()
	if !ok {
		return attemptmgr.Snapshot{}, false
	}
	return mgr.Snapshot(), true
}
