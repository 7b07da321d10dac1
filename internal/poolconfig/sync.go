// Sync implements primary/secondary policy synchronization for streampoold.
//
// This implements a soft clustering mode where:
//   - Primary nodes serve as the source of truth for retry and crypto
//     policy (trust anchor ids, ECH/QUIC feature flags)
//   - Secondary nodes periodically poll the primary for policy changes
//   - Every node still runs its own AttemptManagers independently; only the
//     policy inputs are shared, not connection state
//
// The synchronization is one-way: secondary nodes pull policy from the
// primary. This is designed for small fleets where simplicity is valued
// over full HA clustering.
package poolconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// PolicySnapshot is the payload a primary streampoold exports and a
// secondary imports: everything that affects attempt-manager retry
// eligibility, as opposed to transport-local settings like the listener
// address.
type PolicySnapshot struct {
	Version     int64             `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	NodeID      string            `json:"node_id"`
	Pool        PoolConfig        `json:"pool"`
	ECH         ECHConfig         `json:"ech"`
	TrustAnchor TrustAnchorConfig `json:"trust_anchor"`
}

// SyncStatus reports a Syncer's current state, surfaced by internal/poolapi.
type SyncStatus struct {
	Mode            string     `json:"mode"`
	NodeID          string     `json:"node_id"`
	PrimaryURL      string     `json:"primary_url,omitempty"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	LastSyncVersion int64      `json:"last_sync_version,omitempty"`
	LastSyncError   string     `json:"last_sync_error,omitempty"`
	NextSyncTime    *time.Time `json:"next_sync_time,omitempty"`
	SyncCount       int64      `json:"sync_count"`
	ErrorCount      int64      `json:"error_count"`
	PolicyVersion   int64      `json:"policy_version"`
}

// ImportFunc applies a fetched PolicySnapshot to the local runtime
// configuration.
type ImportFunc func(data *PolicySnapshot) error

// ReloadFunc triggers any runtime components that cache policy values
// (e.g. a live AttemptManager's Config) to pick up the newly imported
// snapshot.
type ReloadFunc func() error

// VersionFunc returns the locally known policy version.
type VersionFunc func() (int64, error)

// Syncer handles policy synchronization for a secondary node.
type Syncer struct {
	primaryURL   string
	nodeID       string
	sharedSecret string
	interval     time.Duration

	logger      *slog.Logger
	importFunc  ImportFunc
	reloadFunc  ReloadFunc
	versionFunc VersionFunc
	httpClient  *http.Client

	mu              sync.RWMutex
	running         bool
	lastSyncTime    *time.Time
	lastSyncVersion int64
	lastSyncError   string
	nextSyncTime    *time.Time
	syncCount       int64
	errorCount      int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSyncer creates a policy syncer for a secondary node. cfg.Mode must be
// "secondary" and cfg.PrimaryURL must be set; normalizeConfig already
// enforces this when Config is loaded through Load.
func NewSyncer(cfg SyncConfig, nodeID string, logger *slog.Logger, importFunc ImportFunc, reloadFunc ReloadFunc, versionFunc VersionFunc) (*Syncer, error) {
	if cfg.Mode != "secondary" {
		return nil, fmt.Errorf("syncer can only be created for secondary mode, got: %s", cfg.Mode)
	}
	if cfg.PrimaryURL == "" {
		return nil, fmt.Errorf("primary_url is required for secondary mode")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		primaryURL:   cfg.PrimaryURL,
		nodeID:       nodeID,
		sharedSecret: cfg.SharedSecret,
		interval:     time.Duration(cfg.IntervalSeconds) * time.Second,
		logger:       logger,
		importFunc:   importFunc,
		reloadFunc:   reloadFunc,
		versionFunc:  versionFunc,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start begins the periodic synchronization process.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("syncer already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("policy syncer starting", "primary_url", s.primaryURL, "sync_interval", s.interval, "node_id", s.nodeID)

	if err := s.doSync(ctx); err != nil {
		s.logger.Warn("initial policy sync failed, will retry", "err", err)
	}

	go s.runLoop(ctx)

	return nil
}

// Stop stops the synchronization process.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("policy syncer stopped")
}

// Status returns the current synchronization status.
func (s *Syncer) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	localVersion, _ := s.versionFunc()

	return SyncStatus{
		Mode:            "secondary",
		NodeID:          s.nodeID,
		PrimaryURL:      s.primaryURL,
		LastSyncTime:    s.lastSyncTime,
		LastSyncVersion: s.lastSyncVersion,
		LastSyncError:   s.lastSyncError,
		NextSyncTime:    s.nextSyncTime,
		SyncCount:       s.syncCount,
		ErrorCount:      s.errorCount,
		PolicyVersion:   localVersion,
	}
}

// ForceSync triggers an immediate synchronization.
func (s *Syncer) ForceSync(ctx context.Context) error {
	return s.doSync(ctx)
}

func (s *Syncer) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		nextSync := time.Now().Add(s.interval)
		s.mu.Lock()
		s.nextSyncTime = &nextSync
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.doSync(ctx); err != nil {
				s.logger.Warn("policy sync failed", "err", err)
			}
		}
	}
}

func (s *Syncer) doSync(ctx context.Context) error {
	s.logger.Debug("starting policy sync", "primary", s.primaryURL)

	data, err := s.fetchPolicy(ctx)
	if err != nil {
		s.recordError(err)
		return fmt.Errorf("fetch policy: %w", err)
	}

	currentVersion, _ := s.versionFunc()
	if data.Version <= currentVersion {
		s.logger.Debug("policy already up to date", "local_version", currentVersion, "remote_version", data.Version)
		s.recordSuccess(data.Version)
		return nil
	}

	s.logger.Info("applying policy from primary", "remote_version", data.Version, "local_version", currentVersion, "primary_node", data.NodeID)

	if err := s.importFunc(data); err != nil {
		s.recordError(err)
		return fmt.Errorf("import policy: %w", err)
	}

	if s.reloadFunc != nil {
		if err := s.reloadFunc(); err != nil {
			s.logger.Warn("reload after policy sync failed", "err", err)
		}
	}

	s.recordSuccess(data.Version)
	s.logger.Info("policy sync completed", "version", data.Version)

	return nil
}

func (s *Syncer) fetchPolicy(ctx context.Context) (*PolicySnapshot, error) {
	url := s.primaryURL + "/api/v1/policy/export"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if s.sharedSecret != "" {
		req.Header.Set("X-Streampool-Secret", s.sharedSecret)
	}
	req.Header.Set("Accept", "application/json")
	if s.nodeID != "" {
		req.Header.Set("X-Node-ID", s.nodeID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var data PolicySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &data, nil
}

func (s *Syncer) recordSuccess(version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.lastSyncTime = &now
	s.lastSyncVersion = version
	s.lastSyncError = ""
	s.syncCount++
}

func (s *Syncer) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSyncError = err.Error()
	s.errorCount++
}
