// Command streampoold runs the connection-attempt pool as a standalone
// daemon: it loads pool policy from YAML/environment, optionally persists
// every attempt's lifecycle to SQLite, optionally syncs retry policy from
// a primary node, and optionally exposes the introspection REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lhauspie/streampool/internal/attemptlog"
	"github.com/lhauspie/streampool/internal/attemptmgr"
	"github.com/lhauspie/streampool/internal/logging"
	"github.com/lhauspie/streampool/internal/poolapi"
	"github.com/lhauspie/streampool/internal/poolconfig"
	"github.com/lhauspie/streampool/internal/quicattempt"
	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/sslconfig"
	"github.com/lhauspie/streampool/internal/streampool"
	"github.com/lhauspie/streampool/internal/streamsocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	eventLog   string
	apiEnabled bool
	apiPort    int
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.eventLog, "event-log", "", "Path to SQLite attempt event log (disabled if empty)")
	flag.BoolVar(&f.apiEnabled, "api", false, "Enable the introspection REST API (overrides config)")
	flag.IntVar(&f.apiPort, "api-port", 0, "Override introspection API port")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *poolconfig.Config, f cliFlags) {
	if f.apiEnabled {
		cfg.API.Enabled = true
	}
	if f.apiPort != 0 {
		cfg.API.Port = f.apiPort
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := poolconfig.Load(poolconfig.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("streampoold starting",
		"sync_mode", cfg.Sync.Mode,
		"quic_enabled", cfg.Pool.QUICEnabled,
		"ech_enabled", cfg.ECH.Enabled,
		"trust_anchor_enabled", cfg.TrustAnchor.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var eventLog *attemptlog.DB
	if flags.eventLog != "" {
		eventLog, err = attemptlog.Open(flags.eventLog)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer eventLog.Close()
		logger.Info("attempt event log enabled", "path", flags.eventLog)
	}

	pool, err := buildPool(cfg, eventLog, logger)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}
	defer pool.Close()

	var apiSrv *poolapi.Server
	if cfg.API.Enabled {
		apiSrv = poolapi.New(poolapi.Config{
			Host:   cfg.API.Host,
			Port:   cfg.API.Port,
			APIKey: cfg.API.APIKey,
		}, pool, eventLog, logger)

		logger.Info("introspection API starting", "addr", apiSrv.Addr())
		go func() {
			serveErr := apiSrv.ListenAndServe()
			if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
				return
			}
			logger.Error("introspection API error", "err", serveErr)
			cancel()
		}()
	}

	var syncer *poolconfig.Syncer
	if cfg.Sync.Mode == "secondary" {
		syncer = startPolicySyncer(ctx, cfg, logger)
	}

	<-ctx.Done()
	logger.Info("streampoold shutting down")

	if syncer != nil {
		syncer.Stop()
	}

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("introspection API stopped")
	}

	return nil
}

// buildPool assembles the streampool.Pool from loaded configuration: the
// stdlib-DNS-backed resolver per destination, the production TCP/TLS and
// QUIC dialers, and (when an event log is open) the SQLite sink wired into
// every manager's event emission.
func buildPool(cfg *poolconfig.Config, eventLog *attemptlog.DB, logger *slog.Logger) (*streampool.Pool, error) {
	tcpConnectTimeout, err := time.ParseDuration(cfg.Pool.TCPConnectTimeout)
	if err != nil {
		return nil, err
	}
	tlsHandshakeTimeout, err := time.ParseDuration(cfg.Pool.TLSHandshakeTimeout)
	if err != nil {
		return nil, err
	}
	happyEyeballsDelay, err := time.ParseDuration(cfg.Pool.HappyEyeballsDelay)
	if err != nil {
		return nil, err
	}

	mgrCfg := attemptmgr.Config{
		TCPConnectTimeout:     tcpConnectTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		HappyEyeballsDelay:    happyEyeballsDelay,
		MaxConcurrentAttempts: cfg.Pool.MaxConcurrentAttemptsPerDestination,
		ECHEnabled:            cfg.ECH.Enabled,
		TrustAnchorIDsEnabled: cfg.TrustAnchor.Enabled,
		QUICEnabled:           cfg.Pool.QUICEnabled,
		TrustAnchorPolicy:     poolconfig.DecodeTrustAnchorPolicy(cfg.TrustAnchor.PolicyIDsHex),
	}
	if eventLog != nil {
		mgrCfg.EventSink = attemptlog.NewSink(eventLog, logger)
	}

	opts := streampool.Options{
		Config:          mgrCfg,
		ResolverFactory: dnsResolverFactory,
		StreamFactory:   streamsocket.NewDialer(),
		QuicFactory:     quicattempt.NewDialer(),
		SessionFactory:  defaultSessionFactory,
		BaseSslConfig:   sslconfig.SslConfig{MinVersion: 0x0304}, // TLS 1.3 floor
		MaxAttempts:     cfg.Pool.MaxConcurrentAttempts,
		MaxAttemptsPerDestination: cfg.Pool.MaxConcurrentAttemptsPerDestination,
		Logger:          logger,
	}

	return streampool.New(opts), nil
}

func dnsResolverFactory(ctx context.Context, key attemptmgr.StreamKey) (serviceendpoint.Resolver, error) {
	return serviceendpoint.NewDNSResolver(key.HostPort, nil, nil)
}

// defaultSessionFactory hands the winning connection straight back to the
// caller with no additional session-layer setup (no HTTP/2 framing, no
// connection-reuse pooling) — streampoold's callers are responsible for
// whatever protocol layer runs on top of the raw connection.
func defaultSessionFactory(conn net.Conn, alpn string) (attemptmgr.SessionInfo, error) {
	return attemptmgr.SessionInfo{
		Conn:       conn,
		ALPN:       alpn,
		ResolvedAt: time.Now(),
	}, nil
}

// startPolicySyncer wires a poolconfig.Syncer for secondary mode. There is
// currently no local mutable policy store to import into or version from,
// so this node accepts the primary's trust-anchor and feature-flag policy
// on every sync but does not yet apply it to a running Pool without a
// restart; streampoold logs every sync so the gap is visible rather than
// silent.
func startPolicySyncer(ctx context.Context, cfg *poolconfig.Config, logger *slog.Logger) *poolconfig.Syncer {
	var localVersion int64

	importFunc := func(data *poolconfig.PolicySnapshot) error {
		logger.Info("received policy from primary",
			"version", data.Version,
			"primary_node", data.NodeID,
			"ech_enabled", data.ECH.Enabled,
			"trust_anchor_enabled", data.TrustAnchor.Enabled,
		)
		localVersion = data.Version
		return nil
	}
	reloadFunc := func() error {
		logger.Debug("policy imported, live reload pending a restart")
		return nil
	}
	versionFunc := func() (int64, error) {
		return localVersion, nil
	}

	syncer, err := poolconfig.NewSyncer(cfg.Sync, nodeID(), logger, importFunc, reloadFunc, versionFunc)
	if err != nil {
		logger.Error("failed to create policy syncer", "err", err)
		return nil
	}
	if err := syncer.Start(ctx); err != nil {
		logger.Error("failed to start policy syncer", "err", err)
		return nil
	}
	return syncer
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "streampoold"
	}
	return host
}
