// Package poolconfig provides configuration loading and validation for
// streampoold.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/streampoold/main.go)
//  2. Environment variables (STREAMPOOL_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from STREAMPOOL_CATEGORY_SETTING format,
// e.g., STREAMPOOL_POOL_QUIC_ENABLED maps to pool.quic_enabled in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package poolconfig

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lhauspie/streampool/internal/helpers"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding.
	// Uses STREAMPOOL_ prefix: STREAMPOOL_SERVER_HOST -> server.host
	v.SetEnvPrefix("STREAMPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Introspection server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9053)
	v.SetDefault("server.workers", "auto")

	// Attempt manager defaults, matching the Happy Eyeballs and TLS timeout
	// conventions most HTTP stream pools ship with.
	v.SetDefault("pool.tcp_connect_timeout", "60s")
	v.SetDefault("pool.tls_handshake_timeout", "30s")
	v.SetDefault("pool.happy_eyeballs_delay", "250ms")
	v.SetDefault("pool.max_concurrent_attempts", 256)
	v.SetDefault("pool.max_concurrent_attempts_per_destination", 8)
	v.SetDefault("pool.quic_enabled", true)

	// ECH defaults
	v.SetDefault("ech.enabled", true)

	// Trust anchor defaults
	v.SetDefault("trust_anchor.enabled", false)
	v.SetDefault("trust_anchor.policy_ids", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Sync defaults
	v.SetDefault("sync.mode", "standalone")
	v.SetDefault("sync.primary_url", "")
	v.SetDefault("sync.shared_secret", "")
	v.SetDefault("sync.interval_seconds", 30)

	// Management API defaults. Disabled and bound to localhost by default
	// for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadPoolConfig(v, cfg)
	loadECHConfig(v, cfg)
	loadTrustAnchorConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadSyncConfig(v, cfg)
	loadAPIConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadPoolConfig(v *viper.Viper, cfg *Config) {
	cfg.Pool.TCPConnectTimeout = v.GetString("pool.tcp_connect_timeout")
	cfg.Pool.TLSHandshakeTimeout = v.GetString("pool.tls_handshake_timeout")
	cfg.Pool.HappyEyeballsDelay = v.GetString("pool.happy_eyeballs_delay")
	cfg.Pool.MaxConcurrentAttempts = v.GetInt("pool.max_concurrent_attempts")
	cfg.Pool.MaxConcurrentAttemptsPerDestination = v.GetInt("pool.max_concurrent_attempts_per_destination")
	cfg.Pool.QUICEnabled = v.GetBool("pool.quic_enabled")
}

func loadECHConfig(v *viper.Viper, cfg *Config) {
	cfg.ECH.Enabled = v.GetBool("ech.enabled")
}

func loadTrustAnchorConfig(v *viper.Viper, cfg *Config) {
	cfg.TrustAnchor.Enabled = v.GetBool("trust_anchor.enabled")
	cfg.TrustAnchor.PolicyIDsHex = getStringSliceOrSplit(v, "trust_anchor.policy_ids")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadSyncConfig(v *viper.Viper, cfg *Config) {
	cfg.Sync.Mode = strings.ToLower(v.GetString("sync.mode"))
	cfg.Sync.PrimaryURL = v.GetString("sync.primary_url")
	cfg.Sync.SharedSecret = v.GetString("sync.shared_secret")
	cfg.Sync.IntervalSeconds = v.GetInt("sync.interval_seconds")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// DecodeTrustAnchorPolicy parses the hex-encoded policy ids loaded from
// config into the raw byte form sslconfig.Select operates on. Blank and
// malformed entries are skipped rather than failing the whole load, since
// one bad id shouldn't disable the retry path for every other configured
// anchor.
func DecodeTrustAnchorPolicy(hexIDs []string) [][]byte {
	out := make([][]byte, 0, len(hexIDs))
	for _, h := range hexIDs {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		b, err := hex.DecodeString(h)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	if _, err := time.ParseDuration(cfg.Pool.TCPConnectTimeout); err != nil {
		return fmt.Errorf("pool.tcp_connect_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Pool.TLSHandshakeTimeout); err != nil {
		return fmt.Errorf("pool.tls_handshake_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Pool.HappyEyeballsDelay); err != nil {
		return fmt.Errorf("pool.happy_eyeballs_delay: %w", err)
	}
	if cfg.Pool.MaxConcurrentAttempts <= 0 {
		cfg.Pool.MaxConcurrentAttempts = 256
	}
	cfg.Pool.MaxConcurrentAttempts = helpers.ClampInt(cfg.Pool.MaxConcurrentAttempts, 1, 65536)

	if cfg.Pool.MaxConcurrentAttemptsPerDestination <= 0 {
		cfg.Pool.MaxConcurrentAttemptsPerDestination = 8
	}
	cfg.Pool.MaxConcurrentAttemptsPerDestination = helpers.ClampInt(cfg.Pool.MaxConcurrentAttemptsPerDestination, 1, 256)

	switch cfg.Sync.Mode {
	case "standalone", "primary":
	case "secondary":
		if strings.TrimSpace(cfg.Sync.PrimaryURL) == "" {
			return errors.New("sync.primary_url is required when sync.mode is secondary")
		}
	default:
		return fmt.Errorf("sync.mode must be standalone, primary, or secondary, got %q", cfg.Sync.Mode)
	}
	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
