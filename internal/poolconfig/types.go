// Package poolconfig provides configuration loading for streampoold using
// Viper. Configuration is loaded from YAML files with automatic
// environment variable binding.
//
// Environment variables use the STREAMPOOL_ prefix and underscore-separated
// keys:
//   - STREAMPOOL_SERVER_HOST -> server.host
//   - STREAMPOOL_POOL_MAX_CONCURRENT_ATTEMPTS -> pool.max_concurrent_attempts
//   - STREAMPOOL_TRUST_ANCHOR_ENABLED -> trust_anchor.enabled
package poolconfig

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the API listener's worker count is determined.
type WorkersMode int

const (
	WorkersAuto WorkersMode = iota
	WorkersFixed
)

// WorkerSetting represents the API server's worker configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains the introspection API listener's settings.
type ServerConfig struct {
	Host       string        `yaml:"host"        mapstructure:"host"`
	Port       int           `yaml:"port"         mapstructure:"port"`
	Workers    WorkerSetting `yaml:"-"            mapstructure:"-"`
	WorkersRaw string        `yaml:"workers"      mapstructure:"workers"`
}

// PoolConfig bounds an AttemptManager's behavior: timeouts, the Happy
// Eyeballs stagger delay, and the attempt budgets shared pool-wide.
type PoolConfig struct {
	TCPConnectTimeout               string `yaml:"tcp_connect_timeout"                mapstructure:"tcp_connect_timeout"                json:"tcp_connect_timeout"`
	TLSHandshakeTimeout             string `yaml:"tls_handshake_timeout"              mapstructure:"tls_handshake_timeout"              json:"tls_handshake_timeout"`
	HappyEyeballsDelay              string `yaml:"happy_eyeballs_delay"               mapstructure:"happy_eyeballs_delay"               json:"happy_eyeballs_delay"`
	MaxConcurrentAttempts           int    `yaml:"max_concurrent_attempts"            mapstructure:"max_concurrent_attempts"            json:"max_concurrent_attempts"`
	MaxConcurrentAttemptsPerDestination int `yaml:"max_concurrent_attempts_per_destination" mapstructure:"max_concurrent_attempts_per_destination" json:"max_concurrent_attempts_per_destination"`
	QUICEnabled                     bool   `yaml:"quic_enabled"                       mapstructure:"quic_enabled"                       json:"quic_enabled"`
}

// ECHConfig controls Encrypted Client Hello support.
type ECHConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// TrustAnchorConfig controls the trust-anchor-id retry path and the
// operator's acceptable trust anchor policy, in preference order.
type TrustAnchorConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	// PolicyIDsHex holds hex-encoded trust anchor ids; decoded at load time
	// into the byte slices sslconfig.Select operates on.
	PolicyIDsHex []string `yaml:"policy_ids" mapstructure:"policy_ids" json:"policy_ids,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// SyncConfig controls syncing trust-anchor and feature-flag policy from a
// primary streampoold instance to secondaries, so a fleet of pools agrees
// on retry eligibility without each operator editing every node by hand.
type SyncConfig struct {
	Mode            string `yaml:"mode"             mapstructure:"mode"             json:"mode"` // "standalone", "primary", "secondary"
	PrimaryURL      string `yaml:"primary_url"      mapstructure:"primary_url"      json:"primary_url,omitempty"`
	SharedSecret    string `yaml:"shared_secret"    mapstructure:"shared_secret"    json:"-"`
	IntervalSeconds int    `yaml:"interval_seconds" mapstructure:"interval_seconds" json:"interval_seconds"`
}

// APIConfig contains the introspection REST API's settings.
//
// Note: APIKey is intentionally treated as a secret and should not be
// returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"       mapstructure:"server"`
	Pool        PoolConfig        `yaml:"pool"         mapstructure:"pool"`
	ECH         ECHConfig         `yaml:"ech"          mapstructure:"ech"`
	TrustAnchor TrustAnchorConfig `yaml:"trust_anchor" mapstructure:"trust_anchor"`
	Logging     LoggingConfig     `yaml:"logging"      mapstructure:"logging"`
	Sync        SyncConfig        `yaml:"sync"         mapstructure:"sync"`
	API         APIConfig         `yaml:"api"          mapstructure:"api"`
}

// ResolveConfigPath determines the config file path from flag or
// environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("STREAMPOOL_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (STREAMPOOL_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
