package poolconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ws.String())
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STREAMPOOL_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9053, cfg.Server.Port)
	assert.Equal(t, WorkersAuto, cfg.Server.Workers.Mode)
	assert.Equal(t, "60s", cfg.Pool.TCPConnectTimeout)
	assert.Equal(t, "250ms", cfg.Pool.HappyEyeballsDelay)
	assert.Equal(t, 256, cfg.Pool.MaxConcurrentAttempts)
	assert.True(t, cfg.ECH.Enabled)
	assert.False(t, cfg.TrustAnchor.Enabled)
	assert.Equal(t, "standalone", cfg.Sync.Mode)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streampool.yaml")
	contents := []byte(`
pool:
  tcp_connect_timeout: 45s
  max_concurrent_attempts: 64
trust_anchor:
  enabled: true
  policy_ids:
    - "deadbeef"
    - "not-hex"
sync:
  mode: secondary
  primary_url: https://primary.internal:9053
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "45s", cfg.Pool.TCPConnectTimeout)
	assert.Equal(t, 64, cfg.Pool.MaxConcurrentAttempts)
	assert.True(t, cfg.TrustAnchor.Enabled)
	assert.Equal(t, []string{"deadbeef", "not-hex"}, cfg.TrustAnchor.PolicyIDsHex)
	assert.Equal(t, "secondary", cfg.Sync.Mode)
}

func TestLoadSecondaryWithoutPrimaryURLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streampool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  mode: secondary\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDecodeTrustAnchorPolicy(t *testing.T) {
	decoded := DecodeTrustAnchorPolicy([]string{"deadbeef", "zz", ""})
	require.Len(t, decoded, 1)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, decoded[0])
}

func TestInvalidPortRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streampool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
