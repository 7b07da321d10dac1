package poolconfig

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestNewSyncer_RequiresSecondaryMode(t *testing.T) {
	cfg := SyncConfig{Mode: "primary", PrimaryURL: "http://primary:9053"}

	_, err := NewSyncer(cfg, "node-1", testLogger(), nil, nil, nil)
	require.Error(t, err)
}

func TestNewSyncer_RequiresPrimaryURL(t *testing.T) {
	cfg := SyncConfig{Mode: "secondary", PrimaryURL: ""}

	_, err := NewSyncer(cfg, "node-1", testLogger(), nil, nil, nil)
	require.Error(t, err)
}

func TestSyncer_FetchesPolicyFromPrimary(t *testing.T) {
	exported := PolicySnapshot{
		Version:   42,
		Timestamp: time.Now().UTC(),
		NodeID:    "primary-1",
		TrustAnchor: TrustAnchorConfig{
			Enabled:      true,
			PolicyIDsHex: []string{"deadbeef"},
		},
		ECH: ECHConfig{Enabled: true},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/policy/export" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(exported)
	}))
	defer server.Close()

	var importCalled atomic.Bool
	var importedData *PolicySnapshot

	cfg := SyncConfig{
		Mode:            "secondary",
		PrimaryURL:      server.URL,
		IntervalSeconds: 3600,
	}

	importFunc := func(data *PolicySnapshot) error {
		importCalled.Store(true)
		importedData = data
		return nil
	}
	versionFunc := func() (int64, error) { return 1, nil }

	syncer, err := NewSyncer(cfg, "secondary-1", testLogger(), importFunc, nil, versionFunc)
	require.NoError(t, err)

	require.NoError(t, syncer.ForceSync(context.Background()))

	assert.True(t, importCalled.Load())
	require.NotNil(t, importedData)
	assert.Equal(t, int64(42), importedData.Version)
	assert.True(t, importedData.TrustAnchor.Enabled)
	assert.Equal(t, []string{"deadbeef"}, importedData.TrustAnchor.PolicyIDsHex)
}

func TestSyncer_SkipsWhenVersionCurrent(t *testing.T) {
	exported := PolicySnapshot{Version: 10, Timestamp: time.Now().UTC(), NodeID: "primary-1"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(exported)
	}))
	defer server.Close()

	var importCalled atomic.Bool

	cfg := SyncConfig{Mode: "secondary", PrimaryURL: server.URL, IntervalSeconds: 3600}

	syncer, err := NewSyncer(cfg, "secondary-1", testLogger(),
		func(*PolicySnapshot) error { importCalled.Store(true); return nil },
		nil,
		func() (int64, error) { return 15, nil },
	)
	require.NoError(t, err)

	require.NoError(t, syncer.ForceSync(context.Background()))
	assert.False(t, importCalled.Load())
}

func TestSyncer_ValidatesSharedSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Streampool-Secret") != "test-secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PolicySnapshot{Version: 1})
	}))
	defer server.Close()

	cfg := SyncConfig{
		Mode:            "secondary",
		PrimaryURL:      server.URL,
		SharedSecret:    "wrong-secret",
		IntervalSeconds: 3600,
	}

	syncer, err := NewSyncer(cfg, "secondary-1", testLogger(),
		func(*PolicySnapshot) error { return nil },
		nil,
		func() (int64, error) { return 0, nil },
	)
	require.NoError(t, err)

	err = syncer.ForceSync(context.Background())
	require.Error(t, err)
}

func TestSyncer_Status(t *testing.T) {
	cfg := SyncConfig{
		Mode:            "secondary",
		PrimaryURL:      "http://primary:9053",
		IntervalSeconds: 30,
	}

	syncer, err := NewSyncer(cfg, "test-node", testLogger(),
		func(*PolicySnapshot) error { return nil },
		nil,
		func() (int64, error) { return 5, nil },
	)
	require.NoError(t, err)

	status := syncer.Status()
	assert.Equal(t, "secondary", status.Mode)
	assert.Equal(t, "test-node", status.NodeID)
	assert.Equal(t, "http://primary:9053", status.PrimaryURL)
	assert.Equal(t, int64(5), status.PolicyVersion)
}
