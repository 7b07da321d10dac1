package poolapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhauspie/streampool/internal/poolapi"
	"github.com/lhauspie/streampool/internal/poolapi/models"
	"github.com/lhauspie/streampool/internal/streampool"
)

func testPool(t *testing.T) *streampool.Pool {
	pool := streampool.New(streampool.Options{MaxAttempts: 10, MaxAttemptsPerDestination: 2})
	t.Cleanup(pool.Close)
	return pool
}

func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServer_Addr(t *testing.T) {
	server := poolapi.New(poolapi.Config{Host: "0.0.0.0", Port: 9090}, testPool(t), nil, nil)
	assert.Equal(t, "0.0.0.0:9090", server.Addr())
}

func TestServer_Engine(t *testing.T) {
	server := poolapi.New(poolapi.Config{Host: "127.0.0.1", Port: 0}, testPool(t), nil, nil)
	assert.NotNil(t, server.Engine())
}

func TestRoutes_HealthEndpoint(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRoutes_PoolsManagersEndpoint(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/pools/managers")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_EventsEndpoint_NoLogAttached(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/pools/events")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutes_WithAPIKey_ValidKey(t *testing.T) {
	server := poolapi.New(poolapi.Config{APIKey: "secret-key"}, testPool(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_WithAPIKey_InvalidKey(t *testing.T) {
	server := poolapi.New(poolapi.Config{APIKey: "secret-key"}, testPool(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_NoAPIKey_NoAuth(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/health")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_SwaggerEndpoint(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/swagger/index.html")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_DashboardIndex(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_NotFound(t *testing.T) {
	server := poolapi.New(poolapi.Config{}, testPool(t), nil, nil)

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/nonexistent")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Shutdown(t *testing.T) {
	server := poolapi.New(poolapi.Config{Port: 0}, testPool(t), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Shutdown(ctx))
}
