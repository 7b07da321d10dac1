// Package handlers_test provides behavior tests for the poolapi handlers.
package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhauspie/streampool/internal/attemptlog"
	"github.com/lhauspie/streampool/internal/poolapi/handlers"
	"github.com/lhauspie/streampool/internal/poolapi/models"
	"github.com/lhauspie/streampool/internal/streampool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func createTestHandler(t *testing.T) *handlers.Handler {
	pool := streampool.New(streampool.Options{MaxAttempts: 10, MaxAttemptsPerDestination: 2})
	t.Cleanup(pool.Close)
	return handlers.New(pool, nil, nil)
}

func createTestHandlerWithLog(t *testing.T) (*handlers.Handler, *attemptlog.DB) {
	pool := streampool.New(streampool.Options{MaxAttempts: 10, MaxAttemptsPerDestination: 2})
	t.Cleanup(pool.Close)

	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := attemptlog.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return handlers.New(pool, db, nil), db
}

func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth_ReturnsOK(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/health", h.Health)

	w := performRequest(router, "GET", "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStats_ReturnsServerStats(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/stats", h.Stats)

	w := performRequest(router, "GET", "/stats")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Uptime)
	assert.Positive(t, resp.CPU.NumCPU)
}

func TestListManagers_EmptyPool(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/pools/managers", h.ListManagers)

	w := performRequest(router, "GET", "/pools/managers")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ManagersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Managers)
}

func TestGetManagerSnapshot_MissingHostPort(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/pools/manager", h.GetManagerSnapshot)

	w := performRequest(router, "GET", "/pools/manager")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetManagerSnapshot_NotFound(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/pools/manager", h.GetManagerSnapshot)

	w := performRequest(router, "GET", "/pools/manager?host_port=example.com:443")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestGetEvents_NoEventLogAttached(t *testing.T) {
	h := createTestHandler(t)
	router := gin.New()
	router.GET("/pools/events", h.GetEvents)

	w := performRequest(router, "GET", "/pools/events")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetEvents_ReturnsRecordedEvents(t *testing.T) {
	h, db := createTestHandlerWithLog(t)

	require.NoError(t, db.Record(attemptlog.Event{
		ManagerKey: "example.com:443",
		EventType:  attemptlog.EventAttemptStarted,
		Family:     "ipv4",
		Endpoint:   "93.184.216.34:443",
	}))
	require.NoError(t, db.Record(attemptlog.Event{
		ManagerKey: "other.example:443",
		EventType:  attemptlog.EventSessionEstablished,
		ALPN:       "h2",
	}))

	router := gin.New()
	router.GET("/pools/events", h.GetEvents)

	w := performRequest(router, "GET", "/pools/events")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.EventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = performRequest(router, "GET", "/pools/events?manager_key=example.com:443")
	assert.Equal(t, http.StatusOK, w.Code)

	var filtered models.EventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filtered))
	assert.Equal(t, 1, filtered.Count)
	assert.Equal(t, "example.com:443", filtered.Events[0].ManagerKey)
}

func TestHandler_New(t *testing.T) {
	h := handlers.New(nil, nil, nil)
	assert.NotNil(t, h)
}
