// Package handlers implements the REST API endpoint handlers for the
// streampool introspection API.
//
// @title streampool Introspection API
// @version 1.0
// @description Read-only REST API for observing a running streampool.Pool: live attempt managers, in-flight attempts, and historical events.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"github.com/lhauspie/streampool/internal/attemptlog"
	"github.com/lhauspie/streampool/internal/streampool"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	pool      *streampool.Pool
	eventLog  *attemptlog.DB
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new Handler. eventLog may be nil: event history endpoints
// respond with 503 when no log is attached instead of failing the whole
// server.
func New(pool *streampool.Pool, eventLog *attemptlog.DB, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pool:      pool,
		eventLog:  eventLog,
		logger:    logger,
		startTime: time.Now(),
	}
}
