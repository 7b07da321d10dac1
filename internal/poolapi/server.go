// Package poolapi provides the read-only REST introspection API for a
// running streampool.Pool: health/stats, live attempt manager snapshots,
// and the persisted attempt event log.
package poolapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lhauspie/streampool/internal/attemptlog"
	"github.com/lhauspie/streampool/internal/poolapi/handlers"
	"github.com/lhauspie/streampool/internal/poolapi/middleware"
	"github.com/lhauspie/streampool/internal/streampool"
)

// Server is the introspection REST API server for a streampool.Pool.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// Config controls how a Server binds and authenticates.
type Config struct {
	Host   string
	Port   int
	APIKey string
}

// New builds a Server serving introspection endpoints for pool. eventLog may
// be nil: event history endpoints respond 503 rather than failing the server.
func New(cfg Config, pool *streampool.Pool, eventLog *attemptlog.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(pool, eventLog, logger)
	RegisterRoutes(engine, h, cfg.APIKey)
	mountDashboard(engine, logger)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
