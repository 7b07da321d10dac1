package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lhauspie/streampool/internal/attemptlog"
	"github.com/lhauspie/streampool/internal/attemptmgr"
	"github.com/lhauspie/streampool/internal/poolapi/models"
)

func toModelSnapshot(s attemptmgr.Snapshot) models.ManagerSnapshot {
	out := models.ManagerSnapshot{
		StreamKey:  s.StreamKey,
		Waiting:    s.Waiting,
		StartedAt:  s.StartedAt,
		Resolved:   s.Resolved,
		QuicActive: s.QuicActive,
	}
	for _, a := range s.Attempts {
		out.Attempts = append(out.Attempts, models.AttemptInfo{
			ID:        a.ID,
			Endpoint:  a.Endpoint,
			Family:    a.Family,
			LoadState: a.LoadState,
			Slow:      a.Slow,
		})
	}
	return out
}

// ListManagers godoc
// @Summary List active attempt managers
// @Description Returns a point-in-time snapshot of every destination with a live AttemptManager
// @Tags pools
// @Produce json
// @Success 200 {object} models.ManagersResponse
// @Security ApiKeyAuth
// @Router /pools/managers [get]
func (h *Handler) ListManagers(c *gin.Context) {
	if h.pool == nil {
		c.JSON(http.StatusOK, models.ManagersResponse{})
		return
	}
	snaps := h.pool.Snapshots()
	resp := models.ManagersResponse{Count: len(snaps)}
	for _, s := range snaps {
		resp.Managers = append(resp.Managers, toModelSnapshot(s))
	}
	c.JSON(http.StatusOK, resp)
}

// GetManagerSnapshot godoc
// @Summary Get one destination's attempt manager snapshot
// @Description Returns in-flight attempt/slot state for a single destination, identified by host_port (and optional privacy/partition query params)
// @Tags pools
// @Produce json
// @Param host_port query string true "destination host:port"
// @Param privacy query string false "direct (default) or anonymous"
// @Param partition query string false "network partition tag"
// @Success 200 {object} models.ManagerSnapshot
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /pools/manager [get]
func (h *Handler) GetManagerSnapshot(c *gin.Context) {
	hostPort := c.Query("host_port")
	if hostPort == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "host_port is required"})
		return
	}

	privacy := attemptmgr.PrivacyModeDirect
	if c.Query("privacy") == "anonymous" {
		privacy = attemptmgr.PrivacyModeAnonymous
	}

	key := attemptmgr.StreamKey{
		HostPort:         hostPort,
		Privacy:          privacy,
		NetworkPartition: c.Query("partition"),
	}

	if h.pool == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no manager for destination"})
		return
	}

	snap, ok := h.pool.ManagerSnapshot(key)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no manager for destination"})
		return
	}
	c.JSON(http.StatusOK, toModelSnapshot(snap))
}

func toModelEvents(events []attemptlog.Event) []models.AttemptEvent {
	out := make([]models.AttemptEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, models.AttemptEvent{
			ID:            ev.ID,
			ManagerKey:    ev.ManagerKey,
			AttemptID:     ev.AttemptID,
			EventType:     string(ev.EventType),
			Family:        ev.Family,
			Endpoint:      ev.Endpoint,
			Outcome:       ev.Outcome,
			ErrorClass:    ev.ErrorClass,
			ConnectMillis: ev.ConnectMillis,
			ALPN:          ev.ALPN,
			CancelReason:  ev.CancelReason,
			OccurredAt:    ev.OccurredAt,
		})
	}
	return out
}

// GetEvents godoc
// @Summary Query the persisted attempt event log
// @Description Returns recorded attempt lifecycle events, optionally filtered to one manager_key, newest first
// @Tags pools
// @Produce json
// @Param manager_key query string false "filter to a single manager's stream key"
// @Param limit query int false "max rows to return, default 100"
// @Success 200 {object} models.EventsResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /pools/events [get]
func (h *Handler) GetEvents(c *gin.Context) {
	if h.eventLog == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "event log not attached"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	managerKey := c.Query("manager_key")

	var events []attemptlog.Event
	var err error
	if managerKey != "" {
		events, err = h.eventLog.EventsForManager(managerKey, limit)
	} else {
		events, err = h.eventLog.RecentEvents(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.EventsResponse{Count: len(events), Events: toModelEvents(events)})
}
