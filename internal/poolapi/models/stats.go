package models

import "time"

// CPUStats reports host CPU usage, sampled via gopsutil.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats reports host memory usage, sampled via gopsutil.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// PoolStats summarizes a running streampool.Pool's admission state.
type PoolStats struct {
	ManagerCount   int `json:"manager_count"`
	AttemptsInUse  int `json:"attempts_in_use"`
}

// ServerStatsResponse is the response body for GET /api/v1/stats.
type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	CPU           CPUStats  `json:"cpu"`
	Memory        MemoryStats `json:"memory"`
	Pool          PoolStats `json:"pool"`
}
