package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/ahoge-moe/Shiden/internal/version"
	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"
)

const bytesPerMB = 1024 * 1024

// QueueLength reports how many jobs are waiting.
type QueueLength interface {
	Len() (int, error)
}

// BusyReporter reports whether a job is in flight.
type BusyReporter interface {
	Busy() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	queue        QueueLength
	worker       BusyReporter
	db           *gorm.DB
	workspaceDir string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(queue QueueLength, worker BusyReporter) *HealthHandler {
	return &HealthHandler{queue: queue, worker: worker}
}

// WithDB sets the history database for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithWorkspace sets the directory whose filesystem usage is reported.
func (h *HealthHandler) WithWorkspace(dir string) *HealthHandler {
	h.workspaceDir = dir
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the health report.
type HealthResponse struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Queue         QueueHealth    `json:"queue"`
	Database      DatabaseHealth `json:"database"`
	System        SystemInfo     `json:"system"`
}

// QueueHealth describes the job queue and worker.
type QueueHealth struct {
	Status string `json:"status"`
	Length int    `json:"length"`
	Busy   bool   `json:"busy"`
}

// DatabaseHealth describes the history database.
type DatabaseHealth struct {
	Status            string  `json:"status"`
	ResponseTimeMS    float64 `json:"response_time_ms"`
	ActiveConnections int     `json:"active_connections"`
	IdleConnections   int     `json:"idle_connections"`
}

// SystemInfo holds host and process metrics.
type SystemInfo struct {
	Cores             int     `json:"cores"`
	Load1Min          float64 `json:"load_1min"`
	Load5Min          float64 `json:"load_5min"`
	Load15Min         float64 `json:"load_15min"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	ChildProcessCount int     `json:"child_process_count"`
	ChildProcessesMB  float64 `json:"child_processes_mb"`
	WorkspaceFreeMB   float64 `json:"workspace_free_mb,omitempty"`
	WorkspaceUsedPct  float64 `json:"workspace_used_percent,omitempty"`
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns queue, worker and database status with host metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
// Status is "degraded" when the queue file or the database cannot be read.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	uptime := version.Uptime()

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       version.Version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Queue:         h.getQueueHealth(),
		Database:      h.getDatabaseHealth(ctx),
		System:        h.getSystemInfo(ctx),
	}
	if resp.Queue.Status == "error" || resp.Database.Status == "error" {
		resp.Status = "degraded"
	}

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) getQueueHealth() QueueHealth {
	health := QueueHealth{Status: "ok"}
	if h.worker != nil {
		health.Busy = h.worker.Busy()
	}
	if h.queue == nil {
		health.Status = "unknown"
		return health
	}

	n, err := h.queue.Len()
	if err != nil {
		health.Status = "error"
		return health
	}
	health.Length = n
	return health
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}
	if h.db == nil {
		health.Status = "disabled"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}
	return health
}

func (h *HealthHandler) getSystemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{Cores: runtime.NumCPU()}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemoryMB = float64(vm.Total) / bytesPerMB
		info.AvailableMemoryMB = float64(vm.Available) / bytesPerMB
	}

	if h.workspaceDir != "" {
		if usage, err := disk.UsageWithContext(ctx, h.workspaceDir); err == nil {
			info.WorkspaceFreeMB = float64(usage.Free) / bytesPerMB
			info.WorkspaceUsedPct = usage.UsedPercent
		}
	}

	// ffmpeg and rclone run as children of this process.
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return info
	}
	if rss, err := proc.MemoryInfoWithContext(ctx); err == nil && rss != nil {
		info.ProcessMemoryMB = float64(rss.RSS) / bytesPerMB
	}
	if children, err := proc.ChildrenWithContext(ctx); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if childMem, err := child.MemoryInfoWithContext(ctx); err == nil && childMem != nil {
				info.ChildProcessesMB += float64(childMem.RSS) / bytesPerMB
			}
		}
	}

	return info
}
