// Package handlers provides the HTTP handlers of the playlist server.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/ffhls/internal/storage"
)

// HealthHandler reports liveness and host resource usage.
type HealthHandler struct {
	version   string
	startTime time.Time
	disks     []string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, disks *storage.Registry) *HealthHandler {
	h := &HealthHandler{version: version, startTime: time.Now()}
	if disks != nil {
		h.disks = disks.Names()
	}
	return h
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	CPU           CPUInfo    `json:"cpu"`
	Memory        MemoryInfo `json:"memory"`
	Disks         []string   `json:"disks"`
}

// CPUInfo contains load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo contains system and process memory in MiB. Child processes
// are the ffmpeg and ffprobe invocations running at the time of the request.
type MemoryInfo struct {
	TotalMB            float64 `json:"total_mb"`
	UsedMB             float64 `json:"used_mb"`
	AvailableMB        float64 `json:"available_mb"`
	ProcessMB          float64 `json:"process_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// Register adds GET /health and GET /livez.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.GetHealth)
	r.Get("/livez", h.GetLivez)
}

// GetLivez answers as long as the process serves requests.
func (h *HealthHandler) GetLivez(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetHealth returns the health status with system metrics.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           cpuInfo(),
		Memory:        memoryInfo(),
		Disks:         h.disks,
	})
}

func cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.Avg()
	if err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
		}
	}
	return info
}

const mib = 1024 * 1024

func memoryInfo() MemoryInfo {
	var info MemoryInfo

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / mib
		info.UsedMB = float64(vm.Used) / mib
		info.AvailableMB = float64(vm.Available) / mib
	}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return info
	}
	if m, err := proc.MemoryInfo(); err == nil && m != nil {
		info.ProcessMB = float64(m.RSS) / mib
		if info.TotalMB > 0 {
			info.PercentageOfSystem = info.ProcessMB / info.TotalMB * 100
		}
	}
	if children, err := proc.Children(); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if m, err := child.MemoryInfo(); err == nil && m != nil {
				info.ChildProcessesMB += float64(m.RSS) / mib
			}
		}
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
