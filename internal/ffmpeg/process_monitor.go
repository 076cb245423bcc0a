package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	CPUPercent     float64 `json:"cpu_percent"` // per core, so may exceed 100
	PeakCPUPercent float64 `json:"peak_cpu_percent"`

	MemoryRSSBytes  uint64 `json:"memory_rss_bytes"`
	PeakMemoryBytes uint64 `json:"peak_memory_bytes"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
	Samples     int           `json:"samples"`
}

// PeakRSS returns the peak resident memory in human-readable form.
func (s ProcessStats) PeakRSS() string {
	return humanize.IBytes(s.PeakMemoryBytes)
}

// ProcessMonitor samples resource usage of a running FFmpeg process.
type ProcessMonitor struct {
	pid       int
	startedAt time.Time
	interval  time.Duration

	mu      sync.RWMutex
	stats   ProcessStats
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a new process monitor.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		stats:     ProcessStats{PID: pid, StartedAt: time.Now()},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetInterval sets the sampling interval. Must be called before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	if d > 0 {
		pm.interval = d
	}
}

// Start begins monitoring the process.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	if pm.running {
		pm.mu.Unlock()
		return
	}
	pm.running = true
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.monitorLoop()
}

// Stop stops monitoring and waits for the sampling goroutine to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()

	pm.mu.Lock()
	pm.running = false
	pm.stats.Duration = time.Since(pm.startedAt)
	pm.mu.Unlock()
}

// Stats returns the current process statistics.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	if pm.running {
		stats.Duration = time.Since(pm.startedAt)
	}
	return stats
}

func (pm *ProcessMonitor) monitorLoop() {
	defer pm.wg.Done()

	proc, err := process.NewProcessWithContext(pm.ctx, int32(pm.pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return
	}

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample(proc)
		}
	}
}

func (pm *ProcessMonitor) sample(proc *process.Process) {
	cpu, cpuErr := proc.PercentWithContext(pm.ctx, 0)
	mem, memErr := proc.MemoryInfoWithContext(pm.ctx)
	if cpuErr != nil && memErr != nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if cpuErr == nil {
		pm.stats.CPUPercent = cpu
		pm.stats.PeakCPUPercent = max(pm.stats.PeakCPUPercent, cpu)
	}
	if memErr == nil && mem != nil {
		pm.stats.MemoryRSSBytes = mem.RSS
		pm.stats.PeakMemoryBytes = max(pm.stats.PeakMemoryBytes, mem.RSS)
	}
	pm.stats.Samples++
	pm.stats.LastUpdated = time.Now()
}
