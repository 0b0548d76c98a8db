package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats 系统统计信息
type SystemStats struct {
	Timestamp time.Time    `json:"timestamp"`
	CPU       CPUStats     `json:"cpu"`
	Memory    MemoryStats  `json:"memory"`
	Disk      DiskStats    `json:"disk"`
	Process   ProcessStats `json:"process"`
	Runtime   RuntimeStats `json:"runtime"`
	Host      HostStats    `json:"host"`
}

// CPUStats CPU统计信息
type CPUStats struct {
	UsagePercent float64   `json:"usage_percent"`
	CountLogical int       `json:"count_logical"`
	LoadAvg      []float64 `json:"load_avg"`
}

// MemoryStats 内存统计信息
type MemoryStats struct {
	Total        uint64  `json:"total"`
	Available    uint64  `json:"available"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskStats 磁盘统计信息
type DiskStats struct {
	Path         string  `json:"path"`
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usage_percent"`
}

// ProcessStats 进程统计信息
type ProcessStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// RuntimeStats Go运行时统计信息
type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// HostStats 主机信息
type HostStats struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Platform string `json:"platform"`
	Uptime   uint64 `json:"uptime"`
}

// SystemMonitor 基于 gopsutil 的采样器，单项采样失败时保留零值
type SystemMonitor struct {
	diskPath string
	proc     *process.Process
}

func NewSystemMonitor(diskPath string) *SystemMonitor {
	if diskPath == "" {
		diskPath = "/"
	}
	sm := &SystemMonitor{diskPath: diskPath}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = p
	}
	return sm
}

// Collect 采集一次
func (sm *SystemMonitor) Collect(ctx context.Context) *SystemStats {
	s := &SystemStats{Timestamp: time.Now()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPU.UsagePercent = pct[0]
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPU.CountLogical = n
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.CPU.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.Memory = MemoryStats{Total: vm.Total, Available: vm.Available, Used: vm.Used, UsagePercent: vm.UsedPercent}
	}

	if du, err := disk.UsageWithContext(ctx, sm.diskPath); err == nil {
		s.Disk = DiskStats{Path: du.Path, Total: du.Total, Used: du.Used, Free: du.Free, UsagePercent: du.UsedPercent}
	}

	if sm.proc != nil {
		s.Process.PID = sm.proc.Pid
		if pct, err := sm.proc.CPUPercentWithContext(ctx); err == nil {
			s.Process.CPUPercent = pct
		}
		if mi, err := sm.proc.MemoryInfoWithContext(ctx); err == nil {
			s.Process.MemoryRSS = mi.RSS
		}
		if n, err := sm.proc.NumThreadsWithContext(ctx); err == nil {
			s.Process.NumThreads = n
		}
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		s.Host = HostStats{Hostname: hi.Hostname, OS: hi.OS, Platform: hi.Platform, Uptime: hi.Uptime}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Runtime = RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}
	return s
}
