package pipeline

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Env describes the host a run executed on.
type Env struct {
	GoVersion       string  `json:"goVersion"`
	OS              string  `json:"os"`
	Arch            string  `json:"arch"`
	CPUs            int     `json:"cpus"`
	TotalMemory     uint64  `json:"totalMemory"`
	AvailableMemory uint64  `json:"availableMemory"`
	Load1           float64 `json:"load1"`
}

type envProbe struct {
	getMemStats func(context.Context) (*mem.VirtualMemoryStat, error)
	getLoadAvg  func(context.Context) (*load.AvgStat, error)
	getCPUCount func(context.Context, bool) (int, error)
}

func defaultProbe() envProbe {
	return envProbe{
		getMemStats: mem.VirtualMemoryWithContext,
		getLoadAvg:  load.AvgWithContext,
		getCPUCount: cpu.CountsWithContext,
	}
}

// capture fills in whatever the host exposes. Missing figures stay zero.
func (p envProbe) capture(ctx context.Context, log *slog.Logger) Env {
	env := Env{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
	}

	if n, err := p.getCPUCount(ctx, true); err == nil && n > 0 {
		env.CPUs = n
	}
	if vm, err := p.getMemStats(ctx); err == nil {
		env.TotalMemory = vm.Total
		env.AvailableMemory = vm.Available
	} else {
		log.Debug("memory stats unavailable", slog.String("error", err.Error()))
	}
	if avg, err := p.getLoadAvg(ctx); err == nil {
		env.Load1 = avg.Load1
	}
	return env
}
