package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("sheltercrawl.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var systemMemoryGauge, _ = meter.Float64Gauge("system_memory_used_percent")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var liveObjectsGauge, _ = meter.Int64Gauge("live_objects")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// PerfStats is a single sample of process and host load.
type PerfStats struct {
	CpuPercent    float64
	MemoryPercent float64
	AllocatedMb   int64
	LiveObjects   int64
	Goroutines    int64
}

// SamplePerfStats blocks for `window` to measure cpu usage.
func SamplePerfStats(window time.Duration) PerfStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	out := PerfStats{
		AllocatedMb: int64(memStats.Alloc / 1_000_000),
		LiveObjects: int64(memStats.Mallocs) - int64(memStats.Frees),
		Goroutines:  int64(runtime.NumGoroutine()),
	}

	cpuUsage, err := cpu.Percent(window, false)
	if err == nil && len(cpuUsage) > 0 {
		out.CpuPercent = cpuUsage[0]
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	}
	vmem, err := mem.VirtualMemory()
	if err == nil {
		out.MemoryPercent = vmem.UsedPercent
	} else {
		slog.Debug("failed to read memory usage", "err", err)
	}
	return out
}

// InstrumentPerfStats records a PerfStats sample into the perf gauges every `interval`
// until ctx is done. With `logStats` every sample is also logged.
func InstrumentPerfStats(ctx context.Context, interval time.Duration, logStats bool) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := SamplePerfStats(time.Second)

				cpuGauge.Record(ctx, stats.CpuPercent)
				systemMemoryGauge.Record(ctx, stats.MemoryPercent)
				memoryGauge.Record(ctx, stats.AllocatedMb)
				liveObjectsGauge.Record(ctx, stats.LiveObjects)
				goroutineGauge.Record(ctx, stats.Goroutines)

				if logStats {
					slog.Info(
						"perf stats",
						"cpu", stats.CpuPercent,
						"memory", stats.MemoryPercent,
						"allocated_mb", stats.AllocatedMb,
						"goroutines", stats.Goroutines,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
