// Package health samples host CPU and memory usage for the Scheduler's
// periodic log line (spec §10 ambient stack expansion — the teacher
// pulls in gopsutil transitively via its SDK but never calls it; this
// package is the first actual caller).
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Sample is one host resource reading.
type Sample struct {
	CPUPercent float64
	MemPercent float64
}

// Read takes a single CPU sample over interval and the current memory
// usage.
func Read(ctx context.Context, interval time.Duration) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return Sample{}, err
	}
	cpuPct := 0.0
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Sample{CPUPercent: cpuPct, MemPercent: vm.UsedPercent}, nil
}

// LogPeriodically samples host resources every interval and logs the
// result at debug level until ctx is cancelled. Run as one of the
// Scheduler's supervised tasks.
func LogPeriodically(ctx context.Context, interval time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s, err := Read(ctx, time.Second)
			if err != nil {
				log.Warn().Err(err).Msg("health: sample failed")
				continue
			}
			log.Debug().Float64("cpu_pct", s.CPUPercent).Float64("mem_pct", s.MemPercent).Msg("health sample")
		}
	}
}
