// Package sysload samples host CPU and memory utilization for the
// orchestrator's backpressure policy.
package sysload

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is a point-in-time host load reading. Percentages are 0-100.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Sampler produces host load readings. The orchestrator only sees this
// interface so tests can inject fixed loads.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler reads real utilization via gopsutil.
type HostSampler struct {
	// Interval is how long the CPU busy-percentage is measured over.
	Interval time.Duration
}

// NewHostSampler returns a sampler with a 100ms measurement window.
func NewHostSampler() *HostSampler {
	return &HostSampler{Interval: 100 * time.Millisecond}
}

// Sample measures CPU over the configured interval and reads virtual memory.
func (h *HostSampler) Sample(ctx context.Context) (Sample, error) {
	interval := h.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{CPUPercent: cpuPct, MemoryPercent: vm.UsedPercent}, nil
}

// StaticSampler returns a fixed sample; used in tests and when load
// sampling is disabled.
type StaticSampler struct {
	S Sample
}

// Sample returns the fixed reading.
func (s *StaticSampler) Sample(ctx context.Context) (Sample, error) {
	return s.S, nil
}

var (
	_ Sampler = (*HostSampler)(nil)
	_ Sampler = (*StaticSampler)(nil)
)
