package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackzampolin/reader/internal/sysload"
)

const (
	// maxCoolDown bounds the thermal pause regardless of overshoot.
	maxCoolDown = 5 * time.Second

	// coolDownPerPercent scales the pause with CPU overshoot.
	coolDownPerPercent = 100 * time.Millisecond

	// recoveryFraction of the high-water mark is the low-water mark below
	// which worker count is allowed to grow back.
	recoveryFraction = 0.7
)

// backpressure adapts worker count and inserts cool-down delays from host
// load readings. All adjustment happens between batches (parallel mode) or
// between chunks (sequential mode); nothing here is called concurrently.
type backpressure struct {
	sampler    sysload.Sampler
	logger     *slog.Logger
	highWater  float64 // CPU percent ceiling
	maxWorkers int

	workers    int
	reductions int
	recoveries int
}

func newBackpressure(sampler sysload.Sampler, highWater float64, maxWorkers int, logger *slog.Logger) *backpressure {
	if highWater <= 0 {
		highWater = 75.0
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &backpressure{
		sampler:    sampler,
		logger:     logger.With("component", "backpressure"),
		highWater:  highWater,
		maxWorkers: maxWorkers,
		workers:    maxWorkers,
	}
}

// coolDownFor converts a load reading into a pause duration.
func (b *backpressure) coolDownFor(s sysload.Sample) time.Duration {
	if s.CPUPercent <= b.highWater {
		return 0
	}
	d := time.Duration(s.CPUPercent-b.highWater) * coolDownPerPercent
	if d > maxCoolDown {
		d = maxCoolDown
	}
	return d
}

// betweenChunks applies the sequential-mode policy: sample and sleep
// proportionally to any overshoot.
func (b *backpressure) betweenChunks(ctx context.Context) {
	s, err := b.sampler.Sample(ctx)
	if err != nil {
		return
	}
	if delay := b.coolDownFor(s); delay > 0 {
		b.logger.Info("cpu over threshold, cooling down",
			"cpu", s.CPUPercent, "threshold", b.highWater, "delay", delay)
		sleep(ctx, delay)
	}
}

// afterBatch applies the parallel-mode policy: shrink the pool and pause on
// overshoot, grow it back when both CPU and memory sit below the low-water
// marks.
func (b *backpressure) afterBatch(ctx context.Context) {
	s, err := b.sampler.Sample(ctx)
	if err != nil {
		return
	}

	lowWater := b.highWater * recoveryFraction
	switch {
	case s.CPUPercent > b.highWater || s.MemoryPercent > b.highWater:
		if b.workers > 1 {
			b.workers--
			b.reductions++
			b.logger.Info("host load high, reducing workers",
				"cpu", s.CPUPercent, "memory", s.MemoryPercent, "workers", b.workers)
		}
		if delay := b.coolDownFor(s); delay > 0 {
			sleep(ctx, delay)
		}
	case s.CPUPercent < lowWater && s.MemoryPercent < lowWater && b.workers < b.maxWorkers:
		b.workers++
		b.recoveries++
		b.logger.Info("host load recovered, increasing workers", "workers", b.workers)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
