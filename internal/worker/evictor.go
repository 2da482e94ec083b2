package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultEvictInterval = time.Minute
	defaultEvictIdle     = 10 * time.Minute
)

// Staler drops entries unused since cutoff. *ratelimit.Limiter satisfies it.
type Staler interface {
	EvictStale(cutoff time.Time) int
}

// Evictor bounds per-client state by periodically dropping idle entries.
type Evictor struct {
	name     string
	target   Staler
	idle     time.Duration
	interval time.Duration
}

// NewEvictor creates an Evictor for target; name labels its log lines.
// Non-positive durations select the defaults.
func NewEvictor(name string, target Staler, idle, interval time.Duration) *Evictor {
	if idle <= 0 {
		idle = defaultEvictIdle
	}
	if interval <= 0 {
		interval = defaultEvictInterval
	}
	return &Evictor{name: name, target: target, idle: idle, interval: interval}
}

// Name returns "evictor/" followed by the target name.
func (w *Evictor) Name() string {
	if w.name == "" {
		return "evictor"
	}
	return "evictor/" + w.name
}

// Run evicts every interval until ctx is cancelled.
func (w *Evictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := w.target.EvictStale(now.Add(-w.idle)); n > 0 {
				slog.LogAttrs(ctx, slog.LevelDebug, "evicted idle entries",
					slog.String("target", w.name),
					slog.Int("count", n),
				)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
