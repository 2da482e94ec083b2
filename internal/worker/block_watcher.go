package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/kycgate/internal/events"
)

const defaultPollInterval = 12 * time.Second

// BlockSource reports the current chain head.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// HeadGauge records the last observed head. prometheus.Gauge satisfies it.
type HeadGauge interface {
	Set(float64)
}

// BlockWatcher polls the chain head and emits events.ChainBlock each time
// it advances. The first successful poll only records the head.
type BlockWatcher struct {
	src      BlockSource
	emitter  *events.Emitter
	interval time.Duration
	gauge    HeadGauge

	head uint64
	seen bool
}

// NewBlockWatcher creates a BlockWatcher. A non-positive interval selects
// the default; gauge may be nil.
func NewBlockWatcher(src BlockSource, emitter *events.Emitter, interval time.Duration, gauge HeadGauge) *BlockWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &BlockWatcher{src: src, emitter: emitter, interval: interval, gauge: gauge}
}

// Name implements Worker.
func (w *BlockWatcher) Name() string { return "block_watcher" }

// Run polls immediately, then every interval until ctx is cancelled.
func (w *BlockWatcher) Run(ctx context.Context) error {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *BlockWatcher) poll(ctx context.Context) {
	n, err := w.src.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "block poll failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if w.gauge != nil {
		w.gauge.Set(float64(n))
	}
	if !w.seen {
		w.head, w.seen = n, true
		slog.LogAttrs(ctx, slog.LevelInfo, "chain head observed", slog.Uint64("block", n))
		return
	}
	// A lagging node can report an older head.
	if n <= w.head {
		return
	}
	prev := w.head
	w.head = n
	w.emitter.Emit(ctx, events.ChainBlock, events.BlockEvent{Number: n, Previous: prev})
}
