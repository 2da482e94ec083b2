package worker

import (
	"context"
	"time"
)

const defaultDNSRefresh = 5 * time.Minute

// Refresher re-resolves cached host names. *dnscache.Resolver satisfies it.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefresher periodically refreshes a DNS cache, dropping hosts that were
// not looked up since the previous refresh.
type DNSRefresher struct {
	r        Refresher
	interval time.Duration
}

// NewDNSRefresher creates a DNSRefresher. A non-positive interval selects
// the default.
func NewDNSRefresher(r Refresher, interval time.Duration) *DNSRefresher {
	if interval <= 0 {
		interval = defaultDNSRefresh
	}
	return &DNSRefresher{r: r, interval: interval}
}

// Name implements Worker.
func (w *DNSRefresher) Name() string { return "dns_refresher" }

// Run refreshes every interval until ctx is cancelled.
func (w *DNSRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.r.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
