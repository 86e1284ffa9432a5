// Package retention purges sensor readings past a fixed age. Action logs are
// never purged; the durable store accepts their growth.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/nqhuy/iot-device-service/internal/store"
)

const (
	// Window is the maximum reading age before purge.
	Window = 30 * 24 * time.Hour
	// Interval is how often the purge runs after the startup pass.
	Interval = 24 * time.Hour
)

// Runner drives the periodic purge against the selected store. It is only
// started when the durable store was chosen; the volatile fallback bounds
// itself by trimming.
type Runner struct {
	store    store.Store
	window   time.Duration
	interval time.Duration
}

func New(st store.Store, window, interval time.Duration) *Runner {
	if window <= 0 {
		window = Window
	}
	if interval <= 0 {
		interval = Interval
	}
	return &Runner{store: st, window: window, interval: interval}
}

// Run purges once immediately, then on every tick until ctx ends.
func (r *Runner) Run(ctx context.Context) {
	r.purge(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.purge(ctx)
		}
	}
}

func (r *Runner) purge(ctx context.Context) {
	cutoff := time.Now().Add(-r.window)
	n, err := r.store.PurgeReadingsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("retention: purge failed: %v", err)
		return
	}
	log.Printf("retention: deleted %d readings older than %s", n, cutoff.Format(time.RFC3339))
}
