package connect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// DefaultSettle is how long the refresher waits after a trigger so that a
// burst of controller events collapses into a single pass.
const DefaultSettle = 800 * time.Millisecond

// DeviceLister is implemented by Directory.
type DeviceLister interface {
	ListDevices(ctx context.Context) []Device
}

// Refresher runs authoritative refresh passes: list every device and signal
// each one. At most one pass runs at a time.
type Refresher struct {
	lister      DeviceLister
	broadcaster *Broadcaster
	settle      time.Duration

	mu      sync.Mutex
	trigger chan struct{}
	passes  atomic.Int64
}

// NewRefresher creates a refresher. A settle of zero disables the wait.
func NewRefresher(l DeviceLister, b *Broadcaster, settle time.Duration) *Refresher {
	return &Refresher{
		lister:      l,
		broadcaster: b,
		settle:      settle,
		trigger:     make(chan struct{}, 1),
	}
}

// Trigger requests a settled refresh. Triggers that arrive while one is
// already pending are folded into it.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run serves triggers until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
		}

		if r.settle > 0 {
			timer := time.NewTimer(r.settle)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		// Anything that arrived during the settle window is covered by this pass.
		select {
		case <-r.trigger:
		default:
		}

		r.RefreshNow(ctx)
	}
}

// RefreshNow runs one pass immediately, waiting for any pass in flight.
func (r *Refresher) RefreshNow(ctx context.Context) []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}

	devices := r.lister.ListDevices(ctx)
	r.passes.Add(1)

	for _, d := range devices {
		r.broadcaster.Publish(d.ID)
	}

	logging.Debug("Refresh pass complete",
		zap.Int("devices", len(devices)),
		zap.Int64("pass", r.passes.Load()),
	)
	return devices
}

// Passes returns the number of completed refresh passes.
func (r *Refresher) Passes() int64 {
	return r.passes.Load()
}
