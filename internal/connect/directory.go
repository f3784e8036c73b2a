package connect

import (
	"context"
	"sync"

	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// Directory runs the discovery chain and keeps the cache in step with it.
type Directory struct {
	requester  Requester
	cache      *Cache
	strategies []Strategy

	mu           sync.Mutex
	lastOutcome  error
	lastStrategy string
}

// NewDirectory creates a directory using DefaultStrategies.
func NewDirectory(r Requester, cache *Cache) *Directory {
	return NewDirectoryWithStrategies(r, cache, DefaultStrategies())
}

// NewDirectoryWithStrategies creates a directory with an explicit chain.
func NewDirectoryWithStrategies(r Requester, cache *Cache, strategies []Strategy) *Directory {
	return &Directory{
		requester:  r,
		cache:      cache,
		strategies: strategies,
	}
}

// ListDevices asks the controller for its displays, replaces the cached
// records for every returned id and returns them merged with live patches.
// When no strategy yields, it logs a warning and returns an empty list;
// the reason is available from LastOutcome.
func (d *Directory) ListDevices(ctx context.Context) []Device {
	for _, s := range d.strategies {
		if ctx.Err() != nil {
			d.record("", ctx.Err())
			return []Device{}
		}

		records, err := s.Discover(ctx, d.requester)
		if err != nil {
			logging.Debug("Discovery strategy declined",
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}

		devices := make([]Device, 0, len(records))
		for _, rec := range records {
			dev, ok := ParseDevice(rec)
			if !ok {
				logging.Debug("Dropping record without id", zap.String("strategy", s.Name()))
				continue
			}
			devices = append(devices, dev)
		}

		d.cache.Replace(devices)
		d.record(s.Name(), nil)

		logging.Debug("Discovery strategy accepted",
			zap.String("strategy", s.Name()),
			zap.Int("devices", len(devices)),
		)

		merged := make([]Device, 0, len(devices))
		for _, dev := range devices {
			if m, ok := d.cache.Get(dev.ID); ok {
				merged = append(merged, m)
			}
		}
		return merged
	}

	logging.Warn("No displays found via any endpoint, returning empty list")
	d.record("", ErrDiscoveryExhausted)
	return []Device{}
}

// LastOutcome returns nil after a pass that found a yielding strategy,
// ErrDiscoveryExhausted after a pass where none did, or the context error
// of an interrupted pass.
func (d *Directory) LastOutcome() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastOutcome
}

// LastStrategy names the strategy that yielded on the last successful pass.
func (d *Directory) LastStrategy() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastStrategy
}

func (d *Directory) record(strategy string, outcome error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastOutcome = outcome
	if outcome == nil {
		d.lastStrategy = strategy
	}
}
