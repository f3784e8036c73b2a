package connect

import (
	"sync"
	"time"
)

// MinPatchTTL is the shortest lifetime an optimistic patch can have.
const MinPatchTTL = 500 * time.Millisecond

type optimisticPatch struct {
	shadow Shadow
	expiry time.Time
}

// Cache holds the last authoritative record of every known device plus at
// most one optimistic patch per device. Reads never touch the network.
type Cache struct {
	mu      sync.Mutex
	devices map[string]Device
	order   []string
	patches map[string]optimisticPatch

	broadcaster *Broadcaster
	now         func() time.Time
}

// NewCache creates an empty cache that signals patch installs on b.
func NewCache(b *Broadcaster) *Cache {
	return &Cache{
		devices:     make(map[string]Device),
		patches:     make(map[string]optimisticPatch),
		broadcaster: b,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests use it to cross patch expiry
// deterministically.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Replace stores each device wholesale, discarding the previous record for
// the same id. Patches are left alone; they expire on their own.
func (c *Cache) Replace(devices []Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		if _, known := c.devices[d.ID]; !known {
			c.order = append(c.order, d.ID)
		}
		c.devices[d.ID] = d.Clone()
	}
}

// Get returns the device with any live patch merged into its shadow.
func (c *Cache) Get(id string) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		return Device{}, false
	}
	return c.mergeLocked(d), true
}

// Reported returns the device exactly as the controller last reported it,
// ignoring any live patch.
func (c *Cache) Reported(id string) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.Clone(), true
}

// All returns every known device, merged, in first-seen order.
func (c *Cache) All() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Device, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.mergeLocked(c.devices[id]))
	}
	return out
}

// IDs returns every known device id in first-seen order.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of known devices.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// ApplyPatch installs a patch for id, replacing any previous one, and
// signals subscribers before returning. ttl is floored at MinPatchTTL.
func (c *Cache) ApplyPatch(id string, patch Shadow, ttl time.Duration) {
	if ttl < MinPatchTTL {
		ttl = MinPatchTTL
	}

	c.mu.Lock()
	c.patches[id] = optimisticPatch{
		shadow: patch.Clone(),
		expiry: c.now().Add(ttl),
	}
	c.mu.Unlock()

	if c.broadcaster != nil {
		c.broadcaster.Publish(id)
	}
}

// HasPatch reports whether a live patch exists for id. An expired patch is
// purged as a side effect.
func (c *Cache) HasPatch(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.livePatchLocked(id)
	return ok
}

func (c *Cache) livePatchLocked(id string) (optimisticPatch, bool) {
	p, ok := c.patches[id]
	if !ok {
		return optimisticPatch{}, false
	}
	if c.now().After(p.expiry) {
		delete(c.patches, id)
		return optimisticPatch{}, false
	}
	return p, true
}

// mergeLocked returns a deep copy of d with the live patch shallow-merged
// into its shadow. Identity fields and Online come from d only.
func (c *Cache) mergeLocked(d Device) Device {
	out := d.Clone()
	p, ok := c.livePatchLocked(d.ID)
	if !ok {
		return out
	}
	if out.Shadow == nil {
		out.Shadow = Shadow{}
	}
	for k, v := range p.shadow {
		out.Shadow[k] = cloneValue(v)
	}
	return out
}
