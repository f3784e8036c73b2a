package connect

import (
	"sync"
	"sync/atomic"
)

// DefaultSubscriptionBuffer is the channel capacity of a new subscription.
const DefaultSubscriptionBuffer = 64

// Subscription receives the ids of devices whose merged state may have
// changed. Consumers re-read the cache on each id.
type Subscription struct {
	C <-chan string

	ch      chan string
	filter  map[string]struct{}
	b       *Broadcaster
	dropped atomic.Int64
	once    sync.Once
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.b.remove(s) })
}

// Dropped returns how many signals were discarded because C was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(id string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[id]
	return ok
}

// Broadcaster fans device update signals out to subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the signal.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster with the default buffer size.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultSubscriptionBuffer,
	}
}

// Subscribe registers a subscriber. With no ids it receives every signal,
// otherwise only signals for the given devices.
func (b *Broadcaster) Subscribe(ids ...string) *Subscription {
	ch := make(chan string, b.buffer)
	sub := &Subscription{C: ch, ch: ch, b: b}
	if len(ids) > 0 {
		sub.filter = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			sub.filter[id] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish signals that device id changed.
func (b *Broadcaster) Publish(id string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(id) {
			continue
		}
		select {
		case sub.ch <- id:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions are returned closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}
