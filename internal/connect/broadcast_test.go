package connect

import "testing"

func TestBroadcaster_Filter(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	all := b.Subscribe()
	onlyA := b.Subscribe("a")

	b.Publish("a")
	b.Publish("b")

	if got := drain(all); !equalStrings(got, []string{"a", "b"}) {
		t.Errorf("unfiltered = %v, want [a b]", got)
	}
	if got := drain(onlyA); !equalStrings(got, []string{"a"}) {
		t.Errorf("filtered = %v, want [a]", got)
	}
}

func TestBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < DefaultSubscriptionBuffer+10; i++ {
		b.Publish("a")
		<-fast.C
	}

	if slow.Dropped() != 10 {
		t.Errorf("Dropped() = %d, want 10", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast Dropped() = %d, want 0", fast.Dropped())
	}
	if got := len(drain(slow)); got != DefaultSubscriptionBuffer {
		t.Errorf("buffered = %d, want %d", got, DefaultSubscriptionBuffer)
	}
}

func TestBroadcaster_CloseSubscription(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}

	sub.Close()
	sub.Close()

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
	if _, ok := <-sub.C; ok {
		t.Error("closed subscription channel should be closed")
	}

	b.Publish("a")
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	b.Close()
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Error("subscription should be closed with the broadcaster")
	}
	sub.Close()

	late := b.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("subscribing after Close should yield a closed channel")
	}
	late.Close()
	b.Publish("a")
}
