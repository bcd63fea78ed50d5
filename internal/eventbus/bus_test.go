package eventbus

import "testing"

func TestSubscribePrefixFilter(t *testing.T) {
	t.Parallel()
	b := New()
	feed, unsubFeed := b.Subscribe(4, "feed.")
	all, unsubAll := b.Subscribe(4)
	defer unsubFeed()
	defer unsubAll()

	b.Publish(Event{Type: "feed.action"})
	b.Publish(Event{Type: "notifier.sent"})

	if got := len(feed); got != 1 {
		t.Fatalf("feed subscriber got %d events, want 1", got)
	}
	if got := len(all); got != 2 {
		t.Fatalf("catch-all subscriber got %d events, want 2", got)
	}
	e := <-feed
	if e.Time.IsZero() {
		t.Fatal("Publish should stamp Time")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "x"})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped = %d, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: "after"})
}
