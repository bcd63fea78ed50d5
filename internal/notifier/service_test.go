package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trellobot/internal/eventbus"
	"trellobot/internal/storage"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fails int // fail this many sends first
	err   error
}

func (f *fakeAdapter) Name() string                { return "fake" }
func (f *fakeAdapter) Start(context.Context) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error  { return nil }
func (f *fakeAdapter) Self() kit.Identity          { return kit.Identity{DisplayName: "bot"} }

func (f *fakeAdapter) SendText(context.Context, kit.Target, string) error { return nil }

func (f *fakeAdapter) Resolve(_ context.Context, to kit.Target) (kit.ChannelInfo, error) {
	return kit.ChannelInfo{ID: to.Channel}, nil
}

func (f *fakeAdapter) Send(_ context.Context, _ kit.Target, m kit.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		if f.err != nil {
			return f.err
		}
		return errors.New("temporary")
	}
	f.sent = append(f.sent, m.Title)
	return nil
}

func (f *fakeAdapter) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func note(key, title string) kit.Notification {
	return kit.Notification{Key: key, Target: kit.Target{Channel: "c"}, Message: kit.Message{Title: title}}
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond, DedupWindow: time.Hour}
}

func TestServiceDeliversInOrder(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(fastConfig(), ad, logx.Nop(), nil, nil)
	s.Start(context.Background())
	for _, k := range []string{"1", "2", "3", "4"} {
		if err := s.Notify(context.Background(), note(k, "t"+k)); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	got := ad.titles()
	want := []string{"t1", "t2", "t3", "t4"}
	if len(got) != len(want) {
		t.Fatalf("sent = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent = %v, want %v", got, want)
		}
	}
	if err := s.Notify(context.Background(), note("5", "late")); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop = %v", err)
	}
}

func TestServiceRetriesAndHonoursRetryAfter(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 2, err: &kit.RetryAfterError{After: 20 * time.Millisecond, Err: errors.New("429")}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, EventSent)
	defer unsub()
	s := New(fastConfig(), ad, logx.Nop(), bus, nil)
	s.Start(context.Background())

	start := time.Now()
	_ = s.Notify(context.Background(), note("k", "hello"))
	select {
	case e := <-events:
		if ev := e.Data.(NotificationEvent); ev.Attempts != 3 {
			t.Fatalf("attempts = %d, want 3", ev.Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never sent")
	}
	if took := time.Since(start); took < 40*time.Millisecond {
		t.Fatalf("retry-after ignored, took %v", took)
	}
	s.Stop(context.Background())
}

func TestServiceGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 10}
	s := New(fastConfig(), ad, logx.Nop(), nil, nil)
	s.Start(context.Background())
	_ = s.Notify(context.Background(), note("k", "x"))
	s.Stop(context.Background())
	if st := s.Stats(); st.Failed != 1 || st.Sent != 0 {
		t.Fatalf("stats = %+v", st)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.fails != 6 {
		t.Fatalf("attempts = %d, want 4", 10-ad.fails)
	}
}

func TestServiceDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	cfg := fastConfig()
	cfg.PersistDedup = true

	ad := &fakeAdapter{}
	s := New(cfg, ad, logx.Nop(), nil, store)
	s.Start(context.Background())
	_ = s.Notify(context.Background(), note("a1|createCard", "first"))
	s.Stop(context.Background())

	// a fresh service with the same store must skip the delivered key
	s2 := New(cfg, ad, logx.Nop(), nil, store)
	s2.Start(context.Background())
	_ = s2.Notify(context.Background(), note("a1|createCard", "again"))
	_ = s2.Notify(context.Background(), note("a2|createCard", "second"))
	s2.Stop(context.Background())

	got := ad.titles()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("sent = %v", got)
	}
	if st := s2.Stats(); st.Deduped != 1 {
		t.Fatalf("deduped = %d", st.Deduped)
	}
}

func TestNotifyWaitsForQueueSpace(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.QueueSize = 1
	cfg.RatePerSec = 1
	ad := &fakeAdapter{}
	s := New(cfg, ad, logx.Nop(), nil, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = s.Notify(ctx, note("", "x"))
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Notify = %v, want ErrQueueFull once ctx expires", err)
	}
}
