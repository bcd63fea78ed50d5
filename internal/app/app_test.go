package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"trellobot/internal/config"
	"trellobot/internal/feed"
	"trellobot/internal/maintenance"
	"trellobot/internal/notifier"
	"trellobot/internal/notify"
	"trellobot/internal/storage"
	"trellobot/internal/trello"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

func TestMapStorageConfigDefaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   *config.StorageConfig
		want storage.Config
	}{
		{name: "omitted", in: nil, want: storage.Config{Driver: "file", Path: defaultStoragePath}},
		{name: "file without path", in: &config.StorageConfig{Driver: "File"}, want: storage.Config{Driver: "file", Path: defaultStoragePath, BusyTimeout: time.Second}},
		{name: "sqlite", in: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"}, want: storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: 3 * time.Second}},
		{name: "redis", in: &config.StorageConfig{Driver: "redis", URL: " redis://h:6379/0 ", Prefix: "tb:"}, want: storage.Config{Driver: "redis", URL: "redis://h:6379/0", Prefix: "tb:", BusyTimeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapStorageConfig(&Config{Storage: tt.in})
			if err != nil {
				t.Fatalf("mapStorageConfig: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&Config{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers != 1 || got.DedupWindow != 24*time.Hour || !got.PersistDedup || got.RetryMax != 3 {
		t.Fatalf("defaults = %+v", got)
	}

	off := false
	got, err = mapNotifierConfig(&Config{Notifier: &config.NotifierConfig{
		Workers: 2, RetryBase: "250ms", DedupWindow: "1h", PersistDedup: &off,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers != 2 || got.RetryBase != 250*time.Millisecond || got.DedupWindow != time.Hour || got.PersistDedup {
		t.Fatalf("mapped = %+v", got)
	}

	if _, err := mapNotifierConfig(&Config{Notifier: &config.NotifierConfig{RetryBase: "later"}}); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestLogTargetFallsBackToChannel(t *testing.T) {
	t.Parallel()
	cfg := &Config{Chat: config.ChatConfig{Channel: "-100", ThreadID: 7}}
	if got := logTarget(cfg); got.Channel != "-100" || got.ThreadID != 7 {
		t.Fatalf("logTarget = %+v", got)
	}
	cfg.Chat.LogChannel = "-200"
	if got := logTarget(cfg); got.Channel != "-200" || got.ThreadID != 0 {
		t.Fatalf("logTarget = %+v", got)
	}
}

func TestBotName(t *testing.T) {
	t.Parallel()
	if got := botName(&Config{}, kit.Identity{DisplayName: "tb_bot"}); got != "tb_bot" {
		t.Fatalf("got %q", got)
	}
	if got := botName(&Config{Chat: config.ChatConfig{Footer: "Team"}}, kit.Identity{DisplayName: "tb_bot"}); got != "Team" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderStatus(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := renderStatus(now, now.Add(-time.Hour), []feed.BoardStatus{
		{Board: "b1", Checkpoint: "ff", LastCycle: now.Add(-2 * time.Second), Published: 4},
		{Board: "b2", LastError: "trello: service error"},
	}, notifier.Stats{Sent: 4, Pending: 1}, maintenance.Snapshot{Schedule: "@hourly"})

	for _, want := range []string{
		"trellobot up 1h0m0s",
		"• b1: checkpoint ff, last cycle 2s ago, 4 published, 0 errors",
		"• b2: checkpoint -, last cycle never",
		"last error: trello: service error",
		"Notifications: 4 sent, 1 pending",
		"Dedup prune: @hourly",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

type nopAdapter struct {
	mu   sync.Mutex
	sent []kit.Message
}

func (n *nopAdapter) Name() string                { return "nop" }
func (n *nopAdapter) Start(context.Context) error { return nil }
func (n *nopAdapter) Stop(context.Context) error  { return nil }
func (n *nopAdapter) Self() kit.Identity          { return kit.Identity{DisplayName: "tb"} }

func (n *nopAdapter) Resolve(_ context.Context, to kit.Target) (kit.ChannelInfo, error) {
	return kit.ChannelInfo{ID: to.Channel}, nil
}

func (n *nopAdapter) Send(_ context.Context, _ kit.Target, m kit.Message) error {
	n.mu.Lock()
	n.sent = append(n.sent, m)
	n.mu.Unlock()
	return nil
}

func (n *nopAdapter) SendText(context.Context, kit.Target, string) error { return nil }

func (n *nopAdapter) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestApplyConfigSwapsEventSwitches(t *testing.T) {
	t.Parallel()
	ad := &nopAdapter{}
	logs, root := logx.New(logx.Config{Level: "error"}, nil)
	t.Cleanup(func() { _ = logs.Close() })

	cfgm := config.NewManager("unused.json")
	notif := notifier.New(notifier.Config{RatePerSec: 1000}, ad, root, nil, nil)
	notif.Start(context.Background())
	t.Cleanup(func() { notif.Stop(context.Background()) })

	disp := feed.NewDispatcher(nil, root)
	off := &config.EventsConfig{}
	a := &App{
		cfgm: cfgm, log: root, logs: logs, adapter: ad, notif: notif, disp: disp,
		maint: maintenance.New(maintenance.Config{}, storage.NewMemory(), root),
	}
	a.notify = notify.New(context.Background(), notif, notify.Options{Target: kit.Target{Channel: "c"}, Events: *off}, root)
	a.notify.Register(disp)

	created := trello.Action{ID: "a1", Type: "createCard", Data: []byte(`{"card":{"shortLink":"c1","name":"x"},"list":{"name":"Todo"}}`)}
	disp.Action("b1", created)

	prev := &Config{Events: off}
	a.applyConfig(prev, &Config{})
	created.ID = "a2"
	disp.Action("b1", created)

	deadline := time.Now().Add(2 * time.Second)
	for ad.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := ad.count(); got != 1 {
		t.Fatalf("sent %d, want only the action after enabling", got)
	}
}
