package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trellobot/internal/transport"
)

type captureAdapter struct {
	mu    sync.Mutex
	texts []string
	got   chan struct{}
}

func (a *captureAdapter) Name() string                  { return "capture" }
func (a *captureAdapter) Start(context.Context) error   { return nil }
func (a *captureAdapter) Stop(context.Context) error    { return nil }
func (a *captureAdapter) Self() transport.Identity      { return transport.Identity{} }
func (a *captureAdapter) Send(context.Context, transport.Target, transport.Message) error {
	return nil
}
func (a *captureAdapter) Resolve(context.Context, transport.Target) (transport.ChannelInfo, error) {
	return transport.ChannelInfo{}, nil
}
func (a *captureAdapter) SendText(_ context.Context, _ transport.Target, text string) error {
	a.mu.Lock()
	a.texts = append(a.texts, text)
	a.mu.Unlock()
	select {
	case a.got <- struct{}{}:
	default:
	}
	return nil
}

func newWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := newWriter(&buf, "debug").With(String("comp", "feed"))
	log.Info("cycle done", Int("fresh", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["comp"] != "feed" || m["fresh"] != float64(3) || m["message"] != "cycle done" {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
}

func TestFormatChatJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"error","time":"x","caller":"a.go:1","message":"fetch failed","board":"abc","err":"boom"}`)
	got := formatChatJSON(line)
	want := "[ERROR] fetch failed\n- board=abc\n- err=boom"
	if got != want {
		t.Fatalf("formatChatJSON = %q, want %q", got, want)
	}
}

func TestServiceChatSinkRespectsMinLevel(t *testing.T) {
	ad := &captureAdapter{got: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, ad)
	t.Cleanup(func() { _ = svc.Close() })
	svc.SetChatTarget(transport.Target{Channel: "ops"})

	log.Info("not mirrored")
	log.Warn("mirrored", String("board", "b1"))

	select {
	case <-ad.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for chat log line")
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.texts) != 1 {
		t.Fatalf("expected 1 mirrored line, got %d: %v", len(ad.texts), ad.texts)
	}
	if !strings.HasPrefix(ad.texts[0], "[WARN] mirrored") {
		t.Fatalf("unexpected chat text: %q", ad.texts[0])
	}
}
