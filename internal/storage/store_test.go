package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "trellobot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	open := func(cfg Config) func() Store {
		return func() Store {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open(%s): %v", cfg.Driver, err)
			}
			return st
		}
	}
	return map[string]func() Store{
		"file":   open(Config{Driver: "file", Path: filepath.Join(dir, "file", "state.json")}),
		"sqlite": open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "state.db")}),
	}
}

func TestStoresSurviveReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, open := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			if _, ok, err := st.GetCheckpoint(ctx, "board:a"); err != nil || ok {
				t.Fatalf("fresh store GetCheckpoint ok=%v err=%v", ok, err)
			}
			if err := st.PutCheckpoint(ctx, "board:a", "5f00"); err != nil {
				t.Fatalf("PutCheckpoint: %v", err)
			}
			if err := st.PutCheckpoint(ctx, "board:a", "5f01"); err != nil {
				t.Fatalf("PutCheckpoint: %v", err)
			}
			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, "a1|createCard", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = open()
			defer st.Close()
			v, ok, err := st.GetCheckpoint(ctx, "board:a")
			if err != nil || !ok || v != "5f01" {
				t.Fatalf("GetCheckpoint = %q ok=%v err=%v", v, ok, err)
			}
			got, ok, err := st.GetDedup(ctx, "a1|createCard")
			if err != nil || !ok || !got.Equal(until) {
				t.Fatalf("GetDedup = %v ok=%v err=%v, want %v", got, ok, err, until)
			}
		})
	}
}

func TestStoresPruneDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stores := openTestStores(t)
	stores["memory"] = NewMemory
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()
			now := time.Now()
			_ = st.PutDedup(ctx, "old", now.Add(-time.Minute))
			_ = st.PutDedup(ctx, "new", now.Add(time.Minute))

			n, err := st.PruneDedup(ctx, now)
			if err != nil || n != 1 {
				t.Fatalf("PruneDedup = %d, %v; want 1", n, err)
			}
			if _, ok, _ := st.GetDedup(ctx, "old"); ok {
				t.Fatal("expired entry survived prune")
			}
			if _, ok, _ := st.GetDedup(ctx, "new"); !ok {
				t.Fatal("live entry was pruned")
			}
		})
	}
}

func TestClosedStoreReportsErrClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()
	if err := st.PutCheckpoint(context.Background(), "board:a", "1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("PutCheckpoint after Close = %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for redis without url")
	}
}
