package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "trellobot/pkg/logx"
)

// Store is the persistence API used by the feed and the notifier.
type Store interface {
	// GetCheckpoint returns ok=false when key was never written.
	GetCheckpoint(ctx context.Context, key string) (value string, ok bool, err error)
	PutCheckpoint(ctx context.Context, key, value string) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	// PruneDedup drops entries that expired before now and reports how many.
	PruneDedup(ctx context.Context, now time.Time) (int, error)

	Close() error
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "memory":
		log.Warn("memory storage: checkpoints are lost on restart")
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
