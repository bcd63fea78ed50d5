package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON checkpoint snapshot + dedup journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis server at URL (keys prefixed with Prefix)
//   - "memory": process-local, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	URL    string // redis only, redis://[:password@]host:port/db
	Prefix string // redis only; defaults to "trellobot:"
}
