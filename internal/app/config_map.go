package app

import (
	"strings"
	"time"

	"trellobot/internal/maintenance"
	"trellobot/internal/notifier"
	"trellobot/internal/observability/pprof"
	"trellobot/internal/storage"
	"trellobot/internal/trello"
	kit "trellobot/internal/transport"
	logx "trellobot/pkg/logx"
)

const defaultStoragePath = "./data/trellobot"

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

// logTarget is chat.log_channel, falling back to the notification channel.
func logTarget(cfg *Config) kit.Target {
	if ch := strings.TrimSpace(cfg.Chat.LogChannel); ch != "" {
		return kit.Target{Channel: ch}
	}
	return notifyTarget(cfg)
}

func notifyTarget(cfg *Config) kit.Target {
	return kit.Target{Channel: strings.TrimSpace(cfg.Chat.Channel), ThreadID: cfg.Chat.ThreadID}
}

// mapStorageConfig: an omitted section means the file driver under ./data.
func mapStorageConfig(cfg *Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: defaultStoragePath}, nil
	}
	sc := cfg.Storage
	busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if (driver == "" || driver == "file") && path == "" {
		path = defaultStoragePath
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: busy,
		URL:         strings.TrimSpace(sc.URL),
		Prefix:      sc.Prefix,
	}, nil
}

func mapTrelloConfig(cfg *Config) (trello.Config, error) {
	timeout, err := parseDurationOrDefault("trello.request_timeout", cfg.Trello.RequestTimeout, trello.DefaultTimeout)
	if err != nil {
		return trello.Config{}, err
	}
	return trello.Config{
		BaseURL:    cfg.Trello.BaseURL,
		Key:        cfg.Trello.Key,
		Token:      cfg.Trello.Token,
		Timeout:    timeout,
		PageLimit:  cfg.Trello.PageLimit,
		RatePerSec: cfg.Trello.RatePerSec,
	}, nil
}

// mapNotifierConfig fills defaults: one ordered worker, 24h dedup window
// persisted in the store.
func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	out := notifier.Config{
		Workers:      1,
		RetryMax:     3,
		DedupWindow:  24 * time.Hour,
		PersistDedup: true,
	}
	nc := cfg.Notifier
	if nc == nil {
		return out, nil
	}
	var err error
	if out.RetryBase, err = parseDurationOrDefault("notifier.retry_base", nc.RetryBase, time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = parseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 30*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = parseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, out.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	if nc.Workers > 0 {
		out.Workers = nc.Workers
	}
	if nc.RetryMax > 0 {
		out.RetryMax = nc.RetryMax
	}
	out.QueueSize = nc.QueueSize
	out.RatePerSec = nc.RatePerSec
	out.DedupMaxEntries = nc.DedupMaxEntries
	if nc.PersistDedup != nil {
		out.PersistDedup = *nc.PersistDedup
	}
	return out, nil
}

func mapMaintenanceConfig(cfg *Config) maintenance.Config {
	return maintenance.Config{
		PruneSchedule: cfg.Maintenance.PruneSchedule,
		Timezone:      cfg.Maintenance.Timezone,
	}
}

func mapPprofConfig(cfg *Config) pprof.Config {
	p := cfg.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                p.Token,
		AllowInsecure:        p.AllowInsecure,
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
	}
}

// botName is the footer prefix: chat.footer, else the bot's own name.
func botName(cfg *Config, self kit.Identity) string {
	if f := strings.TrimSpace(cfg.Chat.Footer); f != "" {
		return f
	}
	if self.DisplayName != "" {
		return self.DisplayName
	}
	return "trellobot"
}
