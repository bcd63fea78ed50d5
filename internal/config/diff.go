package config

import (
	"reflect"
	"strings"

	logx "trellobot/pkg/logx"
)

// Change is the result of comparing two configs.
type Change struct {
	// Sections lists the top-level sections that differ.
	Sections []string
	// Fields are safe structured attrs for logging; secrets are reduced to "_set" flags.
	Fields []logx.Field
	// RestartRequired lists sections whose changes only apply after a restart.
	RestartRequired []string
}

// SummarizeConfigChange compares two configs without ever exposing tokens,
// keys or redis URLs.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	ot, nt := oldCfg.Trello, newCfg.Trello
	if ot.Key != nt.Key || ot.Token != nt.Token || ot.Member != nt.Member ||
		!reflect.DeepEqual(ot.BoardList(), nt.BoardList()) || ot.DiscoverBoards != nt.DiscoverBoards ||
		ot.Frequency != nt.Frequency || ot.RequestTimeout != nt.RequestTimeout ||
		ot.PageLimit != nt.PageLimit || ot.RatePerSec != nt.RatePerSec ||
		ot.BaseURL != nt.BaseURL || ot.LegacyCheckpoint != nt.LegacyCheckpoint {
		mark("trello", true,
			logx.Int("trello.boards", len(nt.BoardList())),
			logx.Float64("trello.frequency", nt.Frequency),
			logx.Bool("trello.credentials_changed", ot.Key != nt.Key || ot.Token != nt.Token),
		)
	}

	oc, nc := oldCfg.Chat, newCfg.Chat
	if oc != nc {
		mark("chat", true,
			logx.String("chat.driver", nc.ChatDriver()),
			logx.String("chat.channel", strings.TrimSpace(nc.Channel)),
			logx.Bool("chat.token_changed", oc.Token != nc.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.EventsOrDefault(), newCfg.EventsOrDefault()) {
		mark("events", false)
	}
	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		mark("users", false, logx.Int("users.count", len(newCfg.Users)))
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		var workers, rate int
		if n := newCfg.Notifier; n != nil {
			workers, rate = n.Workers, n.RatePerSec
		}
		// worker and queue sizes are fixed at start; rate and retry knobs apply live
		mark("notifier", false, logx.Int("notifier.workers", workers), logx.Int("notifier.rate_per_sec", rate))
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		mark("storage", true, logx.String("storage.driver", driver))
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		mark("maintenance", false, logx.String("maintenance.prune_schedule", newCfg.Maintenance.PruneSchedule))
	}

	if op, np := oldCfg.Pprof, newCfg.Pprof; op != np {
		mark("pprof", false,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", np.Addr),
			logx.Bool("pprof.token_changed", op.Token != np.Token),
		)
	}
	return ch
}
