package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"trellobot/internal/maintenance"
	"trellobot/internal/observability/pprof"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Interval converts Frequency (seconds) to a duration; <= 0 means one second.
func (t TrelloConfig) Interval() time.Duration {
	if t.Frequency <= 0 || math.IsNaN(t.Frequency) || math.IsInf(t.Frequency, 0) {
		return time.Second
	}
	return time.Duration(t.Frequency * float64(time.Second))
}

// BoardList returns the configured boards, trimmed and without duplicates.
func (t TrelloConfig) BoardList() []string {
	out := make([]string, 0, len(t.Boards))
	seen := map[string]bool{}
	for _, b := range t.Boards {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// ChatDriver returns the normalized driver name.
func (c ChatConfig) ChatDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return "telegram"
	}
	return d
}

// Validate checks everything that can be checked without network access.
// All problems are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Trello.Key) == "" {
		add("trello.key is required")
	}
	if strings.TrimSpace(c.Trello.Token) == "" {
		add("trello.token is required")
	}
	if len(c.Trello.BoardList()) == 0 && !c.Trello.DiscoverBoards {
		add("trello.boards is empty (set boards or discover_boards)")
	}
	if c.Trello.Frequency < 0 || math.IsNaN(c.Trello.Frequency) || math.IsInf(c.Trello.Frequency, 0) {
		add("trello.frequency must be a finite number >= 0")
	}
	if _, err := ParseDurationField("trello.request_timeout", c.Trello.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Trello.PageLimit < 0 || c.Trello.PageLimit > 1000 {
		add("trello.page_limit must be between 0 and 1000")
	}

	switch c.Chat.ChatDriver() {
	case "telegram":
		if _, err := ParseDurationField("chat.poll_timeout", c.Chat.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	case "slack":
		if c.Chat.ThreadID != 0 {
			add("chat.thread_id is only supported by the telegram driver")
		}
	default:
		add("chat.driver %q is not supported (telegram, slack)", c.Chat.Driver)
	}
	if strings.TrimSpace(c.Chat.Token) == "" {
		add("chat.token is required")
	}
	if strings.TrimSpace(c.Chat.Channel) == "" {
		add("chat.channel is required")
	}

	for user, id := range c.Users {
		if strings.TrimSpace(user) == "" || strings.TrimSpace(id) == "" {
			add("users: empty entry %q -> %q", user, id)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not supported", c.Logging.Level)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path is required when logging.file.enabled=true")
	}

	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			add("notifier: numeric settings must be >= 0")
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add("storage.path is required for driver %q", s.Driver)
			}
		case "redis":
			if strings.TrimSpace(s.URL) == "" {
				add("storage.url is required for driver redis")
			}
		case "memory":
		default:
			add("storage.driver %q is not supported (file, sqlite, redis, memory)", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := maintenance.ParseSchedule(c.Maintenance.PruneSchedule); err != nil {
		add("maintenance.prune_schedule: %v", err)
	}
	if tz := strings.TrimSpace(c.Maintenance.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("maintenance.timezone: %v", err)
		}
	}

	if p := c.Pprof; p.Enabled {
		if err := pprof.CheckAddr(p.Addr, p.Token, p.AllowInsecure); err != nil {
			add("pprof.addr: %v", err)
		}
	}
	return errors.Join(errs...)
}
