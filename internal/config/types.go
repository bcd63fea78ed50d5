package config

type Config struct {
	Trello TrelloConfig `json:"trello"`
	Chat   ChatConfig   `json:"chat"`

	// Events selects which board actions are announced. When the section is
	// omitted every subscription is enabled.
	Events *EventsConfig `json:"events,omitempty"`

	// Users maps a Trello username to the chat identity mentioned next to it
	// (Telegram "@handle" or numeric user id, Slack member id "U...").
	Users map[string]string `json:"users,omitempty"`

	Logging     LoggingConfig     `json:"logging"`
	Notifier    *NotifierConfig   `json:"notifier,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Pprof       PprofConfig       `json:"pprof,omitempty"`
}

// TrelloConfig is the upstream side.
//
// Example:
//
//	"trello": {
//	  "key": "...", "token": "...",
//	  "boards": ["nC8QJJoZ"],
//	  "frequency": 60
//	}
type TrelloConfig struct {
	Key   string `json:"key"`   // do not log
	Token string `json:"token"` // do not log

	// Member is the account reported on startup; default "me".
	Member string `json:"member,omitempty"`

	// Boards are board ids or shortLinks. The set is fixed for the process lifetime.
	Boards []string `json:"boards"`
	// DiscoverBoards polls every board of Member when Boards is empty.
	DiscoverBoards bool `json:"discover_boards,omitempty"`

	// Frequency is the poll interval in seconds (fractions allowed); <= 0 means 1s.
	Frequency float64 `json:"frequency"`

	RequestTimeout string `json:"request_timeout,omitempty"` // Go duration, default 15s
	PageLimit      int    `json:"page_limit,omitempty"`      // actions per request, default 50
	RatePerSec     int    `json:"rate_per_sec,omitempty"`    // client-side limit, default 10
	BaseURL        string `json:"base_url,omitempty"`

	// LegacyCheckpoint seeds boards that have no stored checkpoint yet
	// (the content of an old ".lastActionId" file).
	LegacyCheckpoint string `json:"legacy_checkpoint,omitempty"`
}

// ChatConfig is the downstream side.
type ChatConfig struct {
	Driver string `json:"driver"` // "telegram" (default) or "slack"
	Token  string `json:"token"`  // do not log

	// Channel receives notifications: Telegram chat id or @username, Slack channel id.
	Channel  string `json:"channel"`
	ThreadID int    `json:"thread_id,omitempty"` // Telegram forum topic

	// LogChannel receives forwarded warnings/errors when logging.chat is enabled.
	// Empty means Channel.
	LogChannel string `json:"log_channel,omitempty"`

	// PollTimeout is the Telegram long-poll timeout (Go duration).
	PollTimeout string `json:"poll_timeout,omitempty"`

	// Footer overrides the bot name shown in the message footer.
	Footer string `json:"footer,omitempty"`
}

// EventsConfig mirrors the subscription list, one switch per announcement.
type EventsConfig struct {
	CreateCard           bool             `json:"createCard"`
	UpdateCard           UpdateCardEvents `json:"updateCard"`
	DeleteCard           bool             `json:"deleteCard"`
	CommentCard          bool             `json:"commentCard"`
	AddMemberToCard      bool             `json:"addMemberToCard"`
	RemoveMemberFromCard bool             `json:"removeMemberFromCard"`
	CreateList           bool             `json:"createList"`
	UpdateList           UpdateListEvents `json:"updateList"`
}

type UpdateCardEvents struct {
	Name        bool `json:"name"`
	Description bool `json:"description"`
	Position    bool `json:"position"`
	DueDate     bool `json:"dueDate"`
	List        bool `json:"list"`
	Archive     bool `json:"archive"`
}

type UpdateListEvents struct {
	Name     bool `json:"name"`
	Position bool `json:"position"`
	Archive  bool `json:"archive"`
}

// AllEvents enables every subscription.
func AllEvents() EventsConfig {
	return EventsConfig{
		CreateCard:           true,
		UpdateCard:           UpdateCardEvents{Name: true, Description: true, Position: true, DueDate: true, List: true, Archive: true},
		DeleteCard:           true,
		CommentCard:          true,
		AddMemberToCard:      true,
		RemoveMemberFromCard: true,
		CreateList:           true,
		UpdateList:           UpdateListEvents{Name: true, Position: true, Archive: true},
	}
}

// EventsOrDefault returns the configured switches or AllEvents.
func (c *Config) EventsOrDefault() EventsConfig {
	if c == nil || c.Events == nil {
		return AllEvents()
	}
	return *c.Events
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier runs with defaults.
type NotifierConfig struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    *bool  `json:"persist_dedup,omitempty"` // default true
}

// StorageConfig controls persistence of checkpoints and dedup state.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/trellobot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	URL         string `json:"url,omitempty"`          // redis; may carry a password, do not log
	Prefix      string `json:"prefix,omitempty"`       // redis key prefix
}

type LoggingConfig struct {
	// Level is trace|debug|info|warn|error. "debug" reproduces the per-listener trace of every action.
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards log lines at or above MinLevel to chat.log_channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MaintenanceConfig schedules housekeeping jobs.
type MaintenanceConfig struct {
	// PruneSchedule is a cron spec (5 fields or descriptors like "@hourly").
	// Empty means "@hourly"; "-" disables pruning.
	PruneSchedule string `json:"prune_schedule,omitempty"`
	// Timezone for PruneSchedule (IANA name); empty means local.
	Timezone string `json:"timezone,omitempty"`
}

// PprofConfig controls the optional debug HTTP server.
//
// A non-loopback Addr requires Token unless AllowInsecure is set.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default 127.0.0.1:6060
	Prefix        string `json:"prefix,omitempty"` // default /debug/pprof/
	Token         string `json:"token,omitempty"`  // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
