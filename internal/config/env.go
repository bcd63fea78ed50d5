package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "TRELLOBOT_"

// envOverrides are the secrets (and a few operational knobs) that may be
// supplied through the environment instead of the config file. Non-empty
// values win over the file.
type envOverrides struct {
	TrelloKey   string `env:"TRELLO_KEY"`
	TrelloToken string `env:"TRELLO_TOKEN"`
	ChatToken   string `env:"CHAT_TOKEN"`
	StorageURL  string `env:"STORAGE_URL"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// ApplyEnv overlays environment overrides onto cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if cfg == nil {
		return nil
	}
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Trello.Key, o.TrelloKey)
	set(&cfg.Trello.Token, o.TrelloToken)
	set(&cfg.Chat.Token, o.ChatToken)
	set(&cfg.Logging.Level, o.LogLevel)
	if strings.TrimSpace(o.StorageURL) != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "redis"}
		}
		cfg.Storage.URL = strings.TrimSpace(o.StorageURL)
	}
	return nil
}

// SetEnvironment replaces the process environment for Parse (tests).
func (m *Manager) SetEnvironment(fn func() map[string]string) { m.lookupEnv = fn }
