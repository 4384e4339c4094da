// Package config handles application configuration from a TOML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nested keys, e.g. FEEDMIRROR_TELEGRAM__TOKEN.
const EnvPrefix = "FEEDMIRROR_"

// Config holds the application configuration.
type Config struct {
	Telegram    Telegram      `koanf:"telegram"`
	Database    Database      `koanf:"database"`
	Log         Log           `koanf:"log"`
	Resolver    Resolver      `koanf:"resolver"`
	Reddit      Reddit        `koanf:"reddit"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"min=1s,max=5m"`
}

type Telegram struct {
	Token        string  `koanf:"token" validate:"required"`
	AllowedUsers []int64 `koanf:"-"`
}

type Database struct {
	Path string `koanf:"path" validate:"required"`
}

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type Resolver struct {
	// Kind selects how feed names are resolved: "reddit" or "rss".
	Kind string `koanf:"kind" validate:"oneof=reddit rss"`
}

type Reddit struct {
	BaseURL      string `koanf:"base_url" validate:"omitempty,url"`
	UserAgent    string `koanf:"user_agent" validate:"required"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret" validate:"required_with=ClientID"`
}

var defaults = map[string]any{
	"database.path":     "./data/bot.db",
	"log.level":         "info",
	"resolver.kind":     "reddit",
	"reddit.user_agent": "feed-mirror-bot/1.0",
	"call_timeout":      "10s",
}

// Load reads configuration from the TOML file at path, if it exists, and
// then from environment variables, which take precedence.
func Load(path string) (*Config, error) {
	k, err := load(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	users, err := allowedUsers(k.Get("telegram.allowed_users"))
	if err != nil {
		return nil, err
	}
	cfg.Telegram.AllowedUsers = users

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DatabasePath resolves only database.path, for tools that do not need the
// rest of the configuration.
func DatabasePath(path string) (string, error) {
	k, err := load(path)
	if err != nil {
		return "", err
	}
	return k.String("database.path"), nil
}

func load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, v)
		}
	}
	return k, nil
}

// envKey maps FEEDMIRROR_TELEGRAM__ALLOWED_USERS to telegram.allowed_users.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// allowedUsers accepts either a comma-separated string, as set through the
// environment, or a TOML array.
func allowedUsers(raw any) ([]int64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		var ids []int64
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in telegram.allowed_users: %w", s, err)
			}
			ids = append(ids, uid)
		}
		return ids, nil
	case []any:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int64:
				ids = append(ids, n)
			case int:
				ids = append(ids, int64(n))
			case float64:
				ids = append(ids, int64(n))
			default:
				return nil, fmt.Errorf("invalid user ID %v in telegram.allowed_users", item)
			}
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("telegram.allowed_users: unsupported value %v", raw)
	}
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
