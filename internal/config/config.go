package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/SAScholar/STConverterWatchingDog/internal/variant"
)

// EnvPrefix is the prefix of environment variables overriding the config.
// Nested keys are separated by a double underscore, e.g.
// REDIRECTBOT_WIKI__API_URL.
const EnvPrefix = "REDIRECTBOT_"

// Config represents the bot configuration
type Config struct {
	Wiki struct {
		APIURL       string        `koanf:"api_url"`
		UserAgent    string        `koanf:"user_agent"`
		Username     string        `koanf:"username"`
		Password     string        `koanf:"password"`
		Timeout      time.Duration `koanf:"timeout"`
		EditInterval time.Duration `koanf:"edit_interval"`
		MaxLag       int           `koanf:"maxlag"`
	} `koanf:"wiki"`

	Watch struct {
		Namespace int    `koanf:"namespace"`
		Tag       string `koanf:"tag"`
		Limit     int    `koanf:"limit"`
		Summary   string `koanf:"summary"`
	} `koanf:"watch"`

	Store struct {
		Path        string        `koanf:"path"`
		LockPath    string        `koanf:"lock_path"`
		LockTimeout time.Duration `koanf:"lock_timeout"`
	} `koanf:"store"`

	Loop struct {
		Idle   time.Duration `koanf:"idle"`
		DryRun bool          `koanf:"dry_run"`
	} `koanf:"loop"`

	Variant struct {
		Classify string `koanf:"classify"`
	} `koanf:"variant"`

	Log struct {
		File  string `koanf:"file"`
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"wiki.api_url":       "https://zh.wikipedia.org/w/api.php",
		"wiki.user_agent":    "STConverterWatchingDog/1.0 (redirect variant sync bot)",
		"wiki.timeout":       30 * time.Second,
		"wiki.edit_interval": 10 * time.Second,
		"wiki.maxlag":        5,

		"watch.namespace": 0,
		"watch.tag":       "mw-changed-redirect-target",
		"watch.limit":     500,
		"watch.summary":   "同步繁简重定向目标",

		"store.path":         "record.json",
		"store.lock_path":    "record.json.lock",
		"store.lock_timeout": 5 * time.Second,

		"loop.idle":    30 * time.Second,
		"loop.dry_run": false,

		"variant.classify": string(variant.ModeLiteral),

		"log.file":  "meow.log",
		"log.level": "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// configPath and REDIRECTBOT_ environment variables, in that order.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &config, nil
}

// Validate checks the values the bot cannot run without
func (c *Config) Validate() error {
	if c.Wiki.APIURL == "" {
		return fmt.Errorf("wiki.api_url is required")
	}
	if c.Wiki.Timeout <= 0 {
		return fmt.Errorf("wiki.timeout must be positive")
	}
	if c.Wiki.EditInterval < 0 {
		return fmt.Errorf("wiki.edit_interval must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.LockTimeout <= 0 {
		return fmt.Errorf("store.lock_timeout must be positive")
	}
	if c.Loop.Idle <= 0 {
		return fmt.Errorf("loop.idle must be positive")
	}
	if _, err := variant.ParseMode(c.Variant.Classify); err != nil {
		return err
	}
	return nil
}
